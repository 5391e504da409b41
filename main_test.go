package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteName(t *testing.T) {
	name, err := siteName([]string{"rosa", "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "rosa", name)

	host, err := os.Hostname()
	require.NoError(t, err)
	name, err = siteName(nil)
	require.NoError(t, err)
	assert.Equal(t, host, name)
}

func TestSplitPeers(t *testing.T) {
	assert.Nil(t, splitPeers(""))
	assert.Equal(t, []string{"10.0.0.1:4000", "10.0.0.2:4000"}, splitPeers(" 10.0.0.1:4000, ,10.0.0.2:4000 "))
}
