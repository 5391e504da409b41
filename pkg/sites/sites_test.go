package sites

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udit2303/sitegossip/pkg/util"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRegisterIsIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	d := New(WithClock(clock.Now))

	d.Register("alpha")
	first, ok := d.Get("alpha")
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	d.Register("alpha")

	assert.Equal(t, 1, d.Len())
	r, ok := d.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, first.LastSeen.Add(30*time.Second), r.LastSeen)
}

func TestListIsSortedAndCountsDistinctNames(t *testing.T) {
	d := New()
	for _, name := range []string{"rosa", "alpha", "mika", "alpha", "rosa", "zed"} {
		d.Register(name)
	}

	var names []string
	for _, r := range d.List() {
		names = append(names, r.SiteName)
	}
	assert.Equal(t, []string{"alpha", "mika", "rosa", "zed"}, names)
	assert.Equal(t, 4, d.Len())
}

func TestListIsASnapshot(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	d := New(WithClock(clock.Now))
	d.Register("rosa")

	snap := d.List()
	clock.Advance(time.Minute)
	d.Register("rosa")

	assert.Equal(t, time.Unix(100, 0), snap[0].LastSeen)
	assert.Equal(t, []Record{{SiteName: "rosa", LastSeen: time.Unix(160, 0)}}, d.List())
}

func TestEmptyDirectory(t *testing.T) {
	d := New()
	assert.Empty(t, d.List())
	_, ok := d.Get("nope")
	assert.False(t, ok)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	d := New()
	d.Register("rosa")
	d.Register("alpha")
	d.Log(util.NewLogger(&buf, util.InfoLevel))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"count":2`)
	assert.Contains(t, lines[1], `"site":"alpha"`)
	assert.Contains(t, lines[2], `"site":"rosa"`)
}
