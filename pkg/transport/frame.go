package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/udit2303/sitegossip/pkg/keys"
	"github.com/udit2303/sitegossip/pkg/util"
)

var helloMagic = []byte("SGv1")

const (
	helloSize     = 4 + 32 + 16
	frameHeadSize = 1 + 32
)

var errNetworkMismatch = errors.New("peer is on a different network")

type hello struct {
	network keys.NetworkID
	node    uuid.UUID
}

func writeHello(w io.Writer, h hello) error {
	buf := make([]byte, 0, helloSize)
	buf = append(buf, helloMagic...)
	buf = append(buf, h.network[:]...)
	buf = append(buf, h.node[:]...)
	return util.SendWithLength(w, buf)
}

func readHello(r io.Reader) (hello, error) {
	var h hello
	b, err := util.ReadWithLength(r)
	if err != nil {
		return h, err
	}
	if len(b) != helloSize || !bytes.Equal(b[:4], helloMagic) {
		return h, fmt.Errorf("malformed hello (%d bytes)", len(b))
	}
	copy(h.network[:], b[4:36])
	copy(h.node[:], b[36:])
	return h, nil
}

func encodeFrame(c Category, topic keys.TopicID, payload []byte) []byte {
	buf := make([]byte, 0, frameHeadSize+len(payload))
	buf = append(buf, byte(c))
	buf = append(buf, topic[:]...)
	return append(buf, payload...)
}

func decodeFrame(b []byte) (Category, keys.TopicID, []byte, error) {
	var topic keys.TopicID
	if len(b) < frameHeadSize {
		return 0, topic, nil, fmt.Errorf("short frame (%d bytes)", len(b))
	}
	copy(topic[:], b[1:frameHeadSize])
	return Category(b[0]), topic, b[frameHeadSize:], nil
}
