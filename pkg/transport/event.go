package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/udit2303/sitegossip/pkg/keys"
)

// Category tells application broadcasts apart from transport internal
// traffic on the same topic.
type Category uint8

const (
	// CategoryGossip frames carry application bytes broadcast to a topic.
	CategoryGossip Category = 1
	// CategorySync frames belong to the request/response sync protocol.
	CategorySync Category = 2
)

func (c Category) String() string {
	switch c {
	case CategoryGossip:
		return "gossip"
	case CategorySync:
		return "sync"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ErrSinkClosed is returned by Send once the network has shut down.
var ErrSinkClosed = errors.New("transport: sink closed")

// Event is one inbound frame delivered to a subscription.
type Event struct {
	Category   Category
	Topic      keys.TopicID
	Bytes      []byte
	Peer       string
	ReceivedAt time.Time
}
