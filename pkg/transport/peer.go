package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udit2303/sitegossip/pkg/util"
)

// peer is one live link to another node.
type peer struct {
	id   uuid.UUID
	conn net.Conn

	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id uuid.UUID, conn net.Conn) *peer {
	return &peer{id: id, conn: conn, done: make(chan struct{})}
}

func (p *peer) send(frame []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return util.SendWithLength(p.conn, frame)
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.conn.Close()
		close(p.done)
	})
}
