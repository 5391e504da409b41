package discovery

import "context"

// Peer is a node found on the local network.
type Peer struct {
	ID   string
	IP   string
	Port int
}

// Discovery announces this node and reports others on the same network.
// Both methods block until ctx is done.
type Discovery interface {
	Announce(ctx context.Context, nodeID string, port int) error
	Browse(ctx context.Context, found func(Peer)) error
}
