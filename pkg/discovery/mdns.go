package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsDomain = "local."
	txtNodeKey = "node="
)

// MDNS implements Discovery with multicast DNS service records. Nodes on
// the same network share a service name derived from the network tag.
type MDNS struct {
	service string
}

// NewMDNS returns an mDNS discovery scoped to networkTag.
func NewMDNS(networkTag string) *MDNS {
	return &MDNS{service: ServiceName(networkTag)}
}

// ServiceName is the DNS-SD service type for a network tag.
func ServiceName(networkTag string) string {
	return "_sitegossip-" + networkTag + "._tcp"
}

// Announce advertises nodeID on port until ctx is done.
func (m *MDNS) Announce(ctx context.Context, nodeID string, port int) error {
	server, err := zeroconf.Register(nodeID, m.service, mdnsDomain, port, []string{"txtv=0", txtNodeKey + nodeID}, nil)
	if err != nil {
		return fmt.Errorf("failed to announce service %s: %w", m.service, err)
	}
	defer server.Shutdown()

	<-ctx.Done()
	return nil
}

// Browse calls found for every IPv4 address of every node it sees until
// ctx is done. The same node may be reported more than once.
func (m *MDNS) Browse(ctx context.Context, found func(Peer)) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				id := nodeIDFromTXT(entry.Text)
				if id == "" {
					id = entry.Instance
				}
				for _, ip := range entry.AddrIPv4 {
					found(Peer{ID: id, IP: ip.String(), Port: entry.Port})
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, m.service, mdnsDomain, entries); err != nil {
		return fmt.Errorf("failed to browse %s: %w", m.service, err)
	}
	<-ctx.Done()
	return nil
}

func nodeIDFromTXT(txt []string) string {
	for _, kv := range txt {
		if id, ok := strings.CutPrefix(kv, txtNodeKey); ok {
			return id
		}
	}
	return ""
}
