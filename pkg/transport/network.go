// Package transport is a small gossip fabric over TCP. Nodes of the same
// network find each other by mDNS or static addresses, keep one link per
// peer and flood topic broadcasts through the mesh, dropping frames they
// have already seen.
package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"lukechampine.com/blake3"

	"github.com/udit2303/sitegossip/pkg/discovery"
	"github.com/udit2303/sitegossip/pkg/keys"
	"github.com/udit2303/sitegossip/pkg/metrics"
	"github.com/udit2303/sitegossip/pkg/util"
)

const (
	defaultDedupTTL    = 5 * time.Minute
	defaultDialTimeout = 5 * time.Second
	writeTimeout       = 5 * time.Second
	eventBuffer        = 256
	maxRedialBackoff   = time.Minute
)

var errSelfConnect = errors.New("connected to self")

// Config configures a Network.
type Config struct {
	// ListenAddr is the TCP address for inbound links, ":0" if empty.
	ListenAddr string
	// Peers are dialed at start and redialed whenever their link drops.
	Peers []string
	// Discovery, if set, is used to announce this node and find others.
	Discovery discovery.Discovery
	// DedupTTL is how long a gossip frame is remembered.
	DedupTTL    time.Duration
	DialTimeout time.Duration
	Log         *util.Logger
	Metrics     *metrics.Metrics
}

// Network is one node of the gossip mesh.
type Network struct {
	id     keys.NetworkID
	nodeID uuid.UUID
	cfg    Config
	log    *util.Logger
	ln     net.Listener
	seen   *cache.Cache

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	peers   map[uuid.UUID]*peer
	dialing map[uuid.UUID]bool
	subs    map[keys.TopicID]*Subscription

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewNetwork creates a node of network id and starts listening. Nothing is
// dialed or announced until Run.
func NewNetwork(id keys.NetworkID, cfg Config) (*Network, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Log == nil {
		cfg.Log = util.DefaultLogger()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	nodeID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		id:      id,
		nodeID:  nodeID,
		cfg:     cfg,
		log:     cfg.Log.With("node", nodeID.String()[:8]),
		ln:      ln,
		seen:    cache.New(cfg.DedupTTL, 2*cfg.DedupTTL),
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[uuid.UUID]*peer),
		dialing: make(map[uuid.UUID]bool),
		subs:    make(map[keys.TopicID]*Subscription),
	}, nil
}

// NodeID identifies this node for the lifetime of the process.
func (n *Network) NodeID() string {
	return n.nodeID.String()
}

// Addr is the listening address.
func (n *Network) Addr() net.Addr {
	return n.ln.Addr()
}

// Port is the listening TCP port.
func (n *Network) Port() int {
	if a, ok := n.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// PeerCount returns the number of live peer links.
func (n *Network) PeerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

// Subscribe joins topic. Each topic can be subscribed once.
func (n *Network) Subscribe(topic keys.TopicID) (*Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrSinkClosed
	}
	if _, ok := n.subs[topic]; ok {
		return nil, fmt.Errorf("already subscribed to topic %s", topic)
	}
	s := &Subscription{
		net:    n,
		topic:  topic,
		events: make(chan Event, eventBuffer),
		ready:  make(chan struct{}),
	}
	if len(n.peers) > 0 {
		s.markReady()
	}
	n.subs[topic] = s
	return s, nil
}

// Run accepts and dials peers until ctx is done, then shuts down.
func (n *Network) Run(ctx context.Context) error {
	n.log.Info("Gossip network listening", "address", n.Addr().String(), "network", n.id.ServiceTag())
	n.start()
	select {
	case <-ctx.Done():
	case <-n.ctx.Done():
	}
	return n.Shutdown()
}

// Shutdown closes every link, stops background work and closes all
// subscription event channels. It is safe to call more than once.
func (n *Network) Shutdown() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		peers := make([]*peer, 0, len(n.peers))
		for _, p := range n.peers {
			peers = append(peers, p)
		}
		n.mu.Unlock()

		n.cancel()
		_ = n.ln.Close()
		for _, p := range peers {
			p.close()
		}
		n.wg.Wait()

		n.mu.Lock()
		for _, s := range n.subs {
			close(s.events)
		}
		n.mu.Unlock()
		n.cfg.Metrics.SetPeers(0)
		n.log.Info("Gossip network shut down")
	})
	return nil
}

func (n *Network) start() {
	n.spawn(n.acceptLoop)
	for _, addr := range n.cfg.Peers {
		addr := addr
		n.spawn(func() { n.maintain(addr) })
	}
	if d := n.cfg.Discovery; d != nil {
		n.spawn(func() {
			if err := d.Announce(n.ctx, n.NodeID(), n.Port()); err != nil {
				n.log.Warn("Service announcement failed", "error", err)
			}
		})
		n.spawn(func() {
			if err := d.Browse(n.ctx, n.onDiscovered); err != nil {
				n.log.Warn("Peer discovery failed", "error", err)
			}
		})
	}
}

// spawn runs fn in a goroutine tracked by Shutdown. It returns false once
// the network is closed.
func (n *Network) spawn(fn func()) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.spawnLocked(fn)
}

func (n *Network) spawnLocked(fn func()) bool {
	if n.closed {
		return false
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
	return true
}

func (n *Network) acceptLoop() {
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Error("Error accepting connection", "error", err)
			continue
		}
		ok := n.spawn(func() {
			if _, err := n.setupPeer(conn); err != nil {
				n.log.Debug("Rejected inbound link", "remote", conn.RemoteAddr().String(), "error", err)
			}
		})
		if !ok {
			conn.Close()
		}
	}
}

// maintain keeps a link to a static peer address alive.
func (n *Network) maintain(addr string) {
	backoff := time.Second
	for {
		var p *peer
		err := util.RetryWithBackoff(n.ctx, 3, time.Second, func() error {
			var err error
			p, err = n.dial(n.ctx, addr)
			return err
		})
		if n.ctx.Err() != nil {
			return
		}
		if err != nil {
			n.log.Warn("Failed to connect to peer", "address", addr, "error", err)
		} else {
			backoff = time.Second
			select {
			case <-p.done:
				n.log.Info("Lost link to peer, redialing", "address", addr)
			case <-n.ctx.Done():
				return
			}
		}

		timer := time.NewTimer(backoff)
		select {
		case <-n.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRedialBackoff)
	}
}

// onDiscovered dials a discovered node. Only the node with the smaller id
// dials, so two nodes finding each other end up with a single link.
func (n *Network) onDiscovered(dp discovery.Peer) {
	id, err := uuid.Parse(dp.ID)
	if err != nil {
		n.log.Debug("Ignoring peer with malformed id", "peer", dp.ID)
		return
	}
	if bytes.Compare(n.nodeID[:], id[:]) >= 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[id]; ok || n.dialing[id] {
		return
	}
	n.dialing[id] = true
	addr := net.JoinHostPort(dp.IP, strconv.Itoa(dp.Port))
	n.log.Debug("Discovered peer", "peer", dp.ID, "address", addr)
	n.spawnLocked(func() {
		defer func() {
			n.mu.Lock()
			delete(n.dialing, id)
			n.mu.Unlock()
		}()
		err := util.RetryWithBackoff(n.ctx, 3, 500*time.Millisecond, func() error {
			_, err := n.dial(n.ctx, addr)
			return err
		})
		if err != nil && n.ctx.Err() == nil {
			n.log.Warn("Failed to connect to discovered peer", "peer", dp.ID, "address", addr, "error", err)
		}
	})
}

func (n *Network) dial(ctx context.Context, addr string) (*peer, error) {
	d := net.Dialer{Timeout: n.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return n.setupPeer(conn)
}

// setupPeer runs the hello exchange and registers the link. If a link to
// the same node already exists, conn is dropped and the existing peer is
// returned.
func (n *Network) setupPeer(conn net.Conn) (*peer, error) {
	_ = conn.SetDeadline(time.Now().Add(n.cfg.DialTimeout))
	if err := writeHello(conn, hello{network: n.id, node: n.nodeID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}
	h, err := readHello(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}
	if h.network != n.id {
		conn.Close()
		return nil, errNetworkMismatch
	}
	if h.node == n.nodeID {
		conn.Close()
		return nil, errSelfConnect
	}
	_ = conn.SetDeadline(time.Time{})

	p := newPeer(h.node, conn)
	existing, err := n.addPeer(p)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if existing != nil {
		conn.Close()
		return existing, nil
	}
	return p, nil
}

func (n *Network) addPeer(p *peer) (*peer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrSinkClosed
	}
	if existing, ok := n.peers[p.id]; ok {
		return existing, nil
	}
	n.peers[p.id] = p
	n.spawnLocked(func() { n.readLoop(p) })
	for _, s := range n.subs {
		s.markReady()
	}
	n.cfg.Metrics.SetPeers(len(n.peers))
	n.log.Info("Peer connected", "peer", p.id.String(), "remote", p.conn.RemoteAddr().String(), "peers", len(n.peers))
	return nil, nil
}

func (n *Network) removePeer(p *peer) {
	n.mu.Lock()
	if n.peers[p.id] == p {
		delete(n.peers, p.id)
	}
	count := len(n.peers)
	n.mu.Unlock()
	p.close()
	n.cfg.Metrics.SetPeers(count)
	n.log.Info("Peer disconnected", "peer", p.id.String(), "peers", count)
}

func (n *Network) readLoop(p *peer) {
	defer n.removePeer(p)
	for {
		b, err := util.ReadWithLength(p.conn)
		if err != nil {
			if n.ctx.Err() == nil {
				n.log.Debug("Peer link closed", "peer", p.id.String(), "error", err)
			}
			return
		}
		n.handleFrame(p, b)
	}
}

func (n *Network) handleFrame(from *peer, b []byte) {
	c, topic, payload, err := decodeFrame(b)
	if err != nil {
		n.log.Warn("Dropping malformed frame", "peer", from.id.String(), "error", err)
		return
	}
	if c == CategoryGossip {
		if !n.markSeen(b) {
			n.cfg.Metrics.DuplicateDropped()
			return
		}
		n.broadcast(b, from)
	}

	n.mu.Lock()
	s := n.subs[topic]
	n.mu.Unlock()
	if s == nil {
		return
	}
	ev := Event{
		Category:   c,
		Topic:      topic,
		Bytes:      payload,
		Peer:       from.id.String(),
		ReceivedAt: time.Now(),
	}
	select {
	case s.events <- ev:
	case <-n.ctx.Done():
	}
}

// markSeen records frame and reports whether it was new.
func (n *Network) markSeen(frame []byte) bool {
	sum := blake3.Sum256(frame)
	return n.seen.Add(hex.EncodeToString(sum[:]), struct{}{}, cache.DefaultExpiration) == nil
}

// broadcast writes frame to every peer except skip. A peer that cannot be
// written to is disconnected.
func (n *Network) broadcast(frame []byte, skip *peer) {
	n.mu.Lock()
	targets := make([]*peer, 0, len(n.peers))
	for _, p := range n.peers {
		if p != skip {
			targets = append(targets, p)
		}
	}
	n.mu.Unlock()

	for _, p := range targets {
		if err := p.send(frame); err != nil {
			n.log.Warn("Failed to forward frame", "peer", p.id.String(), "error", err)
			p.close()
		}
	}
}

func (n *Network) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
