// Package node assembles a running participant: identity, gossip network,
// dispatcher and announcer.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udit2303/sitegossip/pkg/announce"
	"github.com/udit2303/sitegossip/pkg/discovery"
	"github.com/udit2303/sitegossip/pkg/dispatch"
	"github.com/udit2303/sitegossip/pkg/keys"
	"github.com/udit2303/sitegossip/pkg/metrics"
	"github.com/udit2303/sitegossip/pkg/sites"
	"github.com/udit2303/sitegossip/pkg/transport"
	"github.com/udit2303/sitegossip/pkg/util"
)

const (
	DefaultNetwork = "merri-bek.tech"
	DefaultTopic   = "site_management"
)

// Config is everything a node needs. Zero values pick defaults.
type Config struct {
	SiteName   string
	Network    string
	Topic      string
	ListenAddr string
	Peers      []string
	MDNS       bool
	Interval   time.Duration
	// Chat, if set, is read line by line and broadcast as notifications.
	Chat    io.Reader
	Log     *util.Logger
	Metrics *metrics.Metrics
}

// Node is one participant.
type Node struct {
	cfg        Config
	log        *util.Logger
	identity   *keys.Identity
	network    *transport.Network
	sub        *transport.Subscription
	dir        *sites.Directory
	dispatcher *dispatch.Dispatcher
	scheduler  *announce.Scheduler
	notifier   *announce.Notifier
}

// New creates the identity, binds the listener and subscribes to the
// announcement topic.
func New(cfg Config) (*Node, error) {
	if cfg.SiteName == "" {
		return nil, errors.New("site name is required")
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Log == nil {
		cfg.Log = util.DefaultLogger()
	}

	identity, err := keys.NewIdentity()
	if err != nil {
		return nil, err
	}

	networkID := keys.NewNetworkID(cfg.Network)
	tcfg := transport.Config{
		ListenAddr: cfg.ListenAddr,
		Peers:      cfg.Peers,
		Log:        cfg.Log,
		Metrics:    cfg.Metrics,
	}
	if cfg.MDNS {
		tcfg.Discovery = discovery.NewMDNS(networkID.ServiceTag())
	}
	network, err := transport.NewNetwork(networkID, tcfg)
	if err != nil {
		return nil, err
	}
	sub, err := network.Subscribe(keys.NewTopicID(cfg.Topic))
	if err != nil {
		network.Shutdown()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", cfg.Topic, err)
	}

	dir := sites.New()
	n := &Node{
		cfg:      cfg,
		log:      cfg.Log,
		identity: identity,
		network:  network,
		sub:      sub,
		dir:      dir,
		dispatcher: dispatch.New(dir,
			dispatch.WithLogger(cfg.Log),
			dispatch.WithMetrics(cfg.Metrics),
		),
	}
	n.scheduler, err = announce.New(announce.Config{SiteName: cfg.SiteName, Interval: cfg.Interval}, identity, sub,
		announce.WithLogger(cfg.Log),
		announce.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		network.Shutdown()
		return nil, err
	}
	if cfg.Chat != nil {
		n.notifier, err = announce.NewNotifier(identity, sub,
			announce.WithLogger(cfg.Log),
			announce.WithMetrics(cfg.Metrics),
		)
		if err != nil {
			network.Shutdown()
			return nil, err
		}
	}
	return n, nil
}

// Addr is the gossip listening address.
func (n *Node) Addr() string {
	return n.network.Addr().String()
}

// Fingerprint identifies this node's signing key.
func (n *Node) Fingerprint() string {
	return n.identity.Fingerprint()
}

// Directory returns the site directory. It must only be read after Run
// has returned.
func (n *Node) Directory() *sites.Directory {
	return n.dir
}

// Run runs the node until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("Starting client for site", "site", n.cfg.SiteName, "key", n.Fingerprint(), "topic", n.cfg.Topic)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.network.Run(ctx)
	})
	g.Go(func() error {
		return n.dispatcher.Run(ctx, n.sub.Events())
	})
	g.Go(func() error {
		if err := n.scheduler.Run(ctx, n.sub.Ready()); err != nil {
			n.log.Error("Announcements stopped", "error", err)
		}
		return nil
	})
	if n.notifier != nil {
		g.Go(func() error {
			if err := n.notifier.ReadNotifications(ctx, n.cfg.Chat); err != nil {
				n.log.Error("Notification input stopped", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
