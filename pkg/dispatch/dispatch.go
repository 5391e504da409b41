// Package dispatch consumes inbound transport events, verifies them and
// applies site registrations to the directory.
package dispatch

import (
	"context"
	"fmt"

	"github.com/udit2303/sitegossip/pkg/message"
	"github.com/udit2303/sitegossip/pkg/metrics"
	"github.com/udit2303/sitegossip/pkg/sites"
	"github.com/udit2303/sitegossip/pkg/transport"
	"github.com/udit2303/sitegossip/pkg/util"
)

// TransportCategoryError reports an inbound event of a category this node
// never subscribes to, such as a sync protocol frame. Any peer can send
// one, so it is logged and dropped like a malformed message.
type TransportCategoryError struct {
	Category transport.Category
	Peer     string
}

func (e *TransportCategoryError) Error() string {
	return fmt.Sprintf("unexpected %s event from peer %s", e.Category, e.Peer)
}

// Dispatcher owns the site directory. Nothing else may touch it while Run
// is active.
type Dispatcher struct {
	dir     *sites.Directory
	log     *util.Logger
	metrics *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *util.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New returns a Dispatcher writing into dir.
func New(dir *sites.Directory, opts ...Option) *Dispatcher {
	d := &Dispatcher{dir: dir, log: util.DefaultLogger()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run handles events until ctx is done or events is closed. Per message
// failures never stop the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				d.log.Debug("Inbound event stream closed")
				return nil
			}
			_ = d.Handle(ev)
		}
	}
}

// Handle processes one event. The returned error, if any, has already been
// logged; it is a *message.DecodeError, a *message.SignatureError or a
// *TransportCategoryError.
func (d *Dispatcher) Handle(ev transport.Event) error {
	if ev.Category != transport.CategoryGossip {
		err := &TransportCategoryError{Category: ev.Category, Peer: ev.Peer}
		d.metrics.Received(metrics.OutcomeCategory)
		d.log.Warn("Ignoring unexpected transport event", "category", ev.Category.String(), "peer", ev.Peer, "error", err)
		return err
	}

	env, err := message.DecodeAndVerify(ev.Bytes)
	if err != nil {
		kind := message.KindOf(err)
		if kind == message.KindSignature {
			d.metrics.Received(metrics.OutcomeSigError)
		} else {
			d.metrics.Received(metrics.OutcomeDecodeError)
		}
		d.log.Warn("Invalid gossip message", "kind", string(kind), "peer", ev.Peer, "size", len(ev.Bytes), "error", err)
		return err
	}

	switch p := env.Payload.(type) {
	case message.SiteRegistration:
		d.metrics.Received(metrics.OutcomeRegistration)
		d.log.Info("Received SiteRegistration", "site", p.SiteName, "author", env.Author(), "peer", ev.Peer)
		d.dir.Register(p.SiteName)
		d.metrics.SetKnownSites(d.dir.Len())
		d.dir.Log(d.log)
	case message.SiteNotification:
		d.metrics.Received(metrics.OutcomeNotification)
		d.log.Info("Received SiteNotification", "notification", p.Notification, "author", env.Author(), "peer", ev.Peer)
	default:
		// DecodeAndVerify only yields the variants above.
		d.log.Error("Unhandled payload", "tag", env.Payload.Tag().String())
	}
	return nil
}
