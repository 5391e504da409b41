// Package announce produces this node's outbound traffic: the periodic
// site registration and, optionally, operator typed notifications.
package announce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/udit2303/sitegossip/pkg/keys"
	"github.com/udit2303/sitegossip/pkg/message"
	"github.com/udit2303/sitegossip/pkg/metrics"
	"github.com/udit2303/sitegossip/pkg/transport"
	"github.com/udit2303/sitegossip/pkg/util"
)

const (
	DefaultInterval        = 30 * time.Second
	DefaultMaxSendFailures = 3
)

// Sink accepts encoded envelopes for broadcast. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, b []byte) error
}

// Config configures a Scheduler.
type Config struct {
	// SiteName is announced in every SiteRegistration.
	SiteName string
	// Interval between announcements after the first one.
	Interval time.Duration
	// MaxSendFailures is the number of consecutive failed sends after which
	// the scheduler gives up.
	MaxSendFailures int
}

type base struct {
	identity  *keys.Identity
	sink      Sink
	log       *util.Logger
	metrics   *metrics.Metrics
	newTicker func(time.Duration) Ticker
}

// Option configures a Scheduler or Notifier.
type Option func(*base)

func WithLogger(l *util.Logger) Option {
	return func(b *base) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithTicker replaces NewTicker.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(b *base) { b.newTicker = fn }
}

func newBase(id *keys.Identity, sink Sink, opts []Option) (base, error) {
	b := base{
		identity:  id,
		sink:      sink,
		log:       util.DefaultLogger(),
		newTicker: NewTicker,
	}
	if id == nil {
		return b, errors.New("identity is required")
	}
	if sink == nil {
		return b, errors.New("sink is required")
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b, nil
}

func (b *base) send(ctx context.Context, p message.Payload) error {
	env, err := message.SignAndEncode(b.identity, p)
	if err != nil {
		return fmt.Errorf("failed to sign %s: %w", p.Tag(), err)
	}
	if err := b.sink.Send(ctx, env); err != nil {
		b.metrics.SendFailed()
		return err
	}
	b.metrics.Sent()
	return nil
}

// Scheduler announces the local site once the transport is ready and then
// on every interval.
type Scheduler struct {
	base
	cfg      Config
	failures int
}

// New returns a Scheduler announcing cfg.SiteName signed by id into sink.
func New(cfg Config, id *keys.Identity, sink Sink, opts ...Option) (*Scheduler, error) {
	if cfg.SiteName == "" {
		return nil, errors.New("site name is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxSendFailures <= 0 {
		cfg.MaxSendFailures = DefaultMaxSendFailures
	}
	b, err := newBase(id, sink, opts)
	if err != nil {
		return nil, err
	}
	b.log = b.log.With("site", cfg.SiteName)
	return &Scheduler{base: b, cfg: cfg}, nil
}

// AnnounceOnce signs and sends a single SiteRegistration.
func (s *Scheduler) AnnounceOnce(ctx context.Context) error {
	s.log.Info("Announcing myself")
	return s.send(ctx, message.SiteRegistration{SiteName: s.cfg.SiteName})
}

// Run blocks until ready fires, announces, and keeps announcing every
// interval until ctx is done. It returns an error if the sink is closed or
// keeps failing.
func (s *Scheduler) Run(ctx context.Context, ready <-chan struct{}) error {
	s.log.Info("Waiting for peers to join")
	select {
	case <-ctx.Done():
		return nil
	case <-ready:
	}
	s.log.Info("Found other peers, starting announcements", "interval", s.cfg.Interval.String())

	ticker := s.newTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	err := s.AnnounceOnce(ctx)
	if err == nil {
		s.failures = 0
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	s.failures++
	s.log.Warn("Failed to announce site", "error", err, "consecutive_failures", s.failures)
	if errors.Is(err, transport.ErrSinkClosed) {
		return fmt.Errorf("announcer stopped: %w", err)
	}
	if s.failures >= s.cfg.MaxSendFailures {
		return fmt.Errorf("announcer stopped after %d consecutive failures: %w", s.failures, err)
	}
	return nil
}
