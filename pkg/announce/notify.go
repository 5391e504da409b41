package announce

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/udit2303/sitegossip/pkg/keys"
	"github.com/udit2303/sitegossip/pkg/message"
	"github.com/udit2303/sitegossip/pkg/transport"
)

// Notifier broadcasts free text as SiteNotification payloads. It shares
// the sink with the Scheduler.
type Notifier struct {
	base
}

func NewNotifier(id *keys.Identity, sink Sink, opts ...Option) (*Notifier, error) {
	b, err := newBase(id, sink, opts)
	if err != nil {
		return nil, err
	}
	return &Notifier{base: b}, nil
}

// Notify signs and sends one notification.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	return n.send(ctx, message.SiteNotification{Notification: text})
}

// ReadNotifications broadcasts every non-blank line of r until r is
// exhausted, ctx is done or the sink closes.
func (n *Notifier) ReadNotifications(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(r)
	lines := make(chan string)
	// Reads from a terminal cannot be interrupted, so scanning runs apart
	// from the send loop.
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := n.Notify(ctx, line); err != nil {
				if errors.Is(err, transport.ErrSinkClosed) {
					return err
				}
				n.log.Warn("Failed to send notification", "error", err)
			}
		}
	}
}
