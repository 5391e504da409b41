package util

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// MaxFrameSize bounds a single length-prefixed frame.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a peer announces a frame over MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// SendWithLength writes data prefixed by its big-endian uint32 length.
func SendWithLength(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("failed to send %d bytes: %w", len(data), ErrFrameTooLarge)
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// ReadWithLength reads one frame written by SendWithLength.
func ReadWithLength(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read length: %w", err)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("peer announced %d bytes: %w", length, ErrFrameTooLarge)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return buf, nil
}

// RetryWithBackoff retries fn with exponential backoff until it succeeds,
// maxRetries attempts are used up or ctx is done.
func RetryWithBackoff(ctx context.Context, maxRetries int, initialBackoff time.Duration, fn func() error) error {
	var err error
	backoff := initialBackoff

	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			backoff *= 2
		}
	}

	return fmt.Errorf("after %d attempts, last error: %w", maxRetries, err)
}
