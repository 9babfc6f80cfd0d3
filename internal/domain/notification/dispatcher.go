package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher delivers messages off the request path. Each batch runs on its
// own goroutine with a fresh context so a finished request never cancels it.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates dispatcher
func NewDispatcher(sink Sink, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sink: sink, timeout: timeout}
}

// Dispatch returns immediately. Failures are logged, never returned.
func (d *Dispatcher) Dispatch(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	d.DispatchFunc(func(ctx context.Context) ([]Message, error) {
		return msgs, nil
	})
}

// DispatchFunc runs build and delivers its messages on a background
// goroutine, keeping any lookups build needs off the caller's path.
func (d *Dispatcher) DispatchFunc(build func(ctx context.Context) ([]Message, error)) {
	if d == nil || d.sink == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Msg("Notification dispatch after close dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification dispatch panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		msgs, err := build(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prepare notifications")
		}
		for _, msg := range msgs {
			if err := d.sink.Send(ctx, msg); err != nil {
				log.Warn().Err(err).
					Str("user_id", msg.AccountID.String()).
					Str("type", string(msg.Type)).
					Msg("Failed to deliver notification")
			}
		}
	}()
}

// Close stops accepting batches, then waits for in-flight ones or until
// ctx ends. Later dispatches are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
