package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"netmonitor/internal/logger"
)

// Sink delivers events to an external system.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Name() string
}

// Forwarder copies bus events into a sink. It is a suture service.
// Sink failures trip a breaker so a dead broker is skipped instead of
// retried on every event.
type Forwarder struct {
	bus     *Bus
	sink    Sink
	log     logger.Logger
	buffer  int
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewForwarder subscribes sink to bus once Serve runs.
func NewForwarder(bus *Bus, sink Sink, log logger.Logger) *Forwarder {
	return &Forwarder{
		bus:     bus,
		sink:    sink,
		log:     log.WithComponent("forward-" + sink.Name()),
		buffer:  256,
		timeout: 2 * time.Second,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    sink.Name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("sink", name).Stringer("from", from).Stringer("to", to).Msg("event sink breaker state changed")
			},
		}),
	}
}

func (f *Forwarder) Serve(ctx context.Context) error {
	ch, unsubscribe := f.bus.Subscribe(f.buffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e Event) {
	_, err := f.breaker.Execute(func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return struct{}{}, f.sink.Send(sendCtx, e)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		f.log.Debug().Str("kind", string(e.Kind)).Msg("sink unavailable, event skipped")
	default:
		f.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("event delivery failed")
	}
}

func (f *Forwarder) String() string {
	return fmt.Sprintf("events forwarder (%s)", f.sink.Name())
}
