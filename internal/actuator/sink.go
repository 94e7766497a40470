// Package actuator delivers each tick's MotionCommand to the motor controller
// and any other consumers of decisions.
package actuator

import (
	"context"
	"errors"
	"log"

	"github.com/banshee-data/motion-planner/internal/planner"
)

// Sink consumes one Decision per tick. Emit must not block for longer than a
// tick period.
type Sink interface {
	Emit(ctx context.Context, d planner.Decision) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d planner.Decision) error

func (f SinkFunc) Emit(ctx context.Context, d planner.Decision) error { return f(ctx, d) }

// MultiSink emits to every sink in order. All sinks run even when one fails;
// the failures are joined.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, d planner.Decision) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink prints every command. It stands in for the motor controller on a
// bench run with no actuator port.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, d planner.Decision) error {
	log.Printf("[actuator] tick %d %s/%s: %s", d.Tick, d.Branch, d.Outcome, d.Command)
	return nil
}
