// Package control drives the planner at a fixed period.
package control

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motion-planner/internal/actuator"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/timeutil"
)

// Loop ticks an Engine and hands each Decision to a Sink.
type Loop struct {
	engine *planner.Engine
	sink   actuator.Sink
	clock  timeutil.Clock
	period time.Duration

	sinkErrors atomic.Uint64
}

// NewLoop returns a loop ticking every period on clock. A nil clock uses the
// wall clock.
func NewLoop(engine *planner.Engine, sink actuator.Sink, clock timeutil.Clock, period time.Duration) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if sink == nil {
		sink = actuator.MultiSink{}
	}
	return &Loop{engine: engine, sink: sink, clock: clock, period: period}
}

// Period returns the tick period.
func (l *Loop) Period() time.Duration { return l.period }

// SinkErrors returns how many Emit calls have failed.
func (l *Loop) SinkErrors() uint64 { return l.sinkErrors.Load() }

// Step runs one tick synchronously and returns its Decision. A sink error is
// logged and counted; the Decision is returned regardless.
func (l *Loop) Step(ctx context.Context) planner.Decision {
	d := l.engine.Tick()
	if err := l.sink.Emit(ctx, d); err != nil {
		l.sinkErrors.Add(1)
		log.Printf("[planner] tick %d: emit failed: %v", d.Tick, err)
	}
	return d
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.period)
	defer ticker.Stop()

	log.Printf("[planner] control loop started, period %v", l.period)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[planner] control loop stopped after %d ticks", l.engine.Ticks())
			return ctx.Err()
		case <-ticker.C():
			l.Step(ctx)
		}
	}
}
