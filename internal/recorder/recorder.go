// Package recorder moves decisions and inputs off the tick path into the
// database. Queues are bounded; when one is full the record is dropped.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/planner"
)

// ErrQueueFull is returned by Emit when a decision had to be dropped.
var ErrQueueFull = errors.New("recorder queue full")

// Store is the persistence the recorder writes to. *db.DB implements it.
type Store interface {
	RecordDecisions(ctx context.Context, records []db.DecisionRecord) error
	RecordInputs(ctx context.Context, records []db.InputRecord) error
}

type Options struct {
	// RunID tags every record. A random UUID is used when empty.
	RunID         string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	// RecordInputs enables the inputs table. Decisions are always recorded.
	RecordInputs bool
}

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 500 * time.Millisecond
)

type Recorder struct {
	store        Store
	runID        string
	batchSize    int
	flushEvery   time.Duration
	recordInputs bool

	decisions chan db.DecisionRecord
	inputs    chan db.InputRecord

	dropped atomic.Uint64
	written atomic.Uint64
}

func New(store Store, opts Options) *Recorder {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Recorder{
		store:        store,
		runID:        opts.RunID,
		batchSize:    opts.BatchSize,
		flushEvery:   opts.FlushInterval,
		recordInputs: opts.RecordInputs,
		decisions:    make(chan db.DecisionRecord, opts.QueueSize),
		inputs:       make(chan db.InputRecord, opts.QueueSize),
	}
}

func (r *Recorder) RunID() string { return r.runID }

// Dropped returns how many records were discarded because a queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many records have been committed.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Emit queues d without blocking.
func (r *Recorder) Emit(_ context.Context, d planner.Decision) error {
	select {
	case r.decisions <- db.NewDecisionRecord(r.runID, d):
		return nil
	default:
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

// RecordInput queues an applied perception message without blocking. It is a
// no-op unless input recording is enabled.
func (r *Recorder) RecordInput(topic string, payload json.RawMessage, at time.Time) {
	if !r.recordInputs {
		return
	}
	select {
	case r.inputs <- db.InputRecord{RunID: r.runID, Topic: topic, Payload: string(payload), At: at}:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued records in batches until ctx is done, then flushes what
// is left and returns.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	var (
		decisions []db.DecisionRecord
		inputs    []db.InputRecord
	)
	flush := func(ctx context.Context) {
		if len(decisions) > 0 {
			if err := r.store.RecordDecisions(ctx, decisions); err != nil {
				log.Printf("[recorder] failed to write %d decisions: %v", len(decisions), err)
			} else {
				r.written.Add(uint64(len(decisions)))
			}
			decisions = decisions[:0]
		}
		if len(inputs) > 0 {
			if err := r.store.RecordInputs(ctx, inputs); err != nil {
				log.Printf("[recorder] failed to write %d inputs: %v", len(inputs), err)
			} else {
				r.written.Add(uint64(len(inputs)))
			}
			inputs = inputs[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			// drain without blocking, then write with a fresh context
			for {
				select {
				case d := <-r.decisions:
					decisions = append(decisions, d)
					continue
				case in := <-r.inputs:
					inputs = append(inputs, in)
					continue
				default:
				}
				break
			}
			flush(context.Background())
			if n := r.Dropped(); n > 0 {
				log.Printf("[recorder] run %s: %d records dropped", r.runID, n)
			}
			return ctx.Err()

		case d := <-r.decisions:
			decisions = append(decisions, d)
			if len(decisions) >= r.batchSize {
				flush(ctx)
			}

		case in := <-r.inputs:
			inputs = append(inputs, in)
			if len(inputs) >= r.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
