package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/motion-planner/internal/planner"
)

// DecisionRecord is one persisted tick.
type DecisionRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Tick       uint64    `json:"tick"`
	At         time.Time `json:"at"`
	Branch     string    `json:"branch"`
	Outcome    string    `json:"outcome"`
	Steering   int       `json:"steering"`
	LeftSpeed  int       `json:"left_speed"`
	RightSpeed int       `json:"right_speed"`
	Slope      *float64  `json:"slope,omitempty"`
	LaneAbsent bool      `json:"lane_absent,omitempty"`
}

// NewDecisionRecord flattens d for storage under runID.
func NewDecisionRecord(runID string, d planner.Decision) DecisionRecord {
	return DecisionRecord{
		RunID:      runID,
		Tick:       d.Tick,
		At:         d.At,
		Branch:     string(d.Branch),
		Outcome:    string(d.Outcome),
		Steering:   d.Command.Steering,
		LeftSpeed:  d.Command.LeftSpeed,
		RightSpeed: d.Command.RightSpeed,
		Slope:      d.Slope,
		LaneAbsent: d.LaneAbsent,
	}
}

// Decision rebuilds the planner value from a stored record.
func (r DecisionRecord) Decision() planner.Decision {
	return planner.Decision{
		Tick:    r.Tick,
		At:      r.At,
		Branch:  planner.Branch(r.Branch),
		Outcome: planner.Outcome(r.Outcome),
		Command: planner.MotionCommand{
			Steering:   r.Steering,
			LeftSpeed:  r.LeftSpeed,
			RightSpeed: r.RightSpeed,
		},
		Slope:      r.Slope,
		LaneAbsent: r.LaneAbsent,
	}
}

// RecordDecisions inserts records in a single transaction.
func (db *DB) RecordDecisions(ctx context.Context, records []DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO decisions (
			run_id, tick, at_unix_nanos, branch, outcome,
			steering, left_speed, right_speed, slope, lane_absent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		var slope sql.NullFloat64
		if r.Slope != nil {
			slope = sql.NullFloat64{Float64: *r.Slope, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, int64(r.Tick), r.At.UnixNano(), r.Branch, r.Outcome,
			r.Steering, r.LeftSpeed, r.RightSpeed, slope, r.LaneAbsent,
		); err != nil {
			return fmt.Errorf("insert decision tick %d: %w", r.Tick, err)
		}
	}
	return tx.Commit()
}

// DecisionQuery selects decisions. Zero fields do not filter.
type DecisionQuery struct {
	RunID string
	Since time.Time
	// Limit caps the result; the newest rows are kept.
	Limit int
}

const decisionColumns = `decision_id, run_id, tick, at_unix_nanos, branch, outcome,
	steering, left_speed, right_speed, slope, lane_absent`

// Decisions returns matching records oldest first.
func (db *DB) Decisions(ctx context.Context, q DecisionQuery) ([]DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	var args []any
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if !q.Since.IsZero() {
		query += ` AND at_unix_nanos >= ?`
		args = append(args, q.Since.UnixNano())
	}
	query += ` ORDER BY decision_id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			r     DecisionRecord
			tick  int64
			at    int64
			slope sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &tick, &at, &r.Branch, &r.Outcome,
			&r.Steering, &r.LeftSpeed, &r.RightSpeed, &slope, &r.LaneAbsent); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.At = time.Unix(0, at).UTC()
		if slope.Valid {
			v := slope.Float64
			r.Slope = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first for the LIMIT, returned oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentDecisions returns the last limit decisions across all runs.
func (db *DB) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	return db.Decisions(ctx, DecisionQuery{Limit: limit})
}

// RunSummary describes one planner process lifetime.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Decisions int       `json:"decisions"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// Runs lists recorded runs, most recent first.
func (db *DB) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, COUNT(*), MIN(at_unix_nanos), MAX(at_unix_nanos)
		FROM decisions GROUP BY run_id ORDER BY MAX(at_unix_nanos) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s           RunSummary
			first, last int64
		)
		if err := rows.Scan(&s.RunID, &s.Decisions, &first, &last); err != nil {
			return nil, err
		}
		s.First = time.Unix(0, first).UTC()
		s.Last = time.Unix(0, last).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
