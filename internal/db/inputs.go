package db

import (
	"context"
	"fmt"
	"time"
)

// InputRecord is one perception message as applied to the snapshot.
type InputRecord struct {
	ID      int64     `json:"id"`
	RunID   string    `json:"run_id"`
	Topic   string    `json:"topic"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// RecordInputs inserts records in a single transaction.
func (db *DB) RecordInputs(ctx context.Context, records []InputRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO inputs (run_id, topic, payload, at_unix_nanos) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Topic, r.Payload, r.At.UnixNano()); err != nil {
			return fmt.Errorf("insert input on %s: %w", r.Topic, err)
		}
	}
	return tx.Commit()
}

// Inputs returns the inputs of runID oldest first, all runs when runID is
// empty. limit <= 0 returns everything.
func (db *DB) Inputs(ctx context.Context, runID string, limit int) ([]InputRecord, error) {
	query := `SELECT input_id, run_id, topic, payload, at_unix_nanos FROM inputs`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY input_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InputRecord
	for rows.Next() {
		var (
			r  InputRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Topic, &r.Payload, &at); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
