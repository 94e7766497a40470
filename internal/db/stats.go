package db

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SlopeStats summarises the slopes computed by the lane branch.
type SlopeStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
}

// DecisionStats summarises a set of decisions.
type DecisionStats struct {
	Decisions int            `json:"decisions"`
	Branches  map[string]int `json:"branches"`
	Outcomes  map[string]int `json:"outcomes"`
	Steering  map[int]int    `json:"steering"`
	Slope     *SlopeStats    `json:"slope,omitempty"`
}

// DecisionStats computes statistics over the decisions matching q.
func (db *DB) DecisionStats(ctx context.Context, q DecisionQuery) (DecisionStats, error) {
	records, err := db.Decisions(ctx, q)
	if err != nil {
		return DecisionStats{}, err
	}
	return SummariseDecisions(records), nil
}

// SummariseDecisions computes statistics over records.
func SummariseDecisions(records []DecisionRecord) DecisionStats {
	s := DecisionStats{
		Decisions: len(records),
		Branches:  make(map[string]int),
		Outcomes:  make(map[string]int),
		Steering:  make(map[int]int),
	}

	var slopes []float64
	for _, r := range records {
		s.Branches[r.Branch]++
		s.Outcomes[r.Outcome]++
		s.Steering[r.Steering]++
		if r.Slope != nil {
			slopes = append(slopes, *r.Slope)
		}
	}
	if len(slopes) == 0 {
		return s
	}

	sort.Float64s(slopes)
	mean, std := stat.MeanStdDev(slopes, nil)
	if len(slopes) == 1 {
		std = 0
	}
	s.Slope = &SlopeStats{
		Count:  len(slopes),
		Mean:   mean,
		StdDev: std,
		Min:    slopes[0],
		Max:    slopes[len(slopes)-1],
		P50:    stat.Quantile(0.5, stat.Empirical, slopes, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, slopes, nil),
	}
	return s
}
