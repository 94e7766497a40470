package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion-planner/internal/db"
)

// QueryOptions selects decisions from the log.
type QueryOptions struct {
	*RootOptions
	RunID string
	Since time.Duration
	Limit int
}

func (o *QueryOptions) bind(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVar(&o.RunID, "run", "", "only decisions from this run")
	cmd.Flags().DurationVar(&o.Since, "since", 0, "only decisions newer than this (e.g. 10m)")
	cmd.Flags().IntVar(&o.Limit, "limit", defaultLimit, "maximum decisions (newest kept)")
}

func (o *QueryOptions) query(now time.Time) db.DecisionQuery {
	q := db.DecisionQuery{RunID: o.RunID, Limit: o.Limit}
	if o.Since > 0 {
		q.Since = now.Add(-o.Since)
	}
	return q
}

// NewDecisionsCommand creates the decisions command.
func NewDecisionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List recorded decisions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			records, err := database.Decisions(cmd.Context(), opts.query(time.Now()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, records)
			}
			for _, r := range records {
				fmt.Fprintln(out, decisionLine(r))
			}
			return nil
		},
	}
	opts.bind(cmd, 50)
	return cmd
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := rootOpts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			runs, err := database.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
}

func printRuns(out io.Writer, runs []db.RunSummary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tDECISIONS\tFIRST\tLAST")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.RunID, r.Decisions,
			r.First.UTC().Format(time.RFC3339), r.Last.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise branches, steering and slope over recorded decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			stats, err := database.DecisionStats(cmd.Context(), opts.query(time.Now()))
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}
	opts.bind(cmd, 0)
	return cmd
}

func printStats(out io.Writer, s db.DecisionStats) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "decisions\t%d\n", s.Decisions)
	for _, k := range sortedKeys(s.Branches) {
		fmt.Fprintf(tw, "branch %s\t%d\n", k, s.Branches[k])
	}
	for _, k := range sortedKeys(s.Outcomes) {
		fmt.Fprintf(tw, "outcome %s\t%d\n", k, s.Outcomes[k])
	}
	steering := make([]int, 0, len(s.Steering))
	for k := range s.Steering {
		steering = append(steering, k)
	}
	sort.Ints(steering)
	for _, k := range steering {
		fmt.Fprintf(tw, "steering %+d\t%d\n", k, s.Steering[k])
	}
	if s.Slope != nil {
		fmt.Fprintf(tw, "slope mean\t%.3f\n", s.Slope.Mean)
		fmt.Fprintf(tw, "slope stddev\t%.3f\n", s.Slope.StdDev)
		fmt.Fprintf(tw, "slope p50/p90\t%.3f / %.3f\n", s.Slope.P50, s.Slope.P90)
		fmt.Fprintf(tw, "slope range\t%.3f .. %.3f\n", s.Slope.Min, s.Slope.Max)
	}
	return tw.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
