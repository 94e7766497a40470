package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banshee-data/motion-planner/internal/actuator"
	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/control"
	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/gateway"
	"github.com/banshee-data/motion-planner/internal/monitoring"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/timeutil"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	PCAP       string
	Port       int
	Config     string
	Period     time.Duration
	StaleAfter time.Duration
	Record     bool
	RunID      string
	Verbose    bool
}

// ReplayResult summarises one replay.
type ReplayResult struct {
	RunID     string              `json:"run_id,omitempty"`
	Capture   gateway.ReplayStats `json:"capture"`
	Router    gateway.Stats       `json:"router"`
	Decisions []planner.Decision  `json:"decisions"`
	Stats     db.DecisionStats    `json:"stats"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run the planner offline over a pcap capture",
		Long: `Replay perception datagrams from a pcap capture through the planner.

The control clock follows capture timestamps: the planner ticks every
--period of capture time, seeing exactly the inputs that had arrived by then.
Decisions are printed and, with --record, stored in the decision log.

Examples:
  plannerctl replay --pcap drive.pcap
  plannerctl replay --pcap drive.pcap --port 7700 --period 50ms --record`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.PCAP, "pcap", "", "capture file to replay (required)")
	_ = cmd.MarkFlagRequired("pcap")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "UDP destination port to replay (0 = any)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "planner config for topics and tick period")
	cmd.Flags().DurationVar(&opts.Period, "period", 0, "tick period in capture time (default from config)")
	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", -1, "channel expiry (default from config)")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "store decisions in the decision log")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run ID for recorded decisions (random when empty)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show per-tick planner logs")

	return cmd
}

// captureTicker steps a loop on a mock clock as capture time passes.
type captureTicker struct {
	ctx     context.Context
	clock   *timeutil.MockClock
	loop    *control.Loop
	period  time.Duration
	next    time.Time
	started bool
}

func (c *captureTicker) advanceTo(ts time.Time) {
	if d := ts.Sub(c.clock.Now()); d > 0 {
		c.clock.Advance(d)
	}
}

// observe runs every tick due before a packet stamped ts is applied.
func (c *captureTicker) observe(_ []byte, ts time.Time) {
	if !c.started {
		c.advanceTo(ts)
		c.next = ts.Add(c.period)
		c.started = true
		return
	}
	for !ts.Before(c.next) {
		c.advanceTo(c.next)
		c.loop.Step(c.ctx)
		c.next = c.next.Add(c.period)
	}
}

// finish runs the tick that sees the last packets of the capture.
func (c *captureTicker) finish() {
	if !c.started {
		return
	}
	c.advanceTo(c.next)
	c.loop.Step(c.ctx)
}

func replayConfig(opts *ReplayOptions) (*config.PlannerConfig, time.Duration, time.Duration, error) {
	cfg := config.EmptyPlannerConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = config.LoadPlannerConfig(opts.Config); err != nil {
			return nil, 0, 0, err
		}
	}
	period := opts.Period
	if period == 0 {
		period = cfg.GetTickPeriod()
	}
	if period <= 0 {
		return nil, 0, 0, fmt.Errorf("period must be positive, got %s", period)
	}
	stale := opts.StaleAfter
	if stale < 0 {
		stale = cfg.GetStaleAfter()
	}
	return cfg, period, stale, nil
}

func runReplay(ctx context.Context, opts *ReplayOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !opts.Verbose {
		defer monitoring.Mute()()
	}

	cfg, period, stale, err := replayConfig(opts)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.PCAP)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	clock := timeutil.NewMockClock(time.Unix(0, 0).UTC())
	engine := planner.NewEngine(planner.Options{StaleAfter: stale, Now: clock.Now})
	router := gateway.NewRouter(gateway.TopicsFromConfig(cfg), engine.Snapshot(), nil)

	result := ReplayResult{}
	sink := actuator.SinkFunc(func(_ context.Context, d planner.Decision) error {
		result.Decisions = append(result.Decisions, d)
		if opts.Format == "text" {
			fmt.Fprintln(out, formatDecision(d))
		}
		return nil
	})

	ticker := &captureTicker{ctx: ctx, clock: clock, loop: control.NewLoop(engine, sink, clock, period), period: period}
	result.Capture, err = gateway.ReplayPCAP(ctx, f, opts.Port, router, ticker.observe)
	if err != nil {
		return err
	}
	ticker.finish()
	result.Router = router.Stats()

	if opts.Record && len(result.Decisions) > 0 {
		result.RunID = opts.RunID
		if result.RunID == "" {
			result.RunID = uuid.NewString()
		}
		if err := recordReplay(ctx, opts.RootOptions, result.RunID, result.Decisions); err != nil {
			return err
		}
	}

	records := make([]db.DecisionRecord, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		records = append(records, db.NewDecisionRecord(result.RunID, d))
	}
	result.Stats = db.SummariseDecisions(records)

	if opts.Format == "json" {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "\n%d packets, %d applied, %d rejected; %d ticks\n",
		result.Capture.Packets, result.Capture.Applied, result.Capture.Rejected, len(result.Decisions))
	if result.RunID != "" {
		fmt.Fprintf(out, "recorded as run %s\n", result.RunID)
	}
	return nil
}

func recordReplay(ctx context.Context, root *RootOptions, runID string, decisions []planner.Decision) error {
	database, err := root.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	records := make([]db.DecisionRecord, 0, len(decisions))
	for _, d := range decisions {
		records = append(records, db.NewDecisionRecord(runID, d))
	}
	return database.RecordDecisions(ctx, records)
}

// formatDecision renders one decision as a single log-friendly line.
func formatDecision(d planner.Decision) string {
	line := fmt.Sprintf("tick=%d branch=%s outcome=%s %s", d.Tick, d.Branch, d.Outcome, d.Command)
	if d.Slope != nil {
		line += fmt.Sprintf(" slope=%.3f", *d.Slope)
	}
	if d.LaneAbsent {
		line += " lane=absent"
	}
	return line
}

// decisionLine is formatDecision for stored records.
func decisionLine(r db.DecisionRecord) string {
	return r.At.UTC().Format(time.RFC3339Nano) + " " + formatDecision(r.Decision())
}

