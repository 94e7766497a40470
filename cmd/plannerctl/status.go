package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion-planner/internal/api"
	"github.com/banshee-data/motion-planner/internal/httputil"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	URL     string
	Timeout time.Duration
}

// PlannerStatus is what status reports, fetched from the planner HTTP API.
type PlannerStatus struct {
	Snapshot api.SnapshotResponse `json:"snapshot"`
	Stats    api.StatsResponse    `json:"stats"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live snapshot and counters of a running planner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return runStatus(ctx, opts, &http.Client{}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8080", "planner HTTP base URL")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetchStatus(ctx context.Context, base string, c httputil.Doer) (PlannerStatus, error) {
	base = strings.TrimRight(base, "/")
	var st PlannerStatus
	if err := httputil.GetJSON(ctx, c, base+"/api/snapshot", &st.Snapshot); err != nil {
		return st, err
	}
	if err := httputil.GetJSON(ctx, c, base+"/api/stats", &st.Stats); err != nil {
		return st, err
	}
	return st, nil
}

func runStatus(ctx context.Context, opts *StatusOptions, c httputil.Doer, out io.Writer) error {
	st, err := fetchStatus(ctx, opts.URL, c)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(out, st)
	}

	view := st.Snapshot.View
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if st.Stats.Runtime.RunID != "" {
		fmt.Fprintf(tw, "run\t%s\n", st.Stats.Runtime.RunID)
	}
	fmt.Fprintf(tw, "ticks\t%d\n", st.Snapshot.Ticks)
	fmt.Fprintf(tw, "last command\t%s\n", st.Snapshot.LastCommand)

	obstacle := "never received"
	if view.Obstacle != nil {
		obstacle = fmt.Sprintf("%v", view.Obstacle.Present)
	}
	fmt.Fprintf(tw, "obstacle\t%s\n", obstacle)

	light := "never received"
	if view.TrafficLight != nil {
		light = view.TrafficLight.Label
	}
	fmt.Fprintf(tw, "traffic light\t%s\n", light)

	detections := "never received"
	if view.HasDetections {
		detections = fmt.Sprintf("%d", len(view.Detections))
	}
	fmt.Fprintf(tw, "detections\t%s\n", detections)

	lane := "never received"
	if view.Lane != nil {
		lane = fmt.Sprintf("(%.0f, %.0f)", view.Lane.X, view.Lane.Y)
	}
	fmt.Fprintf(tw, "lane target\t%s\n", lane)

	if g := st.Stats.Runtime.Gateway; g != nil {
		fmt.Fprintf(tw, "gateway\tapplied %d, unknown %d, malformed %d\n", g.Applied, g.Unknown, g.Malformed)
	}
	if tel := st.Stats.Runtime.Telemetry; tel != nil {
		fmt.Fprintf(tw, "telemetry\t%d clients, %d published, %d dropped\n", tel.Clients, tel.Published, tel.Dropped)
	}
	fmt.Fprintf(tw, "recorder dropped\t%d\n", st.Stats.Runtime.RecDropped)
	if d := st.Stats.Decisions; d != nil {
		fmt.Fprintf(tw, "recorded decisions\t%d\n", d.Decisions)
	}
	return tw.Flush()
}
