package main

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/security"
)

// PlotOptions holds flags for the plot command.
type PlotOptions struct {
	QueryOptions
	OutputDir string
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render steering and slope history as PNG plots",
		Long: `Write steering.png and slope.png for the selected decisions. With --run
the files are prefixed by the run ID. The output directory must be under the
working directory or the system temp directory.

Examples:
  plannerctl plot --run 3f2c... --out-dir plots/
  plannerctl plot --since 10m`,
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
			prefix := ""
			if opts.RunID != "" {
				prefix = security.SanitizeFilename(opts.RunID) + "-"
			}
			files, err := writePlots(opts.OutputDir, prefix, records)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f)
			}
			return nil
		},
	}
	opts.bind(cmd, 1000)
	cmd.Flags().StringVar(&opts.OutputDir, "out-dir", ".", "directory for the PNG files")
	return cmd
}

var (
	steeringColor = color.RGBA{R: 0x5b, G: 0x8d, B: 0xef, A: 0xff}
	slopeColor    = color.RGBA{R: 0xff, G: 0x6b, B: 0x6b, A: 0xff}
)

// writePlots renders records against tick number and returns the files written.
func writePlots(dir, prefix string, records []db.DecisionRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, errors.New("no decisions to plot")
	}
	if err := security.ValidateExportPath(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	steeringPts := make(plotter.XYs, 0, len(records))
	slopePts := make(plotter.XYs, 0, len(records))
	for _, r := range records {
		x := float64(r.Tick)
		steeringPts = append(steeringPts, plotter.XY{X: x, Y: float64(r.Steering)})
		// Only lane ticks with a target have a slope
		if r.Slope != nil {
			slopePts = append(slopePts, plotter.XY{X: x, Y: *r.Slope})
		}
	}

	pSteer := plot.New()
	pSteer.Title.Text = "Steering command"
	pSteer.X.Label.Text = "Tick"
	pSteer.Y.Label.Text = "Steering class"
	pSteer.Y.Min, pSteer.Y.Max = -7.5, 6.5
	steerLine, err := plotter.NewLine(steeringPts)
	if err != nil {
		return nil, err
	}
	steerLine.Color = steeringColor
	steerLine.Width = vg.Points(1)
	pSteer.Add(steerLine, plotter.NewGrid())

	var files []string
	steerFile := filepath.Join(dir, prefix+"steering.png")
	if err := pSteer.Save(14*vg.Inch, 6*vg.Inch, steerFile); err != nil {
		return nil, fmt.Errorf("save steering plot: %w", err)
	}
	files = append(files, steerFile)

	if len(slopePts) == 0 {
		return files, nil
	}
	pSlope := plot.New()
	pSlope.Title.Text = "Target slope"
	pSlope.X.Label.Text = "Tick"
	pSlope.Y.Label.Text = "Slope (degrees)"
	slopeScatter, err := plotter.NewScatter(slopePts)
	if err != nil {
		return nil, err
	}
	slopeScatter.Color = slopeColor
	slopeScatter.Radius = vg.Points(1.5)
	pSlope.Add(slopeScatter, plotter.NewGrid())

	slopeFile := filepath.Join(dir, prefix+"slope.png")
	if err := pSlope.Save(14*vg.Inch, 6*vg.Inch, slopeFile); err != nil {
		return nil, fmt.Errorf("save slope plot: %w", err)
	}
	return append(files, slopeFile), nil
}
