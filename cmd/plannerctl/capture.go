package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/motion-planner/internal/gateway"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	*RootOptions
	Input  string
	Output string
	Port   int
	Period time.Duration
	Start  string
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Build a pcap capture from a JSONL file of topic envelopes",
		Long: `Write each envelope line of a JSONL file as a UDP datagram in a pcap
capture, spaced --period apart. Blank lines and lines starting with # are
skipped; every other line must be a valid envelope.

Examples:
  plannerctl capture --in fixtures/perception.jsonl --out drive.pcap --port 7700`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Input, "in", "", "JSONL envelope file (required)")
	cmd.Flags().StringVar(&opts.Output, "out", "", "pcap file to write (required)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().IntVar(&opts.Port, "port", 7700, "UDP port for the datagrams")
	cmd.Flags().DurationVar(&opts.Period, "period", 50*time.Millisecond, "capture time between datagrams")
	cmd.Flags().StringVar(&opts.Start, "start", "", "RFC3339 timestamp of the first datagram (now when empty)")

	return cmd
}

// readEnvelopeLines returns the envelope lines of r, validating each.
func readEnvelopeLines(r io.Reader) ([][]byte, error) {
	var payloads [][]byte
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := gateway.DecodeEnvelope([]byte(line)); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		payloads = append(payloads, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func runCapture(opts *CaptureOptions, out io.Writer) error {
	if opts.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", opts.Period)
	}
	start := time.Now().UTC()
	if opts.Start != "" {
		var err error
		if start, err = time.Parse(time.RFC3339, opts.Start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}

	in, err := os.Open(opts.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	payloads, err := readEnvelopeLines(in)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return fmt.Errorf("%s has no envelopes", opts.Input)
	}

	times := make([]time.Time, len(payloads))
	for i := range times {
		times[i] = start.Add(time.Duration(i) * opts.Period)
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return err
	}
	if err := gateway.WritePCAP(f, opts.Port, payloads, times); err != nil {
		f.Close()
		return fmt.Errorf("write capture: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d datagrams to %s\n", len(payloads), opts.Output)
	return nil
}
