package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/telemetry"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Addr     string
	Branches []string
	Name     string
	History  int
	Plain    bool
	Count    int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live decisions over the gRPC command stream",
		Long: `Connect to a running planner and show each decision as it is made.

Examples:
  plannerctl watch
  plannerctl watch --addr robot.local:50061 --branch traffic_light
  plannerctl watch --plain --count 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", config.DefaultGRPCListen, "planner gRPC address")
	cmd.Flags().StringSliceVar(&opts.Branches, "branch", nil, "only these branches (obstacle, traffic_light, lane)")
	cmd.Flags().StringVar(&opts.Name, "name", "plannerctl", "client name reported to the planner")
	cmd.Flags().IntVar(&opts.History, "history", 15, "decisions kept on screen")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "print one line per decision instead of the live view")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many decisions (0 = run until interrupted)")

	return cmd
}

func parseBranches(names []string) ([]planner.Branch, error) {
	var out []planner.Branch
	for _, n := range names {
		b := planner.Branch(strings.TrimSpace(n))
		switch b {
		case planner.BranchObstacle, planner.BranchTrafficLight, planner.BranchLane:
			out = append(out, b)
		default:
			return nil, fmt.Errorf("unknown branch %q", n)
		}
	}
	return out, nil
}

// decisionStream is an open StreamCommands call.
type decisionStream struct {
	conn   *grpc.ClientConn
	stream telemetry.CommandStream_StreamCommandsClient
	RunID  string
}

func (s *decisionStream) Recv() (planner.Decision, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return planner.Decision{}, err
	}
	return telemetry.DecisionFromStruct(msg)
}

func (s *decisionStream) Close() error { return s.conn.Close() }

func openDecisionStream(ctx context.Context, opts *WatchOptions, dialOpts ...grpc.DialOption) (*decisionStream, error) {
	branches, err := parseBranches(opts.Branches)
	if err != nil {
		return nil, err
	}
	req, err := telemetry.StreamRequest(branches...)
	if err != nil {
		return nil, err
	}

	dialOpts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, dialOpts...)
	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.Addr, err)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, telemetry.ClientNameKey, opts.Name)
	stream, err := telemetry.NewCommandStreamClient(conn).StreamCommands(ctx, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open command stream: %w", err)
	}
	ds := &decisionStream{conn: conn, stream: stream}
	if hdr, err := stream.Header(); err == nil {
		if ids := hdr.Get(telemetry.RunIDKey); len(ids) > 0 {
			ds.RunID = ids[0]
		}
	}
	return ds, nil
}

func runWatch(ctx context.Context, opts *WatchOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ds, err := openDecisionStream(ctx, opts)
	if err != nil {
		return err
	}
	defer ds.Close()

	if opts.Plain || opts.Format == "json" {
		return watchPlain(ds, opts, out)
	}

	m := newWatchModel(opts.Addr, ds.RunID, opts.History, opts.Count, ds.Recv)
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run live view: %w", err)
	}
	if wm, ok := final.(watchModel); ok && wm.err != nil && !isStreamEnd(wm.err) {
		return wm.err
	}
	return nil
}

func watchPlain(ds *decisionStream, opts *WatchOptions, out io.Writer) error {
	if ds.RunID != "" && opts.Format == "text" {
		fmt.Fprintf(out, "# run %s\n", ds.RunID)
	}
	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		d, err := ds.Recv()
		if err != nil {
			if isStreamEnd(err) {
				return nil
			}
			return err
		}
		if opts.Format == "json" {
			if err := writeJSON(out, d); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, formatDecision(d))
	}
	return nil
}

func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "context canceled")
}

type decisionMsg struct{ d planner.Decision }

type streamErrMsg struct{ err error }

// watchModel is the bubbletea model for the live view.
type watchModel struct {
	recv    func() (planner.Decision, error)
	spinner spinner.Model

	addr    string
	runID   string
	max     int
	limit   int
	seen    int
	history []planner.Decision
	counts  map[planner.Branch]int
	err     error
}

func newWatchModel(addr, runID string, history, limit int, recv func() (planner.Decision, error)) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	if history <= 0 {
		history = 1
	}
	return watchModel{
		recv:    recv,
		spinner: s,
		addr:    addr,
		runID:   runID,
		max:     history,
		limit:   limit,
		counts:  make(map[planner.Branch]int),
	}
}

func (m watchModel) next() tea.Cmd {
	return func() tea.Msg {
		d, err := m.recv()
		if err != nil {
			return streamErrMsg{err}
		}
		return decisionMsg{d}
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case decisionMsg:
		m.seen++
		m.counts[msg.d.Branch]++
		m.history = append(m.history, msg.d)
		if len(m.history) > m.max {
			m.history = m.history[len(m.history)-m.max:]
		}
		if m.limit > 0 && m.seen >= m.limit {
			return m, tea.Quit
		}
		return m, m.next()
	case streamErrMsg:
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	stopStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	laneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	heldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	branchOrder = []planner.Branch{planner.BranchObstacle, planner.BranchTrafficLight, planner.BranchLane}
)

func decisionStyle(d planner.Decision) lipgloss.Style {
	switch {
	case d.Outcome == planner.OutcomeUnchanged:
		return heldStyle
	case d.Branch == planner.BranchLane:
		return laneStyle
	default:
		return stopStyle
	}
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("motion planner"))
	status := fmt.Sprintf(" %s %s", m.spinner.View(), m.addr)
	if m.runID != "" {
		status += "  run " + m.runID
	}
	b.WriteString(mutedStyle.Render(status))
	b.WriteString("\n")

	lines := make([]string, 0, len(m.history))
	for _, d := range m.history {
		lines = append(lines, decisionStyle(d).Render(formatDecision(d)))
	}
	if len(lines) == 0 {
		lines = append(lines, mutedStyle.Render("waiting for decisions..."))
	}
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	counts := make([]string, 0, len(branchOrder))
	for _, br := range branchOrder {
		counts = append(counts, fmt.Sprintf("%s %d", br, m.counts[br]))
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d decisions  %s  (q to quit)", m.seen, strings.Join(counts, "  "))))
	if m.err != nil && !isStreamEnd(m.err) {
		b.WriteString("\n" + stopStyle.Render("stream error: "+m.err.Error()))
	}
	return b.String()
}
