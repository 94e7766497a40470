// Package api serves the planner's HTTP interface: live state, the recorded
// decision log and charts.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/gateway"
	"github.com/banshee-data/motion-planner/internal/httputil"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/telemetry"
	"github.com/banshee-data/motion-planner/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultDecisionLimit = 100
	maxDecisionLimit     = 10000
)

// DecisionStore is the read side of the decision log.
type DecisionStore interface {
	Decisions(ctx context.Context, q db.DecisionQuery) ([]db.DecisionRecord, error)
	DecisionStats(ctx context.Context, q db.DecisionQuery) (db.DecisionStats, error)
}

// Options wires the server to the running planner. Only Engine is required.
type Options struct {
	Engine    *planner.Engine
	Config    *config.PlannerConfig
	Store     DecisionStore
	Router    *gateway.Router
	Publisher *telemetry.Publisher
	// RunID identifies the current process in the decision log.
	RunID string
	// Dropped reports records the recorder had to discard.
	Dropped func() uint64
}

type Server struct {
	opts Options
}

func NewServer(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.EmptyPlannerConfig()
	}
	return &Server{opts: opts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/decisions", s.listDecisions)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/steering", s.steeringChart)
	return mux
}

// getOnly rejects anything but GET and reports whether to continue.
func (s *Server) getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}

// decisionQuery reads ?limit=, ?run= and ?since= (RFC 3339).
func decisionQuery(r *http.Request) (db.DecisionQuery, string) {
	q := db.DecisionQuery{Limit: defaultDecisionLimit, RunID: r.URL.Query().Get("run")}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxDecisionLimit {
			return q, "Invalid 'limit' parameter"
		}
		q.Limit = n
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return q, "Invalid 'since' parameter"
		}
		q.Since = t
	}
	return q, ""
}

// SnapshotResponse is the body of GET /api/snapshot.
type SnapshotResponse struct {
	View        planner.SnapshotView  `json:"view"`
	LastCommand planner.MotionCommand `json:"last_command"`
	Ticks       uint64                `json:"ticks"`
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	httputil.WriteJSONOK(w, SnapshotResponse{
		View:        s.opts.Engine.Snapshot().View(),
		LastCommand: s.opts.Engine.Last(),
		Ticks:       s.opts.Engine.Ticks(),
	})
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	if s.opts.Store == nil {
		httputil.ServiceUnavailable(w, "Decision log disabled")
		return
	}
	q, bad := decisionQuery(r)
	if bad != "" {
		httputil.BadRequest(w, bad)
		return
	}
	records, err := s.opts.Store.Decisions(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, "Failed to read decisions: "+err.Error())
		return
	}
	if records == nil {
		records = []db.DecisionRecord{}
	}
	httputil.WriteJSONOK(w, records)
}

// RuntimeStats describes the running process.
type RuntimeStats struct {
	RunID       string                    `json:"run_id,omitempty"`
	Ticks       uint64                    `json:"ticks"`
	Gateway     *gateway.Stats            `json:"gateway,omitempty"`
	Telemetry   *telemetry.PublisherStats `json:"telemetry,omitempty"`
	RecDropped  uint64                    `json:"recorder_dropped"`
	LastCommand planner.MotionCommand     `json:"last_command"`
}

// StatsResponse is the body of GET /api/stats. Decisions is absent when the
// decision log is disabled.
type StatsResponse struct {
	Runtime   RuntimeStats      `json:"runtime"`
	Decisions *db.DecisionStats `json:"decisions,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	resp := StatsResponse{Runtime: RuntimeStats{
		RunID:       s.opts.RunID,
		Ticks:       s.opts.Engine.Ticks(),
		LastCommand: s.opts.Engine.Last(),
	}}
	if s.opts.Router != nil {
		gs := s.opts.Router.Stats()
		resp.Runtime.Gateway = &gs
	}
	if s.opts.Publisher != nil {
		ps := s.opts.Publisher.Stats()
		resp.Runtime.Telemetry = &ps
	}
	if s.opts.Dropped != nil {
		resp.Runtime.RecDropped = s.opts.Dropped()
	}

	if s.opts.Store != nil {
		q, bad := decisionQuery(r)
		if bad != "" {
			httputil.BadRequest(w, bad)
			return
		}
		if r.URL.Query().Get("limit") == "" {
			q.Limit = 0
		}
		if q.RunID == "" {
			q.RunID = s.opts.RunID
		}
		ds, err := s.opts.Store.DecisionStats(r.Context(), q)
		if err != nil {
			httputil.InternalServerError(w, "Failed to compute stats: "+err.Error())
			return
		}
		resp.Decisions = &ds
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	cfg := s.opts.Config
	httputil.WriteJSONOK(w, map[string]interface{}{
		"tick_period":         cfg.GetTickPeriod().String(),
		"stale_after":         cfg.GetStaleAfter().String(),
		"obstacle_topic":      cfg.GetObstacleTopic(),
		"traffic_light_topic": cfg.GetTrafficLightTopic(),
		"detection_topic":     cfg.GetDetectionTopic(),
		"lane_topic":          cfg.GetLaneTopic(),
		"command_topic":       cfg.GetCommandTopic(),
		"perception_port":     cfg.GetPerceptionPort(),
		"actuator_port":       cfg.GetActuatorPort(),
		"udp_listen":          cfg.GetUDPListen(),
		"listen":              cfg.GetListen(),
		"grpc_listen":         cfg.GetGRPCListen(),
		"db_path":             cfg.GetDBPath(),
		"record_inputs":       cfg.GetRecordInputs(),
		"stop_line_y":         planner.StopLineY,
		"cruise_speed":        planner.CruiseSpeed,
		"reference_point":     planner.ReferencePoint,
		"steering_classes":    planner.SteeringClasses(),
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
