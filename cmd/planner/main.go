package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion-planner/internal/actuator"
	"github.com/banshee-data/motion-planner/internal/api"
	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/control"
	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/gateway"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/recorder"
	"github.com/banshee-data/motion-planner/internal/serialmux"
	"github.com/banshee-data/motion-planner/internal/telemetry"
	"github.com/banshee-data/motion-planner/internal/timeutil"
	"github.com/banshee-data/motion-planner/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to planner config (JSON or YAML); built-in defaults when empty")
	devMode        = flag.Bool("dev", false, "Replay perception fixtures instead of opening serial ports")
	fixturesPath   = flag.String("fixtures", "fixtures/perception.jsonl", "Perception fixture file used in dev mode")
	fixturePeriod  = flag.Duration("fixture-period", 250*time.Millisecond, "Delay between fixture lines in dev mode")
	listen         = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen     = flag.String("grpc-listen", "", "gRPC telemetry listen address (overrides config)")
	perceptionPort = flag.String("perception-port", "", "Perception serial port (overrides config)")
	actuatorPort   = flag.String("actuator-port", "", "Motor controller serial port (overrides config)")
	udpListen      = flag.String("udp-listen", "", "UDP perception listen address (overrides config)")
	dbPath         = flag.String("db-path", "", "SQLite decision log path (overrides config)")
	disableDB      = flag.Bool("disable-db", false, "Run without the decision log")
	disableGRPC    = flag.Bool("disable-grpc", false, "Run without the gRPC command stream")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// overrides carries flag values that replace config fields when non-empty.
type overrides struct {
	Listen, GRPCListen, PerceptionPort, ActuatorPort, UDPListen, DBPath string
}

func flagOverrides() overrides {
	return overrides{
		Listen:         *listen,
		GRPCListen:     *grpcListen,
		PerceptionPort: *perceptionPort,
		ActuatorPort:   *actuatorPort,
		UDPListen:      *udpListen,
		DBPath:         *dbPath,
	}
}

// loadConfig reads path (or the built-in defaults) and applies o.
func loadConfig(path string, o overrides) (*config.PlannerConfig, error) {
	cfg := config.EmptyPlannerConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadPlannerConfig(path); err != nil {
			return nil, err
		}
	}
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.Listen, o.Listen)
	set(&cfg.GRPCListen, o.GRPCListen)
	set(&cfg.PerceptionPort, o.PerceptionPort)
	set(&cfg.ActuatorPort, o.ActuatorPort)
	set(&cfg.UDPListen, o.UDPListen)
	set(&cfg.DBPath, o.DBPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFixtures reads non-empty, non-comment lines from a JSONL file.
func loadFixtures(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	if len(lines) == 0 {
		return nil, errors.New("fixtures file has no messages")
	}
	return lines, nil
}

func portOptions(cfg *config.PlannerConfig) serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: cfg.GetBaudRate(),
		DataBits: cfg.GetDataBits(),
		StopBits: cfg.GetStopBits(),
		Parity:   cfg.GetParity(),
	}
}

// openPerception picks the perception transport: fixture replay in dev mode,
// the configured serial port, or nothing when only UDP is used.
func openPerception(cfg *config.PlannerConfig) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		lines, err := loadFixtures(*fixturesPath)
		if err != nil {
			return nil, err
		}
		log.Printf("dev mode: replaying %d fixture lines from %s", len(lines), *fixturesPath)
		return serialmux.NewReplaySerialMux("perception", lines, *fixturePeriod), nil
	}
	if port := cfg.GetPerceptionPort(); port != "" {
		return serialmux.NewRealSerialMux("perception", port, portOptions(cfg))
	}
	return serialmux.NewDisabledSerialMux("perception"), nil
}

// grpcEnabled reports whether the telemetry server should run. An explicit
// empty grpc_listen turns it off.
func grpcEnabled(cfg *config.PlannerConfig, disabled bool) bool {
	return !disabled && cfg.GetGRPCListen() != ""
}

type runner interface {
	Run(ctx context.Context) error
}

// runControl runs loop until ctx is done, calls afterLoop, and only then
// stops rec, so decisions emitted on the way out still reach the database.
// rec may be nil.
func runControl(ctx context.Context, loop, rec runner, afterLoop func()) {
	recCtx, stopRec := context.WithCancel(context.Background())
	defer stopRec()

	var wg sync.WaitGroup
	if rec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(recCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder error: %v", err)
			}
			log.Print("recorder routine terminated")
		}()
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("control loop error: %v", err)
	}
	if afterLoop != nil {
		afterLoop()
	}
	log.Print("control loop routine terminated")

	stopRec()
	wg.Wait()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("planner", version.String())
		return
	}

	cfg, err := loadConfig(*configPath, flagOverrides())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := planner.NewEngine(planner.Options{StaleAfter: cfg.GetStaleAfter()})
	runID := uuid.NewString()
	log.Printf("planner %s starting, run %s", version.String(), runID)

	var (
		database *db.DB
		rec      *recorder.Recorder
	)
	if !*disableDB {
		database, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		rec = recorder.New(database, recorder.Options{RunID: runID, RecordInputs: cfg.GetRecordInputs()})
	}

	var router *gateway.Router
	if rec != nil {
		router = gateway.NewRouter(gateway.TopicsFromConfig(cfg), engine.Snapshot(), rec)
	} else {
		router = gateway.NewRouter(gateway.TopicsFromConfig(cfg), engine.Snapshot(), nil)
	}

	perception, err := openPerception(cfg)
	if err != nil {
		log.Fatalf("failed to open perception port: %v", err)
	}
	defer perception.Close()
	if err := perception.Initialise(); err != nil {
		log.Fatalf("failed to initialise perception port: %v", err)
	}

	var (
		actuatorMux  serialmux.SerialMuxInterface
		actuatorSink actuator.Sink
		serialSink   *actuator.SerialSink
	)
	if port := cfg.GetActuatorPort(); port != "" && !*devMode {
		mux, err := serialmux.NewRealSerialMux("actuator", port, portOptions(cfg))
		if err != nil {
			log.Fatalf("failed to open actuator port: %v", err)
		}
		defer mux.Close()
		actuatorMux = mux
		serialSink = actuator.NewSerialSink(mux, cfg.GetCommandTopic())
		actuatorSink = serialSink
	} else {
		log.Print("no actuator port, logging commands only")
		actuatorMux = serialmux.NewDisabledSerialMux("actuator")
		actuatorSink = actuator.LogSink{}
	}

	sinks := actuator.MultiSink{actuatorSink}

	var publisher *telemetry.Publisher
	if grpcEnabled(cfg, *disableGRPC) {
		publisher = telemetry.NewPublisher(telemetry.Config{ListenAddr: cfg.GetGRPCListen(), RunID: runID})
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start gRPC telemetry: %v", err)
		}
		defer publisher.Stop()
		sinks = append(sinks, publisher)
	} else {
		log.Print("gRPC telemetry disabled")
	}
	if rec != nil {
		sinks = append(sinks, rec)
	}

	loop := control.NewLoop(engine, sinks, timeutil.RealClock{}, cfg.GetTickPeriod())

	var wg sync.WaitGroup

	// perception monitor
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := perception.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor perception port: %v", err)
		}
		log.Print("perception monitor routine terminated")
	}()

	// perception subscriber
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ConsumeSerial(ctx, perception, router); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("perception subscriber error: %v", err)
		}
		log.Print("perception subscribe routine terminated")
	}()

	// actuator monitor drains controller replies so /debug/actuator/tail works
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := actuatorMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor actuator port: %v", err)
		}
		log.Print("actuator monitor routine terminated")
	}()

	if addr := cfg.GetUDPListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener := gateway.NewUDPListener(addr, router, nil)
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener error: %v", err)
			}
		}()
	}

	// control loop, then the recorder once the loop has stopped emitting
	var recRunner runner
	if rec != nil {
		recRunner = rec
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runControl(ctx, loop, recRunner, func() {
			if serialSink == nil {
				return
			}
			if err := serialSink.Stop(); err != nil {
				log.Printf("failed to send stop command: %v", err)
			} else {
				log.Print("sent stop command to actuator")
			}
		})
	}()

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()

		opts := api.Options{
			Engine: engine,
			Config: cfg,
			Router: router,
			RunID:  runID,
		}
		if database != nil {
			opts.Store = database
		}
		if publisher != nil {
			opts.Publisher = publisher
		}
		if rec != nil {
			opts.Dropped = rec.Dropped
		}
		mux := api.NewServer(opts).ServeMux()
		perception.AttachAdminRoutes(mux)
		actuatorMux.AttachAdminRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
