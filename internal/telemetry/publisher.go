// Package telemetry streams every tick's decision to gRPC clients.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/motion-planner/internal/planner"
)

// ClientNameKey is the request metadata key clients may use to identify
// themselves in server logs.
const ClientNameKey = "x-client-name"

// RunIDKey is the response header carrying the planner run ID.
const RunIDKey = "x-run-id"

type Config struct {
	// ListenAddr is the address to listen on, e.g. "localhost:50061".
	ListenAddr string
	// MaxClients bounds concurrent streams.
	MaxClients int
	// ClientBuffer is how many decisions may queue per client before that
	// client starts missing them.
	ClientBuffer int
	// RunID is sent to clients in the response header.
	RunID string
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		ClientBuffer: 32,
	}
}

type clientStream struct {
	id     string
	name   string
	filter map[planner.Branch]bool
	ch     chan planner.Decision
}

// Publisher fans decisions out to connected CommandStream clients. It
// implements actuator.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	decisions chan planner.Decision
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	published   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ CommandStreamServer = (*Publisher)(nil)

func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		decisions: make(chan planner.Decision, 64),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves on lis in the background. Tests pass a bufconn listener.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterCommandStreamServer(p.server, p)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		log.Printf("[telemetry] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[telemetry] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.Stop()
	}
	p.wg.Wait()
	log.Printf("[telemetry] gRPC server stopped")
}

// Emit queues d for every client. It never blocks; when the queue is full
// the decision is dropped for all clients.
func (p *Publisher) Emit(_ context.Context, d planner.Decision) error {
	if !p.running.Load() {
		return nil
	}
	select {
	case p.decisions <- d:
		p.published.Add(1)
	default:
		p.dropped.Add(1)
	}
	return nil
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case d := <-p.decisions:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if c.filter != nil && !c.filter[d.Branch] {
					continue
				}
				select {
				case c.ch <- d:
				default:
					p.dropped.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(name string, filter map[planner.Branch]bool) (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "client limit %d reached", p.config.MaxClients)
	}
	c := &clientStream{
		id:     uuid.NewString(),
		name:   name,
		filter: filter,
		ch:     make(chan planner.Decision, p.config.ClientBuffer),
	}
	p.clients[c.id] = c
	p.clientCount.Add(1)
	log.Printf("[telemetry] client connected: %s %s (total: %d)", c.id, name, len(p.clients))
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		p.clientCount.Add(-1)
		log.Printf("[telemetry] client disconnected: %s (remaining: %d)", id, len(p.clients))
	}
}

// StreamCommands implements CommandStreamServer.
func (p *Publisher) StreamCommands(req *structpb.Struct, stream CommandStream_StreamCommandsServer) error {
	ctx := stream.Context()

	var name string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(ClientNameKey); len(v) > 0 {
			name = v[0]
		}
	}

	c, err := p.addClient(name, branchFilter(req))
	if err != nil {
		return err
	}
	defer p.removeClient(c.id)

	if p.config.RunID != "" {
		if err := stream.SendHeader(metadata.Pairs(RunIDKey, p.config.RunID)); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return status.Error(codes.Unavailable, "planner shutting down")
		case d := <-c.ch:
			msg, err := DecisionToStruct(d)
			if err != nil {
				return status.Errorf(codes.Internal, "encode decision: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// PublisherStats is a point-in-time view of the publisher counters.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int32  `json:"clients"`
	Running   bool   `json:"running"`
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   p.clientCount.Load(),
		Running:   p.running.Load(),
	}
}
