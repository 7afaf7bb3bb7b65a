package pointserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EventPointUpdated is the stream frame type sent for every publish.
const EventPointUpdated = "point.updated"

// Deps holds the dependencies required by the point server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Version string

	// Status is merged into the health response under "bridge". Optional.
	Status func() any

	// History returns up to limit recorded samples of a point, newest
	// first. Optional; without it /api/v1/history answers 503.
	History func(ctx context.Context, point string, limit int) (any, error)

	// Channels returns the stored channel registry. Optional.
	Channels func(ctx context.Context) (any, error)
}

// Server is the point server.
//
// It owns the point table, the periodic task scheduler, the HTTP listener
// and the WebSocket hub. Points can be declared and published before Start.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	version   string
	status    func() any
	history   func(ctx context.Context, point string, limit int) (any, error)
	channels  func(ctx context.Context) (any, error)
	startedAt time.Time

	points    *Table
	hub       *Hub
	scheduler *Scheduler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error
}

// New creates a new point server with the given dependencies.
//
// The HTTP listener is not started until Start() is called; the scheduler
// is live immediately and stops on Close.
//
// Parameters:
//   - deps: Required dependencies (config, logger)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		version:   deps.Version,
		status:    deps.Status,
		history:   deps.History,
		channels:  deps.Channels,
		startedAt: time.Now(),
		hub:       NewHub(deps.Logger),
		scheduler: NewScheduler(context.Background()),
	}
	s.points = NewTable(func(p Point) {
		s.hub.Broadcast(p)
	})
	return s, nil
}

// Declare registers a point with an initial value.
func (s *Server) Declare(name, description string, initial float64) error {
	return s.points.Declare(name, description, initial)
}

// Publish updates a point and sends it to stream clients.
func (s *Server) Publish(name string, value float64) error {
	return s.points.Publish(name, value)
}

// RegisterPeriodicTask runs fn every interval until Close.
func (s *Server) RegisterPeriodicTask(interval time.Duration, fn func(ctx context.Context)) error {
	return s.scheduler.RegisterPeriodicTask(interval, fn)
}

// Points returns the point table.
func (s *Server) Points() *Table {
	return s.points
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the WebSocket hub
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("point server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.serveErr = make(chan error, 1)

	s.logger.Info("point server listening", "address", ln.Addr().String())
	go func(srv *http.Server, errc chan<- error) {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("point server error", "error", err)
			errc <- err
		}
		close(errc)
	}(s.server, s.serveErr)

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Wait blocks until the listener stops. It returns the serve error, if
// any, or nil after a clean Close. Before Start it returns immediately.
func (s *Server) Wait() error {
	s.mu.Lock()
	errc := s.serveErr
	s.mu.Unlock()
	if errc == nil {
		return nil
	}
	return <-errc
}

// Close stops the scheduler (waiting for a running task), then shuts the
// HTTP server down, waiting up to 10 seconds for in-flight requests.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.scheduler.Close()

	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if srv == nil {
		return nil
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("point server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down point server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("point server health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("point server not started")
	}
	return nil
}
