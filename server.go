package noctrace

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/noctrace/core"
	"pkt.systems/noctrace/httpapi"
	"pkt.systems/noctrace/internal/eventbus"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// Server composes an investigation session with its update bus and HTTP facade.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Engine() core.Engine
	Bus() *eventbus.Bus
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Session    schema.SessionConfig
	HTTP       httpapi.Config
	HubHistory int
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Orchestrator core.Orchestrator
	History      core.HistoryStore
	EventSink    core.EventSink
	Logger       pslog.Logger
	// Listener overrides HTTP.Addr when set.
	Listener net.Listener
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableBus  bool
}

// WithHTTP enables the HTTP facade.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithEventBus enables the in-process session update bus.
func WithEventBus() ServerOption {
	return func(o *serverOptions) { o.enableBus = true }
}

// New constructs a composable noctrace server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableBus {
		return nil, errors.New("no services enabled")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator dependency is required")
	}
	normalized, err := schema.NormalizeSessionConfig(cfg.Session)
	if err != nil {
		return nil, err
	}
	cfg.Session = normalized

	var hub *httpapi.Hub
	var bus *eventbus.Bus
	if options.enableBus {
		bus = eventbus.New(deps.Logger)
	}
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory)
	}

	sinks := make([]core.EventSink, 0, 3)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if bus != nil {
		sinks = append(sinks, bus)
	}
	var sink core.EventSink
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = eventFanout{sinks: sinks}
	}

	session, err := core.NewSession(cfg.Session, core.SessionDeps{
		Orchestrator: deps.Orchestrator,
		History:      deps.History,
		EventSink:    sink,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, session, hub)
	}

	return &compositeServer{
		cfg:      cfg,
		options:  options,
		session:  session,
		bus:      bus,
		httpSrv:  httpSrv,
		listener: deps.Listener,
	}, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	session  core.Engine
	bus      *eventbus.Bus
	httpSrv  *httpapi.Server
	listener net.Listener
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Engine() core.Engine {
	return s.session
}

func (s *compositeServer) Bus() *eventbus.Bus {
	return s.bus
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	addr := s.cfg.HTTP.Addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"bus", s.options.enableBus,
		"http_addr", addr,
		"session", s.session.ID(),
		"scenario", s.cfg.Session.Scenario,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			var err error
			if s.listener != nil {
				err = httpapi.Serve(s.ctx, s.listener, s.httpSrv.Handler())
			} else {
				err = httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler())
			}
			if err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.session != nil {
		if err := s.session.Cancel(context.Background()); err != nil && !errors.Is(err, schema.ErrNoRun) {
			log.Warn("server run cancel failed", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
