package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/journal"
	"github.com/yoshikouki/aias-sub000/pkg/llm"
	"github.com/yoshikouki/aias-sub000/pkg/observability"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// ChatLimiterName selects the policy for /v1/chat when a rate limit
// section with this name exists; the default section applies otherwise.
const ChatLimiterName = "chat"

// Options configures a Server.
type Options struct {
	// Config is the initial configuration. Required.
	Config *config.Config

	// Loader, when set, is watched for configuration changes. Each
	// valid reload is applied to the running server.
	Loader *config.Loader

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Server serves the admission API over HTTP.
//
// Every config snapshot is compiled into an appState holding the
// limiters, journal, guarded provider, and router built from it. The
// current state is swapped under a read-write lock so reloads never
// disturb requests already in flight.
type Server struct {
	logger *slog.Logger
	clk    clock.Clock
	loader *config.Loader

	obs  *observability.Manager
	pool *config.DBPool

	mu    sync.RWMutex
	state *appState

	httpServer *http.Server
	reloadCh   chan *config.Config
}

// appState bundles everything derived from one config snapshot.
type appState struct {
	cfg      *config.Config
	limiters map[string]*ratelimit.SlidingWindow
	journal  journal.Journal
	provider *llm.Guarded
	router   http.Handler

	clk    clock.Clock
	logger *slog.Logger
}

// limiter resolves the named policy. The empty name selects the
// default section. The second result is false when no section with
// that name exists; a true result with a nil limiter means the section
// exists but is disabled.
func (st *appState) limiter(name string) (*ratelimit.SlidingWindow, bool) {
	if name == "" {
		name = config.DefaultLimiterName
	}
	if lim, ok := st.limiters[name]; ok {
		return lim, true
	}
	if _, ok := st.cfg.RateLimits[name]; ok {
		return nil, true
	}
	return nil, false
}

// close releases the state's resources. The shared database pool stays
// open; the server owns it across reloads.
func (st *appState) close() {
	if st.provider != nil {
		if err := st.provider.Close(); err != nil {
			st.logger.Warn("Failed to close provider", "error", err)
		}
	}
	if st.journal != nil {
		if err := st.journal.Close(); err != nil {
			st.logger.Warn("Failed to close journal", "error", err)
		}
	}
}

// New creates a Server from opts and compiles the initial state.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	obsCfg := observability.Config{}
	if opts.Config.Observability != nil {
		obsCfg = *opts.Config.Observability
	}

	s := &Server{
		logger:   logger,
		clk:      clk,
		loader:   opts.Loader,
		obs:      observability.NewManager(obsCfg),
		pool:     config.NewDBPool(),
		reloadCh: make(chan *config.Config, 1),
	}

	st, err := s.buildState(opts.Config)
	if err != nil {
		_ = s.pool.Close()
		return nil, err
	}
	s.state = st

	if s.loader != nil {
		s.loader.SetOnChange(s.scheduleReload)
	}

	return s, nil
}

// buildState compiles cfg into a full appState. Nothing observable
// changes on the server until the caller swaps the result in.
func (s *Server) buildState(cfg *config.Config) (*appState, error) {
	limiters, err := ratelimit.FromRootConfig(cfg, s.clk)
	if err != nil {
		return nil, fmt.Errorf("rate limits: %w", err)
	}

	jrnl, err := journal.NewFromConfig(cfg, s.pool)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	st := &appState{
		cfg:      cfg,
		limiters: limiters,
		journal:  jrnl,
		clk:      s.clk,
		logger:   s.logger,
	}

	if cfg.LLM.IsEnabled() {
		anthropic, err := llm.NewAnthropic(&cfg.LLM)
		if err != nil {
			_ = jrnl.Close()
			return nil, fmt.Errorf("llm: %w", err)
		}

		gopts := []llm.GuardedOption{
			llm.WithJournal(jrnl),
			llm.WithClock(s.clk),
			llm.WithLogger(s.logger),
			llm.WithTracer(s.obs.Tracer()),
		}
		if cfg.LLM.MaxInputTokens > 0 {
			gopts = append(gopts,
				llm.WithInputCap(llm.NewEstimator(cfg.LLM.Model), cfg.LLM.MaxInputTokens))
		}

		st.provider = llm.NewGuarded(anthropic, chatLimiter(cfg, limiters), gopts...)
	}

	st.router = s.buildRouter(st)
	return st, nil
}

// chatLimiter picks the policy guarding generation. An explicit chat
// section wins even when disabled, so operators can turn chat gating
// off without touching the default policy. The nil limiter is never
// wrapped in a non-nil interface value.
func chatLimiter(cfg *config.Config, limiters map[string]*ratelimit.SlidingWindow) ratelimit.Limiter {
	name := ChatLimiterName
	if _, ok := cfg.RateLimits[name]; !ok {
		name = config.DefaultLimiterName
	}
	if lim := limiters[name]; lim != nil {
		return lim
	}
	return nil
}

// ServeHTTP dispatches to the router of the current state.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	router := s.state.router
	s.mu.RUnlock()
	router.ServeHTTP(w, r)
}

// scheduleReload queues cfg for the reload loop. The latest config
// wins; a pending older reload is discarded.
func (s *Server) scheduleReload(cfg *config.Config) {
	for {
		select {
		case s.reloadCh <- cfg:
			return
		default:
			select {
			case <-s.reloadCh:
			default:
			}
		}
	}
}

// applyConfig swaps in a state compiled from cfg. A config that fails
// to compile leaves the previous state serving.
func (s *Server) applyConfig(cfg *config.Config) {
	next, err := s.buildState(cfg)
	if err != nil {
		s.logger.Error("Failed to apply reloaded config, keeping previous", "error", err)
		return
	}

	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if cfg.Server.Address() != prev.cfg.Server.Address() {
		s.logger.Warn("Listen address changed in config, restart to apply",
			"current", prev.cfg.Server.Address(), "configured", cfg.Server.Address())
	}

	prev.close()
	s.logger.Info("Configuration applied", "limiters", len(next.limiters))
}

// currentConfig returns the config of the state now serving.
func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.cfg
}

// Run serves until ctx is canceled, then shuts down gracefully. The
// observability pipelines, the HTTP listener, the config watcher, and
// the reload loop all run under one errgroup; the first failure tears
// the rest down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	cfg := s.currentConfig()
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.loader != nil {
		g.Go(func() error {
			if err := s.loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-s.reloadCh:
				s.applyConfig(cfg)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("Shutting down")
		err := s.httpServer.Shutdown(shutdownCtx)
		if obsErr := s.obs.Shutdown(shutdownCtx); obsErr != nil {
			s.logger.Warn("Failed to shut down observability", "error", obsErr)
		}
		return err
	})

	err := g.Wait()

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	st.close()

	if cerr := s.pool.Close(); cerr != nil {
		s.logger.Warn("Failed to close database pool", "error", cerr)
	}

	return err
}
