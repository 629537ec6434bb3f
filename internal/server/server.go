// Package server exposes the session editor over HTTP: the rendered form,
// a JSON config API, run control with live log streaming (SSE and
// websocket), and the exported OpenAPI document.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/fields"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/orchestrator"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/html"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/tui"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

const (
	formName        = "session"
	formTitle       = "FlowReg Session"
	formDescription = "Motion compensation session configuration"
)

// Options wires the server's collaborators.
type Options struct {
	Addr       string
	ConfigPath string
	Config     session.Config
	Runner     *runner.Runner
	Journal    *journal.Store
	LogsDir    string
	Orch       *orchestrator.Orchestrator
	Theme      string
	Variant    string
	Logger     *slog.Logger
}

// Server edits one session configuration and drives worker runs for it.
type Server struct {
	addr       string
	configPath string
	runner     *runner.Runner
	journal    *journal.Store
	logsDir    string
	orch       *orchestrator.Orchestrator
	theme      string
	variant    string
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu  sync.RWMutex
	cfg session.Config

	runCtx context.Context
	server *http.Server
}

// New validates opts and builds a server. A nil orchestrator gets the
// default pipeline with the HTML renderer selected.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8787"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Orch == nil {
		registry := render.NewRegistry()
		terminal, err := tui.New()
		if err != nil {
			return nil, fmt.Errorf("server: build terminal renderer: %w", err)
		}
		registry.MustRegister(terminal)
		web, err := html.New()
		if err != nil {
			return nil, fmt.Errorf("server: build html renderer: %w", err)
		}
		registry.MustRegister(web)
		opts.Orch = orchestrator.New(
			orchestrator.WithRegistry(registry),
			orchestrator.WithDefaultRenderer(web.Name()),
			orchestrator.WithLogger(opts.Logger),
		)
	}
	return &Server{
		addr:       opts.Addr,
		configPath: opts.ConfigPath,
		runner:     opts.Runner,
		journal:    opts.Journal,
		logsDir:    opts.LogsDir,
		orch:       opts.Orch,
		theme:      opts.Theme,
		variant:    opts.Variant,
		logger:     opts.Logger,
		cfg:        opts.Config,
		runCtx:     context.Background(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the routed handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/config", s.handleGetConfig).Methods("GET")
	r.HandleFunc("/api/config", s.handleSaveConfig).Methods("POST")
	r.HandleFunc("/api/runs", s.handleListRuns).Methods("GET")
	r.HandleFunc("/api/runs", s.handleStartRun).Methods("POST")
	r.HandleFunc("/api/runs/{id}/kill", s.handleKillRun).Methods("POST")
	r.HandleFunc("/api/runs/{id}/stream", s.handleRunStream).Methods("GET")
	r.HandleFunc("/ws/runs/{id}", s.handleRunSocket).Methods("GET")
	r.HandleFunc("/api/schema", s.handleSchema).Methods("GET")
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully. Runs
// started over the API are bound to ctx, so stopping the server also stops
// the worker.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", "error", err)
		}
	}()

	s.logger.Info("server starting", "addr", s.addr, "config", s.configPath)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	output, err := s.orch.Generate(r.Context(), orchestrator.Request{
		Model:    cfg,
		Name:     formName,
		Title:    formTitle,
		Renderer: "html",
		Values:   cfg.Values(),
		Theme:    s.theme,
		Variant:  s.variant,
	})
	if err != nil {
		s.logger.Error("render form", "error", err)
		http.Error(w, "failed to render form", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(output)
}

func (s *Server) snapshot() session.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) replace(cfg session.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// formModel reflects the current config through the builder pipeline.
func (s *Server) formModel() (model.FormModel, error) {
	cfg := s.snapshot()
	specs, err := fields.List(reflect.TypeOf(cfg), fields.WithDefaults(cfg))
	if err != nil {
		return model.FormModel{}, err
	}
	return model.NewBuilder().Build(model.Source{
		Name:        formName,
		Title:       formTitle,
		Description: formDescription,
		Specs:       specs,
	})
}
