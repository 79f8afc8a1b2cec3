// Package app wires every Gliksbot component together behind one HTTP
// server and owns its start/shutdown lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/config"
	"github.com/Gliksbot/gliksbot/engine"
	"github.com/Gliksbot/gliksbot/eventbus"
	"github.com/Gliksbot/gliksbot/httpapi"
	"github.com/Gliksbot/gliksbot/idgen"
	"github.com/Gliksbot/gliksbot/llmclient"
	"github.com/Gliksbot/gliksbot/registry"
	"github.com/Gliksbot/gliksbot/sandbox/process"
	"github.com/Gliksbot/gliksbot/skillstore"
	"github.com/Gliksbot/gliksbot/store/filelog"
	"github.com/Gliksbot/gliksbot/store/inmem"
)

// registrySessionRetention is the Registry's retention window: a finished
// session's handle is eligible for removal by Registry.GC once this much
// time has passed. App does not schedule GC itself.
const registrySessionRetention = 10 * time.Minute

// Version is reported verbatim by GET /health.
const Version = "0.1.0"

// App owns runtime wiring and the HTTP server lifecycle.
type App struct {
	cfg               config.Config
	bus               *eventbus.Bus
	store             collab.Store
	registry          *registry.Registry
	engine            *engine.Engine
	server            *http.Server
	cancelServerScope context.CancelFunc
	ready             atomic.Bool
}

// New wires the full dependency graph from cfg: Event Bus, Collaboration
// Store (filelog if cfg.PersistenceRoot is set, inmem otherwise), Session
// Registry, LLM Client, Sandbox Runner, Skill Store, Collaboration
// Engine, and finally the HTTP router.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if cfg.HTTPAddr == "" {
		return nil, errors.New("new app: empty HTTPAddr")
	}
	if logger == nil {
		return nil, errors.New("new app: nil logger")
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("new app: shutdown timeout must be > 0")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new app config: %w", err)
	}

	bus := eventbus.New(cfg.EventBusCapacity)

	var store collab.Store
	if cfg.PersistenceRoot != "" {
		durable, err := filelog.Open(cfg.PersistenceRoot, bus)
		if err != nil {
			return nil, fmt.Errorf("new app store: %w", err)
		}
		store = durable
		logger.Info("collaboration store backend", slog.String("backend", "filelog"), slog.String("root", cfg.PersistenceRoot))
	} else {
		store = inmem.New(bus, cfg.MaxEventsPerLog)
		logger.Info("collaboration store backend", slog.String("backend", "inmem"))
	}

	reg := registry.New(idgen.New(), cfg.MaxConcurrentRuns, registrySessionRetention)
	client := llmclient.New()
	sandboxRunner := process.New("")
	skills := skillstore.New()

	eng := engine.New(cfg.Slots, cfg.VoteWeights, client, store, sandboxRunner, skills,
		engine.WithPhaseDeadline(cfg.PhaseDeadline),
		engine.WithCallDeadline(cfg.CallDeadline),
		engine.WithSessionDeadline(cfg.SessionDeadline),
	)

	serverScopeCtx, cancelServerScope := context.WithCancel(context.Background())
	a := &App{
		cfg:               cfg,
		bus:               bus,
		store:             store,
		registry:          reg,
		engine:            eng,
		cancelServerScope: cancelServerScope,
	}

	apiRouter := httpapi.NewRouter(httpapi.Deps{
		Registry: reg,
		Engine:   eng,
		Bus:      bus,
		Store:    store,
		Sandbox:  sandboxRunner,
		Skills:   skills,
		Version:  Version,
	}, httpapi.PolicyConfig{
		AuthToken:   cfg.AuthToken,
		ChatTimeout: cfg.SessionDeadline + 30*time.Second,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("/", apiRouter)
	handler := requestLoggingMiddleware(logger)(mux)

	a.server = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return serverScopeCtx
		},
	}

	return a, nil
}

// Start blocks serving HTTP until the server is shut down.
func (a *App) Start() error {
	a.ready.Store(true)

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

// Shutdown stops accepting new connections and waits (bounded by ctx)
// for in-flight requests to finish. It first cancels the server's base
// context, which every request context derives from, so in-flight
// Collaboration sessions started by /chat are canceled as well.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown: nil context")
	}
	a.ready.Store(false)
	a.cancelServerScope()
	return a.server.Shutdown(ctx)
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
