// Package httpapi exposes the Collaboration Engine over spec.md §6's
// HTTP surface: /chat, /events (SSE), /collaboration/*, /config,
// /models/{slot}/config, /health, and /skills/*.
package httpapi

import (
	"net/http"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/engine"
	"github.com/Gliksbot/gliksbot/httpapi/policyauth"
	"github.com/Gliksbot/gliksbot/httpapi/policylimit"
	"github.com/Gliksbot/gliksbot/registry"
	"github.com/Gliksbot/gliksbot/skillstore"
)

// PolicyConfig tunes the auth and request-limit middleware wrapping the
// mutating routes. RequestTimeout bounds ordinary mutating requests;
// /chat is deliberately exempt (it blocks until the session reaches
// Done/Failed or ChatTimeout, which should track the Engine's own
// session deadline, not the short per-request budget).
type PolicyConfig struct {
	AuthToken           string
	MaxRequestBodyBytes int64
	RequestTimeout      time.Duration
	ChatTimeout         time.Duration
}

// Deps bundles every collaborator the HTTP surface dispatches into.
type Deps struct {
	Registry *registry.Registry
	Engine   *engine.Engine
	Bus      collab.EventBus
	Store    collab.Store
	Sandbox  collab.SandboxRunner
	Skills   *skillstore.Store
	Version  string
}

type handlers struct {
	deps Deps
}

type middleware func(http.Handler) http.Handler

// chain composes middlewares so that the first one listed runs first,
// mirroring teacher's router composition order.
func chain(middlewares ...middleware) middleware {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

func rejectUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusUnauthorized, errorCodeUnauthorized, err.Error())
}

// NewRouter builds the full mux. GET /events is mounted outside the
// request-timeout middleware since SSE connections are intentionally
// long-lived; every other route except GET /health is wrapped in an auth
// check, and every mutating route additionally gets the body-size/timeout
// policy (/chat with its own ChatTimeout).
// defaultChatTimeout is used when the caller leaves PolicyConfig.ChatTimeout
// unset; it must stay comfortably above engine.DefaultSessionDeadline so a
// correctly-configured Engine's own deadline always fires first.
const defaultChatTimeout = 650 * time.Second

func NewRouter(deps Deps, policy PolicyConfig) http.Handler {
	h := &handlers{deps: deps}
	if policy.ChatTimeout <= 0 {
		policy.ChatTimeout = defaultChatTimeout
	}

	auth := policyauth.Middleware(policy.AuthToken, rejectUnauthorized)
	limit := policylimit.Middleware(policylimit.Config{
		MaxRequestBodyBytes: policy.MaxRequestBodyBytes,
		RequestTimeout:      policy.RequestTimeout,
	}, nil)
	chatLimit := policylimit.Middleware(policylimit.Config{
		MaxRequestBodyBytes: policy.MaxRequestBodyBytes,
		RequestTimeout:      policy.ChatTimeout,
	}, nil)

	mutating := chain(auth, limit)
	chatPolicy := chain(auth, chatLimit)
	readOnly := chain(auth)

	mux := http.NewServeMux()

	mux.Handle("POST /chat", chatPolicy(http.HandlerFunc(h.handleChat)))
	mux.Handle("GET /events", auth(http.HandlerFunc(h.handleEvents)))
	mux.Handle("GET /collaboration/head", readOnly(http.HandlerFunc(h.handleCollaborationHead)))
	mux.Handle("POST /collaboration/input/{slot}", mutating(http.HandlerFunc(h.handleCollaborationInput)))
	mux.Handle("GET /config", readOnly(http.HandlerFunc(h.handleConfigGet)))
	mux.Handle("PUT /config", mutating(http.HandlerFunc(h.handleConfigPut)))
	mux.Handle("POST /models/{slot}/config", mutating(http.HandlerFunc(h.handleModelConfig)))
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("POST /skills/{id}/test", mutating(http.HandlerFunc(h.handleSkillTest)))
	mux.Handle("POST /skills/{id}/promote", mutating(http.HandlerFunc(h.handleSkillPromote)))
	mux.Handle("POST /skills/{id}/execute", mutating(http.HandlerFunc(h.handleSkillExecute)))

	return mux
}
