// ABOUTME: HTTP API handlers for exec, query, instantiate, admin list and audit log
// ABOUTME: chi router with request ids, panic recovery and sender authentication

package gateway

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/contract"
	"github.com/2389/whitelist-gateway/internal/store"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// maxBodyBytes caps request bodies on the API.
const maxBodyBytes = 1 << 20

// IdempotencyHeader carries the optional execute request id.
const IdempotencyHeader = "Idempotency-Key"

// AuditEntryResponse is one entry in the GET /api/audit response.
type AuditEntryResponse struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Timestamp string         `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// ListAuditResponse is the JSON response for GET /api/audit.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// newRouter builds the HTTP handler tree.
func (g *Gateway) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.Get("/status", g.handleStatus)
	if g.config.Metrics.Enabled {
		r.Handle(g.config.Metrics.Path, promhttp.HandlerFor(g.promReg, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/query", g.handleQuery)
			r.Get("/admins", g.handleAdmins)

			r.Group(func(r chi.Router) {
				r.Use(auth.HTTPAuthMiddleware(g.identifier, g.logger))
				r.Post("/execute", g.handleExecute)
				r.Post("/instantiate", g.handleInstantiate)
				r.Get("/audit", g.handleAudit)
			})
		})

		// Long-lived stream, no request timeout.
		r.With(auth.HTTPAuthMiddleware(g.identifier, g.logger)).Get("/events", g.handleEvents)
	})
	return r
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", contract.ErrInvalidMessage, err)
	}
	return body, nil
}

// handleExecute handles POST /api/execute with an ExecMsg body.
func (g *Gateway) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	sender := auth.MustFromContext(r.Context()).Sender
	resp, err := g.dispatcher.ExecuteJSON(r.Context(), sender, r.Header.Get(IdempotencyHeader), body)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInstantiate handles POST /api/instantiate with an InstantiateMsg body.
func (g *Gateway) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	sender := auth.MustFromContext(r.Context()).Sender
	resp, err := g.dispatcher.InstantiateJSON(r.Context(), sender, body)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	if err := g.refreshHealth(r.Context()); err != nil {
		g.logger.Warn("refreshing health after instantiate", "error", err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleQuery handles POST /api/query with a QueryMsg body. No identity is required.
func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	raw, err := g.dispatcher.QueryJSON(r.Context(), body)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleAdmins handles GET /api/admins, a shortcut for the admin_list query.
func (g *Gateway) handleAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := g.registry.ListAdmins(r.Context())
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAudit handles GET /api/audit. Only admins may read the log.
// Query parameters: actor, action, since, until (RFC 3339), limit.
func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sender := auth.MustFromContext(ctx).Sender

	ok, err := g.registry.IsAdmin(ctx, sender)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	if !ok {
		writeError(w, r, g.logger, whitelist.ErrUnauthorized)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Description: err.Error()})
		return
	}

	entries, err := g.store.ListAuditLog(ctx, filter)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	resp := ListAuditResponse{Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntryResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    string(e.Action),
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Detail:    e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	var f store.AuditFilter
	q := r.URL.Query()

	if v := q.Get("actor"); v != "" {
		f.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		if !slices.Contains(store.ValidAuditActions, action) {
			return f, fmt.Errorf("unknown action %q", v)
		}
		f.Action = &action
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be RFC 3339: %w", p.name, err)
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the registry has been instantiated and
// the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ok, err := g.registry.Instantiated(r.Context())
	if err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not instantiated"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
