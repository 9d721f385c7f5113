// ABOUTME: Server-sent event stream of forwarded envelopes for admins
// ABOUTME: Subscribes to the outbox broadcaster and writes one event per execute

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/outbox"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

const eventsHeartbeat = 30 * time.Second

// handleEvents handles GET /api/events. Only admins may subscribe. The
// optional sender query parameter narrows the stream to one sender.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.MustFromContext(ctx).Sender

	ok, err := g.registry.IsAdmin(ctx, caller)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	if !ok {
		writeError(w, r, g.logger, whitelist.ErrUnauthorized)
		return
	}

	sender := outbox.AllSenders
	if v := r.URL.Query().Get("sender"); v != "" {
		p, err := g.registry.Validator().Validate(v)
		if err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		sender = string(p)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, subID := g.events.Subscribe(ctx, sender)
	g.logger.Debug("event stream opened", "caller", caller, "sender", sender, "sub_id", subID)

	fmt.Fprintf(w, "event: connected\ndata: {\"sender\": %q}\n\n", sender)
	flusher.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case env, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				g.logger.Error("encoding envelope", "envelope", env.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: envelope\ndata: %s\n\n", env.ID, data)
			flusher.Flush()
		}
	}
}
