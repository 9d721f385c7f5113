// ABOUTME: GET /status renders a markdown summary of the registry as HTML
// ABOUTME: Uses goldmark; principals are code spans so they render literally

package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// statusMarkdown builds the status document.
func (g *Gateway) statusMarkdown(r *http.Request) (string, error) {
	var b strings.Builder
	b.WriteString("# whitelist-gateway\n\n")
	fmt.Fprintf(&b, "Up since %s (%s).\n\n", g.startedAt.UTC().Format(time.RFC3339), time.Since(g.startedAt).Round(time.Second))

	info, err := g.registry.ContractInfo(r.Context())
	if errors.Is(err, whitelist.ErrNotInstantiated) {
		b.WriteString("The registry has not been instantiated.\n")
		return b.String(), nil
	}
	if err != nil {
		return "", err
	}
	list, err := g.registry.ListAdmins(r.Context())
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "- **Contract:** `%s` %s\n", info.Contract, info.Version)
	if list.Mutable {
		b.WriteString("- **Admin set:** mutable\n")
	} else {
		b.WriteString("- **Admin set:** frozen\n")
	}
	fmt.Fprintf(&b, "- **Event subscribers:** %d\n", g.events.Subscribers())
	fmt.Fprintf(&b, "\n## Admins (%d)\n\n", len(list.Admins))
	for _, a := range list.Admins {
		fmt.Fprintf(&b, "- `%s`\n", a)
	}
	return b.String(), nil
}

// handleStatus handles GET /status.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	md, err := g.statusMarkdown(r)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	var buf bytes.Buffer
	buf.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>whitelist-gateway</title></head><body>\n")
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		buf.WriteString("<p>Failed to render status.</p>")
	}
	buf.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
