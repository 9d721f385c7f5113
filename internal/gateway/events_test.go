package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/whitelist-gateway/internal/outbox"
)

// nextEvent reads SSE lines until a blank line and returns the event name and data.
func nextEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEvents_StreamsForwardedEnvelopes(t *testing.T) {
	gw := newTestGateway(t, []string{"alice", "carl"}, true)
	srv := httptest.NewServer(gw.httpServer.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?sender=Carl", nil)
	require.NoError(t, err)
	req.Header.Set(testSenderHeader, "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	name, _ := nextEvent(t, r)
	require.Equal(t, "connected", name)

	require.Equal(t, http.StatusOK, do(t, gw, http.MethodPost, "/api/execute", "alice", `{"execute":{"msgs":[{"a":1}]}}`).Code)
	require.Equal(t, http.StatusOK, do(t, gw, http.MethodPost, "/api/execute", "carl", `{"execute":{"msgs":[{"b":2}]}}`).Code)

	name, data := nextEvent(t, r)
	require.Equal(t, "envelope", name)
	var env outbox.Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, "carl", env.Sender)
	require.Len(t, env.Messages, 1)
	assert.JSONEq(t, `{"b":2}`, string(env.Messages[0]))
}

func TestEvents_AdminsOnly(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)

	res := do(t, gw, http.MethodGet, "/api/events", "mallory", "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, gw, http.MethodGet, "/api/events", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(t, gw, http.MethodGet, "/api/events?sender=%3F", "alice", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
