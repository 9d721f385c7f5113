// ABOUTME: Tests for the HTTP API handlers and error mapping
// ABOUTME: Drives the chi router through httptest with header and token identities

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

type apiResult struct {
	Code int
	Body string
}

func (a apiResult) errorCode(t *testing.T) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal([]byte(a.Body), &body), a.Body)
	return body.Error
}

func (a apiResult) response(t *testing.T) *whitelist.Response {
	t.Helper()
	resp := &whitelist.Response{}
	require.NoError(t, json.Unmarshal([]byte(a.Body), resp), a.Body)
	return resp
}

func do(t *testing.T, gw *Gateway, method, path, sender, body string, headers ...string) apiResult {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if sender != "" {
		req.Header.Set(testSenderHeader, sender)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	gw.httpServer.Handler.ServeHTTP(rec, req)
	return apiResult{Code: rec.Code, Body: rec.Body.String()}
}

func TestAPI_UpdateAndFreezeScenario(t *testing.T) {
	gw := newTestGateway(t, []string{"alice", "bob", "carl"}, true)

	res := do(t, gw, http.MethodPost, "/api/execute", "alice", `{"update_admins":{"admins":["alice","bob"]}}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, whitelist.ActionUpdateAdmins, res.response(t).Action())

	res = do(t, gw, http.MethodPost, "/api/execute", "carl", `{"freeze":{}}`)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "unauthorized", res.errorCode(t))

	res = do(t, gw, http.MethodPost, "/api/execute", "bob", `{"freeze":{}}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, whitelist.ActionFreeze, res.response(t).Action())

	res = do(t, gw, http.MethodPost, "/api/execute", "alice", `{"update_admins":{"admins":["alice"]}}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "frozen", res.errorCode(t))

	res = do(t, gw, http.MethodGet, "/api/admins", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"admins":["alice","bob"],"mutable":false}`, res.Body)
}

func TestAPI_ExecuteForwardsActions(t *testing.T) {
	gw := newTestGateway(t, []string{"alice", "carl"}, false)
	action := `{"bank":{"send":{"to_address":"dest","amount":[{"denom":"ustake","amount":"1"}]}}}`
	body := `{"execute":{"msgs":[` + action + `]}}`

	res := do(t, gw, http.MethodPost, "/api/execute", "bob", body)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, gw, http.MethodPost, "/api/execute", "carl", body)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	resp := res.response(t)
	assert.Equal(t, whitelist.ActionExecute, resp.Action())
	require.Len(t, resp.Messages, 1)
	assert.JSONEq(t, action, string(resp.Messages[0]))
}

func TestAPI_BearerToken(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)
	v, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	token, err := v.Generate("alice", time.Hour)
	require.NoError(t, err)

	res := do(t, gw, http.MethodPost, "/api/execute", "", `{"execute":{"msgs":[]}}`, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, res.Code, res.Body)

	res = do(t, gw, http.MethodPost, "/api/execute", "alice", `{"execute":{"msgs":[]}}`, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAPI_MissingIdentity(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)

	for _, path := range []string{"/api/execute", "/api/instantiate"} {
		res := do(t, gw, http.MethodPost, path, "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, res.Code, path)
	}
	res := do(t, gw, http.MethodGet, "/api/audit", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAPI_InvalidInput(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "not json", body: `freeze`, code: "invalid_message"},
		{name: "two variants", body: `{"freeze":{},"execute":{"msgs":[]}}`, code: "invalid_message"},
		{name: "bad principal", body: `{"update_admins":{"admins":["alice","?"]}}`, code: "invalid_principal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, gw, http.MethodPost, "/api/execute", "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Equal(t, tt.code, res.errorCode(t))
		})
	}
}

func TestAPI_IdempotencyKey(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)
	body := `{"execute":{"msgs":[{}]}}`

	res := do(t, gw, http.MethodPost, "/api/execute", "alice", body, IdempotencyHeader, "req-1")
	require.Equal(t, http.StatusOK, res.Code, res.Body)

	res = do(t, gw, http.MethodPost, "/api/execute", "alice", body, IdempotencyHeader, "req-1")
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "replayed", res.errorCode(t))
}

func TestAPI_Query(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)

	res := do(t, gw, http.MethodPost, "/api/query", "", `{"can_execute":{"sender":"alice","msg":{"any":1}}}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.JSONEq(t, `{"can_execute":true}`, res.Body)

	res = do(t, gw, http.MethodPost, "/api/query", "", `{"can_execute":{"sender":"randomUser","msg":{"any":1}}}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"can_execute":false}`, res.Body)

	res = do(t, gw, http.MethodPost, "/api/query", "", `{"contract_info":{}}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"contract":"whitelist-gateway","version":"1.0.0"}`, res.Body)
}

func TestAPI_Instantiate(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(t.Context()) })

	res := do(t, gw, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = do(t, gw, http.MethodGet, "/api/admins", "", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "not_instantiated", res.errorCode(t))

	res = do(t, gw, http.MethodPost, "/api/instantiate", "deployer", `{"admins":["alice"],"mutable":true}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)

	res = do(t, gw, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, gw, http.MethodPost, "/api/instantiate", "mallory", `{"admins":["mallory"],"mutable":true}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "already_instantiated", res.errorCode(t))
}

func TestAPI_Audit(t *testing.T) {
	gw := newTestGateway(t, []string{"alice", "bob"}, true)

	require.Equal(t, http.StatusOK, do(t, gw, http.MethodPost, "/api/execute", "alice", `{"execute":{"msgs":[{}]}}`).Code)
	require.Equal(t, http.StatusOK, do(t, gw, http.MethodPost, "/api/execute", "bob", `{"freeze":{}}`).Code)

	res := do(t, gw, http.MethodGet, "/api/audit", "mallory", "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, gw, http.MethodGet, "/api/audit", "alice", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	var all ListAuditResponse
	require.NoError(t, json.Unmarshal([]byte(res.Body), &all))
	require.Len(t, all.Entries, 3)
	assert.Equal(t, "freeze", all.Entries[0].Action)
	assert.Equal(t, "instantiate", all.Entries[2].Action)

	res = do(t, gw, http.MethodGet, "/api/audit?action=execute&actor=alice", "alice", "")
	require.Equal(t, http.StatusOK, res.Code)
	var filtered ListAuditResponse
	require.NoError(t, json.Unmarshal([]byte(res.Body), &filtered))
	require.Len(t, filtered.Entries, 1)
	assert.Equal(t, float64(1), filtered.Entries[0].Detail["count"])

	res = do(t, gw, http.MethodGet, "/api/audit?action=unfreeze", "alice", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, gw, http.MethodGet, "/api/audit?since=yesterday", "alice", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAPI_HealthStatusAndMetrics(t *testing.T) {
	gw := newTestGateway(t, []string{"alice"}, true)
	require.Equal(t, http.StatusOK, do(t, gw, http.MethodPost, "/api/execute", "alice", `{"freeze":{}}`).Code)

	res := do(t, gw, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "OK", res.Body)

	res = do(t, gw, http.MethodGet, "/status", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "<h1>whitelist-gateway</h1>")
	assert.Contains(t, res.Body, "<code>alice</code>")
	assert.Contains(t, res.Body, "frozen")

	res = do(t, gw, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, `whitelist_entrypoint_total{entrypoint="freeze",outcome="ok"} 1`)
	assert.Contains(t, res.Body, "whitelist_mutable 0")
}

