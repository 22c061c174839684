package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/config"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
)

func postOptimize(t *testing.T, base, tenant, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+"/v1/optimize", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// readEvent returns the next SSE event name and data line.
func readEvent(t *testing.T, br *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestRoutes_LegacyAndVersionedOptimize(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	for _, path := range []string{"/optimize", "/v1/optimize"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(exampleBody))
		require.NoError(t, err)
		var got map[string][]int
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		_ = resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode, path)
		assert.Equal(t, []int{0, 2, 3, 1, 0}, got["driver1"], path)
	}
}

func TestRoutes_CORS(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/optimize", nil)
	req.Header.Set("Origin", "https://app.example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Tenant-Id")
}

func TestRoutes_CORSRestrictedOrigins(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.AllowOrigins = []string{"https://ok.example.test"}
	s := newTestServerWithConfig(t, cfg)
	h := s.Routes()

	for origin, want := range map[string]string{
		"https://ok.example.test":  "https://ok.example.test",
		"https://bad.example.test": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, 200, rr.Code)
		assert.Equal(t, want, rr.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestRoutes_RateLimitPerTenant(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.RateRPS = 0.001
	cfg.HTTP.RateBurst = 1
	s := newTestServerWithConfig(t, cfg)
	h := s.Routes()

	get := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("X-Tenant-Id", tenant)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	assert.Equal(t, 200, get("a").Code)
	limited := get("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, 200, get("b").Code, "other tenants keep their own budget")

	// probes are never limited
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, 200, rr.Code)
	}
}

func TestRoutes_MetricsEndpoint(t *testing.T) {
	metrics.RegisterDefault()
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp := postOptimize(t, srv.URL, "t_metrics", exampleBody)
	_ = resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(b), "fleetroute_solves_total")
	assert.Contains(t, string(b), `path="/v1/optimize"`)
}

func TestPlanEventsSSE(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/plans/stream", nil)
	req.Header.Set("X-Tenant-Id", "t_sse")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	br := bufio.NewReader(resp.Body)

	name, _ := readEvent(t, br)
	require.Equal(t, "heartbeat", name)

	// another tenant's plans are not streamed
	other := postOptimize(t, srv.URL, "t_other", exampleBody)
	_ = other.Body.Close()
	mine := postOptimize(t, srv.URL, "t_sse", infeasibleBody)
	_ = mine.Body.Close()

	name, data := readEvent(t, br)
	assert.Equal(t, model.EventPlanInfeasible, name)
	var evt model.PlanEvent
	require.NoError(t, json.Unmarshal([]byte(data), &evt))
	assert.Equal(t, "t_sse", evt.TenantID)
	assert.Equal(t, "demand_exceeds_capacity", evt.Reason)
}

func TestPlanEventsWS(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_ws")
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/plans/ws", hdr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, c.WriteJSON(wsMessage{Type: "connection_init"}))
	var msg wsMessage
	require.NoError(t, c.ReadJSON(&msg))
	require.Equal(t, "connection_ack", msg.Type)

	require.NoError(t, c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{"events":["plan.solved"]}`)}))
	// messages are handled in order, so the pong proves the subscription is live
	require.NoError(t, c.WriteJSON(wsMessage{Type: "ping"}))
	require.NoError(t, c.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Type)

	resp := postOptimize(t, srv.URL, "t_ws", infeasibleBody)
	_ = resp.Body.Close()
	resp = postOptimize(t, srv.URL, "t_ws", exampleBody)
	planID := resp.Header.Get("X-Plan-Id")
	_ = resp.Body.Close()

	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "next", msg.Type)
	assert.Equal(t, "1", msg.ID)
	var evt model.PlanEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &evt))
	assert.Equal(t, model.EventPlanSolved, evt.Type, "filtered subscription skips infeasible plans")
	assert.Equal(t, planID, evt.PlanID)
	assert.InDelta(t, 80.0, evt.TotalDistance, 1e-9)

	require.NoError(t, c.WriteJSON(wsMessage{Type: "complete", ID: "1"}))
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "complete", msg.Type)
}

func TestRoutes_BearerAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Mode = "hmac"
	cfg.Auth.HMACSecret = "s3cret"
	s := newTestServerWithConfig(t, cfg)
	h := s.Routes()

	sign := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		return tok
	}
	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader(exampleBody))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		// headers cannot escalate once token auth is on
		req.Header.Set("X-Tenant-Id", "t_spoof")
		req.Header.Set("X-Role", "admin")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := post("")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusForbidden, post(sign(jwt.MapClaims{"tenant": "t_jwt"})).Code, "role defaults to viewer")

	rr = post(sign(jwt.MapClaims{"tenant": "t_jwt", "role": "dispatcher"}))
	require.Equal(t, http.StatusOK, rr.Code)
	plan, err := s.Store.GetPlan(context.Background(), "t_jwt", rr.Header().Get("X-Plan-Id"))
	require.NoError(t, err)
	assert.Equal(t, "t_jwt", plan.TenantID)

	probe := httptest.NewRecorder()
	h.ServeHTTP(probe, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 200, probe.Code)
}
