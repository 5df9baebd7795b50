package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Ch00k/georouter/internal/api"
	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/metrics"
	"github.com/Ch00k/georouter/internal/router"
)

type testEnv struct {
	service   *Service
	router    *router.Router
	collector *metrics.Collector
	hub       *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.New(io.Discard, logging.LogLevelError)
	collector := metrics.NewCollector()
	hub := NewHub(logger)
	r := router.New(router.WithObserver(collector), router.WithObserver(hub))

	return &testEnv{
		service:   New(r, WithLogger(logger), WithCollector(collector), WithHub(hub)),
		router:    r,
		collector: collector,
		hub:       hub,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.service.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAddServer(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid server",
			body:       `{"name":"London","latitude":51.5074,"longitude":-0.1278}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "zero coordinates are valid",
			body:       `{"name":"Null Island","latitude":0,"longitude":0}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed JSON",
			body:       `{"name":"London",`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing latitude",
			body:       `{"name":"London","longitude":-0.1278}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"name":"London","lat":51.5,"longitude":-0.1278}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong type",
			body:       `{"name":"London","latitude":"north","longitude":-0.1278}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/servers", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantStatus == http.StatusBadRequest {
				errResp := decode[api.ErrorResponse](t, rec)
				if errResp.Code != api.CodeBadRequest {
					t.Errorf("code = %q, want %q", errResp.Code, api.CodeBadRequest)
				}
				if env.router.Len() != 0 {
					t.Errorf("registry size = %d, want 0", env.router.Len())
				}
				return
			}

			if env.router.Len() != 1 {
				t.Errorf("registry size = %d, want 1", env.router.Len())
			}
		})
	}
}

func TestListServers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("empty registry body = %q, want []", got)
	}

	env.router.AddServer("New York", 40.7128, -74.0060)
	env.router.AddServer("London", 51.5074, -0.1278)

	rec = env.do(t, http.MethodGet, "/servers", "")
	servers := decode[[]router.Server](t, rec)
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].Name != "New York" || servers[1].Name != "London" {
		t.Errorf("servers out of order: %+v", servers)
	}
}

func TestRoute_EmptyRegistry(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/route", `{"origin":"Paris","latitude":48.85,"longitude":2.35}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	errResp := decode[api.ErrorResponse](t, rec)
	if errResp.Code != api.CodeEmptyRegistry {
		t.Errorf("code = %q, want %q", errResp.Code, api.CodeEmptyRegistry)
	}
	if errResp.Error != router.ErrEmptyRegistry.Error() {
		t.Errorf("error = %q, want %q", errResp.Error, router.ErrEmptyRegistry.Error())
	}

	count, err := testutil.GatherAndCount(env.collector.Registry(), "georouter_requests_failed_total")
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("failed request series = %d, want 1", count)
	}
	if n := env.router.Stats().RequestCount; n != 0 {
		t.Errorf("request count = %d, want 0", n)
	}
}

func TestRoute_AssignsIDs(t *testing.T) {
	env := newTestEnv(t)
	env.router.AddServer("New York", 40.7128, -74.0060)
	env.router.AddServer("London", 51.5074, -0.1278)

	tests := []struct {
		name       string
		body       string
		wantID     int
		wantServer string
	}{
		{
			name:       "first assigned id",
			body:       `{"origin":"Paris","latitude":48.8566,"longitude":2.3522}`,
			wantID:     1,
			wantServer: "London",
		},
		{
			name:       "second assigned id",
			body:       `{"origin":"Boston","latitude":42.3601,"longitude":-71.0589}`,
			wantID:     2,
			wantServer: "New York",
		},
		{
			name:       "caller supplied id",
			body:       `{"request_id":42,"origin":"Dublin","latitude":53.3498,"longitude":-6.2603}`,
			wantID:     42,
			wantServer: "London",
		},
		{
			name:       "assigned ids continue after caller supplied id",
			body:       `{"origin":"Toronto","latitude":43.6532,"longitude":-79.3832}`,
			wantID:     3,
			wantServer: "New York",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/route", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
			}

			decision := decode[router.Decision](t, rec)
			if decision.RequestID != tt.wantID {
				t.Errorf("request id = %d, want %d", decision.RequestID, tt.wantID)
			}
			if decision.ServerName != tt.wantServer {
				t.Errorf("server = %q, want %q", decision.ServerName, tt.wantServer)
			}
			if len(decision.Candidates) != 2 {
				t.Errorf("got %d candidates, want 2", len(decision.Candidates))
			}
		})
	}
}

func TestRoute_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `not json`},
		{name: "missing longitude", body: `{"origin":"Paris","latitude":48.85}`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.router.AddServer("London", 51.5074, -0.1278)

			rec := env.do(t, http.MethodPost, "/route", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if n := env.router.Stats().RequestCount; n != 0 {
				t.Errorf("request count = %d, want 0", n)
			}
		})
	}
}

func TestCheckCoordinates(t *testing.T) {
	ptr := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		lat     *float64
		lon     *float64
		wantErr bool
	}{
		{"finite", ptr(51.5074), ptr(-0.1278), false},
		{"zero", ptr(0), ptr(0), false},
		{"out of range is not rejected", ptr(120), ptr(400), false},
		{"missing latitude", nil, ptr(0), true},
		{"missing longitude", ptr(0), nil, true},
		{"NaN latitude", ptr(math.NaN()), ptr(0), true},
		{"infinite longitude", ptr(0), ptr(math.Inf(-1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCoordinates(tt.lat, tt.lon)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkCoordinates() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/summary", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	errResp := decode[api.ErrorResponse](t, rec)
	if errResp.Code != api.CodeEmptyHistory {
		t.Errorf("code = %q, want %q", errResp.Code, api.CodeEmptyHistory)
	}

	env.router.AddServer("Origin", 0, 0)
	for _, body := range []string{
		`{"origin":"A","latitude":0,"longitude":0}`,
		`{"origin":"B","latitude":0,"longitude":1}`,
	} {
		if rec := env.do(t, http.MethodPost, "/route", body); rec.Code != http.StatusOK {
			t.Fatalf("route status = %d, want %d", rec.Code, http.StatusOK)
		}
	}

	rec = env.do(t, http.MethodGet, "/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	summary := decode[router.Summary](t, rec)
	if summary.RequestCount != 2 {
		t.Errorf("request count = %d, want 2", summary.RequestCount)
	}
	if math.Abs(summary.MinLatency-5.0) > 1e-9 {
		t.Errorf("min latency = %f, want 5.0", summary.MinLatency)
	}
	if summary.MaxLatency <= summary.MinLatency {
		t.Errorf("max latency %f should exceed min latency %f", summary.MaxLatency, summary.MinLatency)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	env.router.AddServer("London", 51.5074, -0.1278)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	health := decode[api.HealthResponse](t, rec)
	if health.Status != "ok" || health.Servers != 1 {
		t.Errorf("health = %+v, want {ok 1}", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/route", `{"origin":"Paris","latitude":48.85,"longitude":2.35}`)
	env.do(t, http.MethodPost, "/servers", `{"name":"London","latitude":51.5074,"longitude":-0.1278}`)
	env.do(t, http.MethodPost, "/route", `{"origin":"Paris","latitude":48.85,"longitude":2.35}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`georouter_requests_routed_total{server="London"} 1`,
		`georouter_requests_failed_total{reason="empty_registry"} 1`,
		`georouter_registered_servers 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/route", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	t.Run("echoes caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		env.service.Handler().ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("request id = %q, want %q", got, "abc-123")
		}
	})

	t.Run("generates id when absent", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/healthz", "")

		got := rec.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("generated request id %q is not a UUID: %v", got, err)
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecisionFeed(t *testing.T) {
	env := newTestEnv(t)
	env.router.AddServer("New York", 40.7128, -74.0060)
	env.router.AddServer("London", 51.5074, -0.1278)

	ts := httptest.NewServer(env.service.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/decisions"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial decision feed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}

	waitFor(t, func() bool { return env.hub.Len() == 1 })

	routeResp, err := http.Post(ts.URL+"/route", "application/json",
		strings.NewReader(`{"origin":"Paris","latitude":48.8566,"longitude":2.3522}`))
	if err != nil {
		t.Fatalf("route request failed: %v", err)
	}
	_ = routeResp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var decision router.Decision
	if err := conn.ReadJSON(&decision); err != nil {
		t.Fatalf("failed to read decision: %v", err)
	}

	if decision.RequestID != 1 {
		t.Errorf("request id = %d, want 1", decision.RequestID)
	}
	if decision.ServerName != "London" {
		t.Errorf("server = %q, want London", decision.ServerName)
	}
	if decision.Origin != "Paris" {
		t.Errorf("origin = %q, want Paris", decision.Origin)
	}
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	env := newTestEnv(t)

	ts := httptest.NewServer(env.service.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/decisions"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial decision feed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	waitFor(t, func() bool { return env.hub.Len() == 1 })
	env.hub.Close()

	if env.hub.Len() != 0 {
		t.Errorf("subscribers after close = %d, want 0", env.hub.Len())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after close = %v, want close going away", err)
	}

	// Routing after close must not panic on closed subscriber channels
	env.router.AddServer("London", 51.5074, -0.1278)
	if _, err := env.router.RouteRequest(1, "Paris", 48.85, 2.35); err != nil {
		t.Errorf("route after hub close failed: %v", err)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.service.Serve(ctx, ln, 4)
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	waitFor(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestListenAndServe_InvalidAddress(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ListenAndServe(context.Background(), "not-an-address", 0)
	if err == nil {
		t.Fatal("expected error for invalid listen address")
	}
}

func TestClientAgainstService(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.service.Handler())
	defer ts.Close()

	ctx := context.Background()
	client := api.NewClient(api.WithURL(ts.URL), api.WithMaxRetries(0))

	if _, err := client.Summary(ctx); !errors.Is(err, router.ErrEmptyHistory) {
		t.Errorf("Summary() error = %v, want ErrEmptyHistory", err)
	}
	if _, err := client.RouteRequest(ctx, 1, "Paris", 48.85, 2.35); !errors.Is(err, router.ErrEmptyRegistry) {
		t.Errorf("RouteRequest() error = %v, want ErrEmptyRegistry", err)
	}

	server, err := client.AddServer(ctx, "London", 51.5074, -0.1278)
	if err != nil {
		t.Fatalf("AddServer() error = %v", err)
	}
	if server.Name != "London" {
		t.Errorf("server name = %q, want London", server.Name)
	}

	decision, err := client.RouteRequest(ctx, 7, "Paris", 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("RouteRequest() error = %v", err)
	}
	if decision.RequestID != 7 || decision.ServerName != "London" {
		t.Errorf("decision = #%d %q, want #7 London", decision.RequestID, decision.ServerName)
	}

	servers, err := client.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers() error = %v", err)
	}
	if len(servers) != 1 {
		t.Errorf("got %d servers, want 1", len(servers))
	}

	summary, err := client.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.RequestCount != 1 {
		t.Errorf("request count = %d, want 1", summary.RequestCount)
	}
}
