package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/metrics"
	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/internal/service"
	"github.com/mmynk/ubupresent/internal/storage/sqlite"
	"github.com/mmynk/ubupresent/pkg/api"
	"github.com/mmynk/ubupresent/pkg/api/apiconnect"
)

const testClientURL = "http://localhost:5173"

type failingHealth struct{}

func (failingHealth) Probe(context.Context) error { return errors.New("store unreachable") }

type testRouter struct {
	engine *gin.Engine
	jwt    *auth.JWTManager
}

func newTestRouter(t *testing.T, callbackSecret string) *testRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "ubupresent-server-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "server.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	promRegistry := prometheus.NewRegistry()
	reg := registry.New(store, registry.WithLogger(logger), registry.WithMetrics(metrics.New(promRegistry)))
	jwtManager := auth.NewJWTManager("server-test-secret", "", time.Hour)

	eventPath, eventHandler := apiconnect.NewEventServiceHandler(
		service.NewEventService(reg),
		connect.WithInterceptors(middleware.RequireAuth(jwtManager, apiconnect.EventServiceCreateEventProcedure)),
	)

	engine := NewRouter(logger, RouterDependencies{
		Health:         StoreHealth{Store: store},
		Registry:       reg,
		Verifier:       jwtManager,
		Connect:        []ConnectRoute{{Path: eventPath, Handler: eventHandler}},
		Metrics:        promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		AllowedOrigins: []string{testClientURL},
		CallbackSecret: callbackSecret,
	})
	return &testRouter{engine: engine, jwt: jwtManager}
}

func (tr *testRouter) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tr.engine.ServeHTTP(rec, req)
	return rec
}

func (tr *testRouter) bearer(t *testing.T, p models.Principal) map[string]string {
	t.Helper()
	token, err := tr.jwt.Generate(p)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (tr *testRouter) createEvent(t *testing.T) api.Event {
	t.Helper()
	rec := tr.do(t, http.MethodPost, "/api/events", api.CreateEventRequest{
		Title: "Wedding",
		Date:  "2026-08-15",
		Gifts: []api.GiftInput{{Name: "Fridge", Price: 100}},
	}, tr.bearer(t, models.Principal{ID: "host-1", Name: "Selam"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[api.Event](t, rec)
}

func TestRoot(t *testing.T) {
	tr := newTestRouter(t, "")
	rec := tr.do(t, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "UbuPresent API is running.") {
		t.Errorf("unexpected root response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	tr := newTestRouter(t, "")
	rec := tr.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	gin.SetMode(gin.TestMode)
	degraded := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), RouterDependencies{Health: failingHealth{}})
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded healthz status = %d", rec.Code)
	}
}

func TestHostRoutesRequireAuth(t *testing.T) {
	tr := newTestRouter(t, "")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/protected"},
		{http.MethodGet, "/api/events"},
		{http.MethodPost, "/api/events"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := tr.do(t, route.method, route.path, nil, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			rec = tr.do(t, route.method, route.path, nil, map[string]string{"Authorization": "Bearer forged"})
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("forged token status = %d, want 401", rec.Code)
			}
		})
	}

	rec := tr.do(t, http.MethodGet, "/api/protected", nil, tr.bearer(t, models.Principal{ID: "host-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("protected status = %d", rec.Code)
	}
	if got := decode[api.WhoAmIResponse](t, rec); got.UserID != "host-1" {
		t.Errorf("userId = %q", got.UserID)
	}
}

func TestEventRoutes(t *testing.T) {
	tr := newTestRouter(t, "")
	event := tr.createEvent(t)

	rec := tr.do(t, http.MethodGet, "/api/events/"+event.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get event status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "transactions") {
		t.Errorf("public event exposes transactions: %s", rec.Body.String())
	}

	rec = tr.do(t, http.MethodGet, "/api/events/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d", rec.Code)
	}

	rec = tr.do(t, http.MethodGet, "/api/events", nil, tr.bearer(t, models.Principal{ID: "host-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("list events status = %d", rec.Code)
	}
	if events := decode[[]api.Event](t, rec); len(events) != 1 || events[0].ID != event.ID {
		t.Errorf("unexpected host events: %+v", events)
	}

	rec = tr.do(t, http.MethodPost, "/api/events", api.CreateEventRequest{Title: "x", Date: "never"},
		tr.bearer(t, models.Principal{ID: "host-1"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid event status = %d", rec.Code)
	}
}

func TestPaymentRoutes(t *testing.T) {
	tr := newTestRouter(t, "")
	event := tr.createEvent(t)

	rec := tr.do(t, http.MethodPost, "/api/payments/initiate", api.InitiatePaymentRequest{
		EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 150, Phone: "0911",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate status = %d body %s", rec.Code, rec.Body.String())
	}
	initiated := decode[api.InitiatePaymentResponse](t, rec)
	if initiated.TransactionID == "" {
		t.Fatal("expected transaction id")
	}

	callback := api.SettlePaymentRequest{TransactionID: initiated.TransactionID, Status: "SUCCESS"}
	rec = tr.do(t, http.MethodPost, "/api/payments/callback", callback, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d body %s", rec.Code, rec.Body.String())
	}
	settled := decode[api.SettlePaymentResponse](t, rec)
	if settled.Applied != 100 || settled.AlreadyProcessed {
		t.Errorf("unexpected settlement: %+v", settled)
	}

	rec = tr.do(t, http.MethodPost, "/api/payments/callback", callback, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed callback status = %d", rec.Code)
	}
	if replay := decode[api.SettlePaymentResponse](t, rec); !replay.AlreadyProcessed {
		t.Errorf("expected replay to be reported, got %+v", replay)
	}

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{
			name:       "initiate missing phone",
			path:       "/api/payments/initiate",
			body:       api.InitiatePaymentRequest{EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 10},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "initiate unknown event",
			path:       "/api/payments/initiate",
			body:       api.InitiatePaymentRequest{EventID: "nope", GiftID: "g", Amount: 10, Phone: "0911"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "callback bad status",
			path:       "/api/payments/callback",
			body:       api.SettlePaymentRequest{TransactionID: initiated.TransactionID, Status: "MAYBE"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "callback unknown transaction",
			path:       "/api/payments/callback",
			body:       api.SettlePaymentRequest{TransactionID: "nope", Status: "SUCCESS"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "callback malformed body",
			path:       "/api/payments/callback",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tr.do(t, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestPaymentCallbackSignature(t *testing.T) {
	const secret = "notifier-secret"
	tr := newTestRouter(t, secret)
	event := tr.createEvent(t)

	rec := tr.do(t, http.MethodPost, "/api/payments/initiate", api.InitiatePaymentRequest{
		EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 10, Phone: "0911",
	}, nil)
	txID := decode[api.InitiatePaymentResponse](t, rec).TransactionID

	callback := api.SettlePaymentRequest{TransactionID: txID, Status: "SUCCESS"}
	rec = tr.do(t, http.MethodPost, "/api/payments/callback", callback, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned callback status = %d, want 401", rec.Code)
	}

	rec = tr.do(t, http.MethodPost, "/api/payments/callback", callback, map[string]string{
		middleware.CallbackSignatureHeader: middleware.SignCallback(secret, txID, "SUCCESS"),
	})
	if rec.Code != http.StatusOK {
		t.Errorf("signed callback status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	tr := newTestRouter(t, "")

	rec := tr.do(t, http.MethodOptions, "/api/payments/initiate", nil, map[string]string{
		"Origin":                        testClientURL,
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testClientURL {
		t.Errorf("Allow-Origin = %q, want %q", got, testClientURL)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	rec = tr.do(t, http.MethodGet, "/", nil, map[string]string{"Origin": "http://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin for foreign origin: %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tr := newTestRouter(t, "")
	event := tr.createEvent(t)
	tr.do(t, http.MethodPost, "/api/payments/initiate", api.InitiatePaymentRequest{
		EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 10, Phone: "0911",
	}, nil)

	rec := tr.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ubupresent_payment_initiations_total{result="ok"} 1`) {
		t.Errorf("initiation counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestConnectMountedOnRouter(t *testing.T) {
	tr := newTestRouter(t, "")
	event := tr.createEvent(t)

	server := httptest.NewServer(tr.engine)
	defer server.Close()

	client := apiconnect.NewEventServiceClient(server.Client(), server.URL)
	resp, err := client.GetEvent(context.Background(), connect.NewRequest(&api.GetEventRequest{EventID: event.ID}))
	if err != nil {
		t.Fatalf("GetEvent over Connect failed: %v", err)
	}
	if resp.Msg.Event.ID != event.ID {
		t.Errorf("event id = %q, want %q", resp.Msg.Event.ID, event.ID)
	}

	_, err = client.CreateEvent(context.Background(), connect.NewRequest(&api.CreateEventRequest{}))
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}
}
