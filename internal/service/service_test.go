package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/internal/storage/sqlite"
	"github.com/mmynk/ubupresent/pkg/api"
	"github.com/mmynk/ubupresent/pkg/api/apiconnect"
)

const (
	testSecret         = "service-test-secret"
	testCallbackSecret = "callback-secret"
)

type testEnv struct {
	events   apiconnect.EventServiceClient
	payments apiconnect.PaymentServiceClient
	jwt      *auth.JWTManager
}

// setupTestServer creates a test server backed by a temp-file SQLite database.
func setupTestServer(t *testing.T, callbackSecret string) *testEnv {
	t.Helper()

	// Create temp database
	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	jwtManager := auth.NewJWTManager(testSecret, "", time.Hour)

	eventPath, eventHandler := apiconnect.NewEventServiceHandler(
		NewEventService(reg),
		connect.WithInterceptors(middleware.RequireAuth(jwtManager,
			apiconnect.EventServiceCreateEventProcedure,
			apiconnect.EventServiceListHostEventsProcedure,
			apiconnect.EventServiceWhoAmIProcedure,
		)),
	)
	paymentPath, paymentHandler := apiconnect.NewPaymentServiceHandler(
		NewPaymentService(reg),
		connect.WithInterceptors(middleware.OptionalAuth(jwtManager), middleware.CallbackAuth(callbackSecret)),
	)

	mux := http.NewServeMux()
	mux.Handle(eventPath, eventHandler)
	mux.Handle(paymentPath, paymentHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{
		events:   apiconnect.NewEventServiceClient(server.Client(), server.URL),
		payments: apiconnect.NewPaymentServiceClient(server.Client(), server.URL),
		jwt:      jwtManager,
	}
}

func (e *testEnv) authed(t *testing.T, req connect.AnyRequest, p models.Principal) {
	t.Helper()
	token, err := e.jwt.Generate(p)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	req.Header().Set("Authorization", "Bearer "+token)
}

func (e *testEnv) createEvent(t *testing.T, price int64) *api.Event {
	t.Helper()
	req := connect.NewRequest(&api.CreateEventRequest{
		Title: "Wedding",
		Date:  "2026-08-15",
		Gifts: []api.GiftInput{{Name: "Fridge", Price: price}},
	})
	e.authed(t, req, models.Principal{ID: "host-1", Name: "Selam"})
	resp, err := e.events.CreateEvent(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return resp.Msg.Event
}

func (e *testEnv) initiate(t *testing.T, event *api.Event, amount int64) string {
	t.Helper()
	resp, err := e.payments.InitiatePayment(context.Background(), connect.NewRequest(&api.InitiatePaymentRequest{
		EventID: event.ID,
		GiftID:  event.Gifts[0].ID,
		Amount:  amount,
		Phone:   "0911000000",
	}))
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	return resp.Msg.TransactionID
}

func TestCreateEvent(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()

	t.Run("requires auth", func(t *testing.T) {
		_, err := env.events.CreateEvent(ctx, connect.NewRequest(&api.CreateEventRequest{
			Title: "Wedding", Date: "2026-08-15", Gifts: []api.GiftInput{{Name: "Fridge", Price: 100}},
		}))
		if connect.CodeOf(err) != connect.CodeUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("creates event for host", func(t *testing.T) {
		event := env.createEvent(t, 100)
		if event.ID == "" || event.HostID != "host-1" || event.HostName != "Selam" {
			t.Errorf("unexpected event: %+v", event)
		}
		if len(event.Gifts) != 1 || event.Gifts[0].Remaining != 100 {
			t.Errorf("unexpected gifts: %+v", event.Gifts)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		req := connect.NewRequest(&api.CreateEventRequest{Title: "No gifts", Date: "2026-08-15"})
		env.authed(t, req, models.Principal{ID: "host-1"})
		_, err := env.events.CreateEvent(ctx, req)
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})
}

func TestGetEvent(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	event := env.createEvent(t, 100)

	resp, err := env.events.GetEvent(ctx, connect.NewRequest(&api.GetEventRequest{EventID: event.ID}))
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if resp.Msg.Event.Title != "Wedding" {
		t.Errorf("Title = %q", resp.Msg.Event.Title)
	}

	_, err = env.events.GetEvent(ctx, connect.NewRequest(&api.GetEventRequest{EventID: "missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListHostEventsAndWhoAmI(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	env.createEvent(t, 100)
	env.createEvent(t, 200)

	req := connect.NewRequest(&api.ListHostEventsRequest{})
	env.authed(t, req, models.Principal{ID: "host-1"})
	resp, err := env.events.ListHostEvents(ctx, req)
	if err != nil {
		t.Fatalf("ListHostEvents failed: %v", err)
	}
	if len(resp.Msg.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(resp.Msg.Events))
	}

	_, err = env.events.ListHostEvents(ctx, connect.NewRequest(&api.ListHostEventsRequest{}))
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}

	who := connect.NewRequest(&api.WhoAmIRequest{})
	env.authed(t, who, models.Principal{ID: "host-1", Name: "Selam"})
	whoResp, err := env.events.WhoAmI(ctx, who)
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if whoResp.Msg.UserID != "host-1" || whoResp.Msg.Message != "Auth success!" {
		t.Errorf("unexpected WhoAmI response: %+v", whoResp.Msg)
	}
}

func TestPaymentFlow(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	event := env.createEvent(t, 100)

	first := env.initiate(t, event, 90)
	second := env.initiate(t, event, 40)

	resp, err := env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: first, Status: "SUCCESS"}))
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if resp.Msg.Applied != 90 {
		t.Errorf("Applied = %d, want 90", resp.Msg.Applied)
	}
	want := fmt.Sprintf("Transaction %s processed successfully. Gift updated: SUCCESS", first)
	if resp.Msg.Message != want {
		t.Errorf("Message = %q, want %q", resp.Msg.Message, want)
	}

	resp, err = env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: second, Status: "SUCCESS"}))
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if resp.Msg.Applied != 10 {
		t.Errorf("clamped Applied = %d, want 10", resp.Msg.Applied)
	}

	resp, err = env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: second, Status: "FAILED"}))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !resp.Msg.AlreadyProcessed || resp.Msg.Status != "SUCCESS" {
		t.Errorf("unexpected replay response: %+v", resp.Msg)
	}

	got, err := env.events.GetEvent(ctx, connect.NewRequest(&api.GetEventRequest{EventID: event.ID}))
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	gift := got.Msg.Event.Gifts[0]
	if gift.Collected != 100 || gift.Remaining != 0 || len(gift.Contributors) != 2 {
		t.Errorf("unexpected gift after settlement: %+v", gift)
	}
	if gift.Contributors[0].UserID != models.GuestUserID || gift.Contributors[0].Name != models.DefaultContributorName {
		t.Errorf("expected guest contributor, got %+v", gift.Contributors[0])
	}
}

func TestInitiatePaymentRecordsSignedInPayer(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	event := env.createEvent(t, 100)

	req := connect.NewRequest(&api.InitiatePaymentRequest{
		EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 20, Phone: "0911",
	})
	env.authed(t, req, models.Principal{ID: "payer-7", Name: "Hanna"})
	resp, err := env.payments.InitiatePayment(ctx, req)
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if resp.Msg.Message != api.InitiatedMessage {
		t.Errorf("Message = %q", resp.Msg.Message)
	}

	if _, err := env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{
		TransactionID: resp.Msg.TransactionID, Status: "SUCCESS",
	})); err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}

	got, _ := env.events.GetEvent(ctx, connect.NewRequest(&api.GetEventRequest{EventID: event.ID}))
	c := got.Msg.Event.Gifts[0].Contributors[0]
	if c.UserID != "payer-7" || c.Name != "Hanna" {
		t.Errorf("contributor = %+v, want payer-7/Hanna", c)
	}
}

func TestPaymentErrors(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	event := env.createEvent(t, 100)
	txID := env.initiate(t, event, 10)

	tests := []struct {
		name     string
		call     func() error
		wantCode connect.Code
	}{
		{
			name: "initiate without phone",
			call: func() error {
				_, err := env.payments.InitiatePayment(ctx, connect.NewRequest(&api.InitiatePaymentRequest{
					EventID: event.ID, GiftID: event.Gifts[0].ID, Amount: 10,
				}))
				return err
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "initiate for unknown gift",
			call: func() error {
				_, err := env.payments.InitiatePayment(ctx, connect.NewRequest(&api.InitiatePaymentRequest{
					EventID: event.ID, GiftID: "nope", Amount: 10, Phone: "0911",
				}))
				return err
			},
			wantCode: connect.CodeNotFound,
		},
		{
			name: "settle with bad status",
			call: func() error {
				_, err := env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: txID, Status: "DONE"}))
				return err
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "settle unknown transaction",
			call: func() error {
				_, err := env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: "nope", Status: "SUCCESS"}))
				return err
			},
			wantCode: connect.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); connect.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %v, want %v (err %v)", connect.CodeOf(err), tt.wantCode, err)
			}
		})
	}
}

func TestSettlePaymentRequiresSignatureWhenConfigured(t *testing.T) {
	env := setupTestServer(t, testCallbackSecret)
	ctx := context.Background()
	event := env.createEvent(t, 100)
	txID := env.initiate(t, event, 10)

	unsigned := connect.NewRequest(&api.SettlePaymentRequest{TransactionID: txID, Status: "SUCCESS"})
	if _, err := env.payments.SettlePayment(ctx, unsigned); connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	signed := connect.NewRequest(&api.SettlePaymentRequest{TransactionID: txID, Status: "SUCCESS"})
	signed.Header().Set(middleware.CallbackSignatureHeader, middleware.SignCallback(testCallbackSecret, txID, "SUCCESS"))
	if _, err := env.payments.SettlePayment(ctx, signed); err != nil {
		t.Fatalf("signed SettlePayment failed: %v", err)
	}
}

func TestConcurrentCallbacksCreditOnce(t *testing.T) {
	env := setupTestServer(t, "")
	ctx := context.Background()
	event := env.createEvent(t, 100)
	txID := env.initiate(t, event, 60)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int64
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.payments.SettlePayment(ctx, connect.NewRequest(&api.SettlePaymentRequest{TransactionID: txID, Status: "SUCCESS"}))
			if err != nil {
				t.Errorf("SettlePayment failed: %v", err)
				return
			}
			mu.Lock()
			applied += resp.Msg.Applied
			mu.Unlock()
		}()
	}
	wg.Wait()

	if applied != 60 {
		t.Errorf("total applied across callbacks = %d, want 60", applied)
	}
}
