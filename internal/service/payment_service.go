package service

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/internal/settlement"
	"github.com/mmynk/ubupresent/pkg/api"
	"github.com/mmynk/ubupresent/pkg/api/apiconnect"
)

// PaymentService implements the Connect PaymentService
type PaymentService struct {
	apiconnect.UnimplementedPaymentServiceHandler
	registry *registry.Registry
}

// NewPaymentService creates a new PaymentService backed by the given registry.
func NewPaymentService(r *registry.Registry) *PaymentService {
	return &PaymentService{registry: r}
}

// InitiatePayment records a pending contribution. Guests may call it without a token.
func (s *PaymentService) InitiatePayment(ctx context.Context, req *connect.Request[api.InitiatePaymentRequest]) (*connect.Response[api.InitiatePaymentResponse], error) {
	payer := middleware.PrincipalFromContext(ctx)
	slog.Info("InitiatePayment request received",
		"event_id", req.Msg.EventID,
		"gift_id", req.Msg.GiftID,
		"amount", req.Msg.Amount,
		"payer_id", payer.ID,
	)

	name := strings.TrimSpace(req.Msg.ContributorName)
	if name == "" {
		name = payer.Name
	}

	tx, err := s.registry.InitiatePayment(ctx, settlement.InitiateRequest{
		EventID:         req.Msg.EventID,
		GiftID:          req.Msg.GiftID,
		Amount:          req.Msg.Amount,
		Phone:           req.Msg.Phone,
		ContributorName: name,
		ContributorID:   payer.ID,
	})
	if err != nil {
		slog.Error("InitiatePayment failed", "event_id", req.Msg.EventID, "gift_id", req.Msg.GiftID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.InitiatePaymentResponse{
		Message:       api.InitiatedMessage,
		TransactionID: tx.ID,
	}), nil
}

// SettlePayment applies the notifier's terminal status. Replays are answered with the
// original status and change nothing.
func (s *PaymentService) SettlePayment(ctx context.Context, req *connect.Request[api.SettlePaymentRequest]) (*connect.Response[api.SettlePaymentResponse], error) {
	slog.Info("SettlePayment request received",
		"transaction_id", req.Msg.TransactionID,
		"status", req.Msg.Status,
	)

	outcome, err := s.registry.SettlePayment(ctx, req.Msg.TransactionID, req.Msg.Status)
	if err != nil {
		slog.Error("SettlePayment failed", "transaction_id", req.Msg.TransactionID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(api.SettleResponseFromOutcome(outcome)), nil
}
