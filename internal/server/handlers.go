package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/ubupresent/internal/errs"
	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/internal/settlement"
	"github.com/mmynk/ubupresent/pkg/api"
)

type handlers struct {
	registry       *registry.Registry
	callbackSecret string
	logger         *slog.Logger
}

// statusOf maps an error kind to an HTTP status.
func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindAuth:
		return http.StatusUnauthorized
	case errs.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, op string, err error) {
	kind := errs.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
	} else {
		h.logger.Warn(op+" rejected", "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, api.ErrorResponse{Message: errs.DetailOf(err), Code: string(kind)})
}

func (h *handlers) protected(c *gin.Context) {
	p := middleware.PrincipalFromContext(c.Request.Context())
	c.JSON(http.StatusOK, api.WhoAmIResponse{Message: "Auth success!", UserID: p.ID, Name: p.Name})
}

func (h *handlers) createEvent(c *gin.Context) {
	var body api.CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, "CreateEvent", errs.Validation("invalid request body: %v", err))
		return
	}

	req := registry.CreateEventRequest{
		HostName: body.HostName,
		Title:    body.Title,
		Date:     body.Date,
		Gifts:    make([]registry.NewGift, len(body.Gifts)),
	}
	for i, g := range body.Gifts {
		req.Gifts[i] = registry.NewGift{Name: g.Name, Price: g.Price, ImageURL: g.ImageURL}
	}

	event, err := h.registry.CreateEvent(c.Request.Context(), middleware.PrincipalFromContext(c.Request.Context()), req)
	if err != nil {
		h.fail(c, "CreateEvent", err)
		return
	}
	c.JSON(http.StatusCreated, api.EventFromModel(event))
}

func (h *handlers) listHostEvents(c *gin.Context) {
	events, err := h.registry.ListHostEvents(c.Request.Context(), middleware.PrincipalFromContext(c.Request.Context()))
	if err != nil {
		h.fail(c, "ListHostEvents", err)
		return
	}
	out := make([]*api.Event, len(events))
	for i, e := range events {
		out[i] = api.EventFromModel(e)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getEvent(c *gin.Context) {
	event, err := h.registry.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetEvent", err)
		return
	}
	c.JSON(http.StatusOK, api.EventFromModel(event))
}

func (h *handlers) initiatePayment(c *gin.Context) {
	var body api.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, "InitiatePayment", errs.Validation("missing required payment details"))
		return
	}

	payer := middleware.PrincipalFromContext(c.Request.Context())
	name := strings.TrimSpace(body.ContributorName)
	if name == "" {
		name = payer.Name
	}

	tx, err := h.registry.InitiatePayment(c.Request.Context(), settlement.InitiateRequest{
		EventID:         body.EventID,
		GiftID:          body.GiftID,
		Amount:          body.Amount,
		Phone:           body.Phone,
		ContributorName: name,
		ContributorID:   payer.ID,
	})
	if err != nil {
		h.fail(c, "InitiatePayment", err)
		return
	}
	c.JSON(http.StatusOK, api.InitiatePaymentResponse{
		Message:       api.InitiatedMessage,
		TransactionID: tx.ID,
	})
}

// paymentCallback is the notifier's webhook. Redelivery is expected and answered with
// 200 and the original status.
func (h *handlers) paymentCallback(c *gin.Context) {
	var body api.SettlePaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, "PaymentCallback", errs.Validation("invalid callback data"))
		return
	}
	if !middleware.VerifyCallback(h.callbackSecret, body.TransactionID, body.Status, c.GetHeader(middleware.CallbackSignatureHeader)) {
		h.fail(c, "PaymentCallback", errs.Auth("%v", middleware.ErrBadSignature))
		return
	}

	outcome, err := h.registry.SettlePayment(c.Request.Context(), body.TransactionID, body.Status)
	if err != nil {
		h.fail(c, "PaymentCallback", err)
		return
	}
	c.JSON(http.StatusOK, api.SettleResponseFromOutcome(outcome))
}
