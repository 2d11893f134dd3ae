package api

import (
	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/settlement"
)

// EventFromModel projects an event for callers. Transactions are dropped.
func EventFromModel(e *models.Event) *Event {
	if e == nil {
		return nil
	}
	out := &Event{
		ID:        e.ID,
		HostID:    e.HostID,
		HostName:  e.HostName,
		Title:     e.Title,
		Date:      e.Date,
		Gifts:     make([]Gift, len(e.Gifts)),
		CreatedAt: e.CreatedAt,
	}
	for i := range e.Gifts {
		g := &e.Gifts[i]
		gift := Gift{
			ID:           g.ID,
			Name:         g.Name,
			ImageURL:     g.ImageURL,
			Price:        g.Price,
			Collected:    g.Collected,
			Remaining:    g.Remaining(),
			Funded:       g.Funded(),
			Contributors: make([]Contributor, len(g.Contributions)),
		}
		for j, c := range g.Contributions {
			gift.Contributors[j] = Contributor{
				UserID: c.UserID,
				Name:   c.Name,
				Amount: c.Amount,
				Phone:  c.Phone,
				Date:   c.Date,
			}
		}
		out.Gifts[i] = gift
	}
	return out
}

// SettleResponseFromOutcome builds the confirmation for a settlement call.
func SettleResponseFromOutcome(o settlement.Outcome) *SettlePaymentResponse {
	return &SettlePaymentResponse{
		Message:          o.Message(),
		Status:           string(o.Status),
		AlreadyProcessed: o.AlreadyProcessed,
		Applied:          o.Applied,
	}
}

// InitiatedMessage is returned to the payer after a successful initiation.
const InitiatedMessage = "Payment initiation successful. Check your mobile for the prompt."
