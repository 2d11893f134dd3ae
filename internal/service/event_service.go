package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/pkg/api"
	"github.com/mmynk/ubupresent/pkg/api/apiconnect"
)

// EventService implements the Connect EventService
type EventService struct {
	apiconnect.UnimplementedEventServiceHandler
	registry *registry.Registry
}

// NewEventService creates a new EventService backed by the given registry.
func NewEventService(r *registry.Registry) *EventService {
	return &EventService{registry: r}
}

// CreateEvent creates an event owned by the authenticated host.
func (s *EventService) CreateEvent(ctx context.Context, req *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error) {
	host := middleware.PrincipalFromContext(ctx)
	slog.Info("CreateEvent request received",
		"host_id", host.ID,
		"title", req.Msg.Title,
		"gifts_count", len(req.Msg.Gifts),
	)

	in := registry.CreateEventRequest{
		HostName: req.Msg.HostName,
		Title:    req.Msg.Title,
		Date:     req.Msg.Date,
		Gifts:    make([]registry.NewGift, len(req.Msg.Gifts)),
	}
	for i, g := range req.Msg.Gifts {
		in.Gifts[i] = registry.NewGift{Name: g.Name, Price: g.Price, ImageURL: g.ImageURL}
	}

	event, err := s.registry.CreateEvent(ctx, host, in)
	if err != nil {
		slog.Error("CreateEvent failed", "host_id", host.ID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.CreateEventResponse{Event: api.EventFromModel(event)}), nil
}

// GetEvent returns the public view of an event.
func (s *EventService) GetEvent(ctx context.Context, req *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error) {
	slog.Info("GetEvent request received", "event_id", req.Msg.EventID)

	event, err := s.registry.GetEvent(ctx, req.Msg.EventID)
	if err != nil {
		slog.Error("GetEvent failed", "event_id", req.Msg.EventID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("GetEvent successful", "event_id", event.ID, "title", event.Title)

	return connect.NewResponse(&api.GetEventResponse{Event: api.EventFromModel(event)}), nil
}

// ListHostEvents returns the authenticated host's events.
func (s *EventService) ListHostEvents(ctx context.Context, req *connect.Request[api.ListHostEventsRequest]) (*connect.Response[api.ListHostEventsResponse], error) {
	host := middleware.PrincipalFromContext(ctx)
	slog.Info("ListHostEvents request received", "host_id", host.ID)

	events, err := s.registry.ListHostEvents(ctx, host)
	if err != nil {
		slog.Error("ListHostEvents failed", "host_id", host.ID, "error", err)
		return nil, connectError(err)
	}

	out := make([]*api.Event, len(events))
	for i, e := range events {
		out[i] = api.EventFromModel(e)
	}

	slog.Info("ListHostEvents successful", "host_id", host.ID, "count", len(out))

	return connect.NewResponse(&api.ListHostEventsResponse{Events: out}), nil
}

// WhoAmI echoes the authenticated identity.
func (s *EventService) WhoAmI(ctx context.Context, req *connect.Request[api.WhoAmIRequest]) (*connect.Response[api.WhoAmIResponse], error) {
	p := middleware.PrincipalFromContext(ctx)
	if p.Anonymous() {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return connect.NewResponse(&api.WhoAmIResponse{
		Message: "Auth success!",
		UserID:  p.ID,
		Name:    p.Name,
	}), nil
}
