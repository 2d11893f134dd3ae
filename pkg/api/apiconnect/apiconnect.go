// Package apiconnect wires the ubupresent.v1 services into Connect clients and handlers.
package apiconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/pkg/api"
)

const (
	// EventServiceName is the fully-qualified name of the EventService service.
	EventServiceName = "ubupresent.v1.EventService"
	// PaymentServiceName is the fully-qualified name of the PaymentService service.
	PaymentServiceName = "ubupresent.v1.PaymentService"
)

// Procedure paths, as they appear in the request URL.
const (
	EventServiceCreateEventProcedure       = "/ubupresent.v1.EventService/CreateEvent"
	EventServiceGetEventProcedure          = "/ubupresent.v1.EventService/GetEvent"
	EventServiceListHostEventsProcedure    = "/ubupresent.v1.EventService/ListHostEvents"
	EventServiceWhoAmIProcedure            = "/ubupresent.v1.EventService/WhoAmI"
	PaymentServiceInitiatePaymentProcedure = "/ubupresent.v1.PaymentService/InitiatePayment"
	PaymentServiceSettlePaymentProcedure   = "/ubupresent.v1.PaymentService/SettlePayment"
)

// EventServiceClient is a client for the ubupresent.v1.EventService service.
type EventServiceClient interface {
	CreateEvent(context.Context, *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error)
	GetEvent(context.Context, *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error)
	ListHostEvents(context.Context, *connect.Request[api.ListHostEventsRequest]) (*connect.Response[api.ListHostEventsResponse], error)
	WhoAmI(context.Context, *connect.Request[api.WhoAmIRequest]) (*connect.Response[api.WhoAmIResponse], error)
}

// NewEventServiceClient constructs a client for the ubupresent.v1.EventService service.
// baseURL is the server's scheme and host, e.g. http://localhost:3001.
func NewEventServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) EventServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &eventServiceClient{
		createEvent: connect.NewClient[api.CreateEventRequest, api.CreateEventResponse](
			httpClient, baseURL+EventServiceCreateEventProcedure, opts...),
		getEvent: connect.NewClient[api.GetEventRequest, api.GetEventResponse](
			httpClient, baseURL+EventServiceGetEventProcedure, opts...),
		listHostEvents: connect.NewClient[api.ListHostEventsRequest, api.ListHostEventsResponse](
			httpClient, baseURL+EventServiceListHostEventsProcedure, opts...),
		whoAmI: connect.NewClient[api.WhoAmIRequest, api.WhoAmIResponse](
			httpClient, baseURL+EventServiceWhoAmIProcedure, opts...),
	}
}

type eventServiceClient struct {
	createEvent    *connect.Client[api.CreateEventRequest, api.CreateEventResponse]
	getEvent       *connect.Client[api.GetEventRequest, api.GetEventResponse]
	listHostEvents *connect.Client[api.ListHostEventsRequest, api.ListHostEventsResponse]
	whoAmI         *connect.Client[api.WhoAmIRequest, api.WhoAmIResponse]
}

func (c *eventServiceClient) CreateEvent(ctx context.Context, req *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error) {
	return c.createEvent.CallUnary(ctx, req)
}

func (c *eventServiceClient) GetEvent(ctx context.Context, req *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error) {
	return c.getEvent.CallUnary(ctx, req)
}

func (c *eventServiceClient) ListHostEvents(ctx context.Context, req *connect.Request[api.ListHostEventsRequest]) (*connect.Response[api.ListHostEventsResponse], error) {
	return c.listHostEvents.CallUnary(ctx, req)
}

func (c *eventServiceClient) WhoAmI(ctx context.Context, req *connect.Request[api.WhoAmIRequest]) (*connect.Response[api.WhoAmIResponse], error) {
	return c.whoAmI.CallUnary(ctx, req)
}

// EventServiceHandler is an implementation of the ubupresent.v1.EventService service.
type EventServiceHandler interface {
	CreateEvent(context.Context, *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error)
	GetEvent(context.Context, *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error)
	ListHostEvents(context.Context, *connect.Request[api.ListHostEventsRequest]) (*connect.Response[api.ListHostEventsResponse], error)
	WhoAmI(context.Context, *connect.Request[api.WhoAmIRequest]) (*connect.Response[api.WhoAmIResponse], error)
}

// NewEventServiceHandler builds an HTTP handler from the service implementation. It
// returns the path on which to mount the handler and the handler itself.
func NewEventServiceHandler(svc EventServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	createEvent := connect.NewUnaryHandler(EventServiceCreateEventProcedure, svc.CreateEvent, opts...)
	getEvent := connect.NewUnaryHandler(EventServiceGetEventProcedure, svc.GetEvent, opts...)
	listHostEvents := connect.NewUnaryHandler(EventServiceListHostEventsProcedure, svc.ListHostEvents, opts...)
	whoAmI := connect.NewUnaryHandler(EventServiceWhoAmIProcedure, svc.WhoAmI, opts...)
	return "/" + EventServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EventServiceCreateEventProcedure:
			createEvent.ServeHTTP(w, r)
		case EventServiceGetEventProcedure:
			getEvent.ServeHTTP(w, r)
		case EventServiceListHostEventsProcedure:
			listHostEvents.ServeHTTP(w, r)
		case EventServiceWhoAmIProcedure:
			whoAmI.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedEventServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedEventServiceHandler struct{}

func (UnimplementedEventServiceHandler) CreateEvent(context.Context, *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.EventService.CreateEvent is not implemented"))
}

func (UnimplementedEventServiceHandler) GetEvent(context.Context, *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.EventService.GetEvent is not implemented"))
}

func (UnimplementedEventServiceHandler) ListHostEvents(context.Context, *connect.Request[api.ListHostEventsRequest]) (*connect.Response[api.ListHostEventsResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.EventService.ListHostEvents is not implemented"))
}

func (UnimplementedEventServiceHandler) WhoAmI(context.Context, *connect.Request[api.WhoAmIRequest]) (*connect.Response[api.WhoAmIResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.EventService.WhoAmI is not implemented"))
}

// PaymentServiceClient is a client for the ubupresent.v1.PaymentService service.
type PaymentServiceClient interface {
	InitiatePayment(context.Context, *connect.Request[api.InitiatePaymentRequest]) (*connect.Response[api.InitiatePaymentResponse], error)
	SettlePayment(context.Context, *connect.Request[api.SettlePaymentRequest]) (*connect.Response[api.SettlePaymentResponse], error)
}

// NewPaymentServiceClient constructs a client for the ubupresent.v1.PaymentService service.
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) PaymentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &paymentServiceClient{
		initiatePayment: connect.NewClient[api.InitiatePaymentRequest, api.InitiatePaymentResponse](
			httpClient, baseURL+PaymentServiceInitiatePaymentProcedure, opts...),
		settlePayment: connect.NewClient[api.SettlePaymentRequest, api.SettlePaymentResponse](
			httpClient, baseURL+PaymentServiceSettlePaymentProcedure, opts...),
	}
}

type paymentServiceClient struct {
	initiatePayment *connect.Client[api.InitiatePaymentRequest, api.InitiatePaymentResponse]
	settlePayment   *connect.Client[api.SettlePaymentRequest, api.SettlePaymentResponse]
}

func (c *paymentServiceClient) InitiatePayment(ctx context.Context, req *connect.Request[api.InitiatePaymentRequest]) (*connect.Response[api.InitiatePaymentResponse], error) {
	return c.initiatePayment.CallUnary(ctx, req)
}

func (c *paymentServiceClient) SettlePayment(ctx context.Context, req *connect.Request[api.SettlePaymentRequest]) (*connect.Response[api.SettlePaymentResponse], error) {
	return c.settlePayment.CallUnary(ctx, req)
}

// PaymentServiceHandler is an implementation of the ubupresent.v1.PaymentService service.
type PaymentServiceHandler interface {
	InitiatePayment(context.Context, *connect.Request[api.InitiatePaymentRequest]) (*connect.Response[api.InitiatePaymentResponse], error)
	SettlePayment(context.Context, *connect.Request[api.SettlePaymentRequest]) (*connect.Response[api.SettlePaymentResponse], error)
}

// NewPaymentServiceHandler builds an HTTP handler from the service implementation.
func NewPaymentServiceHandler(svc PaymentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	initiatePayment := connect.NewUnaryHandler(PaymentServiceInitiatePaymentProcedure, svc.InitiatePayment, opts...)
	settlePayment := connect.NewUnaryHandler(PaymentServiceSettlePaymentProcedure, svc.SettlePayment, opts...)
	return "/" + PaymentServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PaymentServiceInitiatePaymentProcedure:
			initiatePayment.ServeHTTP(w, r)
		case PaymentServiceSettlePaymentProcedure:
			settlePayment.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedPaymentServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedPaymentServiceHandler struct{}

func (UnimplementedPaymentServiceHandler) InitiatePayment(context.Context, *connect.Request[api.InitiatePaymentRequest]) (*connect.Response[api.InitiatePaymentResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.PaymentService.InitiatePayment is not implemented"))
}

func (UnimplementedPaymentServiceHandler) SettlePayment(context.Context, *connect.Request[api.SettlePaymentRequest]) (*connect.Response[api.SettlePaymentResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("ubupresent.v1.PaymentService.SettlePayment is not implemented"))
}
