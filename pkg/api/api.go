// Package api defines the request and response messages of the ubupresent.v1 services.
//
// Messages are plain structs encoded as JSON on the wire. Field names follow the web
// client (camelCase). Amounts are integers in minor currency units.
package api

import "time"

// Event is the public view of an event. It never carries transactions.
type Event struct {
	ID        string    `json:"id"`
	HostID    string    `json:"hostId"`
	HostName  string    `json:"hostName"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Gifts     []Gift    `json:"gifts"`
	CreatedAt time.Time `json:"createdAt"`
}

type Gift struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	Price     int64  `json:"price"`
	Collected int64  `json:"collected"`
	// Remaining is price minus collected, never negative.
	Remaining    int64         `json:"remaining"`
	Funded       bool          `json:"funded"`
	Contributors []Contributor `json:"contributors"`
}

type Contributor struct {
	UserID string    `json:"userId"`
	Name   string    `json:"name"`
	Amount int64     `json:"amount"`
	Phone  string    `json:"phone,omitempty"`
	Date   time.Time `json:"date"`
}

type GiftInput struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type CreateEventRequest struct {
	HostName string      `json:"hostName,omitempty"`
	Title    string      `json:"title"`
	Date     string      `json:"date"`
	Gifts    []GiftInput `json:"gifts"`
}

type CreateEventResponse struct {
	Event *Event `json:"event"`
}

type GetEventRequest struct {
	EventID string `json:"eventId"`
}

type GetEventResponse struct {
	Event *Event `json:"event"`
}

type ListHostEventsRequest struct{}

type ListHostEventsResponse struct {
	Events []*Event `json:"events"`
}

type WhoAmIRequest struct{}

type WhoAmIResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Name    string `json:"name,omitempty"`
}

type InitiatePaymentRequest struct {
	EventID         string `json:"eventId"`
	GiftID          string `json:"giftId"`
	Amount          int64  `json:"amount"`
	Phone           string `json:"phone"`
	ContributorName string `json:"contributorName,omitempty"`
}

type InitiatePaymentResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
}

// SettlePaymentRequest is the payment notifier's terminal status for a transaction.
// The same body is accepted by the REST callback.
type SettlePaymentRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type SettlePaymentResponse struct {
	Message          string `json:"message"`
	Status           string `json:"status"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	Applied          int64  `json:"applied"`
}

// ErrorResponse is the body of non-2xx REST responses.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
