package models

import "time"

const (
	// DefaultHostName is used when a host does not supply a display name.
	DefaultHostName = "Event Host"

	// DefaultGiftImageURL is shown for gifts created without an image.
	DefaultGiftImageURL = "https://placehold.co/400x200/52525B/FFFFFF?text=Gift+Image"
)

// Event is a hosted crowdfunding occasion with one or more target gifts.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string `bson:"_id"`

	// HostID is the identity-provider subject of the host who owns the event.
	HostID string `bson:"host_id"`

	// HostName is the display name shown to guests.
	HostName string `bson:"host_name"`

	// Title is the human-readable name of the occasion.
	Title string `bson:"title"`

	// Date is when the occasion takes place.
	Date time.Time `bson:"date"`

	// Gifts are the funding targets, in the order the host listed them.
	Gifts []Gift `bson:"gifts"`

	// Transactions are the payment attempts made against this event's gifts.
	// They are an operational detail and never leave the service in public views.
	Transactions []Transaction `bson:"transactions"`

	// Version increases by one on every successful write. Writers pass the version
	// they loaded so a concurrent write is detected instead of overwritten.
	Version int64 `bson:"version"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Gift returns a pointer to the gift with the given ID, or nil.
func (e *Event) Gift(id string) *Gift {
	for i := range e.Gifts {
		if e.Gifts[i].ID == id {
			return &e.Gifts[i]
		}
	}
	return nil
}

// Transaction returns a pointer to the transaction with the given ID, or nil.
func (e *Event) Transaction(id string) *Transaction {
	for i := range e.Transactions {
		if e.Transactions[i].ID == id {
			return &e.Transactions[i]
		}
	}
	return nil
}

// Clone returns a deep copy so pure functions can change it without touching the original.
func (e *Event) Clone() *Event {
	out := *e
	out.Gifts = make([]Gift, len(e.Gifts))
	for i, g := range e.Gifts {
		g.Contributions = append([]Contribution(nil), g.Contributions...)
		out.Gifts[i] = g
	}
	out.Transactions = append([]Transaction(nil), e.Transactions...)
	return &out
}

// Gift is a funding target inside an event.
type Gift struct {
	// ID is unique within the owning event (UUID format).
	ID string `bson:"_id"`

	// Name describes the gift (e.g., "Espresso machine").
	Name string `bson:"name"`

	// ImageURL points at a picture of the gift.
	ImageURL string `bson:"image_url"`

	// Price is the funding target. Always positive.
	Price int64 `bson:"price"`

	// Collected is the sum of all contribution amounts. 0 <= Collected <= Price.
	Collected int64 `bson:"collected"`

	// Contributions is the append-only ledger of funds applied to this gift.
	Contributions []Contribution `bson:"contributions"`
}

// Remaining is how much is still needed to fully fund the gift. Never negative.
func (g *Gift) Remaining() int64 {
	if r := g.Price - g.Collected; r > 0 {
		return r
	}
	return 0
}

// Funded reports whether the gift has reached its target.
func (g *Gift) Funded() bool {
	return g.Collected >= g.Price
}

// Contribution is an immutable record of funds applied to a gift.
type Contribution struct {
	ID string `bson:"_id"`

	// UserID is the contributor's identity, or GuestUserID for anonymous guests.
	UserID string `bson:"user_id"`

	// Name is the contributor's display name.
	Name string `bson:"name"`

	// Amount is what was applied to the gift, after clamping. Always positive.
	Amount int64 `bson:"amount"`

	// Phone is the mobile-money number that paid.
	Phone string `bson:"phone"`

	// TransactionID links the entry back to the payment that produced it.
	TransactionID string `bson:"transaction_id"`

	Date time.Time `bson:"date"`
}
