// Package models defines the core domain models for UbuPresent.
//
// # Aggregate
//
// An Event is the unit of persistence. Everything else lives inside it:
//   - Event: a hosted occasion owned by one host
//   - Gift: a funding target with a price and the amount collected so far
//   - Contribution: an append-only ledger entry of funds applied to a gift
//   - Transaction: one payment attempt, PENDING until settled exactly once
//
// Gifts and transactions are never loaded or written on their own; callers load the
// Event, change it, and write it back as a whole with the version they loaded.
//
// # Money
//
// Amounts are int64 counts of the smallest currency unit. Clamping a contribution to a
// gift's remaining need must be exact, so floats are not used anywhere in the ledger.
//
// # Identity
//
// Hosts are identified by a Principal taken from a verified token. Guests who contribute
// are not required to sign in; their contributions carry GuestUserID instead.
package models
