// Package store persists tickets and notifies observers of changes. The
// scheduler consumes only the Store interface; the file-backed
// implementation below is one of several possible backends.
package store

import (
	"errors"

	"github.com/xXKillerNoobYT/ticketd/internal/model"
)

// ErrVersionConflict is returned by UpdateTicketCAS when the ticket's
// current version no longer matches the caller's snapshot. This is an
// expected race, not a failure: the caller re-reads and retries.
var ErrVersionConflict = errors.New("ticket version conflict")

// CreateFields collects the inputs for a new ticket. Zero-value fields
// get defaults: a generated ID, status open, and now timestamps.
type CreateFields struct {
	ID          string
	Title       string
	Description string
	Status      model.Status
	Type        string
	Priority    int
}

// Store is the persistence contract the scheduler depends on.
//
// UpdateTicket and UpdateTicketCAS return (nil, nil) when no ticket has
// the given id; an error only signals an I/O-level failure.
type Store interface {
	ListTickets() ([]model.Ticket, error)
	GetTicket(id string) (*model.Ticket, error)
	CreateTicket(fields CreateFields) (model.Ticket, error)
	UpdateTicket(id string, patch model.TicketPatch) (*model.Ticket, error)

	// UpdateTicketCAS applies the patch only if the ticket's version
	// equals the supplied snapshot, as a single atomic operation. It is
	// the sole correctness guarantee behind task pick-up.
	UpdateTicketCAS(id string, version int64, patch model.TicketPatch) (*model.Ticket, error)

	// OnChange registers a listener fired after any successful create or
	// update, including external edits to the backing file. No payload is
	// guaranteed beyond "something changed". Returns an unsubscribe func.
	OnChange(fn func()) func()

	Close() error
}
