package model

import "fmt"

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusPending    Status = "pending"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusRemoved    Status = "removed"
)

var validStatuses = map[Status]bool{
	StatusOpen:       true,
	StatusInProgress: true,
	StatusPending:    true,
	StatusBlocked:    true,
	StatusDone:       true,
	StatusRemoved:    true,
}

var terminalStatuses = map[Status]bool{
	StatusDone:    true,
	StatusRemoved: true,
}

// Ticket lifecycle: open ↔ in-progress, open ↔ pending (manual gate),
// anything non-terminal may be blocked or closed out.
var validTicketTransitions = map[Status]map[Status]bool{
	StatusOpen: {
		StatusInProgress: true,
		StatusPending:    true,
		StatusBlocked:    true,
		StatusDone:       true,
		StatusRemoved:    true,
	},
	StatusInProgress: {
		StatusOpen:    true, // abandoned pick → back to open
		StatusBlocked: true,
		StatusDone:    true,
		StatusRemoved: true,
	},
	StatusPending: {
		StatusOpen:    true, // human promotion
		StatusRemoved: true,
	},
	StatusBlocked: {
		StatusOpen:    true,
		StatusDone:    true,
		StatusRemoved: true,
	},
}

func (s Status) Valid() bool {
	return validStatuses[s]
}

// Schedulable reports whether a ticket in this status belongs in the
// scheduler's working set.
func (s Status) Schedulable() bool {
	return s == StatusOpen || s == StatusInProgress
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// ValidateTransition checks a status change against the ticket lifecycle.
// The store logs (but does not reject) violations, since the backing file
// is independently mutable and external edits do not follow the lifecycle.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validTicketTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid ticket transition: %q → %q", from, to)
	}
	return nil
}
