// Package model defines the data structures for ticketd's tickets and configuration.
package model

// TypeAIToHuman marks tickets that need a human decision before any agent
// may work on them. When auto-routing is disabled these are parked in
// pending status until a human promotes them back to open.
const TypeAIToHuman = "ai_to_human"

// Ticket is a persisted unit of work. The store owns the record; the
// scheduler only ever holds snapshots of it.
type Ticket struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Status      Status `yaml:"status" json:"status"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Priority    int    `yaml:"priority" json:"priority"`
	CreatedAt   string `yaml:"created_at" json:"created_at"`
	UpdatedAt   string `yaml:"updated_at" json:"updated_at"`

	// Version is incremented by the store on every successful update.
	// Conditional updates (pick) are keyed on it.
	Version int64 `yaml:"version" json:"version"`
}

// TicketPatch carries the fields of a partial update. Nil fields are
// left untouched.
type TicketPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Type        *string `json:"type,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// StatusPatch is a convenience for the most common partial update.
func StatusPatch(s Status) TicketPatch {
	return TicketPatch{Status: &s}
}
