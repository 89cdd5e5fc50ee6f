// Package state provides SQLite-backed persistence for Awela.
package state

import "io"

// MessageStore handles conversation-log persistence.
type MessageStore interface {
	LogMessage(userID, role, content, channel string) error
	RecentMessages(userID string, limit int) ([]Message, error)
	DeleteUserData(userID string) error
}

// OrderStore handles order-record persistence.
type OrderStore interface {
	CreateOrder(o *Order) error
	GetOrder(reference string) (*Order, error)
	UpdateOrderStatus(reference, status string) error
	ListOrdersByUser(userID string, limit int) ([]Order, error)
	ListOrdersByStatus(status string) ([]Order, error)
}

// TicketStore handles support-ticket persistence.
type TicketStore interface {
	CreateTicket(t *Ticket) error
	GetTicket(id string) (*Ticket, error)
	UpdateTicketStatus(id, status string) error
}

// MemoryStore handles customer memory notes.
type MemoryStore interface {
	SaveMemory(userID, note string) error
	RecallMemories(userID string, limit int) ([]string, error)
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence contract the pipeline depends on. It
// composes focused sub-interfaces so components can depend on just the
// slice they need.
type Store interface {
	io.Closer
	Migrator
	MessageStore
	OrderStore
	TicketStore
	MemoryStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ MessageStore = (*DB)(nil)
	_ OrderStore   = (*DB)(nil)
	_ TicketStore  = (*DB)(nil)
	_ MemoryStore  = (*DB)(nil)
)
