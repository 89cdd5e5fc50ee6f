package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Order status values. Webhook confirmation moves pending → paid; the
// approval flow moves pending → approved or rejected before payment.
const (
	OrderStatusPending  = "pending"
	OrderStatusApproved = "approved"
	OrderStatusRejected = "rejected"
	OrderStatusPaid     = "paid"
)

// Ticket status values.
const (
	TicketStatusOpen      = "OPEN"
	TicketStatusEscalated = "ESCALATED"
	TicketStatusResolved  = "RESOLVED"
)

// Message is one logged conversation turn.
type Message struct {
	ID        int64
	UserID    string
	Role      string
	Content   string
	Channel   string
	CreatedAt time.Time
}

// Order is a durable order record keyed by payment reference.
type Order struct {
	Reference  string
	UserID     string
	AmountKobo int64
	Items      string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Ticket is a support incident record.
type Ticket struct {
	ID        string
	UserID    string
	Summary   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LogMessage appends one conversation turn.
func (db *DB) LogMessage(userID, role, content, channel string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		"INSERT INTO messages (user_id, role, content, channel, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, role, content, channel, now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit turns for a user, oldest first.
func (db *DB) RecentMessages(userID string, limit int) ([]Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(
		`SELECT id, user_id, role, content, channel, created_at
		 FROM (SELECT * FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Channel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteUserData removes a user's messages and memories. Orders are kept
// for accounting; only conversational data is purged.
func (db *DB) DeleteUserData(userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec("DELETE FROM messages WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := db.conn.Exec("DELETE FROM memories WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// CreateOrder inserts a new order record.
func (db *DB) CreateOrder(o *Order) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts := now().UTC()
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	o.CreatedAt = ts
	o.UpdatedAt = ts
	_, err := db.conn.Exec(
		"INSERT INTO orders (reference, user_id, amount_kobo, items, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		o.Reference, o.UserID, o.AmountKobo, o.Items, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.Reference, err)
	}
	return nil
}

// GetOrder fetches an order by payment reference.
func (db *DB) GetOrder(reference string) (*Order, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var o Order
	err := db.conn.QueryRow(
		"SELECT reference, user_id, amount_kobo, items, status, created_at, updated_at FROM orders WHERE reference = ?",
		reference,
	).Scan(&o.Reference, &o.UserID, &o.AmountKobo, &o.Items, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", reference, err)
	}
	return &o, nil
}

// UpdateOrderStatus transitions an order record.
func (db *DB) UpdateOrderStatus(reference, status string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(
		"UPDATE orders SET status = ?, updated_at = ? WHERE reference = ?",
		status, now().UTC(), reference,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", reference, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("order %s not found", reference)
	}
	return nil
}

// ListOrdersByUser returns a user's most recent orders, newest first.
func (db *DB) ListOrdersByUser(userID string, limit int) ([]Order, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.queryOrders(
		"SELECT reference, user_id, amount_kobo, items, status, created_at, updated_at FROM orders WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
}

// ListOrdersByStatus returns all orders with the given status, oldest first.
func (db *DB) ListOrdersByStatus(status string) ([]Order, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.queryOrders(
		"SELECT reference, user_id, amount_kobo, items, status, created_at, updated_at FROM orders WHERE status = ? ORDER BY created_at ASC",
		status,
	)
}

func (db *DB) queryOrders(query string, args ...any) ([]Order, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.Reference, &o.UserID, &o.AmountKobo, &o.Items, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateTicket inserts a new support ticket.
func (db *DB) CreateTicket(t *Ticket) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts := now().UTC()
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	t.CreatedAt = ts
	t.UpdatedAt = ts
	_, err := db.conn.Exec(
		"INSERT INTO tickets (id, user_id, summary, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.UserID, t.Summary, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create ticket %s: %w", t.ID, err)
	}
	return nil
}

// GetTicket fetches a ticket by id.
func (db *DB) GetTicket(id string) (*Ticket, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var t Ticket
	err := db.conn.QueryRow(
		"SELECT id, user_id, summary, status, created_at, updated_at FROM tickets WHERE id = ?",
		id,
	).Scan(&t.ID, &t.UserID, &t.Summary, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return &t, nil
}

// UpdateTicketStatus transitions a ticket.
func (db *DB) UpdateTicketStatus(id, status string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(
		"UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?",
		status, now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %s not found", id)
	}
	return nil
}

// SaveMemory appends a customer preference note.
func (db *DB) SaveMemory(userID, note string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		"INSERT INTO memories (user_id, note, created_at) VALUES (?, ?, ?)",
		userID, note, now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// RecallMemories returns a user's most recent notes, newest first.
func (db *DB) RecallMemories(userID string, limit int) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(
		"SELECT note FROM memories WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
