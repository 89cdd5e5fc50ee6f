// Package session holds the per-request context object threaded through
// every pipeline stage. There is no module-level mutable state; everything
// a stage needs to know about the conversation travels on the Request.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one prior exchange in the conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	// Text is the message content.
	Text string
}

// OrderItem is one line of a pending order.
type OrderItem struct {
	Name     string
	UnitKobo int64
	Quantity int
}

// DeliveryDetails are the fields billing needs before a payment link can
// be generated.
type DeliveryDetails struct {
	Name    string
	Phone   string
	Address string
	City    string
	Email   string
}

// Missing returns the names of required fields that are still empty.
// Email is optional; a fallback address is used when absent.
func (d DeliveryDetails) Missing() []string {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(d.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(d.City) == "" {
		missing = append(missing, "city")
	}
	return missing
}

// PendingOrder tracks an order that has been assembled but not yet paid.
// A later "confirm purchase" request re-enters the pipeline through the
// planner's billing fast path using this state.
type PendingOrder struct {
	Items     []OrderItem
	Delivery  DeliveryDetails
	Pickup    bool
	Reference string
	// AwaitingPayment is true once a payment link has been issued.
	AwaitingPayment bool
}

// Subtotal returns the item total in kobo, excluding delivery.
func (o *PendingOrder) Subtotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.UnitKobo * int64(item.Quantity)
	}
	return total
}

// Request is the context object for one inbound message. It is created by
// the channel adapter, owned by the pipeline for the lifetime of the
// request, and discarded afterwards.
type Request struct {
	// ID uniquely identifies this request for logging and evidence scoping.
	ID string
	// UserID identifies the shopper across requests.
	UserID string
	// Channel names the inbound transport, e.g. "whatsapp" or "cli".
	Channel string
	// Message is the raw inbound text.
	Message string
	// History holds the most recent conversation turns, oldest first.
	History []Turn
	// Order is the pending order carried across requests, nil if none.
	Order *PendingOrder
	// Admin is true when the sender is a verified manager number.
	Admin bool
	// Deadline bounds the whole request; zero means no overall deadline.
	Deadline time.Time
}

// New creates a request with a fresh id.
func New(userID, channel, message string) *Request {
	return &Request{
		ID:      uuid.New().String()[:8],
		UserID:  userID,
		Channel: channel,
		Message: message,
	}
}

// RecentHistory returns up to n of the latest turns, oldest first.
func (r *Request) RecentHistory(n int) []Turn {
	if len(r.History) <= n {
		return r.History
	}
	return r.History[len(r.History)-n:]
}

// HistoryBlock renders recent turns for inclusion in a prompt.
func (r *Request) HistoryBlock(n int) string {
	turns := r.RecentHistory(n)
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
