package state

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "awela.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMessageLogAndRecall(t *testing.T) {
	db := openTestDB(t)

	for _, content := range []string{"hello", "do you have serum?", "thanks"} {
		if err := db.LogMessage("u1", "user", content, "cli"); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if err := db.LogMessage("u2", "user", "other user", "cli"); err != nil {
		t.Fatalf("log: %v", err)
	}

	msgs, err := db.RecentMessages("u1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Oldest first within the window.
	if msgs[0].Content != "do you have serum?" || msgs[1].Content != "thanks" {
		t.Errorf("unexpected window: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestDeleteUserData(t *testing.T) {
	db := openTestDB(t)
	if err := db.LogMessage("u1", "user", "hello", "cli"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMemory("u1", "prefers shea butter"); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteUserData("u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	msgs, err := db.RecentMessages("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after delete, got %d", len(msgs))
	}
	notes, err := db.RecallMemories("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("expected no memories after delete, got %d", len(notes))
	}
}

func TestOrderLifecycle(t *testing.T) {
	db := openTestDB(t)

	order := &Order{Reference: "AW-1234", UserID: "u1", AmountKobo: 1750000, Items: "5x ringlight"}
	if err := db.CreateOrder(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetOrder("AW-1234")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != OrderStatusPending {
		t.Fatalf("expected pending order, got %+v", got)
	}

	if err := db.UpdateOrderStatus("AW-1234", OrderStatusPaid); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = db.GetOrder("AW-1234")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != OrderStatusPaid {
		t.Errorf("expected paid, got %s", got.Status)
	}

	if err := db.UpdateOrderStatus("missing", OrderStatusPaid); err == nil {
		t.Error("expected error for unknown reference")
	}

	missing, err := db.GetOrder("missing")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for unknown order")
	}
}

func TestListOrders(t *testing.T) {
	db := openTestDB(t)
	for i, ref := range []string{"AW-1", "AW-2", "AW-3"} {
		o := &Order{Reference: ref, UserID: "u1", AmountKobo: int64(1000 * (i + 1))}
		if err := db.CreateOrder(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpdateOrderStatus("AW-2", OrderStatusPaid); err != nil {
		t.Fatal(err)
	}

	pending, err := db.ListOrdersByStatus(OrderStatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}

	byUser, err := db.ListOrdersByUser("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 3 {
		t.Errorf("expected 3 orders, got %d", len(byUser))
	}
}

func TestTicketLifecycle(t *testing.T) {
	db := openTestDB(t)

	ticket := &Ticket{ID: "tkt-1", UserID: "u1", Summary: "order arrived damaged"}
	if err := db.CreateTicket(ticket); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != TicketStatusOpen {
		t.Errorf("expected OPEN default, got %s", ticket.Status)
	}

	if err := db.UpdateTicketStatus("tkt-1", TicketStatusEscalated); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	got, err := db.GetTicket("tkt-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != TicketStatusEscalated {
		t.Errorf("expected ESCALATED, got %s", got.Status)
	}
}

func TestMemoryRecallOrder(t *testing.T) {
	db := openTestDB(t)
	for _, note := range []string{"bought serum", "prefers pickup", "asked about ringlights"} {
		if err := db.SaveMemory("u1", note); err != nil {
			t.Fatal(err)
		}
	}
	notes, err := db.RecallMemories("u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0] != "asked about ringlights" {
		t.Errorf("expected newest first, got %v", notes)
	}
}
