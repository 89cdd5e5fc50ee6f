package worker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/internal/state"
	"github.com/awela-ai/awela/pkg/models"
)

// testCaps builds a real capability registry over a temp SQLite store and
// an in-memory catalog.
func testCaps(t *testing.T) (*capability.Registry, state.Store) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "awela.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	caps, err := capability.NewBuiltinRegistry(capability.Deps{
		Catalog: catalog.FromProducts([]catalog.Product{
			{Name: "Ring Light 12in", Brand: "GlowPro", PriceKobo: 1000000, Stock: 8, Keywords: []string{"ringlight"}},
			{Name: "Shea Body Butter", Brand: "Ashandy", PriceKobo: 450000, Stock: 20, Keywords: []string{"cream"}},
		}),
		Store: db,
	})
	if err != nil {
		t.Fatal(err)
	}
	return caps, db
}

// exhausted returns a generator with no scripted responses, which makes
// formatPass fall back to the deterministic draft.
func exhausted() *llm.Script {
	return llm.NewScript()
}

func TestCommerceProducesEvidenceBackedOutput(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewCommerce(caps, exhausted())
	req := session.New("u1", "cli", "do you have ring lights?")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "step1", Kind: models.KindCommerce, Description: "Confirm stock for the ring light"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.Text, "Ring Light 12in") {
		t.Errorf("expected product in output, got %q", out.Text)
	}
	var sawSearch bool
	for _, inv := range out.Evidence {
		if inv.Capability == capability.CapCatalogSearch && inv.OK() {
			sawSearch = true
		}
	}
	if !sawSearch {
		t.Error("expected successful catalog.search in evidence")
	}
}

func TestCommerceOutOfCatalogApology(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewCommerce(caps, exhausted())
	req := session.New("u1", "cli", "do you sell televisions?")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindCommerce, Description: "Find televisions"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(strings.ToLower(out.Text), "sorry") {
		t.Errorf("expected apologetic redirect, got %q", out.Text)
	}
	// The miss itself is still evidence.
	if len(out.Evidence) == 0 {
		t.Error("expected evidence even on a catalog miss")
	}
}

func TestCommerceChecksStockWhenAsked(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewCommerce(caps, exhausted())
	req := session.New("u1", "cli", "how many ring lights do you have in stock?")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindCommerce, Description: "Check stock for the ring light"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	stock, ok := out.Evidence.Succeeded(capability.CapCatalogStock)
	if !ok {
		t.Fatal("expected catalog.stock evidence")
	}
	if !strings.Contains(stock.Result, "8 in stock") {
		t.Errorf("expected quantity in stock result, got %q", stock.Result)
	}
	if !strings.Contains(out.Text, "in stock") {
		t.Errorf("expected quantity in output, got %q", out.Text)
	}
}

func TestCommerceSavesStatedPreference(t *testing.T) {
	caps, db := testCaps(t)
	w := NewCommerce(caps, exhausted())
	req := session.New("u1", "cli", "I prefer matte finishes. Do you have a cream?")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindCommerce, Description: "Find a cream for the customer"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := out.Evidence.Succeeded(capability.CapMemorySave); !ok {
		t.Fatal("expected memory.save evidence")
	}
	notes, err := db.RecallMemories("u1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || !strings.Contains(notes[0], "matte") {
		t.Errorf("expected saved preference note, got %v", notes)
	}
}

func TestBillingRequestsMissingDeliveryDetails(t *testing.T) {
	caps, db := testCaps(t)
	w := NewBilling(caps, exhausted())
	req := session.New("u1", "cli", "send me the payment link")
	req.Order = &session.PendingOrder{
		Items:    []session.OrderItem{{Name: "Ring Light 12in", UnitKobo: 1000000, Quantity: 1}},
		Delivery: session.DeliveryDetails{Name: "Bola"},
	}

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindBilling, Description: "Generate payment link"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, field := range []string{"phone", "address", "city"} {
		if !strings.Contains(out.Text, field) {
			t.Errorf("expected missing field %q named in %q", field, out.Text)
		}
	}
	// No effectful capability may run before details are complete.
	orders, err := db.ListOrdersByUser("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no order records, got %d", len(orders))
	}
}

func TestBillingFullPaymentFlow(t *testing.T) {
	caps, db := testCaps(t)
	w := NewBilling(caps, exhausted())
	req := session.New("u1", "cli", "confirm purchase")
	req.Order = &session.PendingOrder{
		Items: []session.OrderItem{{Name: "Ring Light 12in", UnitKobo: 1000000, Quantity: 1}},
		Delivery: session.DeliveryDetails{
			Name: "Bola", Phone: "0801", Address: "4 Marina Rd", City: "Lekki",
		},
	}

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "confirm", Kind: models.KindBilling, Description: "Finalize the pending order and issue the payment link"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Item 10,000 + Lekki delivery 1,500.
	if !strings.Contains(out.Text, "₦11,500") {
		t.Errorf("expected total ₦11,500 in output, got %q", out.Text)
	}
	if req.Order.Reference == "" || !req.Order.AwaitingPayment {
		t.Errorf("order state not updated: %+v", req.Order)
	}

	stored, err := db.GetOrder(req.Order.Reference)
	if err != nil || stored == nil {
		t.Fatalf("order record missing: %v", err)
	}
	if stored.AmountKobo != 1150000 {
		t.Errorf("expected 1150000 kobo, got %d", stored.AmountKobo)
	}

	for _, cap := range []string{capability.CapDeliveryQuote, capability.CapOrderCreate, capability.CapPaymentLink} {
		if _, ok := out.Evidence.Succeeded(cap); !ok {
			t.Errorf("expected %s in evidence", cap)
		}
	}
}

func TestBillingRetryDoesNotDoubleCreateOrder(t *testing.T) {
	caps, db := testCaps(t)
	w := NewBilling(caps, exhausted())
	req := session.New("u1", "cli", "confirm purchase")
	req.Order = &session.PendingOrder{
		Items: []session.OrderItem{{Name: "Shea Body Butter", UnitKobo: 450000, Quantity: 2}},
		Delivery: session.DeliveryDetails{
			Name: "Bola", Phone: "0801", Address: "4 Marina Rd", City: "Ibadan",
		},
	}
	task := &models.Task{ID: "confirm", Kind: models.KindBilling, Description: "Finalize the order and issue payment link"}

	first, err := w.Execute(context.Background(), req, Assignment{Task: task, Attempt: 1})
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	reference := req.Order.Reference

	// Retry with the first attempt's evidence attached. Re-invoking
	// order.create with the same reference would violate the primary key,
	// so a successful retry proves the prior effect was reused.
	second, err := w.Execute(context.Background(), req, Assignment{
		Task:          task,
		Attempt:       2,
		Critique:      "state the delivery fee explicitly",
		PriorEvidence: first.Evidence,
	})
	if err != nil {
		t.Fatalf("retry attempt: %v", err)
	}
	if req.Order.Reference != reference {
		t.Errorf("reference changed across retry: %s -> %s", reference, req.Order.Reference)
	}
	if _, ok := second.Evidence.Succeeded(capability.CapPaymentLink); !ok {
		t.Error("expected payment link evidence carried into retry")
	}

	orders, err := db.ListOrdersByUser("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Errorf("expected exactly one order record, got %d", len(orders))
	}
}

func TestOperationsApprovesPendingOrder(t *testing.T) {
	caps, db := testCaps(t)
	if err := db.CreateOrder(&state.Order{Reference: "AW-BIG1", UserID: "u1", AmountKobo: 5000000}); err != nil {
		t.Fatal(err)
	}
	w := NewOperations(caps, exhausted())
	req := session.New("manager", "cli", "approve the big order")
	req.Admin = true
	req.Order = &session.PendingOrder{Reference: "AW-BIG1"}

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindOperations, Description: "Request approval for the 50k order"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.Text, "approved") {
		t.Errorf("expected approval in output, got %q", out.Text)
	}
	stored, err := db.GetOrder("AW-BIG1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != state.OrderStatusApproved {
		t.Errorf("expected approved status, got %s", stored.Status)
	}
}

func TestOperationsApprovalRequiresAdmin(t *testing.T) {
	caps, db := testCaps(t)
	if err := db.CreateOrder(&state.Order{Reference: "AW-BIG2", UserID: "u1", AmountKobo: 6000000}); err != nil {
		t.Fatal(err)
	}
	w := NewOperations(caps, exhausted())
	req := session.New("u1", "cli", "approve my order")
	req.Order = &session.PendingOrder{Reference: "AW-BIG2"}

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindOperations, Description: "Approve the order"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.Text, "verified manager") {
		t.Errorf("expected manager-only notice, got %q", out.Text)
	}
	stored, err := db.GetOrder("AW-BIG2")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != state.OrderStatusPending {
		t.Errorf("non-admin must not change order status, got %s", stored.Status)
	}
}

func TestOperationsApprovesOrderFromBillingEvidence(t *testing.T) {
	caps, db := testCaps(t)
	if err := db.CreateOrder(&state.Order{Reference: "AW-C0FFEE", UserID: "u1", AmountKobo: 7500000}); err != nil {
		t.Fatal(err)
	}
	w := NewOperations(caps, exhausted())
	req := session.New("manager", "cli", "confirm purchase")
	req.Admin = true

	out, err := w.Execute(context.Background(), req, Assignment{
		Task: &models.Task{
			ID:          "approval",
			Kind:        models.KindOperations,
			Description: "Approve the newly recorded high-value order.",
			DependsOn:   []string{"confirm"},
		},
		Attempt: 1,
		PriorOutputs: map[string]*models.WorkerOutput{
			"confirm": {
				TaskID: "confirm",
				Kind:   models.KindBilling,
				Text:   "Order recorded, payment link below.",
				Evidence: models.ToolEvidence{{
					Capability: capability.CapOrderCreate,
					Result:     "order AW-C0FFEE recorded: ₦75,000 (pending)",
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.Text, "approved") {
		t.Errorf("expected approval in output, got %q", out.Text)
	}
	stored, err := db.GetOrder("AW-C0FFEE")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != state.OrderStatusApproved {
		t.Errorf("expected approved status, got %s", stored.Status)
	}
}

func TestOperationsSalesReport(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewOperations(caps, exhausted())
	req := session.New("manager", "cli", "how are sales?")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindOperations, Description: "Generate the sales report"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.Text, "sales report") {
		t.Errorf("expected report in output, got %q", out.Text)
	}
}

func TestSupportOpensTicketOnce(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewSupport(caps, exhausted())
	req := session.New("u1", "cli", "my order arrived broken!")
	task := &models.Task{ID: "s1", Kind: models.KindSupport, Description: "Handle complaint about damaged order"}

	first, err := w.Execute(context.Background(), req, Assignment{Task: task, Attempt: 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(first.Text, "tkt-") {
		t.Errorf("expected ticket id in output, got %q", first.Text)
	}
	created, ok := first.Evidence.Succeeded(capability.CapTicketCreate)
	if !ok {
		t.Fatal("expected ticket.create evidence")
	}

	// Retried attempt reuses the existing ticket.
	second, err := w.Execute(context.Background(), req, Assignment{
		Task:          task,
		Attempt:       2,
		PriorEvidence: first.Evidence,
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	reused, ok := second.Evidence.Succeeded(capability.CapTicketCreate)
	if !ok {
		t.Fatal("expected carried ticket.create evidence")
	}
	if reused.Result != created.Result {
		t.Errorf("ticket duplicated on retry: %q vs %q", reused.Result, created.Result)
	}
}

func TestSupportEscalatesToManager(t *testing.T) {
	caps, _ := testCaps(t)
	w := NewSupport(caps, exhausted())
	req := session.New("u1", "cli", "this is unacceptable, I want the manager")

	out, err := w.Execute(context.Background(), req, Assignment{
		Task:    &models.Task{ID: "s1", Kind: models.KindSupport, Description: "Escalate complaint to manager"},
		Attempt: 1,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := out.Evidence.Succeeded(capability.CapTicketEscalate); !ok {
		t.Error("expected ticket.escalate evidence")
	}
	if !strings.Contains(strings.ToLower(out.Text), "escalated") {
		t.Errorf("expected escalation confirmation, got %q", out.Text)
	}
}

func TestRegistryClosedDispatch(t *testing.T) {
	caps, _ := testCaps(t)
	gen := exhausted()
	reg, err := NewDefaultRegistry(caps, gen)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, kind := range models.AllKinds() {
		w, err := reg.Get(kind)
		if err != nil {
			t.Errorf("missing worker for %s: %v", kind, err)
			continue
		}
		if w.Kind() != kind {
			t.Errorf("worker kind mismatch: %s vs %s", w.Kind(), kind)
		}
	}
	if _, err := reg.Get(models.WorkerKind("warehouse")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSearchQueryStripsPlannerNoise(t *testing.T) {
	got := searchQuery("Confirm stock for 5 ringlights", "")
	if got != "5 ringlights" {
		t.Errorf("got %q", got)
	}
	if got := searchQuery("", "fallback message"); got != "fallback message" {
		t.Errorf("fallback failed: %q", got)
	}
}

func TestCityAfterTo(t *testing.T) {
	if got := cityAfterTo("Calculate delivery to Lekki."); got != "Lekki" {
		t.Errorf("got %q", got)
	}
	if got := cityAfterTo("no destination here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestParseFeeKobo(t *testing.T) {
	if got := parseFeeKobo("delivery to lekki: ₦1,500 (fee_kobo=150000)"); got != 150000 {
		t.Errorf("got %d", got)
	}
	if got := parseFeeKobo("garbage"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
