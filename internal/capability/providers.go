package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/state"
)

// Capability names used across the pipeline. Workers invoke these through
// the registry and reviewers match evidence against them.
const (
	CapCatalogSearch  = "catalog.search"
	CapCatalogStock   = "catalog.stock"
	CapDeliveryQuote  = "delivery.quote"
	CapPaymentLink    = "payment.link"
	CapOrderCreate    = "order.create"
	CapOrderHistory   = "order.history"
	CapTicketCreate   = "ticket.create"
	CapTicketEscalate = "ticket.escalate"
	CapMemoryRecall   = "memory.recall"
	CapMemorySave     = "memory.save"
	CapApprovalList   = "approval.list"
	CapApprovalDecide = "approval.decide"
	CapSalesReport    = "report.sales"
)

// Deps carries everything the built-in providers need.
type Deps struct {
	Catalog *catalog.Catalog
	Store   state.Store
	// PaymentBaseURL is the checkout URL prefix, reference appended.
	PaymentBaseURL string
	// DeliveryZones maps lowercase city names to fees in kobo.
	DeliveryZones map[string]int64
	// DefaultDeliveryKobo is the fee for cities not in the zone table.
	DefaultDeliveryKobo int64
}

// DefaultZones returns the standard delivery fee table in kobo.
func DefaultZones() map[string]int64 {
	return map[string]int64{
		"ibadan":        100000,
		"lagos":         150000,
		"lekki":         150000,
		"ikeja":         150000,
		"abuja":         250000,
		"port harcourt": 250000,
	}
}

// NewBuiltinRegistry registers the full provider set.
func NewBuiltinRegistry(deps Deps) (*Registry, error) {
	if deps.PaymentBaseURL == "" {
		deps.PaymentBaseURL = "https://pay.awela.shop/"
	}
	if deps.DeliveryZones == nil {
		deps.DeliveryZones = DefaultZones()
	}
	if deps.DefaultDeliveryKobo == 0 {
		deps.DefaultDeliveryKobo = 350000
	}

	r := NewRegistry()
	providers := map[string]Provider{
		CapCatalogSearch:  ProviderFunc(deps.catalogSearch),
		CapCatalogStock:   ProviderFunc(deps.catalogStock),
		CapDeliveryQuote:  ProviderFunc(deps.deliveryQuote),
		CapPaymentLink:    ProviderFunc(deps.paymentLink),
		CapOrderCreate:    ProviderFunc(deps.orderCreate),
		CapOrderHistory:   ProviderFunc(deps.orderHistory),
		CapTicketCreate:   ProviderFunc(deps.ticketCreate),
		CapTicketEscalate: ProviderFunc(deps.ticketEscalate),
		CapMemoryRecall:   ProviderFunc(deps.memoryRecall),
		CapMemorySave:     ProviderFunc(deps.memorySave),
		CapApprovalList:   ProviderFunc(deps.approvalList),
		CapApprovalDecide: ProviderFunc(deps.approvalDecide),
		CapSalesReport:    ProviderFunc(deps.salesReport),
	}
	for name, p := range providers {
		if err := r.Register(name, p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (d Deps) catalogSearch(ctx context.Context, args Args) (string, error) {
	query := strings.TrimSpace(args["query"])
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	matches := d.Catalog.Search(query)
	if len(matches) == 0 {
		return "no products matched " + strconv.Quote(query), nil
	}
	if len(matches) > 5 {
		matches = matches[:5]
	}
	var sb strings.Builder
	for _, p := range matches {
		fmt.Fprintf(&sb, "%s (%s) price=%s stock=%d", p.Name, p.Brand, p.PriceNaira(), p.Stock)
		if p.Description != "" {
			fmt.Fprintf(&sb, " - %s", p.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d Deps) catalogStock(ctx context.Context, args Args) (string, error) {
	name := strings.TrimSpace(args["product"])
	if name == "" {
		return "", fmt.Errorf("product is required")
	}
	p, ok := d.Catalog.Lookup(name)
	if !ok {
		matches := d.Catalog.Search(name)
		if len(matches) == 0 {
			return "", fmt.Errorf("product %q not in catalog", name)
		}
		p = matches[0]
	}
	if p.Stock == 0 {
		return fmt.Sprintf("%s is OUT OF STOCK (price %s)", p.Name, p.PriceNaira()), nil
	}
	return fmt.Sprintf("%s: %d in stock at %s each", p.Name, p.Stock, p.PriceNaira()), nil
}

func (d Deps) deliveryQuote(ctx context.Context, args Args) (string, error) {
	city := strings.ToLower(strings.TrimSpace(args["city"]))
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	fee, ok := d.DeliveryZones[city]
	if !ok {
		fee = d.DefaultDeliveryKobo
	}
	return fmt.Sprintf("delivery to %s: %s (fee_kobo=%d)", city, catalog.FormatNaira(fee), fee), nil
}

func (d Deps) paymentLink(ctx context.Context, args Args) (string, error) {
	amount, err := strconv.ParseInt(args["amount_kobo"], 10, 64)
	if err != nil || amount <= 0 {
		return "", fmt.Errorf("amount_kobo must be a positive integer")
	}
	reference := args["reference"]
	if reference == "" {
		reference = NewPaymentReference()
	}
	return fmt.Sprintf("payment link ready: %s%s amount=%s reference=%s",
		d.PaymentBaseURL, reference, catalog.FormatNaira(amount), reference), nil
}

func (d Deps) orderCreate(ctx context.Context, args Args) (string, error) {
	amount, err := strconv.ParseInt(args["amount_kobo"], 10, 64)
	if err != nil || amount <= 0 {
		return "", fmt.Errorf("amount_kobo must be a positive integer")
	}
	userID := args["user_id"]
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	reference := args["reference"]
	if reference == "" {
		reference = NewPaymentReference()
	}
	order := &state.Order{
		Reference:  reference,
		UserID:     userID,
		AmountKobo: amount,
		Items:      args["items"],
	}
	if err := d.Store.CreateOrder(order); err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s recorded: %s (%s)", reference, catalog.FormatNaira(amount), order.Status), nil
}

func (d Deps) orderHistory(ctx context.Context, args Args) (string, error) {
	userID := args["user_id"]
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	orders, err := d.Store.ListOrdersByUser(userID, 5)
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return "no previous orders for this customer", nil
	}
	var sb strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&sb, "order %s: %s (%s)\n", o.Reference, catalog.FormatNaira(o.AmountKobo), o.Status)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d Deps) ticketCreate(ctx context.Context, args Args) (string, error) {
	userID := args["user_id"]
	summary := strings.TrimSpace(args["summary"])
	if userID == "" || summary == "" {
		return "", fmt.Errorf("user_id and summary are required")
	}
	ticket := &state.Ticket{
		ID:      "tkt-" + uuid.New().String()[:8],
		UserID:  userID,
		Summary: summary,
	}
	if err := d.Store.CreateTicket(ticket); err != nil {
		return "", err
	}
	return fmt.Sprintf("ticket %s created (%s)", ticket.ID, ticket.Status), nil
}

func (d Deps) ticketEscalate(ctx context.Context, args Args) (string, error) {
	id := args["ticket_id"]
	if id == "" {
		return "", fmt.Errorf("ticket_id is required")
	}
	if err := d.Store.UpdateTicketStatus(id, state.TicketStatusEscalated); err != nil {
		return "", err
	}
	return fmt.Sprintf("ticket %s escalated to manager", id), nil
}

func (d Deps) memoryRecall(ctx context.Context, args Args) (string, error) {
	userID := args["user_id"]
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	notes, err := d.Store.RecallMemories(userID, 5)
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "no saved notes for this customer", nil
	}
	return strings.Join(notes, "; "), nil
}

func (d Deps) memorySave(ctx context.Context, args Args) (string, error) {
	userID := args["user_id"]
	note := strings.TrimSpace(args["note"])
	if userID == "" || note == "" {
		return "", fmt.Errorf("user_id and note are required")
	}
	if err := d.Store.SaveMemory(userID, note); err != nil {
		return "", err
	}
	return "noted", nil
}

func (d Deps) approvalList(ctx context.Context, args Args) (string, error) {
	orders, err := d.Store.ListOrdersByStatus(state.OrderStatusPending)
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return "no orders pending approval", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d order(s) pending approval:\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(&sb, "order %s: %s for %s\n", o.Reference, catalog.FormatNaira(o.AmountKobo), o.UserID)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d Deps) approvalDecide(ctx context.Context, args Args) (string, error) {
	reference := args["reference"]
	decision := strings.ToLower(args["decision"])
	if reference == "" {
		return "", fmt.Errorf("reference is required")
	}
	var status string
	switch decision {
	case "approve":
		status = state.OrderStatusApproved
	case "reject":
		status = state.OrderStatusRejected
	default:
		return "", fmt.Errorf("decision must be approve or reject")
	}
	if err := d.Store.UpdateOrderStatus(reference, status); err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s %s", reference, status), nil
}

func (d Deps) salesReport(ctx context.Context, args Args) (string, error) {
	paid, err := d.Store.ListOrdersByStatus(state.OrderStatusPaid)
	if err != nil {
		return "", err
	}
	pending, err := d.Store.ListOrdersByStatus(state.OrderStatusPending)
	if err != nil {
		return "", err
	}
	var total int64
	for _, o := range paid {
		total += o.AmountKobo
	}
	return fmt.Sprintf("sales report: %d paid orders totaling %s, %d awaiting payment or approval",
		len(paid), catalog.FormatNaira(total), len(pending)), nil
}

// NewPaymentReference mints a fresh order/payment reference.
func NewPaymentReference() string {
	return "AW-" + strings.ToUpper(uuid.New().String()[:8])
}
