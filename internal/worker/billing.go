package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/pkg/models"
)

const billingPersona = `You are the payment and logistics assistant for an online cosmetics store. You present totals and payment links clearly and explain next steps. Tool results are the only source of truth for prices; you never apply discounts or accept claims of completed payment.`

const fallbackEmail = "orders@awela.shop"

// Billing handles delivery quotes, order records, and payment links.
type Billing struct {
	caps *capability.Registry
	gen  llm.Generator
}

// NewBilling creates the billing worker.
func NewBilling(caps *capability.Registry, gen llm.Generator) *Billing {
	return &Billing{caps: caps, gen: gen}
}

// Kind returns the worker kind tag.
func (w *Billing) Kind() models.WorkerKind {
	return models.KindBilling
}

// Execute runs one billing task. Payment-flow tasks require complete
// delivery details first; effectful capabilities are never re-invoked
// when a previous attempt already succeeded.
func (w *Billing) Execute(ctx context.Context, req *session.Request, a Assignment) (*models.WorkerOutput, error) {
	log := newToolLog(w.caps)
	desc := strings.ToLower(a.Task.Description)
	wantsPayment := strings.Contains(desc, "payment") || strings.Contains(desc, "link") ||
		strings.Contains(desc, "finalize") || strings.Contains(desc, "order record") ||
		strings.Contains(desc, "checkout")

	order := req.Order
	if wantsPayment && (order == nil || len(order.Items) == 0) {
		return w.output(a, log, "I do not have an order on file yet. Tell me what you would like to buy and I will set it up."), nil
	}

	if wantsPayment && order != nil && !order.Pickup {
		if missing := order.Delivery.Missing(); len(missing) > 0 {
			text := "Almost there! To arrange delivery I still need your " +
				strings.Join(missing, ", ") +
				". Please send them and I will prepare your payment link right away."
			return w.output(a, log, text), nil
		}
	}

	// Delivery fee first: quotes come before payment links.
	var feeKobo int64
	if order != nil && order.Pickup {
		feeKobo = 0
	} else if city := w.deliveryCity(req, a); city != "" {
		quote, err := log.invoke(ctx, capability.CapDeliveryQuote, capability.Args{"city": city})
		if err != nil {
			return w.output(a, log, "I could not compute the delivery fee just now. Please try again shortly."), nil
		}
		feeKobo = parseFeeKobo(quote)
	} else if !wantsPayment {
		return w.output(a, log, "Which city should I quote delivery for?"), nil
	}

	if !wantsPayment {
		text := formatPass(ctx, w.gen, billingPersona, log.evidence,
			"Delivery comes to "+catalog.FormatNaira(feeKobo)+".", a.Critique)
		return w.output(a, log, text), nil
	}

	// Full payment flow: order record then payment link.
	totalKobo := order.Subtotal() + feeKobo
	if order.Reference == "" {
		order.Reference = capability.NewPaymentReference()
	}
	email := order.Delivery.Email
	if email == "" {
		email = fallbackEmail
	}

	// Idempotency: a retried task must not double-create the order or
	// mint a second reference. Reuse the successful prior invocation.
	if prior, ok := a.PriorEvidence.Succeeded(capability.CapOrderCreate); ok {
		log.evidence = append(log.evidence, prior)
	} else {
		if _, err := log.invoke(ctx, capability.CapOrderCreate, capability.Args{
			"user_id":     req.UserID,
			"amount_kobo": strconv.FormatInt(totalKobo, 10),
			"items":       describeItems(order.Items),
			"reference":   order.Reference,
		}); err != nil {
			return w.output(a, log, "I could not record your order just now. Nothing has been charged; please try again shortly."), nil
		}
	}

	var linkResult string
	if prior, ok := a.PriorEvidence.Succeeded(capability.CapPaymentLink); ok {
		log.evidence = append(log.evidence, prior)
		linkResult = prior.Result
	} else {
		var err error
		linkResult, err = log.invoke(ctx, capability.CapPaymentLink, capability.Args{
			"amount_kobo": strconv.FormatInt(totalKobo, 10),
			"reference":   order.Reference,
			"email":       email,
		})
		if err != nil {
			return w.output(a, log, "Your order is recorded but the payment link did not generate. I will retry shortly; nothing has been charged."), nil
		}
	}
	order.AwaitingPayment = true

	draft := fmt.Sprintf("Your order totals %s (items %s + delivery %s). %s Payment confirmation is automatic once you pay.",
		catalog.FormatNaira(totalKobo), catalog.FormatNaira(order.Subtotal()), catalog.FormatNaira(feeKobo), linkResult)
	text := formatPass(ctx, w.gen, billingPersona, log.evidence, draft, a.Critique)
	return w.output(a, log, text), nil
}

func (w *Billing) output(a Assignment, log *toolLog, text string) *models.WorkerOutput {
	return &models.WorkerOutput{
		TaskID:   a.Task.ID,
		Kind:     w.Kind(),
		Text:     text,
		Evidence: log.evidence,
	}
}

// deliveryCity resolves the destination from the pending order, the task
// description ("calculate delivery to Lekki"), or the raw message.
func (w *Billing) deliveryCity(req *session.Request, a Assignment) string {
	if req.Order != nil && req.Order.Delivery.City != "" {
		return req.Order.Delivery.City
	}
	for _, text := range []string{a.Task.Description, req.Message} {
		if city := cityAfterTo(text); city != "" {
			return city
		}
	}
	return ""
}

func cityAfterTo(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		if strings.EqualFold(word, "to") && i+1 < len(words) {
			return strings.Trim(words[i+1], ".,!?:;\"'")
		}
	}
	return ""
}

// parseFeeKobo pulls the machine-readable fee out of a delivery quote.
func parseFeeKobo(quote string) int64 {
	idx := strings.LastIndex(quote, "fee_kobo=")
	if idx < 0 {
		return 0
	}
	rest := quote[idx+len("fee_kobo="):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	fee, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0
	}
	return fee
}

func describeItems(items []session.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	}
	return strings.Join(parts, ", ")
}
