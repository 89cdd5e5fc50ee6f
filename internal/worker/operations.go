package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/pkg/models"
)

const operationsPersona = `You are the operations assistant for an online cosmetics store, reporting to the manager. You are concise and factual: approvals, rejections, and figures exactly as the tools report them.`

// Operations handles manager-facing work: approvals for high-value orders
// and sales reporting. Its output is reviewed in trust mode.
type Operations struct {
	caps *capability.Registry
	gen  llm.Generator
}

// NewOperations creates the operations worker.
func NewOperations(caps *capability.Registry, gen llm.Generator) *Operations {
	return &Operations{caps: caps, gen: gen}
}

// Kind returns the worker kind tag.
func (w *Operations) Kind() models.WorkerKind {
	return models.KindOperations
}

// Execute runs one operations task, chosen by the task description:
// reporting, or listing and deciding pending approvals.
func (w *Operations) Execute(ctx context.Context, req *session.Request, a Assignment) (*models.WorkerOutput, error) {
	log := newToolLog(w.caps)
	desc := strings.ToLower(a.Task.Description)

	var text string
	switch {
	case strings.Contains(desc, "report"):
		report, err := log.invoke(ctx, capability.CapSalesReport, nil)
		if err != nil {
			text = "The sales report is unavailable right now."
		} else {
			text = formatPass(ctx, w.gen, operationsPersona, log.evidence, report, a.Critique)
		}

	case strings.Contains(desc, "approv") || strings.Contains(desc, "reject"):
		listing, err := log.invoke(ctx, capability.CapApprovalList, nil)
		if err != nil {
			text = "I could not fetch the pending approvals just now."
			break
		}
		reference := w.orderReference(req, a, desc)
		if reference == "" || strings.HasPrefix(listing, "no orders") {
			text = formatPass(ctx, w.gen, operationsPersona, log.evidence, listing, a.Critique)
			break
		}
		if !req.Admin {
			text = fmt.Sprintf("Order %s stays pending: approvals are recorded only for the verified manager. The manager can confirm it from their registered line.", reference)
			break
		}
		decision := "approve"
		if strings.Contains(desc, "reject") {
			decision = "reject"
		}
		outcome, err := log.invoke(ctx, capability.CapApprovalDecide, capability.Args{
			"reference": reference,
			"decision":  decision,
		})
		if err != nil {
			text = "The approval decision could not be recorded: " + err.Error()
		} else {
			text = formatPass(ctx, w.gen, operationsPersona, log.evidence, outcome, a.Critique)
		}

	default:
		// Administrative chat with nothing to execute; trust mode accepts
		// a plain acknowledgement.
		text = "Noted. Let me know if you need the sales report or the pending approvals."
	}

	return &models.WorkerOutput{
		TaskID:   a.Task.ID,
		Kind:     w.Kind(),
		Text:     text,
		Evidence: log.evidence,
	}, nil
}

// orderReference picks the order under discussion: an explicit AW-
// reference in the task beats one recorded by an upstream billing step,
// which beats the pending order on the session.
func (w *Operations) orderReference(req *session.Request, a Assignment, desc string) string {
	for _, word := range strings.Fields(desc) {
		word = strings.Trim(word, ".,!?:;\"'")
		if strings.HasPrefix(strings.ToUpper(word), "AW-") {
			return strings.ToUpper(word)
		}
	}
	for _, out := range a.PriorOutputs {
		if ev, ok := out.Evidence.Succeeded(capability.CapOrderCreate); ok {
			var ref string
			if _, err := fmt.Sscanf(ev.Result, "order %s recorded", &ref); err == nil {
				return ref
			}
		}
	}
	if req.Order != nil && req.Order.Reference != "" {
		return req.Order.Reference
	}
	return ""
}
