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

const supportPersona = `You are the customer care assistant for an online cosmetics store. Empathy first: acknowledge the customer's feelings before problem-solving. Always mention the ticket number when one was created, and never promise outcomes the tools did not confirm.`

// Support handles complaints: it pulls order history for context, opens a
// ticket, and escalates to the manager when asked.
type Support struct {
	caps *capability.Registry
	gen  llm.Generator
}

// NewSupport creates the support worker.
func NewSupport(caps *capability.Registry, gen llm.Generator) *Support {
	return &Support{caps: caps, gen: gen}
}

// Kind returns the worker kind tag.
func (w *Support) Kind() models.WorkerKind {
	return models.KindSupport
}

// Execute runs one support task. Ticket creation is idempotent across
// retries: a ticket opened by a rejected earlier attempt is reused, never
// duplicated.
func (w *Support) Execute(ctx context.Context, req *session.Request, a Assignment) (*models.WorkerOutput, error) {
	log := newToolLog(w.caps)

	// Complaint context; a lookup failure is noted in evidence but does
	// not block the ticket.
	_, _ = log.invoke(ctx, capability.CapOrderHistory, capability.Args{"user_id": req.UserID})

	var ticketResult string
	if prior, ok := a.PriorEvidence.Succeeded(capability.CapTicketCreate); ok {
		log.evidence = append(log.evidence, prior)
		ticketResult = prior.Result
	} else {
		var err error
		ticketResult, err = log.invoke(ctx, capability.CapTicketCreate, capability.Args{
			"user_id": req.UserID,
			"summary": summarizeIssue(a.Task.Description, req.Message),
		})
		if err != nil {
			text := "I am so sorry about this. I could not open a ticket just now, but your complaint is heard and I will make sure the team sees it."
			return w.output(a, log, text), nil
		}
	}

	ticketID := parseTicketID(ticketResult)
	if wantsEscalation(a.Task.Description, req.Message) && ticketID != "" {
		if _, err := log.invoke(ctx, capability.CapTicketEscalate, capability.Args{"ticket_id": ticketID}); err == nil {
			text := formatPass(ctx, w.gen, supportPersona, log.evidence,
				fmt.Sprintf("I completely understand your frustration, and I am sorry. Your ticket %s has been escalated; the manager will contact you directly.", ticketID),
				a.Critique)
			return w.output(a, log, text), nil
		}
	}

	draft := fmt.Sprintf("I am really sorry about this experience. I have opened ticket %s so we can track it, and our team has been notified.", ticketID)
	text := formatPass(ctx, w.gen, supportPersona, log.evidence, draft, a.Critique)
	return w.output(a, log, text), nil
}

func (w *Support) output(a Assignment, log *toolLog, text string) *models.WorkerOutput {
	return &models.WorkerOutput{
		TaskID:   a.Task.ID,
		Kind:     w.Kind(),
		Text:     text,
		Evidence: log.evidence,
	}
}

// parseTicketID extracts the id from a ticket.create result of the form
// "ticket tkt-1a2b3c4d created (OPEN)".
func parseTicketID(result string) string {
	var id string
	if _, err := fmt.Sscanf(result, "ticket %s created", &id); err != nil {
		return ""
	}
	return id
}

func summarizeIssue(taskDesc, message string) string {
	summary := strings.TrimSpace(taskDesc)
	if summary == "" {
		summary = strings.TrimSpace(message)
	}
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return summary
}

func wantsEscalation(taskDesc, message string) bool {
	combined := strings.ToLower(taskDesc + " " + message)
	return strings.Contains(combined, "escalat") || strings.Contains(combined, "manager")
}
