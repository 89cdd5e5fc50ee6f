// Package review validates worker outputs against their tool evidence
// before anything reaches the user. Every claim a reply makes must trace
// back to a recorded capability result; how strictly that is enforced
// depends on the worker kind.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/pkg/models"
)

// Mode sets how strictly a worker kind's output is audited.
type Mode string

const (
	// ModeStrict rejects any numeric or factual claim without evidence.
	ModeStrict Mode = "strict"
	// ModeModerate verifies payment and delivery claims only.
	ModeModerate Mode = "moderate"
	// ModeTrust runs structural checks and nothing else.
	ModeTrust Mode = "trust"
	// ModeEmpathy checks tone and ticket references.
	ModeEmpathy Mode = "empathy"
)

// ModeFor returns the review mode applied to a worker kind.
func ModeFor(kind models.WorkerKind) Mode {
	switch kind {
	case models.KindCommerce:
		return ModeStrict
	case models.KindBilling:
		return ModeModerate
	case models.KindOperations:
		return ModeTrust
	case models.KindSupport:
		return ModeEmpathy
	default:
		return ModeStrict
	}
}

// Request is one output submitted for review.
type Request struct {
	Task     *models.Task
	Kind     models.WorkerKind
	Output   *models.WorkerOutput
	Evidence models.ToolEvidence
	Attempt  int
}

// Reviewer audits worker outputs. Structural checks are deterministic;
// the generator is consulted afterwards for a semantic claim audit, and
// a malformed generator verdict falls back to the structural result.
type Reviewer struct {
	gen llm.Generator
}

// New creates a reviewer backed by the given generator. A nil generator
// disables the semantic audit and leaves only the structural checks.
func New(gen llm.Generator) *Reviewer {
	return &Reviewer{gen: gen}
}

// Review returns a verdict for one worker output.
func (r *Reviewer) Review(ctx context.Context, req Request) models.ReviewVerdict {
	text := strings.TrimSpace(req.Output.Text)
	if text == "" {
		return models.Reject("the reply is empty; produce a short message the customer can act on")
	}
	if leaksInternals(text) {
		return models.Reject("the reply leaks raw JSON or a stack trace; rewrite it as plain conversational text")
	}

	structural := r.modeCheck(req, text)
	if !structural.Approved {
		return structural
	}
	return r.semanticAudit(ctx, req, structural)
}

func (r *Reviewer) modeCheck(req Request, text string) models.ReviewVerdict {
	needsEvidence := req.Task == nil || req.Task.RequiresEvidence
	if !needsEvidence || exemptWithoutEvidence(text) {
		// Greetings, redirects, and detail requests stand on their own.
		if len(req.Evidence) == 0 {
			return models.Approve()
		}
	}

	switch ModeFor(req.Kind) {
	case ModeStrict:
		return strictCheck(req, text)
	case ModeModerate:
		return moderateCheck(req, text)
	case ModeEmpathy:
		return empathyCheck(req, text)
	default:
		return models.Approve()
	}
}

// exemptWithoutEvidence reports whether the reply is one of the shapes
// that stand on their own: greetings, out-of-catalog redirects, requests
// for missing delivery details, and confirmations of recorded orders.
func exemptWithoutEvidence(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{
		"welcome to",
		"how can i help",
		"we do not carry",
		"don't carry",
		"something similar",
		"i still need your",
		"i need your",
		"please send",
		"which city",
		"your order is confirmed",
		"order has been recorded",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// strictCheck requires every naira figure in the reply to appear in some
// evidence result verbatim.
func strictCheck(req Request, text string) models.ReviewVerdict {
	amounts := extractNairaAmounts(text)
	if len(amounts) > 0 && len(req.Evidence) == 0 {
		return models.Reject(fmt.Sprintf(
			"the reply states %s with no tool evidence at all; search the catalog and quote only recorded prices", amounts[0]))
	}
	for _, amount := range amounts {
		if !evidenceMentionsAmount(req.Evidence, amount) {
			return models.Reject(fmt.Sprintf(
				"the price %s does not appear in any tool result; quote only figures the catalog returned", amount))
		}
	}
	if len(req.Evidence) == 0 {
		return models.Reject("no tool evidence was recorded for this task; invoke the catalog before answering")
	}
	return models.Approve()
}

// moderateCheck verifies payment references and delivery fee claims.
func moderateCheck(req Request, text string) models.ReviewVerdict {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "pay.") || strings.Contains(lower, "payment link") {
		if _, ok := req.Evidence.Succeeded("payment.link"); !ok {
			return models.Reject("the reply presents a payment link but no payment.link invocation succeeded; generate the link before promising it")
		}
	}
	if strings.Contains(lower, "delivery") && len(extractNairaAmounts(text)) > 1 {
		if _, ok := req.Evidence.Succeeded("delivery.quote"); !ok {
			return models.Reject("a delivery fee is stated without a delivery.quote result; compute the fee first")
		}
	}
	return models.Approve()
}

// empathyCheck wants acknowledgement before problem-solving and a ticket
// reference when one was opened.
func empathyCheck(req Request, text string) models.ReviewVerdict {
	lower := strings.ToLower(text)
	if created, ok := req.Evidence.Succeeded("ticket.create"); ok {
		id := ticketID(created.Result)
		if id != "" && !strings.Contains(text, id) {
			return models.Reject(fmt.Sprintf(
				"ticket %s was opened but the reply never mentions it; include the ticket number so the customer can follow up", id))
		}
	}
	empathic := false
	for _, marker := range []string{"sorry", "understand", "apolog", "hear you", "frustrat"} {
		if strings.Contains(lower, marker) {
			empathic = true
			break
		}
	}
	if !empathic {
		return models.Reject("the reply jumps straight to process with no acknowledgement; open by recognizing the customer's experience")
	}
	return models.Approve()
}

type auditVerdict struct {
	Approved bool   `json:"approved"`
	Critique string `json:"critique"`
}

const auditSystemPrompt = `You audit a customer-facing reply against the tool results that produced it. Approve only if every factual claim in the reply is supported by the tool results. Respond with JSON only: {"approved": true} or {"approved": false, "critique": "<specific defect and how to fix it>"}.`

// semanticAudit asks the generator whether the reply's claims are covered
// by the evidence. Any failure to get a well-formed verdict returns the
// structural result unchanged.
func (r *Reviewer) semanticAudit(ctx context.Context, req Request, structural models.ReviewVerdict) models.ReviewVerdict {
	if r.gen == nil || len(req.Evidence) == 0 {
		return structural
	}

	var sb strings.Builder
	sb.WriteString("TOOL RESULTS:\n")
	for _, inv := range req.Evidence {
		if inv.OK() {
			fmt.Fprintf(&sb, "- %s: %s\n", inv.Capability, inv.Result)
		} else {
			fmt.Fprintf(&sb, "- %s failed: %s\n", inv.Capability, inv.Err)
		}
	}
	sb.WriteString("\nREPLY:\n")
	sb.WriteString(req.Output.Text)

	raw, err := r.gen.Generate(ctx, llm.Prompt{
		System:    auditSystemPrompt,
		User:      sb.String(),
		MaxTokens: 512,
	})
	if err != nil {
		return structural
	}
	var verdict auditVerdict
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &verdict); err != nil {
		return structural
	}
	if verdict.Approved {
		return models.Approve()
	}
	if strings.TrimSpace(verdict.Critique) == "" {
		// A rejection with nothing actionable is useless to the worker.
		return structural
	}
	return models.Reject(verdict.Critique)
}

// leaksInternals reports whether the text looks like raw machinery
// rather than a conversational reply.
func leaksInternals(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return true
	}
	for _, marker := range []string{"goroutine ", "panic:", "Traceback (most recent call", ".go:", "runtime error"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// extractNairaAmounts returns the normalized digit strings of every ₦
// figure in the text, in order of appearance.
func extractNairaAmounts(text string) []string {
	var amounts []string
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '₦' {
			continue
		}
		j := i + 1
		var digits []rune
		for j < len(runes) && (runes[j] >= '0' && runes[j] <= '9' || runes[j] == ',') {
			if runes[j] != ',' {
				digits = append(digits, runes[j])
			}
			j++
		}
		if len(digits) > 0 {
			amounts = append(amounts, string(digits))
		}
		i = j - 1
	}
	return amounts
}

// evidenceMentionsAmount checks whether any successful result contains
// the amount, either as a ₦ figure or a raw kobo/naira integer.
func evidenceMentionsAmount(evidence models.ToolEvidence, amount string) bool {
	for _, inv := range evidence {
		if !inv.OK() {
			continue
		}
		normalized := strings.ReplaceAll(inv.Result, ",", "")
		if strings.Contains(normalized, amount) {
			return true
		}
	}
	return false
}

// ticketID pulls the id out of a ticket.create result.
func ticketID(result string) string {
	var id string
	if _, err := fmt.Sscanf(result, "ticket %s created", &id); err != nil {
		return ""
	}
	return id
}
