// Package planner turns one inbound request into a validated plan: a
// dependency-ordered DAG of tasks assigned to worker kinds. A malformed
// plan never reaches the scheduler; generation gets one correction retry
// and then the whole request fails fast.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/graph"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/pkg/models"
)

// PlanningError indicates the generation capability could not produce a
// structurally valid plan. Fatal to the request.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// plannedStep is the JSON structure the generator returns for one step.
type plannedStep struct {
	ID           string   `json:"id"`
	Worker       string   `json:"worker"`
	Task         string   `json:"task"`
	Dependencies []string `json:"dependencies"`
	Reason       string   `json:"reason"`
}

type plannerResponse struct {
	Thinking string        `json:"thinking"`
	Plan     []plannedStep `json:"plan"`
}

// Planner builds plans from inbound requests.
type Planner struct {
	gen llm.Generator
	// approvalKobo is the order total at which an operations approval
	// step becomes mandatory. Zero disables the rule.
	approvalKobo int64
}

// New creates a planner on the given generator.
func New(gen llm.Generator) *Planner {
	return &Planner{gen: gen}
}

// WithApprovalThreshold sets the order total, in kobo, above which plans
// must include an operations approval step. Returns the planner for
// chaining at construction.
func (p *Planner) WithApprovalThreshold(kobo int64) *Planner {
	p.approvalKobo = kobo
	return p
}

// Plan decomposes the request into a validated task DAG.
func (p *Planner) Plan(ctx context.Context, req *session.Request) (*models.Plan, error) {
	if fast := p.confirmPurchasePlan(req); fast != nil {
		return fast, nil
	}

	response, err := p.gen.Generate(ctx, llm.Prompt{
		System: planSystemPrompt,
		User:   p.buildPlanRequest(req),
	})
	if err != nil {
		return nil, &PlanningError{Reason: "generation failed", Err: err}
	}

	plan, defect := parseAndValidate(response)
	if defect == "" {
		return plan, nil
	}

	// One correction retry with the defect named explicitly.
	response, err = p.gen.Generate(ctx, llm.Prompt{
		System: planSystemPrompt,
		User: p.buildPlanRequest(req) +
			"\n\nYour previous plan was invalid: " + defect +
			"\nReturn a corrected plan. Fix only the named defect.",
	})
	if err != nil {
		return nil, &PlanningError{Reason: "correction retry failed", Err: err}
	}
	plan, defect = parseAndValidate(response)
	if defect != "" {
		return nil, &PlanningError{Reason: defect}
	}
	return plan, nil
}

// parseAndValidate returns the plan, or a defect description suitable for
// the correction retry prompt.
func parseAndValidate(response string) (*models.Plan, string) {
	raw := llm.ExtractJSON(response)
	if raw == "" {
		return nil, "response contained no JSON object"
	}
	var parsed plannerResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Sprintf("response was not valid JSON: %v", err)
	}
	if len(parsed.Plan) == 0 {
		return nil, "plan was empty; at least one step is required"
	}

	tasks := make([]*models.Task, 0, len(parsed.Plan))
	for _, step := range parsed.Plan {
		kind := models.WorkerKind(strings.TrimSpace(step.Worker))
		tasks = append(tasks, &models.Task{
			ID:               strings.TrimSpace(step.ID),
			Kind:             kind,
			Description:      strings.TrimSpace(step.Task),
			DependsOn:        step.Dependencies,
			Reason:           step.Reason,
			RequiresEvidence: true,
		})
	}

	plan, err := models.NewPlan(tasks)
	if err != nil {
		return nil, err.Error()
	}

	g := graph.New()
	if err := g.Build(plan); err != nil {
		return nil, err.Error()
	}
	return plan, ""
}

// confirmPurchasePlan detects a direct continuation of a pending purchase
// and routes it straight to billing. The billing task is exempt from
// fresh tool evidence because it only restates the already-assembled
// order. When the order total reaches the approval threshold, an
// operations approval step follows the billing step.
func (p *Planner) confirmPurchasePlan(req *session.Request) *models.Plan {
	if req.Order == nil || len(req.Order.Items) == 0 {
		return nil
	}
	if !isConfirmation(req.Message) {
		return nil
	}
	tasks := []*models.Task{{
		ID:               "confirm",
		Kind:             models.KindBilling,
		Description:      "Finalize the pending order: restate items and total, create the order record, and issue the payment link.",
		Reason:           "Direct continuation of a pending purchase.",
		RequiresEvidence: false,
	}}
	if p.approvalKobo > 0 && req.Order.Subtotal() >= p.approvalKobo {
		tasks = append(tasks, &models.Task{
			ID:               "approval",
			Kind:             models.KindOperations,
			Description:      "Approve the newly recorded high-value order.",
			DependsOn:        []string{"confirm"},
			Reason:           "Order total is at or above the approval threshold.",
			RequiresEvidence: true,
		})
	}
	plan, err := models.NewPlan(tasks)
	if err != nil {
		// Unreachable with fixed tasks.
		return nil
	}
	return plan
}

var confirmationPhrases = []string{
	"confirm purchase",
	"confirm order",
	"confirm my order",
	"i confirm",
	"yes proceed",
	"yes, proceed",
	"proceed with payment",
	"go ahead with the order",
}

func isConfirmation(message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range confirmationPhrases {
		if text == phrase || strings.HasPrefix(text, phrase) {
			return true
		}
	}
	return false
}

func (p *Planner) buildPlanRequest(req *session.Request) string {
	var sb strings.Builder
	if history := req.HistoryBlock(5); history != "" {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}
	if p.approvalKobo > 0 {
		fmt.Fprintf(&sb, "Approval threshold: %s. Orders at or above it need an operations approval step.\n", catalog.FormatNaira(p.approvalKobo))
	}
	if req.Order != nil && len(req.Order.Items) > 0 {
		fmt.Fprintf(&sb, "The customer has a pending order of %d item(s).\n\n", len(req.Order.Items))
	}
	sb.WriteString("Customer message: ")
	sb.WriteString(req.Message)
	return sb.String()
}

const planSystemPrompt = `You are the planner for a commerce assistant. Decompose the customer's request into an execution plan.

Think first:
1. What is the customer's primary intent? (buy, inquire, complain, greet)
2. What information is needed? (stock, price, delivery, payment)
3. Which workers can provide it, and in what order?

Available workers:
- commerce: product search, stock checks, product questions, general chat
- billing: delivery fee calculation, order records, payment links
- operations: approvals for high-value orders, reports
- support: complaints, tickets, escalations

Output JSON only:
{"thinking": "one or two sentences", "plan": [{"id": "step1", "worker": "commerce", "task": "...", "dependencies": [], "reason": "..."}]}

Rules:
1. Simple queries get exactly one step. Do not over-plan.
2. Orders above the approval threshold need an operations step.
3. Calculate delivery before generating a payment link.
4. Step ids must be unique; dependencies must reference existing step ids; no cycles.`
