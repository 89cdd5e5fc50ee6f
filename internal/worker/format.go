package worker

import (
	"context"
	"strings"

	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/pkg/models"
)

// formatPass turns raw capability results into a conversational message.
// The generator is instructed to stay inside the evidence; the reviewer
// rejects anything it invents anyway. If generation fails, the
// deterministic draft is returned so the worker still produces an honest
// answer.
func formatPass(ctx context.Context, gen llm.Generator, persona string, evidence models.ToolEvidence, draft, critique string) string {
	raw := renderEvidence(evidence)
	if raw == "" {
		// Nothing to rephrase; the draft is already the whole message.
		return draft
	}

	var sb strings.Builder
	sb.WriteString("Rewrite the tool results below into one short, friendly reply to the customer.\n\n")
	sb.WriteString("TOOL RESULTS:\n")
	sb.WriteString(raw)
	sb.WriteString("\n\nRULES:\n")
	sb.WriteString("- State only facts present in the tool results. Do not invent prices, stock, or dates.\n")
	sb.WriteString("- Never show raw tool output, field names, or JSON.\n")
	sb.WriteString("- Keep it under 400 characters.\n")
	if draft != "" {
		sb.WriteString("\nDRAFT TO IMPROVE:\n")
		sb.WriteString(draft)
		sb.WriteString("\n")
	}
	if critique != "" {
		sb.WriteString("\nYOUR PREVIOUS REPLY WAS REJECTED: ")
		sb.WriteString(critique)
		sb.WriteString("\nFix exactly that.\n")
	}

	out, err := gen.Generate(ctx, llm.Prompt{System: persona, User: sb.String()})
	if err != nil || strings.TrimSpace(out) == "" {
		return draft
	}
	return strings.TrimSpace(out)
}

// renderEvidence flattens successful invocation results for the
// formatting prompt. Failed calls are included as failure notes so the
// model can acknowledge them honestly.
func renderEvidence(evidence models.ToolEvidence) string {
	var sb strings.Builder
	for _, inv := range evidence {
		if inv.OK() {
			sb.WriteString(inv.Result)
		} else {
			sb.WriteString(inv.Capability + " failed: " + inv.Err)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
