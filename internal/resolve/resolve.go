// Package resolve combines the approved worker outputs of a fully
// terminal plan into one reply. When outputs contradict each other on a
// user-facing figure, the higher-priority worker kind wins and the other
// figure is acknowledged rather than dropped.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/pkg/models"
)

// FallbackReply is returned when every task in the plan failed.
const FallbackReply = "I am so sorry, I could not complete that request just now. Please try again in a moment, and if it keeps happening our team will sort it out for you."

// Resolver merges approved outputs into the final user-facing reply.
type Resolver struct {
	gen llm.Generator
}

// New creates a resolver. A nil generator skips the merge pass and uses
// the deterministic concatenation directly.
func New(gen llm.Generator) *Resolver {
	return &Resolver{gen: gen}
}

// Resolve produces the final reply from the terminal plan state. Outputs
// must all be approved; failed task ids are reported but contribute no
// text.
func (r *Resolver) Resolve(ctx context.Context, outputs []*models.WorkerOutput, failed []string) *models.ConflictResolution {
	resolution := &models.ConflictResolution{
		FailedTasks: append([]string(nil), failed...),
	}
	if len(outputs) == 0 {
		resolution.FinalText = FallbackReply
		return resolution
	}
	for _, out := range outputs {
		resolution.Contributors = append(resolution.Contributors, out.TaskID)
	}

	if len(outputs) == 1 {
		resolution.FinalText = outputs[0].Text
		return resolution
	}

	if conflict := findAmountConflict(outputs); conflict != nil {
		resolution.Conflicted = true
		resolution.FinalText = conflict.render()
		return resolution
	}

	resolution.FinalText = r.merge(ctx, outputs)
	return resolution
}

// amountConflict is a disagreement between two outputs on a naira figure.
type amountConflict struct {
	winner       *models.WorkerOutput
	winnerKobo   int64
	loser        *models.WorkerOutput
	loserKobo    int64
	samePriority bool
}

// findAmountConflict looks for two outputs that state different naira
// totals. Only the largest figure of each output is compared, which is
// the total when a breakdown is present.
func findAmountConflict(outputs []*models.WorkerOutput) *amountConflict {
	type claim struct {
		out  *models.WorkerOutput
		kobo int64
	}
	var claims []claim
	for _, out := range outputs {
		if kobo, ok := largestAmountKobo(out.Text); ok {
			claims = append(claims, claim{out: out, kobo: kobo})
		}
	}
	if len(claims) < 2 {
		return nil
	}

	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.kobo == b.kobo {
				continue
			}
			conflict := &amountConflict{}
			switch {
			case a.out.Kind.Priority() > b.out.Kind.Priority():
				conflict.winner, conflict.winnerKobo = a.out, a.kobo
				conflict.loser, conflict.loserKobo = b.out, b.kobo
			case b.out.Kind.Priority() > a.out.Kind.Priority():
				conflict.winner, conflict.winnerKobo = b.out, b.kobo
				conflict.loser, conflict.loserKobo = a.out, a.kobo
			default:
				// Same kind, no priority rule covers it. Surface both.
				conflict.winner, conflict.winnerKobo = a.out, a.kobo
				conflict.loser, conflict.loserKobo = b.out, b.kobo
				conflict.samePriority = true
			}
			return conflict
		}
	}
	return nil
}

// render writes the authoritative statement. The losing figure is
// acknowledged explicitly so the user is never shown a silent
// discrepancy.
func (c *amountConflict) render() string {
	if c.samePriority {
		return fmt.Sprintf("I have two different figures for this: %s and %s. Let me double-check with the team and confirm the correct one before you pay anything.",
			catalog.FormatNaira(c.winnerKobo), catalog.FormatNaira(c.loserKobo))
	}
	text := c.winner.Text
	if c.loserKobo < c.winnerKobo {
		text += fmt.Sprintf(" (The %s mentioned earlier covers the items only; %s is the complete total.)",
			catalog.FormatNaira(c.loserKobo), catalog.FormatNaira(c.winnerKobo))
	} else {
		text += fmt.Sprintf(" (Please disregard the %s figure mentioned earlier; %s is the confirmed amount.)",
			catalog.FormatNaira(c.loserKobo), catalog.FormatNaira(c.winnerKobo))
	}
	return text
}

const mergeSystemPrompt = `You combine several assistant messages, written by different specialists about the same customer request, into one coherent reply. Keep every fact and figure exactly as written, keep the warm tone, remove repetition, and never add new claims. Reply with the combined message only.`

// merge asks the generator to weave multiple outputs into one message,
// falling back to priority-ordered concatenation when generation fails.
func (r *Resolver) merge(ctx context.Context, outputs []*models.WorkerOutput) string {
	ordered := append([]*models.WorkerOutput(nil), outputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind.Priority() > ordered[j].Kind.Priority()
	})

	if r.gen != nil {
		var sb strings.Builder
		for _, out := range ordered {
			fmt.Fprintf(&sb, "[%s]\n%s\n\n", out.Kind, out.Text)
		}
		merged, err := r.gen.Generate(ctx, llm.Prompt{
			System:    mergeSystemPrompt,
			User:      sb.String(),
			MaxTokens: 1024,
		})
		if err == nil && strings.TrimSpace(merged) != "" {
			return strings.TrimSpace(merged)
		}
	}

	parts := make([]string, 0, len(ordered))
	for _, out := range ordered {
		parts = append(parts, strings.TrimSpace(out.Text))
	}
	return strings.Join(parts, "\n\n")
}

// largestAmountKobo returns the biggest ₦ figure in the text, in kobo.
func largestAmountKobo(text string) (int64, bool) {
	var max int64
	found := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '₦' {
			continue
		}
		var naira int64
		sawDigit := false
		j := i + 1
		for j < len(runes) && (runes[j] >= '0' && runes[j] <= '9' || runes[j] == ',') {
			if runes[j] != ',' {
				naira = naira*10 + int64(runes[j]-'0')
				sawDigit = true
			}
			j++
		}
		if sawDigit {
			found = true
			if kobo := naira * 100; kobo > max {
				max = kobo
			}
		}
		i = j - 1
	}
	return max, found
}
