package worker

import (
	"context"
	"strings"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/pkg/models"
)

const commercePersona = `You are Awela, the warm and enthusiastic sales assistant for an online cosmetics store. You transform product data into a friendly sales pitch: benefits over features, never raw data dumps. You only claim what the tool results support.`

// Commerce handles product search, stock checks, and general sales chat.
type Commerce struct {
	caps *capability.Registry
	gen  llm.Generator
}

// NewCommerce creates the commerce worker.
func NewCommerce(caps *capability.Registry, gen llm.Generator) *Commerce {
	return &Commerce{caps: caps, gen: gen}
}

// Kind returns the worker kind tag.
func (w *Commerce) Kind() models.WorkerKind {
	return models.KindCommerce
}

// Execute runs one commerce task: recall the customer's notes, search the
// catalog, and turn the findings into a sales reply.
func (w *Commerce) Execute(ctx context.Context, req *session.Request, a Assignment) (*models.WorkerOutput, error) {
	log := newToolLog(w.caps)

	// Personalization context; a miss is not an error worth surfacing.
	memory, _ := log.invoke(ctx, capability.CapMemoryRecall, capability.Args{"user_id": req.UserID})

	if note := statedPreference(req.Message); note != "" {
		// Saved for future recalls; a write failure only shows in evidence.
		_, _ = log.invoke(ctx, capability.CapMemorySave, capability.Args{
			"user_id": req.UserID,
			"note":    note,
		})
	}

	query := searchQuery(a.Task.Description, req.Message)
	results, err := log.invoke(ctx, capability.CapCatalogSearch, capability.Args{"query": query})

	var text string
	switch {
	case err != nil:
		// Degraded but honest: the failure is in the evidence and the
		// reply does not pretend otherwise.
		text = "I could not check our catalog just now. Please give me a moment and ask again."
	case strings.HasPrefix(results, "no products matched"):
		text = "So sorry, we do not carry that at the moment. Can I show you something similar from our range instead?"
	default:
		draft := "Here is what I found for you: " + results
		if asksAboutStock(a.Task.Description, req.Message) {
			if stock, serr := log.invoke(ctx, capability.CapCatalogStock, capability.Args{"product": query}); serr == nil {
				draft += "\nStock: " + stock
			}
		}
		persona := commercePersona
		if memory != "" && memory != "no saved notes for this customer" {
			persona += "\nCustomer notes: " + memory
		}
		text = formatPass(ctx, w.gen, persona, log.evidence, draft, a.Critique)
	}

	return &models.WorkerOutput{
		TaskID:   a.Task.ID,
		Kind:     w.Kind(),
		Text:     text,
		Evidence: log.evidence,
	}, nil
}

// searchQuery derives catalog search terms from the task description,
// falling back to the raw message. Planner phrasing like "confirm stock
// for" is noise for the catalog index.
func searchQuery(taskDesc, message string) string {
	stop := map[string]bool{
		"confirm": true, "check": true, "stock": true, "for": true,
		"search": true, "find": true, "the": true, "a": true, "an": true,
		"of": true, "availability": true, "product": true, "products": true,
		"and": true, "price": true, "look": true, "up": true, "customer": true,
		"explain": true, "about": true, "ask": true, "tell": true,
	}
	var kept []string
	for _, word := range strings.Fields(strings.ToLower(taskDesc)) {
		word = strings.Trim(word, ".,!?:;\"'")
		if word == "" || stop[word] {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(message)
	}
	return strings.Join(kept, " ")
}

// asksAboutStock reports whether the customer wants quantities, not just
// a listing. Checked against the raw text because searchQuery strips the
// stock vocabulary out.
func asksAboutStock(taskDesc, message string) bool {
	combined := strings.ToLower(taskDesc + " " + message)
	for _, marker := range []string{"stock", "availab", "how many", "left"} {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

var preferenceMarkers = []string{
	"i prefer", "i like", "i love", "my skin", "i am allergic",
	"i'm allergic", "allergic to", "my favourite", "my favorite",
}

// statedPreference returns a note worth remembering when the customer
// volunteers one, or "" otherwise.
func statedPreference(message string) string {
	lower := strings.ToLower(message)
	for _, marker := range preferenceMarkers {
		if strings.Contains(lower, marker) {
			note := strings.TrimSpace(message)
			if len(note) > 200 {
				note = note[:200]
			}
			return note
		}
	}
	return ""
}
