// Package llm provides the generation capability used by the planner,
// workers, reviewer, and conflict resolver. The capability is treated as a
// pure external function: structured prompt in, text out, with a bounded
// timeout and no trust in the shape of the result.
package llm

import (
	"context"
	"strings"
	"time"
)

// Prompt is one structured generation request.
type Prompt struct {
	// System is the system instruction block.
	System string
	// User is the user-turn content.
	User string
	// MaxTokens bounds the response length. Zero means the default.
	MaxTokens int
}

// Generator produces a text completion for a structured prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// WithTimeout wraps a generator so every call carries a deadline.
type WithTimeout struct {
	Inner   Generator
	Timeout time.Duration
}

// Generate calls the inner generator under the configured deadline.
func (w WithTimeout) Generate(ctx context.Context, p Prompt) (string, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	return w.Inner.Generate(ctx, p)
}

// ExtractJSON slices the first top-level JSON object out of a model reply.
// Models sometimes wrap JSON in prose or code fences; everything outside
// the outermost braces is discarded. Returns "" if no object is present.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
