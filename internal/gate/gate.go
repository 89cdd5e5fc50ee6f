// Package gate wraps the pipeline on both sides: admission decides which
// inbound messages deserve a full pipeline run, and the output gate keeps
// internal machinery from ever reaching the user.
package gate

import (
	"strings"
	"unicode"

	"github.com/awela-ai/awela/internal/state"
)

// Decision says what admission wants done with an inbound message.
type Decision int

const (
	// DecisionProcess sends the message through the full pipeline.
	DecisionProcess Decision = iota
	// DecisionIgnore drops the message silently.
	DecisionIgnore
	// DecisionReply answers with the attached canned text, no pipeline.
	DecisionReply
)

const welcomeReply = "Hello! Welcome to Awela. What can I help you find today? We have skincare, makeup, and hair products in stock."

const forgetReply = "Done. I have deleted your saved messages and preferences. Your order records are kept for accounting."

const apologyReply = "Sorry, something went wrong on our side. Please try again in a moment."

// Admission screens inbound messages before the pipeline runs.
type Admission struct {
	store state.Store
}

// NewAdmission creates the admission gate. Store may be nil, in which
// case the forget command degrades to a plain confirmation.
func NewAdmission(store state.Store) *Admission {
	return &Admission{store: store}
}

// Admit classifies one inbound message. Reply text is non-empty only for
// DecisionReply.
func (a *Admission) Admit(userID, message string) (Decision, string) {
	trimmed := strings.TrimSpace(message)
	if isThrowaway(trimmed) {
		return DecisionIgnore, ""
	}
	if isBareGreeting(trimmed) {
		return DecisionReply, welcomeReply
	}
	if isForgetCommand(trimmed) {
		if a.store != nil {
			if err := a.store.DeleteUserData(userID); err != nil {
				return DecisionReply, apologyReply
			}
		}
		return DecisionReply, forgetReply
	}
	return DecisionProcess, ""
}

// isThrowaway reports whether the message carries no content worth a
// reply: empty, punctuation, or emoji-only reactions.
func isThrowaway(message string) bool {
	if message == "" {
		return true
	}
	for _, r := range message {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isBareGreeting(message string) bool {
	normalized := strings.ToLower(strings.TrimRight(message, ".,!?"))
	switch normalized {
	case "hi", "hello", "hey", "good morning", "good afternoon", "good evening", "hi there", "hello there":
		return true
	}
	return false
}

func isForgetCommand(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	switch normalized {
	case "forget me", "delete my data", "clear my data", "delete my info":
		return true
	}
	return false
}

// Output sanitizes the final reply for a channel.
type Output struct {
	// MaxLen is the channel's message length limit in runes. Zero means
	// unlimited.
	MaxLen int
}

// Sanitize returns the reply safe to send. Leaked internals are replaced
// with a generic apology; oversized replies are cut at a sentence
// boundary.
func (o Output) Sanitize(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" || leaksInternals(trimmed) {
		return apologyReply
	}
	if o.MaxLen > 0 {
		trimmed = truncateAtSentence(trimmed, o.MaxLen)
	}
	return trimmed
}

func leaksInternals(text string) bool {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return true
	}
	for _, marker := range []string{"goroutine ", "panic:", "runtime error", "Traceback (most recent call"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// truncateAtSentence cuts text to at most limit runes, preferring the
// last sentence end before the limit, falling back to the last space.
func truncateAtSentence(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	window := runes[:limit]

	lastEnd := -1
	for i, r := range window {
		if r == '.' || r == '!' || r == '?' {
			lastEnd = i
		}
	}
	if lastEnd > 0 {
		return strings.TrimSpace(string(window[:lastEnd+1]))
	}

	lastSpace := -1
	for i, r := range window {
		if unicode.IsSpace(r) {
			lastSpace = i
		}
	}
	if lastSpace > 0 {
		return strings.TrimSpace(string(window[:lastSpace]))
	}
	return string(window)
}
