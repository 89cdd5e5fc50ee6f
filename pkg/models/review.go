package models

// ReviewVerdict is the reviewer's decision for one worker output.
type ReviewVerdict struct {
	// Approved is true when the output may contribute to the final reply.
	Approved bool `json:"approved"`
	// Critique names the specific defect when the output is rejected. It is
	// fed back to the worker on the next attempt, so it must be actionable,
	// never a generic "try again".
	Critique string `json:"critique,omitempty"`
}

// Approve returns an approving verdict.
func Approve() ReviewVerdict {
	return ReviewVerdict{Approved: true}
}

// Reject returns a rejecting verdict carrying the given critique.
func Reject(critique string) ReviewVerdict {
	return ReviewVerdict{Approved: false, Critique: critique}
}
