package models

// ConflictResolution is the single synthesized result for one request,
// produced exactly once after the plan is fully terminal.
type ConflictResolution struct {
	// FinalText is the reply handed to the output gate. Never empty: an
	// all-failed plan yields an explicit apologetic fallback.
	FinalText string `json:"final_text"`
	// Contributors lists the task ids whose approved outputs were merged,
	// in the order they were considered.
	Contributors []string `json:"contributors,omitempty"`
	// FailedTasks lists the task ids that ended failed.
	FailedTasks []string `json:"failed_task_ids,omitempty"`
	// Conflicted is true when two approved outputs disagreed on a
	// user-facing fact and priority ordering decided the final wording.
	Conflicted bool `json:"conflicted,omitempty"`
}
