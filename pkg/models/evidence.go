package models

// Invocation records one capability call a worker made while executing a
// task, including calls that failed. The reviewer treats this record as the
// only source of truth for the worker's claims.
type Invocation struct {
	// Capability is the registered name of the provider that was invoked.
	Capability string `json:"capability"`
	// Args is a human-readable rendering of the call arguments.
	Args string `json:"args,omitempty"`
	// Result is the raw provider result, empty if the call failed.
	Result string `json:"raw_result,omitempty"`
	// Err holds the provider error text, empty on success.
	Err string `json:"error,omitempty"`
}

// OK returns true if the invocation succeeded.
func (i Invocation) OK() bool {
	return i.Err == ""
}

// ToolEvidence is the append-only ordered list of capability invocations a
// worker made for one task.
type ToolEvidence []Invocation

// Succeeded returns the most recent successful invocation of the named
// capability, if any. Workers use this to keep effectful capabilities
// idempotent across retries.
func (e ToolEvidence) Succeeded(capability string) (Invocation, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		if e[i].Capability == capability && e[i].OK() {
			return e[i], true
		}
	}
	return Invocation{}, false
}

// WorkerOutput is the conversational result a worker produced for one task,
// together with the evidence it rests on.
type WorkerOutput struct {
	// TaskID is the task this output belongs to.
	TaskID string `json:"task_id"`
	// Kind is the worker kind that produced the output.
	Kind WorkerKind `json:"worker"`
	// Text is the user-facing message.
	Text string `json:"output"`
	// Evidence lists every capability invocation made while producing Text.
	Evidence ToolEvidence `json:"evidence,omitempty"`
}
