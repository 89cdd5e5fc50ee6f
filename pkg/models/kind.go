package models

// WorkerKind identifies one of the closed set of specialized executors.
// The dispatcher switches on this tag; it never dispatches on a free-form
// string produced by a model.
type WorkerKind string

const (
	// KindCommerce handles product search, stock checks, and sales chat.
	KindCommerce WorkerKind = "commerce"
	// KindBilling handles delivery quotes, order records, and payment links.
	KindBilling WorkerKind = "billing"
	// KindOperations handles approvals, reports, and manager-facing work.
	KindOperations WorkerKind = "operations"
	// KindSupport handles complaints, tickets, and escalations.
	KindSupport WorkerKind = "support"
)

// Valid returns true if the kind is a known value.
func (k WorkerKind) Valid() bool {
	switch k {
	case KindCommerce, KindBilling, KindOperations, KindSupport:
		return true
	default:
		return false
	}
}

// AllKinds returns every known worker kind.
func AllKinds() []WorkerKind {
	return []WorkerKind{KindCommerce, KindBilling, KindOperations, KindSupport}
}

// Priority returns the conflict-resolution rank of the kind. A higher value
// wins when two approved outputs disagree on a user-facing fact: billing
// beats support, support beats operations, operations beats commerce.
func (k WorkerKind) Priority() int {
	switch k {
	case KindBilling:
		return 4
	case KindSupport:
		return 3
	case KindOperations:
		return 2
	case KindCommerce:
		return 1
	default:
		return 0
	}
}
