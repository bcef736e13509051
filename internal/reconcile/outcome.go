package reconcile

// Outcome reports what happened to a single event. Every value other than
// OutcomeApplied is a deliberate skip, never an error.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeMissingPosition: the position could not be read when first seen
	// (created and burned before its state was observable).
	OutcomeMissingPosition Outcome = "missing_position"
	// OutcomeExcludedPool: the position belongs to a denylisted pool.
	OutcomeExcludedPool Outcome = "excluded_pool"
	// OutcomeUnknownToken: a token of the pair has no readable decimals.
	OutcomeUnknownToken Outcome = "unknown_token"
	// OutcomePoolUnavailable: the pool had to be created but its state could not be read.
	OutcomePoolUnavailable Outcome = "pool_unavailable"
	// OutcomeInvalidEvent: unsupported event name or malformed payload.
	OutcomeInvalidEvent Outcome = "invalid_event"
	// OutcomeAlreadyApplied: the position already reflects this event, as on a
	// resume after an interrupted batch.
	OutcomeAlreadyApplied Outcome = "already_applied"
)
