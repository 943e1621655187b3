package models

// Outcome is the explicit three-way result of processing one record.
// Engines return it instead of signalling skip/fail through errors.
type Outcome int

// Per-record outcomes.
const (
	// OutcomeImported means the record was materialized (created or updated).
	OutcomeImported Outcome = iota
	// OutcomeSkipped means an existing document already covers this record.
	OutcomeSkipped
	// OutcomeFailed means processing raised an unrecoverable error; a
	// FailureRecord was persisted and the batch continues.
	OutcomeFailed
)

// String returns the wire representation used in logs and API responses.
func (o Outcome) String() string {
	switch o {
	case OutcomeImported:
		return "imported"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
