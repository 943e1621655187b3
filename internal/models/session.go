package models

import "time"

// Session status values. Transitions move forward only; Reset returns a
// session to StatusReady and zeroes its counters.
const (
	StatusPending    = "pending"
	StatusReady      = "ready"
	StatusProcessing = "processing"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ImportSession tracks one resumable run against one dataset file.
type ImportSession struct {
	ID             int64     `db:"id" json:"-"`
	SessionID      string    `db:"session_id" json:"session_id"`
	FilePath       string    `db:"file_path" json:"file_path"`
	TotalRecords   int       `db:"total_records" json:"total_records"`
	ProcessedCount int       `db:"processed_count" json:"processed_count"`
	FailedCount    int       `db:"failed_count" json:"failed_count"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Percentage returns the session progress rounded to two decimals.
// A session with zero total records reports 0, not NaN.
func (s *ImportSession) Percentage() float64 {
	return ProgressPercentage(s.ProcessedCount, s.TotalRecords)
}

// ProgressPercentage computes processed/total as a percentage rounded to
// two decimals, defining 0/0 as 0.
func ProgressPercentage(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	const percent = 100
	const precision = 100 // two decimal places
	raw := float64(processed) / float64(total) * percent
	return float64(int(raw*precision+0.5)) / precision
}

// FailureRecord is one persisted record-level failure, kept with the raw
// source payload for later inspection or retry.
type FailureRecord struct {
	ID           int64     `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	RecordData   []byte    `db:"record_data" json:"record_data"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Mode selects which engine a batch dispatches records to.
type Mode string

// Batch processing modes.
const (
	ModeImport   Mode = "import"
	ModeReimport Mode = "reimport"
)

// Valid reports whether the mode is one of the supported values.
func (m Mode) Valid() bool {
	return m == ModeImport || m == ModeReimport
}

// BatchResult is the aggregate outcome of one coordinator invocation.
type BatchResult struct {
	Imported       int     `json:"imported"`
	Failed         int     `json:"failed"`
	Skipped        int     `json:"skipped"`
	TotalProcessed int     `json:"total_processed"`
	TotalRecords   int     `json:"total_records"`
	Status         string  `json:"status"`
	Percentage     float64 `json:"percentage"`
}
