package models

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a resource already exists (e.g., duplicate slug)
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrSessionNotFound is returned when an import session does not exist
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionBusy is returned when a batch is already running for a session
	ErrSessionBusy = errors.New("a batch is already running for this session")

	// ErrInvalidDataset is returned when the dataset file is not a non-empty JSON array
	ErrInvalidDataset = errors.New("invalid dataset: expected a non-empty JSON array of records")

	// ErrInvalidMode is returned when a batch request names an unknown mode
	ErrInvalidMode = errors.New("invalid mode: must be import or reimport")
)
