// Package dataset reads and validates article export files.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonesrussell/post-importer/internal/models"
)

// Load reads the JSON export at path and decodes it into source records.
// The file must decode as a non-empty top-level array; anything else is
// reported as models.ErrInvalidDataset. The engine re-reads the file on
// every batch rather than caching the parsed dataset, so sessions stay
// resumable across process restarts.
func Load(path string) ([]models.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}

	var records []models.SourceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidDataset, err)
	}

	if len(records) == 0 {
		return nil, models.ErrInvalidDataset
	}

	return records, nil
}

// Analyze loads the dataset and returns only the record count. Used at
// session creation, where the records themselves are not needed yet.
func Analyze(path string) (int, error) {
	records, err := Load(path)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
