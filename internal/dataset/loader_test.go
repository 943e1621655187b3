package dataset_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/post-importer/internal/dataset"
	"github.com/jonesrussell/post-importer/internal/models"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write dataset file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	testCases := []struct {
		name      string
		content   string
		wantCount int
		wantErr   error
	}{
		{
			name:      "valid array",
			content:   `[{"id": 1, "slug": "first"}, {"id": "2", "slug": "second"}]`,
			wantCount: 2,
		},
		{
			name:    "empty array",
			content: `[]`,
			wantErr: models.ErrInvalidDataset,
		},
		{
			name:    "top-level object",
			content: `{"records": []}`,
			wantErr: models.ErrInvalidDataset,
		},
		{
			name:    "malformed json",
			content: `[{"id": 1,]`,
			wantErr: models.ErrInvalidDataset,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDataset(t, tc.content)

			records, err := dataset.Load(path)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if len(records) != tc.wantCount {
				t.Errorf("Load() returned %d records, want %d", len(records), tc.wantCount)
			}
		})
	}
}

func TestLoadNormalizesIDs(t *testing.T) {
	path := writeDataset(t, `[{"id": 42, "slug": "numeric"}, {"id": "abc", "slug": "string"}]`)

	records, err := dataset.Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if records[0].ID.String() != "42" {
		t.Errorf("numeric id normalized to %q, want %q", records[0].ID, "42")
	}
	if records[1].ID.String() != "abc" {
		t.Errorf("string id normalized to %q, want %q", records[1].ID, "abc")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := dataset.Load(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestAnalyze(t *testing.T) {
	path := writeDataset(t, `[{"slug": "a"}, {"slug": "b"}, {"slug": "c"}]`)

	count, err := dataset.Analyze(path)
	if err != nil {
		t.Fatalf("Analyze() unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("Analyze() = %d, want 3", count)
	}
}
