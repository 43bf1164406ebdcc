package batch

import (
	"encoding/json"
	"fmt"
	"os"
)

// ManifestEntry represents one rendered mockup in the output manifest.
type ManifestEntry struct {
	MockupID int    `json:"mockupId"`
	Model    string `json:"model"`
	Image    string `json:"image,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// WriteManifest writes manifest.json next to the rendered outputs.
func WriteManifest(path string, results []Result) error {
	entries := make([]ManifestEntry, len(results))
	for i, r := range results {
		entries[i] = ManifestEntry{
			MockupID: r.MockupID,
			Model:    r.Model,
			Image:    r.File,
			Success:  r.Success,
			Error:    r.Error,
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
