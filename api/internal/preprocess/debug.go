package preprocess

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SaveVariants writes each variant to dir as <attemptID>-<n>-<method>.png so files of
// different attempts never overwrite each other. An empty attemptID gets a fresh UUID.
// Fallback variants hold the original bytes and are saved with a .orig extension.
func SaveVariants(dir, attemptID string, variants []Variant) ([]string, error) {
	if attemptID == "" {
		attemptID = uuid.NewString()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	paths := make([]string, 0, len(variants))
	for i, v := range variants {
		ext := ".png"
		if v.Fallback {
			ext = ".orig"
		}
		p := filepath.Join(dir, fmt.Sprintf("%s-%d-%s%s", attemptID, i+1, v.Method, ext))
		if err := os.WriteFile(p, v.Image, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
