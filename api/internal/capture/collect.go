package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"captcha-solver/api/internal/util"
)

// Collect saves up to n fresh captures into dir as sample-<uuid>.<ext> and returns their
// paths. A drained source stops early without an error. Rename the files to
// <answer>.<ext> to turn them into an eval corpus.
func Collect(ctx context.Context, c Capturer, dir string, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("capture: collect count must be positive, got %d", n)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	var paths []string
	for i := 0; i < n; i++ {
		img, err := c.Capture(ctx)
		if errors.Is(err, ErrNoMoreImages) {
			break
		}
		if err != nil {
			return paths, err
		}
		ext := util.ImageExt(util.SniffMimeHTTP(img.Data))
		if ext == "" {
			ext = ".png"
		}
		path := filepath.Join(dir, "sample-"+uuid.NewString()+ext)
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return paths, fmt.Errorf("capture: save sample: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
