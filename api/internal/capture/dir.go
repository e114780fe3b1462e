package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"captcha-solver/api/internal/ocr"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Dir walks the image files of one directory in name order. The file name without
// extension is taken as the expected answer (corpora are saved as <answer>.png).
type Dir struct {
	mu    sync.Mutex
	files []string
	next  int
	last  string
}

func NewDir(dir string) (*Dir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("capture: read dir: %w", err)
	}
	d := &Dir{}
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		d.files = append(d.files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(d.files)
	return d, nil
}

func (d *Dir) Len() int { return len(d.files) }

func (d *Dir) Capture(ctx context.Context) (ocr.CaptchaImage, error) {
	if err := ctx.Err(); err != nil {
		return ocr.CaptchaImage{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.files) {
		return ocr.CaptchaImage{}, ErrNoMoreImages
	}
	p := d.files[d.next]
	d.next++
	d.last = p
	return ocr.LoadCaptchaImage(p)
}

// Label returns the expected answer encoded in a sample's file name.
func Label(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	// "XK2M9_03.png": несколько снимков одной капчи
	if i := strings.IndexByte(base, '_'); i > 0 {
		base = base[:i]
	}
	return base
}

// Check compares answer with the label of the last captured file. It is the offline
// stand-in for the portal's accept/reject.
func (d *Dir) Check(_ context.Context, answer string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == "" {
		return false, fmt.Errorf("capture: nothing captured yet")
	}
	return answer == Label(d.last), nil
}
