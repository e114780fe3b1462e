package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("data-"+n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDirIteratesImagesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b2c3d.png", "notes.txt", "A1B2C.jpg", "ZZZZ_02.webp")
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 3 {
		t.Fatalf("expected 3 images, got %d", d.Len())
	}
	var labels []string
	for {
		img, err := d.Capture(context.Background())
		if errors.Is(err, ErrNoMoreImages) {
			break
		}
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		labels = append(labels, Label(img.Source))
		ok, err := d.Check(context.Background(), Label(img.Source))
		if err != nil || !ok {
			t.Fatalf("Check(%s) = %v, %v", img.Source, ok, err)
		}
	}
	want := []string{"A1B2C", "ZZZZ", "b2c3d"}
	if len(labels) != len(want) {
		t.Fatalf("labels %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels %v, want %v", labels, want)
		}
	}
}

func TestDirCheckBeforeCapture(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Check(context.Background(), "AAAA"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := d.Capture(context.Background()); !errors.Is(err, ErrNoMoreImages) {
		t.Fatalf("expected ErrNoMoreImages, got %v", err)
	}
}

func TestNewDirMissing(t *testing.T) {
	if _, err := NewDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error")
	}
}
