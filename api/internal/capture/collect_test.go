package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCollectSavesFreshPageCaptures(t *testing.T) {
	var n atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><img src="/captcha.jpg"></body></html>`))
	})
	mux.HandleFunc("/captcha.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, byte(n.Add(1))})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewPage(srv.URL+"/login", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "samples")
	paths, err := Collect(context.Background(), p, out, 3)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(paths) != 3 || n.Load() != 3 {
		t.Fatalf("paths=%v fetched=%d", paths, n.Load())
	}
	seen := map[string]bool{}
	for _, path := range paths {
		if filepath.Dir(path) != out || !strings.HasPrefix(filepath.Base(path), "sample-") || filepath.Ext(path) != ".jpg" {
			t.Fatalf("unexpected sample path %s", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		seen[string(data)] = true
	}
	if len(seen) != 3 {
		t.Fatalf("samples should all differ")
	}

	d, err := NewDir(out)
	if err != nil || d.Len() != 3 {
		t.Fatalf("collected dir not readable as a corpus: %v", err)
	}
}

func TestCollectStopsWhenSourceDrains(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, "AB3F9.png", "XK2M9.png")
	d, err := NewDir(src)
	if err != nil {
		t.Fatal(err)
	}
	paths, err := Collect(context.Background(), d, t.TempDir(), 5)
	if err != nil || len(paths) != 2 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
	if filepath.Ext(paths[0]) != ".png" {
		t.Fatalf("unknown content should default to .png: %s", paths[0])
	}
}

func TestCollectRejectsBadCount(t *testing.T) {
	if _, err := Collect(context.Background(), nil, t.TempDir(), 0); err == nil {
		t.Fatalf("expected error for n=0")
	}
}
