package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Recognizer reads the text of one encoded image.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Engines is the set of recognizers a solve run consults for every variant.
// Leave a field nil to disable that engine.
type Engines struct {
	Vision    Recognizer
	Gemini    Recognizer
	Tesseract Recognizer
}

// List returns the configured recognizers in consultation order: cloud readers first,
// the local engine last.
func (e *Engines) List() []Recognizer {
	var out []Recognizer
	for _, r := range []Recognizer{e.Vision, e.Gemini, e.Tesseract} {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engines) GetEngine(name string) (Recognizer, error) {
	var r Recognizer
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vision", "google":
		r = e.Vision
	case "gemini":
		r = e.Gemini
	case "tesseract", "local":
		r = e.Tesseract
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
	if r == nil {
		return nil, fmt.Errorf("engine %q is not configured", name)
	}
	return r, nil
}
