package tesseract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type fakeClient struct {
	langs     []string
	whitelist string
	psm       gosseract.PageSegMode
	images    int
	boxes     []gosseract.BoundingBox
	boxErr    error
	text      string
	closed    bool
}

func (f *fakeClient) SetLanguage(langs ...string) error {
	f.langs = langs
	return nil
}

func (f *fakeClient) SetWhitelist(w string) error {
	f.whitelist = w
	return nil
}

func (f *fakeClient) SetPageSegMode(m gosseract.PageSegMode) error {
	f.psm = m
	return nil
}

func (f *fakeClient) SetImageFromBytes([]byte) error {
	f.images++
	return nil
}

func (f *fakeClient) GetBoundingBoxes(gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	return f.boxes, f.boxErr
}

func (f *fakeClient) Text() (string, error) { return f.text, nil }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNewConfiguresClientOnce(t *testing.T) {
	created := 0
	fc := &fakeClient{}
	e, err := New(withClientFactory(func() client { created++; return fc }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(fc.langs) != 1 || fc.langs[0] != "eng" {
		t.Fatalf("unexpected languages: %v", fc.langs)
	}
	if fc.whitelist != CaptchaAlphabet || fc.psm != gosseract.PSM_SINGLE_LINE {
		t.Fatalf("unexpected setup: %q %v", fc.whitelist, fc.psm)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.Recognize(context.Background(), []byte("img")); err != nil {
			t.Fatalf("Recognize: %v", err)
		}
	}
	if created != 1 || fc.images != 3 {
		t.Fatalf("client should be reused: created=%d images=%d", created, fc.images)
	}
}

func TestRecognizeConcatenatesWordsWithoutConfidenceFilter(t *testing.T) {
	fc := &fakeClient{boxes: []gosseract.BoundingBox{
		{Word: "XK", Confidence: 91},
		{Word: " 2M ", Confidence: 12},
		{Word: "9", Confidence: 3},
	}}
	e, err := New(withClientFactory(func() client { return fc }))
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Recognize(context.Background(), []byte("img"))
	if err != nil || got != "XK2M9" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestRecognizeFallsBackToText(t *testing.T) {
	fc := &fakeClient{boxErr: errors.New("no iterator"), text: " AB3F9\n"}
	e, err := New(withClientFactory(func() client { return fc }), WithWhitelist(""))
	if err != nil {
		t.Fatal(err)
	}
	if fc.whitelist != "" {
		t.Fatalf("whitelist should be disabled")
	}
	got, err := e.Recognize(context.Background(), []byte("img"))
	if err != nil || got != "AB3F9" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestRecognizeAfterClose(t *testing.T) {
	fc := &fakeClient{}
	e, _ := New(withClientFactory(func() client { return fc }))
	if err := e.Close(); err != nil || !fc.closed {
		t.Fatalf("Close: %v closed=%v", err, fc.closed)
	}
	if _, err := e.Recognize(context.Background(), []byte("img")); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestRecognizeHonoursCancelledContext(t *testing.T) {
	fc := &fakeClient{}
	e, _ := New(withClientFactory(func() client { return fc }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Recognize(ctx, []byte("img")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fc.images != 0 {
		t.Fatalf("cancelled call must not reach the client")
	}
}

func TestRecognizeWithTesseract(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	img := image.NewRGBA(image.Rect(0, 0, 160, 50))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(20, 30)}
	d.DrawString("HELLO42")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	if _, err := e.Recognize(context.Background(), buf.Bytes()); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
}
