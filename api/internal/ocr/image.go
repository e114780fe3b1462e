package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// CaptchaImage is a freshly captured CAPTCHA. Treat it as read-only.
type CaptchaImage struct {
	Data   []byte
	Width  int
	Height int
	Source string
}

// NewCaptchaImage wraps encoded image bytes. Undecodable data is kept as-is with zero
// dimensions; the preprocessor then falls back to the raw bytes for every variant.
func NewCaptchaImage(data []byte, source string) CaptchaImage {
	img := CaptchaImage{Data: data, Source: source}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img
}

// LoadCaptchaImage reads a CAPTCHA from disk.
func LoadCaptchaImage(path string) (CaptchaImage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return CaptchaImage{}, fmt.Errorf("read captcha %s: %w", path, err)
	}
	if len(b) == 0 {
		return CaptchaImage{}, fmt.Errorf("read captcha %s: empty file", path)
	}
	return NewCaptchaImage(b, path), nil
}
