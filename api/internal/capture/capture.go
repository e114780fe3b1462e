// Package capture supplies fresh CAPTCHA images: from a directory of saved samples,
// from the portal page over plain HTTP, or from a headless browser.
package capture

import (
	"context"
	"errors"

	"captcha-solver/api/internal/ocr"
)

// ErrNoMoreImages is returned by finite sources once they are drained.
var ErrNoMoreImages = errors.New("capture: no more images")

type Capturer interface {
	Capture(ctx context.Context) (ocr.CaptchaImage, error)
}
