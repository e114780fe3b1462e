package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"captcha-solver/api/internal/ocr"
)

const (
	featureTextDetection = "TEXT_DETECTION"

	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 10
	checkTimeout      = 10 * time.Second
)

// ErrDisabled is returned once the engine has been switched off after a credential failure.
var ErrDisabled = errors.New("vision: engine disabled after credential failure")

// Engine reads CAPTCHAs with Google Cloud Vision TEXT_DETECTION.
type Engine struct {
	svc        *vision.Service
	timeout    time.Duration
	maxResults int64
	// disableOnFailure turns the engine off for the rest of the process after a failed
	// self-check or a 400/401/403 answer.
	disableOnFailure bool
	disabled         atomic.Bool
	log              logrus.FieldLogger

	endpoint string
}

type Option func(*Engine)

// WithEndpoint points the client at another base URL (must end with "/").
func WithEndpoint(url string) Option {
	return func(e *Engine) { e.endpoint = url }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMaxResults(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

func WithDisableOnFailure(on bool) Option {
	return func(e *Engine) { e.disableOnFailure = on }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an engine authenticated by an API key passed as the key= query parameter.
func New(ctx context.Context, apiKey string, opts ...Option) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("vision: api key is empty")
	}
	e := &Engine{
		timeout:          defaultTimeout,
		maxResults:       defaultMaxResults,
		disableOnFailure: true,
		log:              logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	copts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if e.endpoint != "" {
		copts = append(copts, option.WithEndpoint(e.endpoint))
	}
	svc, err := vision.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("vision: new service: %w", err)
	}
	e.svc = svc
	return e, nil
}

func (e *Engine) Name() string { return "vision" }

// Disabled reports whether the engine has been switched off.
func (e *Engine) Disabled() bool { return e.disabled.Load() }

// Recognize returns the normalized full-text annotation, or "" when the service found no text
// or the read is outside ocr.CloudBand. Service and transport failures are errors.
func (e *Engine) Recognize(ctx context.Context, img []byte) (string, error) {
	if e.disabled.Load() {
		return "", ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.annotate(ctx, img, e.maxResults)
	if err != nil {
		if e.disableOnFailure && isCredentialError(err) {
			e.disable(err)
		}
		return "", err
	}

	clean := ocr.Normalize(text)
	if clean == "" {
		e.log.Debug("vision: no text detected")
		return "", nil
	}
	if !ocr.CloudBand.Contains(clean) {
		e.log.WithFields(logrus.Fields{"text": clean, "len": len(clean)}).Warn("vision: read outside accepted length")
		return "", nil
	}
	return clean, nil
}

// CheckCredentials annotates a 1×1 image once and reports whether the key is usable.
// Only a rejected key (400/401/403) disables the engine; a passing check re-enables it.
func (e *Engine) CheckCredentials(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := e.annotate(ctx, onePixelPNG(), 0); err != nil {
		e.log.WithError(err).Error("vision: credential check failed")
		if e.disableOnFailure && isCredentialError(err) {
			e.disable(err)
		}
		return false
	}
	if e.disabled.CompareAndSwap(true, false) {
		e.log.Info("vision: credential check ok, cloud recognition re-enabled")
	} else {
		e.log.Info("vision: credential check ok")
	}
	return true
}

func (e *Engine) annotate(ctx context.Context, img []byte, maxResults int64) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(img)},
			Features: []*vision.Feature{{Type: featureTextDetection, MaxResults: maxResults}},
		}},
	}
	resp, err := e.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return "", fmt.Errorf("vision annotate: status %d: %s", r.Error.Code, r.Error.Message)
	}
	// первая аннотация: весь распознанный блок
	if len(r.TextAnnotations) == 0 {
		return "", nil
	}
	return r.TextAnnotations[0].Description, nil
}

func (e *Engine) disable(reason error) {
	if e.disabled.CompareAndSwap(false, true) {
		e.log.WithError(reason).Error("vision: disabling cloud recognition for the rest of the run")
	}
}

func isCredentialError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func onePixelPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
