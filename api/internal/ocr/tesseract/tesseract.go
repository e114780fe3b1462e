package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// CaptchaAlphabet is the portal's CAPTCHA character set.
const CaptchaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var errClosed = errors.New("tesseract: engine closed")

// client is the part of *gosseract.Client the engine uses.
type client interface {
	SetLanguage(langs ...string) error
	SetWhitelist(whitelist string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetImageFromBytes(data []byte) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Text() (string, error)
	Close() error
}

// Engine is the local OCR backend. The Tesseract client is built once and reused;
// calls are serialized because the client keeps per-image state.
type Engine struct {
	mu  sync.Mutex
	c   client
	log logrus.FieldLogger

	languages []string
	whitelist string
	psm       gosseract.PageSegMode
	factory   func() client
}

type Option func(*Engine)

func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// WithWhitelist restricts output to chars; an empty string disables the restriction.
func WithWhitelist(chars string) Option {
	return func(e *Engine) { e.whitelist = chars }
}

func WithPageSegMode(mode gosseract.PageSegMode) Option {
	return func(e *Engine) { e.psm = mode }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func withClientFactory(f func() client) Option {
	return func(e *Engine) { e.factory = f }
}

func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		log:       logrus.StandardLogger(),
		languages: []string{"eng"},
		whitelist: CaptchaAlphabet,
		psm:       gosseract.PSM_SINGLE_LINE,
		factory:   func() client { return gosseract.NewClient() },
	}
	for _, opt := range opts {
		opt(e)
	}

	c := e.factory()
	if err := c.SetLanguage(e.languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set language: %w", err)
	}
	if e.whitelist != "" {
		if err := c.SetWhitelist(e.whitelist); err != nil {
			c.Close()
			return nil, fmt.Errorf("tesseract: set whitelist: %w", err)
		}
	}
	if err := c.SetPageSegMode(e.psm); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set psm: %w", err)
	}
	e.c = c
	return e, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize concatenates every detected word in detection order. No confidence threshold is
// applied: a close-but-imperfect read is still a vote.
func (e *Engine) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c == nil {
		return "", errClosed
	}

	if err := e.c.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("tesseract: set image: %w", err)
	}
	boxes, err := e.c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		var sb strings.Builder
		for _, b := range boxes {
			sb.WriteString(strings.TrimSpace(b.Word))
		}
		return sb.String(), nil
	}
	if err != nil {
		e.log.WithError(err).Debug("tesseract: word boxes unavailable, using plain text")
	}
	text, err := e.c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c == nil {
		return nil
	}
	err := e.c.Close()
	e.c = nil
	return err
}
