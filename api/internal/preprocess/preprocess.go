// Package preprocess turns one raw CAPTCHA bitmap into a fixed, ordered set of variants,
// each tuned for a different way OCR fails on it.
package preprocess

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/ocr"
)

// Method names the transform that produced a variant.
type Method string

const (
	MethodContrast   Method = "contrast_sharpen"
	MethodAdaptive   Method = "adaptive_threshold"
	MethodDenoise    Method = "denoise_clahe_otsu"
	MethodMorphology Method = "morphology"
)

// Transform maps a decoded CAPTCHA onto one OCR-ready image. Transforms must be deterministic.
type Transform func(img image.Image) (image.Image, error)

// Step binds a transform to the method name reported on its variant.
type Step struct {
	Method Method
	Apply  Transform
}

// Variant is one preprocessed image, PNG-encoded in memory.
type Variant struct {
	Method Method
	Image  []byte
	// Fallback is set when the transform failed and Image holds the original bytes.
	Fallback bool
	Err      error
}

type Preprocessor struct {
	steps  []Step
	dilate int
	log    logrus.FieldLogger
}

type Option func(*Preprocessor)

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Preprocessor) { p.log = l }
}

// WithTransforms replaces the default four steps.
func WithTransforms(steps ...Step) Option {
	return func(p *Preprocessor) { p.steps = append([]Step(nil), steps...) }
}

// WithMorphologyDilation enables a final size×size dilation in the morphology step
// to rejoin broken strokes. Zero disables it.
func WithMorphologyDilation(size int) Option {
	return func(p *Preprocessor) { p.dilate = size }
}

func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	if p.steps == nil {
		p.steps = DefaultSteps(p.dilate)
	}
	return p
}

// DefaultSteps returns the standard variant menu in output order.
func DefaultSteps(dilate int) []Step {
	return []Step{
		{Method: MethodContrast, Apply: contrastSharpen},
		{Method: MethodAdaptive, Apply: adaptiveThreshold},
		{Method: MethodDenoise, Apply: denoiseCLAHEOtsu},
		{Method: MethodMorphology, Apply: morphology(dilate)},
	}
}

// Methods lists the method of every configured step in output order.
func (p *Preprocessor) Methods() []Method {
	out := make([]Method, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, s.Method)
	}
	return out
}

// Run produces one variant per step. It never fails: a step that errors or panics, or an
// undecodable input, yields the original bytes for that slot.
func (p *Preprocessor) Run(c ocr.CaptchaImage) []Variant {
	src, decErr := imaging.Decode(bytes.NewReader(c.Data))
	if decErr != nil {
		decErr = fmt.Errorf("decode captcha: %w", decErr)
	}

	out := make([]Variant, 0, len(p.steps))
	for _, s := range p.steps {
		v := Variant{Method: s.Method}
		err := decErr
		if err == nil {
			v.Image, err = apply(s, src)
		}
		if err != nil {
			p.log.WithFields(logrus.Fields{
				"method": s.Method,
				"source": c.Source,
			}).WithError(err).Warn("preprocess: transform failed, using original image")
			v.Image, v.Fallback, v.Err = c.Data, true, err
		}
		out = append(out, v)
	}
	return out
}

func apply(s Step, src image.Image) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", s.Method, r)
		}
	}()
	img, err := s.Apply(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Method, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%s: empty result", s.Method)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%s: encode png: %w", s.Method, err)
	}
	return buf.Bytes(), nil
}
