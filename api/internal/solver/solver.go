// Package solver glues the preprocessor, the recognizers and the voter into one solve run.
package solver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/ocr"
	"captcha-solver/api/internal/ocr/vision"
	"captcha-solver/api/internal/preprocess"
)

type Solver struct {
	pre       *preprocess.Preprocessor
	backends  []ocr.Recognizer
	voter     ocr.Voter
	debugDir  string
	saveDebug bool
	log       logrus.FieldLogger
}

type Option func(*Solver)

func WithVoter(v ocr.Voter) Option {
	return func(s *Solver) { s.voter = v }
}

// WithDebugDir sets where SolveDebug (and Solve, if save is true) writes the variants.
func WithDebugDir(dir string, save bool) Option {
	return func(s *Solver) { s.debugDir, s.saveDebug = dir, save }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Solver) { s.log = l }
}

func New(pre *preprocess.Preprocessor, backends []ocr.Recognizer, opts ...Option) *Solver {
	s := &Solver{
		pre:      pre,
		backends: backends,
		voter:    ocr.DefaultVoter,
		debugDir: "debug_images",
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pre == nil {
		s.pre = preprocess.New(preprocess.WithLogger(s.log))
	}
	return s
}

// Backends returns the recognizer names in consultation order.
func (s *Solver) Backends() []string {
	out := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		out = append(out, b.Name())
	}
	return out
}

// Solve runs one attempt. It never returns an error: recognizer failures end up in
// Decision.Failures and an attempt without a usable read is reported as unsolved.
func (s *Solver) Solve(ctx context.Context, img ocr.CaptchaImage) ocr.Decision {
	return s.solve(ctx, img, s.saveDebug)
}

// SolveDebug is Solve with the variants always written to the debug dir.
func (s *Solver) SolveDebug(ctx context.Context, img ocr.CaptchaImage) ocr.Decision {
	return s.solve(ctx, img, true)
}

func (s *Solver) solve(ctx context.Context, img ocr.CaptchaImage, save bool) ocr.Decision {
	id := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"attempt_id": id, "source": img.Source})

	variants := s.pre.Run(img)

	var (
		cands    []ocr.Candidate
		failures []ocr.BackendFailure
	)
	for _, v := range variants {
		for _, b := range s.backends {
			if err := ctx.Err(); err != nil {
				failures = append(failures, ocr.BackendFailure{Backend: b.Name(), Variant: string(v.Method), Reason: err.Error()})
				continue
			}
			raw, err := b.Recognize(ctx, v.Image)
			if err != nil {
				failures = append(failures, ocr.BackendFailure{Backend: b.Name(), Variant: string(v.Method), Reason: err.Error()})
				entry := log.WithError(err).WithFields(logrus.Fields{"backend": b.Name(), "variant": v.Method})
				if errors.Is(err, vision.ErrDisabled) {
					entry.Debug("backend disabled")
				} else {
					entry.Warn("recognize failed")
				}
				continue
			}
			c := ocr.NewCandidate(raw, b.Name(), string(v.Method))
			log.WithFields(logrus.Fields{
				"backend": c.Backend,
				"variant": c.Variant,
				"raw":     c.Raw,
				"text":    c.Text,
				"valid":   c.Valid,
			}).Debug("candidate")
			cands = append(cands, c)
		}
	}

	d := s.voter.Vote(cands)
	d.AttemptID = id
	d.Failures = failures

	if save {
		files, err := preprocess.SaveVariants(s.debugDir, id, variants)
		if err != nil {
			log.WithError(err).Warn("save debug variants")
		}
		d.DebugFiles = files
	}

	log.WithFields(logrus.Fields{
		"answer":     d.Answer,
		"solved":     d.Solved,
		"rule":       d.Rule,
		"candidates": d.Texts(),
		"failures":   len(d.Failures),
	}).Info("captcha decision")
	return d
}
