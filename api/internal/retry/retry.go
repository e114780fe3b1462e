// Package retry drives capture → solve → submit until the portal accepts an answer
// or the attempt budget runs out.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/ocr"
)

// ErrExhausted is returned when every attempt was rejected.
var ErrExhausted = errors.New("captcha: retries exhausted")

const DefaultMaxAttempts = 3

type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateSolving   State = "solving"
	StateSubmitted State = "submitted"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
)

// Capturer returns a fresh CAPTCHA on every call.
type Capturer interface {
	Capture(ctx context.Context) (ocr.CaptchaImage, error)
}

type Solver interface {
	Solve(ctx context.Context, img ocr.CaptchaImage) ocr.Decision
}

// Submitter enters the answer on the portal and reports whether it was accepted.
type Submitter func(ctx context.Context, answer string) (bool, error)

// Attempt is one pass through the loop.
type Attempt struct {
	N        int           `json:"n"`
	Source   string        `json:"source,omitempty"`
	Decision ocr.Decision  `json:"decision"`
	State    State         `json:"state"`
	Err      string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Recorder persists attempts (see store.AttemptRepo).
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

type Result struct {
	Answer   string    `json:"answer,omitempty"`
	Accepted bool      `json:"accepted"`
	Attempts []Attempt `json:"attempts"`
	// LastImage is the most recent successful capture, kept for ManualEntry.
	LastImage ocr.CaptchaImage `json:"-"`
}

// Asker asks a human operator to read a CAPTCHA.
type Asker interface {
	Ask(ctx context.Context, image []byte, caption string) (string, error)
}

type Controller struct {
	capturer    Capturer
	solver      Solver
	maxAttempts int
	onState     func(attempt int, from, to State)
	recorder    Recorder
	log         logrus.FieldLogger

	state State
}

type Option func(*Controller)

func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(attempt int, from, to State)) Option {
	return func(c *Controller) { c.onState = fn }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

func New(capturer Capturer, solver Solver, opts ...Option) *Controller {
	c := &Controller{
		capturer:    capturer,
		solver:      solver,
		maxAttempts: DefaultMaxAttempts,
		log:         logrus.StandardLogger(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) MaxAttempts() int { return c.maxAttempts }

func (c *Controller) moveTo(n int, to State) {
	from := c.state
	c.state = to
	if c.onState != nil {
		c.onState(n, from, to)
	}
}

// Run loops until an answer is accepted. Every attempt captures a new image; a capture
// error or an unsolved decision is a rejected attempt without a submit.
// Controller is not safe for concurrent Run calls.
func (c *Controller) Run(ctx context.Context, submit Submitter) (Result, error) {
	var res Result
	c.state = StateIdle
	defer func() { c.state = StateIdle }()

	for n := 1; n <= c.maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a, img := c.attempt(ctx, n, submit)
		if img.Data != nil {
			res.LastImage = img
		}
		res.Attempts = append(res.Attempts, a)
		c.record(ctx, a)

		if a.State == StateAccepted {
			res.Answer, res.Accepted = a.Decision.Answer, true
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return res, fmt.Errorf("%w after %d attempts", ErrExhausted, c.maxAttempts)
}

func (c *Controller) attempt(ctx context.Context, n int, submit Submitter) (Attempt, ocr.CaptchaImage) {
	a := Attempt{N: n, Started: time.Now()}
	log := c.log.WithField("attempt", n)

	c.moveTo(n, StateCapturing)
	img, err := c.capturer.Capture(ctx)
	if err != nil {
		log.WithError(err).Warn("capture failed")
		return c.reject(a, fmt.Errorf("capture: %w", err)), ocr.CaptchaImage{}
	}
	a.Source = img.Source

	c.moveTo(n, StateSolving)
	a.Decision = c.solver.Solve(ctx, img)
	if !a.Decision.Solved {
		log.WithField("attempt_id", a.Decision.AttemptID).Info("no answer, recapturing")
		return c.reject(a, nil), img
	}
	return c.submit(ctx, a, submit), img
}

func (c *Controller) submit(ctx context.Context, a Attempt, submit Submitter) Attempt {
	log := c.log.WithField("attempt", a.N)

	c.moveTo(a.N, StateSubmitted)
	ok, err := submit(ctx, a.Decision.Answer)
	if err != nil {
		log.WithError(err).Warn("submit failed")
		return c.reject(a, fmt.Errorf("submit: %w", err))
	}
	if !ok {
		log.WithField("answer", a.Decision.Answer).Info("answer rejected")
		return c.reject(a, nil)
	}
	a.State = StateAccepted
	a.Duration = time.Since(a.Started)
	c.moveTo(a.N, StateAccepted)
	log.WithField("answer", a.Decision.Answer).Info("answer accepted")
	return a
}

func (c *Controller) reject(a Attempt, err error) Attempt {
	if err != nil {
		a.Err = err.Error()
	}
	a.State = StateRejected
	a.Duration = time.Since(a.Started)
	c.moveTo(a.N, StateRejected)
	return a
}

// ManualEntry runs one extra attempt after Run gave up: the operator reads
// res.LastImage and their reply goes through the same submit step. The
// attempt is appended to res and recorded like any other.
func (c *Controller) ManualEntry(ctx context.Context, res *Result, ask Asker, submit Submitter) error {
	if res.LastImage.Data == nil {
		return errors.New("captcha: no image captured for manual entry")
	}
	c.state = StateIdle
	defer func() { c.state = StateIdle }()

	a := Attempt{N: len(res.Attempts) + 1, Source: res.LastImage.Source, Started: time.Now()}
	a.Decision = ocr.Decision{AttemptID: uuid.NewString(), Rule: ocr.RuleOperator}

	c.moveTo(a.N, StateSolving)
	caption := fmt.Sprintf("CAPTCHA %s: OCR gave up after %d attempts, reply with the characters",
		a.Decision.AttemptID, len(res.Attempts))
	reply, err := ask.Ask(ctx, res.LastImage.Data, caption)
	if err != nil {
		a = c.reject(a, fmt.Errorf("operator: %w", err))
		c.finish(ctx, res, a)
		return fmt.Errorf("captcha: operator: %w", err)
	}
	cand := ocr.NewCandidate(reply, "operator", "original")
	a.Decision.Candidates = []ocr.Candidate{cand}
	if cand.Text == "" {
		a = c.reject(a, nil)
		c.finish(ctx, res, a)
		return fmt.Errorf("%w: empty operator reply", ErrExhausted)
	}
	a.Decision.Answer, a.Decision.Solved = cand.Text, true

	a = c.submit(ctx, a, submit)
	c.finish(ctx, res, a)
	if a.State != StateAccepted {
		return fmt.Errorf("%w: operator answer rejected", ErrExhausted)
	}
	return nil
}

func (c *Controller) finish(ctx context.Context, res *Result, a Attempt) {
	res.Attempts = append(res.Attempts, a)
	c.record(ctx, a)
	if a.State == StateAccepted {
		res.Answer, res.Accepted = a.Decision.Answer, true
	}
}

func (c *Controller) record(ctx context.Context, a Attempt) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordAttempt(ctx, a); err != nil {
		c.log.WithError(err).WithField("attempt", a.N).Warn("record attempt")
	}
}
