package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/app"
	"captcha-solver/api/internal/capture"
	"captcha-solver/api/internal/config"
	"captcha-solver/api/internal/ocr"
	"captcha-solver/api/internal/retry"
)

func cmdSolve(ctx context.Context, a *app.App, args []string, log logrus.FieldLogger) int {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "save preprocessed variants to the debug dir")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Println("solve: no image files given")
		return 2
	}
	code := 0
	for _, path := range fs.Args() {
		img, err := ocr.LoadCaptchaImage(path)
		if err != nil {
			log.WithError(err).Error("load image")
			code = 1
			continue
		}
		var d ocr.Decision
		if *debug {
			d = a.Solver.SolveDebug(ctx, img)
		} else {
			d = a.Solver.Solve(ctx, img)
		}
		printJSON(struct {
			File string `json:"file"`
			ocr.Decision
		}{path, d})
		if !d.Solved {
			code = 1
		}
	}
	return code
}

type evalReport struct {
	Total    int            `json:"total"`
	Solved   int            `json:"solved"`
	Correct  int            `json:"correct"`
	Accuracy float64        `json:"accuracy"`
	ByRule   map[string]int `json:"by_rule"`
	Misses   []evalMiss     `json:"misses,omitempty"`
}

type evalMiss struct {
	File   string `json:"file"`
	Want   string `json:"want"`
	Got    string `json:"got"`
	Solved bool   `json:"solved"`
}

// cmdEval replays a labelled corpus; every image is recorded as a one-attempt run.
func cmdEval(ctx context.Context, cfg *config.Config, a *app.App, args []string, log logrus.FieldLogger) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	dir := fs.String("dir", cfg.CaptureDir, "directory of <answer>.<ext> samples")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	src, err := capture.NewDir(*dir)
	if err != nil {
		log.WithError(err).Error("eval")
		return 1
	}
	log.WithField("samples", src.Len()).Info("eval: corpus loaded")
	rec, closeDB := openRecorder(ctx, cfg, log)
	defer closeDB()

	rep := evalReport{ByRule: map[string]int{}}
	for {
		started := time.Now()
		img, err := src.Capture(ctx)
		if errors.Is(err, capture.ErrNoMoreImages) || isCancelled(err) {
			break
		}
		if err != nil {
			log.WithError(err).Warn("skip sample")
			continue
		}
		d := a.Solver.Solve(ctx, img)
		want := capture.Label(img.Source)
		ok, _ := src.Check(ctx, d.Answer)

		rep.Total++
		rep.ByRule[string(d.Rule)]++
		if d.Solved {
			rep.Solved++
		}
		state := retry.StateRejected
		if ok {
			rep.Correct++
			state = retry.StateAccepted
		} else {
			rep.Misses = append(rep.Misses, evalMiss{File: img.Source, Want: want, Got: d.Answer, Solved: d.Solved})
		}
		if rec != nil {
			att := retry.Attempt{N: 1, Source: img.Source, Decision: d, State: state, Started: started, Duration: time.Since(started)}
			if err := rec.RecordAttempt(ctx, att); err != nil {
				log.WithError(err).Warn("record attempt")
			}
		}
	}
	if rep.Total > 0 {
		rep.Accuracy = float64(rep.Correct) / float64(rep.Total)
	}
	printJSON(rep)
	if rep.Total == 0 {
		return 1
	}
	return 0
}

// newCapturer opens the source named by capture.mode. The returned func releases it.
func newCapturer(cfg *config.Config) (capture.Capturer, func(), error) {
	switch cfg.CaptureMode {
	case "dir":
		d, err := capture.NewDir(cfg.CaptureDir)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	case "page":
		p, err := capture.NewPage(cfg.CaptureURL, cfg.CaptureSelector, 0)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	case "browser":
		b, err := capture.NewBrowser(cfg.CaptureURL, cfg.CaptureSelector)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown capture.mode %q", cfg.CaptureMode)
}

// cmdCapture saves fresh CAPTCHAs from the configured source for labelling.
func cmdCapture(ctx context.Context, cfg *config.Config, args []string, log logrus.FieldLogger) int {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of images to save")
	dir := fs.String("dir", "samples", "output directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	capt, release, err := newCapturer(cfg)
	if err != nil {
		log.WithError(err).Error("capture")
		return 1
	}
	defer release()

	paths, err := capture.Collect(ctx, capt, *dir, *n)
	for _, p := range paths {
		fmt.Println(p)
	}
	log.WithFields(logrus.Fields{"mode": cfg.CaptureMode, "saved": len(paths), "dir": *dir}).Info("capture done")
	if err != nil {
		log.WithError(err).Error("capture")
		return 1
	}
	return 0
}

func cmdRun(ctx context.Context, cfg *config.Config, a *app.App, args []string, log logrus.FieldLogger) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	attempts := fs.Int("attempts", cfg.MaxAttempts, "max capture/solve/submit attempts")
	inputSel := fs.String("input", "input[name='captcha']", "browser mode: answer input selector")
	submitSel := fs.String("submit", "button[type='submit']", "browser mode: submit button selector")
	errorSel := fs.String("error", ".error", "browser mode: selector present when the answer was rejected")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	capt, release, err := newCapturer(cfg)
	if err != nil {
		log.WithError(err).Error("run")
		return 1
	}
	defer release()

	var submit retry.Submitter
	switch c := capt.(type) {
	case *capture.Dir:
		submit = c.Check
	case *capture.Browser:
		submit = c.Submitter(*inputSel, *submitSel, *errorSel)
	default:
		log.Errorf("run: capture.mode=%s has no submit step, use dir or browser", cfg.CaptureMode)
		return 2
	}

	rec, closeDB := openRecorder(ctx, cfg, log)
	defer closeDB()

	opts := []retry.Option{
		retry.WithMaxAttempts(*attempts),
		retry.WithLogger(log),
		retry.WithTransitionHook(func(n int, from, to retry.State) {
			log.WithFields(logrus.Fields{"attempt": n, "from": from, "to": to}).Debug("state")
		}),
	}
	if rec != nil {
		opts = append(opts, retry.WithRecorder(rec))
	}
	started := time.Now()
	ctrl := retry.New(capt, a.Solver, opts...)
	res, err := ctrl.Run(ctx, submit)
	if a.Escalator != nil && errors.Is(err, retry.ErrExhausted) {
		log.Info("retries exhausted, asking the operator")
		if merr := ctrl.ManualEntry(ctx, &res, a.Escalator, submit); merr != nil {
			log.WithError(merr).Warn("operator entry failed")
			if nerr := a.Escalator.Notify(fmt.Sprintf("captcha-solve: %v", merr)); nerr != nil {
				log.WithError(nerr).Warn("notify operator")
			}
		} else {
			err = nil
		}
	}
	printJSON(res)
	if rec != nil {
		if st, serr := rec.Stats(ctx, started.Add(-24*time.Hour)); serr == nil {
			log.WithFields(logrus.Fields{"total": st.Total, "solved": st.Solved, "accepted": st.Accepted}).Info("attempts in the last 24h")
		}
	}
	if err != nil {
		log.WithError(err).Error("captcha not accepted")
		return 1
	}
	return 0
}
