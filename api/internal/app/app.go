// Package app wires configured backends into a ready solver for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/config"
	"captcha-solver/api/internal/handle"
	"captcha-solver/api/internal/ocr"
	"captcha-solver/api/internal/ocr/gemini"
	"captcha-solver/api/internal/ocr/tesseract"
	"captcha-solver/api/internal/ocr/vision"
	"captcha-solver/api/internal/preprocess"
	"captcha-solver/api/internal/solver"
	"captcha-solver/api/internal/telegram"
	"captcha-solver/api/internal/util"
)

type App struct {
	Engines   *ocr.Engines
	Solver    *solver.Solver
	Vision    *vision.Engine
	Escalator *telegram.Escalator

	tess *tesseract.Engine
}

// Build constructs every enabled backend. escalate sets up the Telegram escalator when
// it is configured; the HTTP service leaves it off. Operator entry itself is driven by
// the retry controller, not the solver.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, escalate bool) (*App, error) {
	a := &App{Engines: &ocr.Engines{}}

	if cfg.VisionAPIKey != "" {
		opts := []vision.Option{
			vision.WithTimeout(cfg.VisionTimeout),
			vision.WithMaxResults(cfg.VisionMaxResults),
			vision.WithDisableOnFailure(cfg.DisableOnFailedCheck),
			vision.WithLogger(log),
		}
		if cfg.VisionEndpoint != "" {
			opts = append(opts, vision.WithEndpoint(cfg.VisionEndpoint))
		}
		v, err := vision.New(ctx, cfg.VisionAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("vision: %w", err)
		}
		if !v.CheckCredentials(ctx) {
			log.Warn("vision: credential self-check failed")
		}
		entry := log.WithFields(logrus.Fields{
			"key":      util.MaskSecret(cfg.VisionAPIKey),
			"disabled": v.Disabled(),
		})
		if v.Disabled() {
			entry.Warn("vision: configured but disabled, local engines only")
		} else {
			entry.Info("vision: enabled")
		}
		a.Vision = v
		a.Engines.Vision = v
	}

	if cfg.GeminiAPIKey != "" {
		g := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, log)
		log.WithField("model", g.GetModel()).Info("gemini: enabled")
		a.Engines.Gemini = g
	}
	if !cfg.CloudEnabled() {
		log.Warn("no cloud backend configured, local engine only")
	}

	if cfg.TesseractEnabled {
		opts := []tesseract.Option{tesseract.WithLogger(log)}
		if len(cfg.TesseractLanguages) > 0 {
			opts = append(opts, tesseract.WithLanguages(cfg.TesseractLanguages...))
		}
		if !cfg.TesseractWhitelist {
			opts = append(opts, tesseract.WithWhitelist(""))
		}
		t, err := tesseract.New(opts...)
		if err != nil {
			return nil, err
		}
		a.tess = t
		a.Engines.Tesseract = t
	}

	backends := a.Engines.List()
	if len(backends) == 0 {
		return nil, errors.New("no OCR backend configured")
	}

	sopts := []solver.Option{
		solver.WithLogger(log),
		solver.WithDebugDir(cfg.DebugDir, cfg.SaveDebug),
	}
	if escalate && cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		esc, err := telegram.NewFromToken(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramReplyTimeout, telegram.WithLogger(log))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Escalator = esc
	}

	pre := preprocess.New(preprocess.WithLogger(log), preprocess.WithMorphologyDilation(cfg.MorphDilate))
	a.Solver = solver.New(pre, backends, sopts...)
	log.WithFields(logrus.Fields{
		"backends": a.Solver.Backends(),
		"variants": pre.Methods(),
	}).Info("solver ready")
	return a, nil
}

// Checker returns the cloud credential checker, nil when Vision is off.
func (a *App) Checker() handle.CredentialChecker {
	if a.Vision == nil {
		return nil
	}
	return a.Vision
}

func (a *App) Close() error {
	if a.tess != nil {
		return a.tess.Close()
	}
	return nil
}
