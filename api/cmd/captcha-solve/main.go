package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/app"
	"captcha-solver/api/internal/config"
	"captcha-solver/api/internal/logging"
	"captcha-solver/api/internal/store"
)

const usage = `usage: captcha-solve [-config file] <command> [flags]

commands:
  solve  <image>...     solve image files and print the decisions as JSON
  eval   [-dir D]       solve a labelled corpus (<answer>.png) and report accuracy
  check                 run the cloud credential self-check
  run    [flags]        capture → solve → submit with retries, then ask the operator
  capture [-n N] [-dir D]
                        save N fresh CAPTCHAs from capture.mode for labelling
`

func main() {
	cfgFile := flag.String("config", os.Getenv("CAPTCHA_CONFIG"), "config file (json/yaml/toml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logging.New("info", "text", nil).WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var code int
	switch cmd {
	case "solve":
		code = withApp(ctx, cfg, log, false, func(a *app.App) int { return cmdSolve(ctx, a, args, log) })
	case "eval":
		code = withApp(ctx, cfg, log, false, func(a *app.App) int { return cmdEval(ctx, cfg, a, args, log) })
	case "check":
		code = withApp(ctx, cfg, log, false, func(a *app.App) int { return cmdCheck(ctx, a) })
	case "run":
		code = withApp(ctx, cfg, log, true, func(a *app.App) int { return cmdRun(ctx, cfg, a, args, log) })
	case "capture":
		code = cmdCapture(ctx, cfg, args, log)
	default:
		flag.Usage()
		code = 2
	}
	os.Exit(code)
}

func withApp(ctx context.Context, cfg *config.Config, log *logrus.Logger, escalate bool, fn func(*app.App) int) int {
	a, err := app.Build(ctx, cfg, log, escalate)
	if err != nil {
		log.WithError(err).Error("build solver")
		return 1
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdCheck(ctx context.Context, a *app.App) int {
	if a.Vision == nil {
		fmt.Println("vision: not configured")
		return 1
	}
	if !a.Vision.CheckCredentials(ctx) {
		fmt.Printf("vision: credential check FAILED (disabled=%v)\n", a.Vision.Disabled())
		return 1
	}
	fmt.Println("vision: ok")
	return 0
}

// openRecorder returns the attempt log when a database is configured, nil otherwise.
func openRecorder(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*store.AttemptRepo, func()) {
	dsn := store.ResolveDSN(cfg.DatabaseURL)
	if dsn == "" {
		return nil, func() {}
	}
	db, err := store.Open(ctx, dsn)
	if err != nil {
		log.WithError(err).Warn("attempt log disabled")
		return nil, func() {}
	}
	log.Infof("db connected: %s", store.SafeDSNSummary(dsn))
	repo := store.NewAttemptRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.WithError(err).Warn("attempt log disabled")
		db.Close()
		return nil, func() {}
	}
	return repo, func() { db.Close() }
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
