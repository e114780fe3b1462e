package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"captcha-solver/api/internal/app"
	"captcha-solver/api/internal/config"
	handle "captcha-solver/api/internal/handle"
	"captcha-solver/api/internal/httpserver"
	"captcha-solver/api/internal/logging"
)

func main() {
	cfgFile := flag.String("config", os.Getenv("CAPTCHA_CONFIG"), "config file (json/yaml/toml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logging.New("info", "text", nil).WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, false)
	if err != nil {
		log.WithError(err).Fatal("build solver")
	}
	defer a.Close()

	mux := httpserver.NewMux("ok")
	h := handle.New(a.Solver, a.Engines, a.Checker(), log)
	h.Routes(mux)

	addr := ":" + cfg.Port
	log.Infof("captcha-proxy listening on %s", addr)
	if err := httpserver.StartHTTP(ctx, addr, mux, log); err != nil {
		log.WithError(err).Fatal("http server")
	}
}
