package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/appetiteclub/liveboard/internal/app"
	"github.com/appetiteclub/liveboard/internal/config"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", app.AppName, app.AppVersion, err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%s(%s) cannot setup logger: %v", app.AppName, app.AppVersion, err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	a := app.New(cfg, logger)
	if err := a.Initialize(ctx); err != nil {
		log.Fatalf("%s(%s) cannot initialize: %v", app.AppName, app.AppVersion, err)
	}

	logger.Infof("starting %s(%s)", app.AppName, app.AppVersion)

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%s(%s) stopped: %v", app.AppName, app.AppVersion, err)
	}

	logger.Infof("%s(%s) stopped", app.AppName, app.AppVersion)
}

func buildLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
