package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"reviewbot/internal/app"
	"reviewbot/internal/config"
	logx "reviewbot/pkg/logx"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "", "optional path to config json/yaml")
	flag.StringVar(&envPath, "env", ".env", "path to dotenv file (ignored if missing)")
	flag.Parse()

	boot := logx.NewConsole("info")
	if err := config.LoadDotEnv(envPath); err != nil {
		boot.Error("fatal: load dotenv", logx.String("path", envPath), logx.Err(err))
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath, nil)
	if err != nil {
		boot.Error("fatal: load config", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		logs.Close()
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logs.Close()
		os.Exit(1)
	}
}
