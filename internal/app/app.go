package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewbot/internal/alert"
	"reviewbot/internal/config"
	"reviewbot/internal/devman"
	"reviewbot/internal/poller"
	"reviewbot/internal/review"
	"reviewbot/internal/runtime/supervisor"
	kit "reviewbot/internal/transport"
	telegram "reviewbot/internal/transport/telegram/adapter"
	logx "reviewbot/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

// Deps are the outside-world collaborators. New builds the real ones;
// tests pass fakes to NewWithDeps.
type Deps struct {
	API    poller.API
	Sender kit.Sender
	// AlertSender delivers lifecycle alerts. Nil disables alerting.
	AlertSender kit.Sender
}

type App struct {
	cfg      *config.Config
	log      logx.Logger
	loop     *poller.Loop
	observer alert.Observer
	sd       *sdNotifier
}

// New wires the Telegram bots and the review API client from cfg.
func New(cfg *config.Config, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	reqTimeout, err := config.ParseDurationOrDefault("devman.request_timeout", cfg.Devman.RequestTimeout, devman.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	api, err := devman.New(devman.Config{
		URL:     cfg.Devman.URL,
		Token:   cfg.Devman.Token,
		Timeout: reqTimeout,
	})
	if err != nil {
		return nil, err
	}

	bot, err := telegram.New(telegram.Config{
		Token: cfg.Telegram.Token,
		URL:   cfg.Telegram.APIURL,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("notification bot: %w", err)
	}

	deps := Deps{API: api, Sender: bot}
	if cfg.Alerts.Enabled() {
		alertBot, err := telegram.New(telegram.Config{
			Token: cfg.Alerts.Token,
			URL:   cfg.Telegram.APIURL,
		}, log.With(logx.String("comp", "telegram.alerts")))
		if err != nil {
			return nil, fmt.Errorf("alert bot: %w", err)
		}
		deps.AlertSender = alertBot
	}

	a, err := NewWithDeps(cfg, deps, log)
	if err != nil {
		return nil, err
	}
	a.sd = newSDNotifier(log.With(logx.String("comp", "systemd")))
	if wd := a.sd.watchdog; wd > 0 && wd <= a.backoff() {
		log.Warn("systemd watchdog is shorter than the poll backoff; the unit may be killed while backing off",
			logx.Duration("watchdog", wd), logx.Duration("backoff", a.backoff()))
	}
	return a, nil
}

func NewWithDeps(cfg *config.Config, deps Deps, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.API == nil || deps.Sender == nil {
		return nil, errors.New("app: api and sender are required")
	}

	backoff, err := config.ParseDurationOrDefault("poller.backoff", cfg.Poller.Backoff, poller.DefaultBackoff)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("alerts.send_timeout", cfg.Alerts.SendTimeout, alert.DefaultSendTimeout)
	if err != nil {
		return nil, err
	}
	formatter, err := review.NewFormatter(cfg.Devman.BaseURL)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log.With(logx.String("comp", "app"))}

	a.observer = alert.Nop{}
	if deps.AlertSender != nil {
		a.observer = alert.NewReporter(alert.Config{
			Target:      kit.ChatTarget{ChatID: cfg.Alerts.ChatID, ThreadID: cfg.Alerts.ThreadID},
			SendTimeout: sendTimeout,
		}, deps.AlertSender, log.With(logx.String("comp", "alert")))
	}

	a.loop = poller.New(poller.Config{
		Target:           kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		FailureThreshold: cfg.Poller.FailureThreshold,
		Backoff:          backoff,
	}, deps.API, formatter, deps.Sender, log.With(logx.String("comp", "poller")),
		poller.WithTick(func() { a.sd.Tick() }))

	return a, nil
}

func (a *App) backoff() time.Duration {
	d, _ := config.ParseDurationOrDefault("poller.backoff", a.cfg.Poller.Backoff, poller.DefaultBackoff)
	return d
}

// Stats exposes the polling loop state.
func (a *App) Stats() poller.Stats { return a.loop.Stats() }

// Run blocks until ctx is cancelled (returns nil) or the polling loop fails
// (returns the error after reporting the crash). There is no restart.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting", a.cfg.SafeFields()...)
	a.sd.Ready()
	a.observer.Started(ctx)

	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	sup.Go("poller", a.loop.Run)

	err := sup.Wait(context.Background())
	a.sd.Stopping()

	stats := a.loop.Stats()
	counters := sup.Counters()
	fields := []logx.Field{
		logx.Any("polls", stats.Polls),
		logx.Any("delivered", stats.Delivered),
		logx.String("cursor", string(stats.Cursor)),
		logx.Any("goroutines_started", counters.Started),
		logx.Any("goroutines_active", counters.Active),
	}
	if err != nil {
		a.log.Error("bot crashed", append(fields, logx.String("reason", string(StopFatalError)), logx.Err(err))...)
		a.observer.Crashed(ctx, err)
		return err
	}
	a.log.Info("stopped", append(fields, logx.String("reason", string(StopSignal)))...)
	return nil
}
