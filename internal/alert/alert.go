// Package alert reports the bot lifecycle (started, crashed) to an operator chat.
package alert

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	kit "reviewbot/internal/transport"
	logx "reviewbot/pkg/logx"
)

const (
	DefaultSendTimeout = 10 * time.Second

	startedText = "Бот запущен"
	crashedText = "Бот упал с ошибкой"

	// Keeps the crash report inside a single Telegram message.
	maxReportLen = 3500
)

// Observer is notified at well-defined points of the loop lifecycle.
// Implementations must not panic and must not block indefinitely.
type Observer interface {
	Started(ctx context.Context)
	Crashed(ctx context.Context, err error)
}

// Nop is used when no alert channel is configured.
type Nop struct{}

func (Nop) Started(context.Context)        {}
func (Nop) Crashed(context.Context, error) {}

type Config struct {
	Target      kit.ChatTarget
	SendTimeout time.Duration
}

// Reporter sends lifecycle notices through a secondary bot. Delivery is
// best-effort: failures are logged and dropped.
type Reporter struct {
	cfg    Config
	sender kit.Sender
	log    logx.Logger
}

func NewReporter(cfg Config, sender kit.Sender, log logx.Logger) *Reporter {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{cfg: cfg, sender: sender, log: log}
}

func (r *Reporter) Started(ctx context.Context) {
	r.send(ctx, "started", startedText)
}

func (r *Reporter) Crashed(ctx context.Context, err error) {
	text := crashedText
	if err != nil {
		text += ":\n" + err.Error()
	}
	r.send(ctx, "crashed", truncate(text, maxReportLen))
}

func (r *Reporter) send(ctx context.Context, kind, text string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("alert sender panicked",
				logx.String("kind", kind),
				logx.String("panic", fmt.Sprint(p)),
				logx.Stack(string(debug.Stack())))
		}
	}()

	if r.sender == nil || r.cfg.Target.IsZero() {
		return
	}
	// The crash report is sent while the root context is usually already done.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SendTimeout)
	defer cancel()

	if _, err := r.sender.SendText(sctx, r.cfg.Target, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("alert not delivered", logx.String("kind", kind), logx.Err(err))
		return
	}
	r.log.Debug("alert delivered", logx.String("kind", kind))
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len([]rune(s)) <= maxN {
		return s
	}
	rs := []rune(s)
	return strings.TrimSpace(string(rs[:maxN-3])) + "..."
}
