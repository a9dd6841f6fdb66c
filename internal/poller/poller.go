// Package poller runs the long-poll loop: it owns the cursor, applies the
// connection failure backoff and dispatches new review results.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reviewbot/internal/devman"
	kit "reviewbot/internal/transport"
	logx "reviewbot/pkg/logx"
)

const (
	DefaultFailureThreshold = 5
	DefaultBackoff          = 60 * time.Second
)

// API is the review endpoint as seen by the loop.
type API interface {
	Poll(ctx context.Context, cursor devman.Cursor) (devman.Result, error)
}

type Formatter interface {
	Format(a devman.Attempt) string
}

type Config struct {
	// Target receives one message per reviewed attempt.
	Target kit.ChatTarget
	// FailureThreshold: after every N consecutive connection failures the loop sleeps Backoff.
	FailureThreshold int
	Backoff          time.Duration
}

// Stats is a point-in-time view of the loop state.
type Stats struct {
	Cursor              devman.Cursor
	ConsecutiveFailures int
	Polls               uint64
	Delivered           uint64
	Backoffs            uint64
}

type Option func(*Loop)

// WithSleep replaces the backoff sleep. fn must return early with ctx.Err() when ctx is done.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = fn }
}

// WithTick installs a hook called after every loop iteration.
func WithTick(fn func()) Option {
	return func(l *Loop) { l.tick = fn }
}

type Loop struct {
	cfg    Config
	api    API
	format Formatter
	sender kit.Sender
	log    logx.Logger

	sleep func(ctx context.Context, d time.Duration) error
	tick  func()

	// connWarn samples connection failure warnings: the first one, then once a minute.
	connWarn rate.Sometimes

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, api API, format Formatter, sender kit.Sender, log logx.Logger, opts ...Option) *Loop {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Loop{
		cfg:      cfg,
		api:      api,
		format:   format,
		sender:   sender,
		log:      log,
		sleep:    sleepContext,
		connWarn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Stats returns a snapshot. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run polls until ctx is done or a fatal error occurs.
//
// Timeouts are ignored. Connection failures are retried forever with a backoff
// after every FailureThreshold consecutive failures. Any other error, including
// a failed send, ends the loop and is returned. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	var (
		cursor   devman.Cursor
		failures int
	)

	l.log.Info("polling started",
		logx.Int("failure_threshold", l.cfg.FailureThreshold),
		logx.Duration("backoff", l.cfg.Backoff))

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := l.api.Poll(ctx, cursor)
		l.update(func(s *Stats) { s.Polls++ })

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, devman.ErrTimeout):
			l.log.Debug("long poll timed out")
			l.afterIteration()
			continue
		case errors.Is(err, devman.ErrConnection):
			failures++
			l.update(func(s *Stats) { s.ConsecutiveFailures = failures })
			l.connWarn.Do(func() {
				l.log.Warn("review api unreachable", logx.Int("consecutive_failures", failures), logx.Err(err))
			})
			if failures%l.cfg.FailureThreshold == 0 {
				l.log.Warn("backing off", logx.Int("consecutive_failures", failures), logx.Duration("sleep", l.cfg.Backoff))
				l.update(func(s *Stats) { s.Backoffs++ })
				if err := l.sleep(ctx, l.cfg.Backoff); err != nil {
					return nil
				}
			}
			l.afterIteration()
			continue
		default:
			return fmt.Errorf("poll: %w", err)
		}

		if failures > 0 {
			l.log.Info("review api reachable again", logx.Int("after_failures", failures))
		}
		cursor = res.Cursor
		failures = 0
		l.update(func(s *Stats) {
			s.Cursor = cursor
			s.ConsecutiveFailures = 0
		})

		if res.Status == devman.Found {
			if err := l.dispatch(ctx, res.Attempts); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		l.afterIteration()
	}
}

func (l *Loop) dispatch(ctx context.Context, attempts []devman.Attempt) error {
	for _, a := range attempts {
		text := l.format.Format(a)
		if _, err := l.sender.SendText(ctx, l.cfg.Target, text, nil); err != nil {
			return fmt.Errorf("notify %q: %w", a.LessonTitle, err)
		}
		l.update(func(s *Stats) { s.Delivered++ })
		l.log.Info("review delivered",
			logx.String("lesson", a.LessonTitle),
			logx.Bool("negative", a.IsNegative),
			logx.String("submitted_at", a.SubmittedAt))
	}
	return nil
}

func (l *Loop) afterIteration() {
	if l.tick != nil {
		l.tick()
	}
}

func (l *Loop) update(fn func(s *Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
