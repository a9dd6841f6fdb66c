package app

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "reviewbot/pkg/logx"
)

// sdNotifier reports readiness and liveness to systemd (Type=notify units).
// Every call is a no-op when NOTIFY_SOCKET is not set.
type sdNotifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	watchdog time.Duration

	mu       sync.Mutex
	lastPing time.Time
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	n := &sdNotifier{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
	if d, err := daemon.SdWatchdogEnabled(false); err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
	} else {
		n.watchdog = d
	}
	return n
}

func (n *sdNotifier) send(state string) {
	if n == nil || n.notify == nil {
		return
	}
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Tick pings the watchdog at most twice per watchdog interval.
func (n *sdNotifier) Tick() {
	if n == nil || n.watchdog <= 0 {
		return
	}
	now := time.Now()
	n.mu.Lock()
	due := now.Sub(n.lastPing) >= n.watchdog/2
	if due {
		n.lastPing = now
	}
	n.mu.Unlock()
	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}
