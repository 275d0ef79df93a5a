package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notiprio/internal/config"
	logx "notiprio/pkg/logx"
)

// systemdNotifier reports lifecycle state over sd_notify. Every call is a
// no-op outside systemd (NOTIFY_SOCKET unset).
type systemdNotifier struct {
	cfg config.SystemdConfig
	log logx.Logger

	// notify is daemon.SdNotify; tests swap it.
	notify func(unsetEnvironment bool, state string) (bool, error)
	// watchdog is daemon.SdWatchdogEnabled.
	watchdog func(unsetEnvironment bool) (time.Duration, error)
}

func newSystemdNotifier(cfg config.SystemdConfig, log logx.Logger) *systemdNotifier {
	return &systemdNotifier{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "systemd")),
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

func (n *systemdNotifier) send(state string) {
	if !n.cfg.Notify {
		return
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	n.log.Debug("sd_notify", logx.String("state", state), logx.Bool("sent", sent))
}

func (n *systemdNotifier) ready()    { n.send(daemon.SdNotifyReady) }
func (n *systemdNotifier) stopping() { n.send(daemon.SdNotifyStopping) }

// watchdogInterval is half the unit's WatchdogSec, or 0 when the watchdog
// is off.
func (n *systemdNotifier) watchdogInterval() time.Duration {
	if !n.cfg.Notify || !n.cfg.Watchdog {
		return 0
	}
	d, err := n.watchdog(false)
	if err != nil {
		n.log.Warn("watchdog check failed", logx.Err(err))
		return 0
	}
	return d / 2
}

func (n *systemdNotifier) watchdogLoop(ctx context.Context) error {
	interval := n.watchdogInterval()
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
