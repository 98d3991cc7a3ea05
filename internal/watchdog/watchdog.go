// Package watchdog tracks the shop-floor host peer's reachability so the
// Sender Loop only attempts delivery while the peer is believed to be up.
package watchdog

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"go.databridge.dev/internal/common/metrics"
)

// State is the watchdog's externally visible peer state.
type State int32

const (
	StateUnknown State = iota
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// Watchdog periodically probes the peer via HTTP GET and, optionally, ICMP
// ping, and tracks an up/down state with hysteresis: a single success moves
// the state to up immediately, while DownAfter consecutive failures are
// required before moving to down. This mirrors how a flapping network link
// should be treated more suspiciously going down than coming back up.
type Watchdog struct {
	client      *http.Client
	healthURL   string
	pingHost    string
	pingEnabled bool
	timeout     time.Duration
	interval    time.Duration
	downAfter   int

	state       atomic.Int32
	failures    atomic.Int32
	lastChecked atomic.Int64
}

// Config configures a Watchdog.
type Config struct {
	HealthURL   string
	PingHost    string
	PingEnabled bool
	Timeout     time.Duration
	Interval    time.Duration
	DownAfter   int
}

// New creates a Watchdog in the unknown state; call Run to start probing.
func New(cfg Config) *Watchdog {
	w := &Watchdog{
		client:      &http.Client{Timeout: cfg.Timeout},
		healthURL:   cfg.HealthURL,
		pingHost:    cfg.PingHost,
		pingEnabled: cfg.PingEnabled,
		timeout:     cfg.Timeout,
		interval:    cfg.Interval,
		downAfter:   cfg.DownAfter,
	}
	w.state.Store(int32(StateUnknown))
	return w
}

// State returns the current peer state.
func (w *Watchdog) State() State {
	return State(w.state.Load())
}

// IsUp reports whether the Sender Loop should attempt delivery.
func (w *Watchdog) IsUp() bool {
	return w.State() == StateUp
}

// Run probes the peer on Interval until ctx is cancelled. It performs one
// check immediately so callers don't have to wait a full interval before the
// first status is known.
func (w *Watchdog) Run(ctx context.Context) {
	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one probe cycle. A probe passes if at least one configured
// check (HTTP, ICMP) succeeds; an unconfigured check never counts against
// the others, and if nothing is configured at all the probe vacuously
// passes.
func (w *Watchdog) check(ctx context.Context) {
	httpConfigured := w.healthURL != ""
	pingConfigured := w.pingEnabled && w.pingHost != ""

	ok := !httpConfigured && !pingConfigured
	if httpConfigured && w.probeHTTP(ctx) {
		ok = true
	}
	if pingConfigured && w.probePing() {
		ok = true
	}

	w.lastChecked.Store(time.Now().Unix())

	if ok {
		w.failures.Store(0)
		w.state.Store(int32(StateUp))
		metrics.WatchdogState.Set(float64(StateUp))
		metrics.WatchdogConsecutiveFailures.Set(0)
		return
	}

	failures := w.failures.Add(1)
	metrics.WatchdogConsecutiveFailures.Set(float64(failures))
	if int(failures) >= w.downAfter {
		w.state.Store(int32(StateDown))
	}
	metrics.WatchdogState.Set(float64(w.State()))
}

func (w *Watchdog) probeHTTP(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (w *Watchdog) probePing() bool {
	pinger, err := probing.NewPinger(w.pingHost)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = w.timeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return false
	}

	return pinger.Statistics().PacketsRecv > 0
}

// LastChecked returns the unix timestamp of the most recent probe, or 0 if
// none has run yet.
func (w *Watchdog) LastChecked() int64 {
	return w.lastChecked.Load()
}
