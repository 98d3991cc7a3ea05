package sender

import (
	"context"
	"log/slog"
	"time"

	"go.databridge.dev/internal/common/metrics"
	"go.databridge.dev/internal/store"
	"go.databridge.dev/internal/watchdog"
)

// Loop drains due Outbox jobs and delivers them, but only while the
// Watchdog reports the peer up. It is the single writer of Outbox state
// transitions at runtime.
type Loop struct {
	store    store.Store
	client   *Client
	watchdog *watchdog.Watchdog
	backoff  Backoff
	poll     time.Duration
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Backoff      Backoff
	PollInterval time.Duration
}

// NewLoop creates a Loop. poll is how often to check for due jobs when the
// queue is empty or the peer is down.
func NewLoop(s store.Store, c *Client, wd *watchdog.Watchdog, cfg LoopConfig) *Loop {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Loop{store: s, client: c, watchdog: wd, backoff: cfg.Backoff, poll: poll}
}

// Run processes due jobs until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.drain(ctx)
		}
	}
}

// drain processes jobs until the queue is empty or the peer goes down,
// rather than waiting for the next tick after every single job.
func (l *Loop) drain(ctx context.Context) {
	if counts, err := l.store.Counts(ctx); err == nil {
		metrics.SenderOutboxPending.Set(float64(counts.OutboxPending))
	}

	for {
		if !l.watchdog.IsUp() {
			return
		}

		job, err := l.store.OutboxNextDue(ctx, time.Now().Unix())
		if err != nil {
			slog.Error("sender: claim due job failed", "error", err)
			return
		}
		if job == nil {
			return
		}

		l.deliver(ctx, job)
	}
}

func (l *Loop) deliver(ctx context.Context, job *store.OutboxJob) {
	start := time.Now()
	outcome := l.client.Send(ctx, job)
	metrics.SenderDeliveryDuration.Observe(time.Since(start).Seconds())

	log := slog.With("job_id", job.ID, "url", job.URL, "retry_count", job.RetryCount)

	switch {
	case outcome.StatusCode >= 200 && outcome.StatusCode < 300:
		if err := l.store.OutboxMarkDone(ctx, job.ID, outcome.StatusCode); err != nil {
			log.Error("sender: mark done failed", "error", err)
			return
		}
		metrics.SenderJobsDelivered.WithLabelValues("done").Inc()
		return

	case outcome.Terminal:
		lastError := errString(outcome.Err)
		if lastError == "" {
			lastError = "peer rejected request"
		}
		if err := l.store.OutboxMarkPermanentFailure(ctx, job.ID, outcome.StatusCode, lastError); err != nil {
			log.Error("sender: mark permanent failure failed", "error", err)
			return
		}
		metrics.SenderJobsDelivered.WithLabelValues("failed_permanent").Inc()
		log.Warn("sender: permanent failure", "status", outcome.StatusCode, "error", lastError)
		return

	default:
		attempt := job.RetryCount + 1
		delay := l.backoff.NextDelaySeconds(attempt)
		nextAttempt := time.Now().Unix() + delay
		lastError := errString(outcome.Err)
		if lastError == "" {
			lastError = "non-2xx response"
		}
		if err := l.store.OutboxReschedule(ctx, job.ID, nextAttempt, outcome.StatusCode, lastError); err != nil {
			log.Error("sender: reschedule failed", "error", err)
			return
		}
		metrics.SenderJobsDelivered.WithLabelValues("rescheduled").Inc()
		log.Info("sender: rescheduled", "attempt", attempt, "delay_seconds", delay, "error", lastError)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
