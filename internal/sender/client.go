// Package sender implements the Sender Loop: it drains due Outbox jobs,
// posts them to the shop-floor host, and reschedules or fails them according
// to the response, but only while the Watchdog reports the peer reachable.
package sender

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"go.databridge.dev/internal/common/metrics"
	"go.databridge.dev/internal/store"
)

// Client posts Outbox jobs to the peer with a pooled HTTP transport and a
// circuit breaker that trips after a run of failures so a dead peer doesn't
// pin every Sender Loop iteration against its full timeout.
type Client struct {
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker
	outboundSecret string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Timeout        time.Duration
	TLSVerify      bool
	OutboundSecret string
}

// NewClient builds a Client. The transport settings (idle connection pool,
// dial timeout/keepalive) mirror a steady-state outbound HTTP client talking
// to one peer repeatedly, not a one-shot request.
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sender",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("sender circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.SenderCircuitBreakerState.Set(gobreakerStateValue(to))
		},
	})

	return &Client{http: httpClient, breaker: breaker, outboundSecret: cfg.OutboundSecret}
}

// Outcome is the result of attempting to deliver a job.
type Outcome struct {
	StatusCode int
	Terminal   bool
	Retryable  bool
	Err        error
}

// Send attempts one delivery of job. It never retries internally; the
// Sender Loop owns the retry schedule so it can persist progress between
// attempts.
func (c *Client) Send(ctx context.Context, job *store.OutboxJob) Outcome {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		outcome := c.doOnce(ctx, job)
		if outcome.Retryable {
			// Count retryable outcomes as breaker failures so a run of them
			// trips it.
			return outcome, fmt.Errorf("retryable delivery outcome (status %d)", outcome.StatusCode)
		}
		return outcome, nil
	})

	if outcome, ok := result.(Outcome); ok {
		return outcome
	}

	// No outcome means the breaker rejected the call: either it is open or
	// it's rate-limiting trial requests while half-open; both just mean "try
	// again later", same as any other retryable outcome.
	return Outcome{Retryable: true, Err: err}
}

func (c *Client) doOnce(ctx context.Context, job *store.OutboxJob) Outcome {
	parsed, err := url.Parse(job.URL)
	if err != nil || !parsed.IsAbs() {
		return Outcome{Terminal: true, Err: fmt.Errorf("invalid job URL %q", job.URL)}
	}

	method := job.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, job.URL, newBodyReader(job.Body))
	if err != nil {
		return Outcome{Terminal: true, Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}
	if job.IdempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", job.IdempotencyKey)
	}
	if job.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", job.CorrelationID)
	}
	if c.outboundSecret != "" {
		req.Header.Set("X-Shared-Secret", c.outboundSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	terminal, retryable := store.StatusFromOutcome(resp.StatusCode)
	return Outcome{StatusCode: resp.StatusCode, Terminal: terminal, Retryable: retryable}
}

func gobreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitBreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitBreakerHalfOpen
	default:
		return metrics.CircuitBreakerClosed
	}
}

// classifyError handles transport-level failures (dial errors, timeouts,
// connection resets): the peer never answered, so the outcome is always
// retryable, never a permanent failure.
func classifyError(err error) Outcome {
	return Outcome{Retryable: true, Err: err}
}
