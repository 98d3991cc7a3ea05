// Package store implements the durable Inbox/Outbox pattern databridge uses
// to survive process restarts without losing or double-dispatching work.
package store

// InboxState is the externally visible state of an Inbox row.
type InboxState string

const (
	InboxPending InboxState = "pending"
	InboxDone    InboxState = "done"
	InboxFailed  InboxState = "failed"
)

// inboxInFlight is an internal claim marker, never returned to callers.
// A row moves pending -> inboxInFlight -> {pending, done, failed}; the
// in-flight hop is invisible from the outside, matching the pending->done
// or pending->failed invariant while still letting the Router Loop recover
// a crash mid-dispatch by reverting the row to pending again.
const inboxInFlight = "inflight"

// InboxRecord is one received line awaiting (or having completed) routing.
type InboxRecord struct {
	ID             int64
	IdempotencyKey string
	Source         string
	Payload        []byte
	State          InboxState
	CreatedTS      int64
	UpdatedTS      int64
	LastError      string
}

// OutboxState is the externally visible state of an Outbox job.
type OutboxState string

const (
	OutboxPending         OutboxState = "pending"
	OutboxDone            OutboxState = "done"
	OutboxFailedPermanent OutboxState = "failed_permanent"
)

const outboxInFlight = "inflight"

// OutboxJob is one reply queued for delivery to the shop-floor host.
type OutboxJob struct {
	ID             int64
	Method         string
	URL            string
	Headers        map[string]string
	Body           []byte
	IdempotencyKey string
	CorrelationID  string
	RetryCount     int
	NextAttemptTS  int64
	State          OutboxState
	CreatedTS      int64
	UpdatedTS      int64
	LastStatus     int
	LastError      string
}

// Counts summarizes queue depth, used by the Router and Sender Loops'
// queue-depth gauges and by the Store health check.
type Counts struct {
	InboxPending  int64
	OutboxPending int64
}

// NewOutboxJob is a convenience constructor used by the Router Loop; it
// leaves timestamps and state to be filled in by the Store on insert.
func NewOutboxJob(method, url string, headers map[string]string, body []byte, idempotencyKey, correlationID string) *OutboxJob {
	return &OutboxJob{
		Method:         method,
		URL:            url,
		Headers:        headers,
		Body:           body,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  correlationID,
	}
}

// StatusFromOutcome classifies an HTTP response status code into a retry
// decision for the Sender Loop. 2xx is a terminal success, 408 and 429 are
// retryable even though they are nominally client errors, every other 4xx is
// a permanent failure, and 5xx (plus connection/timeout errors reported as
// status 0) is retryable.
func StatusFromOutcome(statusCode int) (terminal bool, retryable bool) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return true, false
	case statusCode == 408 || statusCode == 429:
		return false, true
	case statusCode >= 400 && statusCode < 500:
		return true, false
	case statusCode >= 500:
		return false, true
	default:
		// 0 or malformed: connection/timeout error, retryable
		return false, true
	}
}
