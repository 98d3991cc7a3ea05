package store

import "context"

// Store is the durable Inbox/Outbox repository. Implementations must make
// InboxNextPending/OutboxNextDue and their corresponding completion calls
// safe against concurrent callers claiming the same row, and must survive a
// process crash between a claim and its completion (InboxResetStuck/
// OutboxResetStuck cover that on startup).
type Store interface {
	// CreateSchema creates the Inbox/Outbox tables and indexes if they do
	// not already exist.
	CreateSchema(ctx context.Context) error

	// InboxInsert records a received line. If idempotencyKey is non-empty
	// and a row with that key already exists, the existing row is returned
	// and stored is false; otherwise a new row is created and stored is true.
	InboxInsert(ctx context.Context, idempotencyKey, source string, payload []byte) (rec *InboxRecord, stored bool, err error)

	// InboxNextPending atomically claims and returns the oldest pending
	// Inbox row, or nil if none is pending.
	InboxNextPending(ctx context.Context) (*InboxRecord, error)

	// InboxComplete marks a claimed row done or failed.
	InboxComplete(ctx context.Context, id int64, state InboxState, lastError string) error

	// InboxRelease reverts a claimed row back to pending, recording
	// lastError, so the next Router Loop pass retries it. Used when
	// dispatch panics or otherwise fails before any Outbox jobs are
	// durably enqueued.
	InboxRelease(ctx context.Context, id int64, lastError string) error

	// InboxResetStuck reverts any rows left claimed (in-flight) by a
	// crashed process back to pending. Called once at startup.
	InboxResetStuck(ctx context.Context) (int64, error)

	// OutboxInsertBatch enqueues jobs and completes the originating Inbox
	// row in a single transaction, so a reader never observes the Inbox row
	// marked done without its jobs present.
	OutboxInsertBatch(ctx context.Context, inboxID int64, jobs []*OutboxJob) error

	// OutboxNextDue atomically claims and returns the oldest Outbox job
	// whose NextAttemptTS has elapsed, or nil if none is due.
	OutboxNextDue(ctx context.Context, now int64) (*OutboxJob, error)

	// OutboxMarkDone marks a claimed job done.
	OutboxMarkDone(ctx context.Context, id int64, statusCode int) error

	// OutboxReschedule reverts a claimed job to pending with a new
	// NextAttemptTS and an incremented retry count, recording the failure.
	OutboxReschedule(ctx context.Context, id int64, nextAttemptTS int64, statusCode int, lastError string) error

	// OutboxMarkPermanentFailure marks a claimed job as permanently failed
	// (no further retries).
	OutboxMarkPermanentFailure(ctx context.Context, id int64, statusCode int, lastError string) error

	// OutboxResetStuck reverts any jobs left claimed by a crashed process
	// back to pending. Called once at startup.
	OutboxResetStuck(ctx context.Context) (int64, error)

	// Counts reports current queue depth.
	Counts(ctx context.Context) (Counts, error)

	// Close releases underlying resources.
	Close() error
}
