package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS inbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	payload BLOB NOT NULL,
	state TEXT NOT NULL DEFAULT 'pending',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_inbox_idempotency_key
	ON inbox(idempotency_key) WHERE idempotency_key != '';

CREATE INDEX IF NOT EXISTS idx_inbox_state_id ON inbox(state, id);

CREATE TABLE IF NOT EXISTS outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	method TEXT NOT NULL DEFAULT 'POST',
	url TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	body BLOB NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_attempt_ts INTEGER NOT NULL,
	state TEXT NOT NULL DEFAULT 'pending',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	last_status INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(state, next_attempt_ts, retry_count, created_ts, id);
`

// SQLiteStore is the Store implementation backing a single databridge
// instance. It serializes all writes on one connection so the atomic-claim
// transactions below never race each other within the process; there is
// exactly one Router Loop and one Sender Loop goroutine per process, so this
// is sufficient without a distributed lock.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) InboxInsert(ctx context.Context, idempotencyKey, source string, payload []byte) (*InboxRecord, bool, error) {
	now := nowUnix()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inbox (idempotency_key, source, payload, state, created_ts, updated_ts, last_error)
		 VALUES (?, ?, ?, 'pending', ?, ?, '')`,
		idempotencyKey, source, payload, now, now)

	if err != nil {
		if idempotencyKey != "" && isUniqueViolation(err) {
			existing, findErr := s.inboxByKey(ctx, idempotencyKey)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert inbox: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("insert inbox: %w", err)
	}

	return &InboxRecord{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		Source:         source,
		Payload:        payload,
		State:          InboxPending,
		CreatedTS:      now,
		UpdatedTS:      now,
	}, true, nil
}

func (s *SQLiteStore) inboxByKey(ctx context.Context, key string) (*InboxRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, idempotency_key, source, payload, state, created_ts, updated_ts, last_error
		 FROM inbox WHERE idempotency_key = ?`, key)
	return scanInbox(row)
}

func scanInbox(row *sql.Row) (*InboxRecord, error) {
	var rec InboxRecord
	var state string
	if err := row.Scan(&rec.ID, &rec.IdempotencyKey, &rec.Source, &rec.Payload, &state, &rec.CreatedTS, &rec.UpdatedTS, &rec.LastError); err != nil {
		return nil, fmt.Errorf("scan inbox: %w", err)
	}
	rec.State = visibleInboxState(state)
	return &rec, nil
}

// visibleInboxState maps the internal in-flight marker back to "pending" so
// callers never observe a state outside {pending, done, failed}.
func visibleInboxState(raw string) InboxState {
	if raw == inboxInFlight {
		return InboxPending
	}
	return InboxState(raw)
}

func (s *SQLiteStore) InboxNextPending(ctx context.Context) (*InboxRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, idempotency_key, source, payload, state, created_ts, updated_ts, last_error
		 FROM inbox WHERE state = 'pending' ORDER BY id LIMIT 1`)

	var rec InboxRecord
	var state string
	err = row.Scan(&rec.ID, &rec.IdempotencyKey, &rec.Source, &rec.Payload, &state, &rec.CreatedTS, &rec.UpdatedTS, &rec.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim inbox: %w", err)
	}

	now := nowUnix()
	if _, err := tx.ExecContext(ctx, `UPDATE inbox SET state = ?, updated_ts = ? WHERE id = ?`, inboxInFlight, now, rec.ID); err != nil {
		return nil, fmt.Errorf("claim inbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim inbox: %w", err)
	}

	rec.State = InboxPending
	rec.UpdatedTS = now
	return &rec, nil
}

func (s *SQLiteStore) InboxComplete(ctx context.Context, id int64, state InboxState, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbox SET state = ?, updated_ts = ?, last_error = ? WHERE id = ?`,
		string(state), nowUnix(), lastError, id)
	if err != nil {
		return fmt.Errorf("complete inbox %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) InboxRelease(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbox SET state = 'pending', updated_ts = ?, last_error = ? WHERE id = ?`,
		nowUnix(), lastError, id)
	if err != nil {
		return fmt.Errorf("release inbox %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) InboxResetStuck(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inbox SET state = 'pending', updated_ts = ?, last_error = 'reset after crash recovery' WHERE state = ?`,
		nowUnix(), inboxInFlight)
	if err != nil {
		return 0, fmt.Errorf("reset stuck inbox rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) OutboxInsertBatch(ctx context.Context, inboxID int64, jobs []*OutboxJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := nowUnix()
	for _, job := range jobs {
		headersJSON, err := json.Marshal(job.Headers)
		if err != nil {
			return fmt.Errorf("marshal headers: %w", err)
		}

		nextAttempt := job.NextAttemptTS
		if nextAttempt == 0 {
			nextAttempt = now
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox (method, url, headers, body, idempotency_key, correlation_id, retry_count, next_attempt_ts, state, created_ts, updated_ts, last_status, last_error)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, 'pending', ?, ?, 0, '')`,
			job.Method, job.URL, string(headersJSON), job.Body, job.IdempotencyKey, job.CorrelationID, nextAttempt, now, now)
		if err != nil {
			return fmt.Errorf("insert outbox job: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE inbox SET state = 'done', updated_ts = ?, last_error = '' WHERE id = ?`, now, inboxID); err != nil {
		return fmt.Errorf("complete inbox %d: %w", inboxID, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) OutboxNextDue(ctx context.Context, now int64) (*OutboxJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, method, url, headers, body, idempotency_key, correlation_id, retry_count, next_attempt_ts, state, created_ts, updated_ts, last_status, last_error
		 FROM outbox WHERE state = 'pending' AND next_attempt_ts <= ? ORDER BY next_attempt_ts, retry_count, created_ts, id LIMIT 1`, now)

	job, state, err := scanOutboxRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox job: %w", err)
	}

	updated := nowUnix()
	if _, err := tx.ExecContext(ctx, `UPDATE outbox SET state = ?, updated_ts = ? WHERE id = ?`, outboxInFlight, updated, job.ID); err != nil {
		return nil, fmt.Errorf("claim outbox job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim outbox job: %w", err)
	}

	job.State = OutboxPending
	_ = state
	return job, nil
}

func scanOutboxRow(row *sql.Row) (*OutboxJob, string, error) {
	var job OutboxJob
	var headersJSON string
	var state string
	err := row.Scan(&job.ID, &job.Method, &job.URL, &headersJSON, &job.Body, &job.IdempotencyKey, &job.CorrelationID,
		&job.RetryCount, &job.NextAttemptTS, &state, &job.CreatedTS, &job.UpdatedTS, &job.LastStatus, &job.LastError)
	if err != nil {
		return nil, "", err
	}
	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &job.Headers); err != nil {
			return nil, "", fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return &job, state, nil
}

func (s *SQLiteStore) OutboxMarkDone(ctx context.Context, id int64, statusCode int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET state = 'done', updated_ts = ?, last_status = ?, last_error = '' WHERE id = ?`,
		nowUnix(), statusCode, id)
	if err != nil {
		return fmt.Errorf("mark outbox job %d done: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) OutboxReschedule(ctx context.Context, id int64, nextAttemptTS int64, statusCode int, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET state = 'pending', updated_ts = ?, next_attempt_ts = ?, retry_count = retry_count + 1, last_status = ?, last_error = ? WHERE id = ?`,
		nowUnix(), nextAttemptTS, statusCode, lastError, id)
	if err != nil {
		return fmt.Errorf("reschedule outbox job %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) OutboxMarkPermanentFailure(ctx context.Context, id int64, statusCode int, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET state = 'failed_permanent', updated_ts = ?, last_status = ?, last_error = ? WHERE id = ?`,
		nowUnix(), statusCode, lastError, id)
	if err != nil {
		return fmt.Errorf("fail outbox job %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) OutboxResetStuck(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET state = 'pending', updated_ts = ? WHERE state = ?`,
		nowUnix(), outboxInFlight)
	if err != nil {
		return 0, fmt.Errorf("reset stuck outbox rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox WHERE state IN ('pending', ?)`, inboxInFlight)
	if err := row.Scan(&c.InboxPending); err != nil {
		return c, fmt.Errorf("count inbox: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE state IN ('pending', ?)`, outboxInFlight)
	if err := row.Scan(&c.OutboxPending); err != nil {
		return c, fmt.Errorf("count outbox: %w", err)
	}
	return c, nil
}
