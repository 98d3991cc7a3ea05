// Package router implements the Router Loop: it claims pending Inbox rows,
// parses the command text they carry, dispatches each command to the right
// Device Adapter channel, and enqueues the replies as Outbox jobs.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.databridge.dev/internal/command"
	"go.databridge.dev/internal/common/metrics"
	"go.databridge.dev/internal/device"
	"go.databridge.dev/internal/store"
)

// replySource is the fixed origin identifier the bridge stamps onto every
// outbound reply callback, regardless of which device channel produced it.
const replySource = "raspi"

// Dispatcher routes a command to the channel its prefix selects and returns
// the channel's reply line.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) string
}

// ChannelMap implements Dispatcher by looking up a device.Channel per
// prefix-routed channel name.
type ChannelMap map[string]device.Channel

// Dispatch implements Dispatcher.
func (m ChannelMap) Dispatch(ctx context.Context, cmd command.Command) string {
	name := command.ChannelFor(cmd.PType)
	ch, ok := m[name]
	if !ok {
		return fmt.Sprintf("%s=%s", cmd.PKey, device.NAKUnknownDevice)
	}
	metrics.RouterCommandsDispatched.WithLabelValues(name).Inc()
	return ch.Execute(ctx, device.Command{
		PKey:   cmd.PKey,
		Value:  cmd.Value,
		IsRead: cmd.IsRead,
	})
}

// ReplyDestination builds the outbound delivery target for a reply, given
// the original Inbox record it answers.
type ReplyDestination interface {
	URLFor(rec *store.InboxRecord) string
	HeadersFor(rec *store.InboxRecord) map[string]string
}

// Loop drains pending Inbox rows, dispatches their commands, and enqueues
// the replies atomically alongside marking the Inbox row done.
type Loop struct {
	store store.Store
	disp  Dispatcher
	dest  ReplyDestination
	poll  time.Duration
}

// Config configures a Loop.
type Config struct {
	PollInterval time.Duration
}

// NewLoop creates a Loop.
func NewLoop(s store.Store, disp Dispatcher, dest ReplyDestination, cfg Config) *Loop {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Loop{store: s, disp: disp, dest: dest, poll: poll}
}

// Run processes pending Inbox rows until ctx is cancelled.
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

// drain processes rows until the Inbox is empty, rather than waiting for the
// next tick after every single row.
func (l *Loop) drain(ctx context.Context) {
	if counts, err := l.store.Counts(ctx); err == nil {
		metrics.RouterInboxPending.Set(float64(counts.InboxPending))
	}

	for {
		rec, err := l.store.InboxNextPending(ctx)
		if err != nil {
			slog.Error("router: claim pending inbox row failed", "error", err)
			return
		}
		if rec == nil {
			return
		}

		l.process(ctx, rec)
	}
}

func (l *Loop) process(ctx context.Context, rec *store.InboxRecord) {
	log := slog.With("inbox_id", rec.ID, "source", rec.Source)

	defer func() {
		if r := recover(); r != nil {
			log.Error("router: panic while dispatching, releasing row back to pending", "panic", r)
			if err := l.store.InboxRelease(ctx, rec.ID, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Error("router: release after panic failed", "error", err)
			}
		}
	}()

	line := extractLine(rec.Payload)
	subCommands := command.Split(line)
	if len(subCommands) == 0 {
		if err := l.store.InboxComplete(ctx, rec.ID, store.InboxDone, ""); err != nil {
			log.Error("router: complete empty row failed", "error", err)
			return
		}
		metrics.RouterRowsProcessed.WithLabelValues("done").Inc()
		return
	}

	cmds, parseErrors := command.Parse(line)
	if len(parseErrors) > 0 {
		metrics.RouterParseErrors.Add(float64(len(parseErrors)))
	}

	jobs := make([]*store.OutboxJob, 0, len(cmds)+len(parseErrors))
	url := l.dest.URLFor(rec)
	headers := l.dest.HeadersFor(rec)

	for _, cmd := range cmds {
		reply := l.disp.Dispatch(ctx, cmd)
		jobs = append(jobs, l.buildJob(rec, url, headers, reply))
	}

	for _, perr := range parseErrors {
		reply := fmt.Sprintf("%s=%s", perr.PKey, device.NAKParseError)
		if perr.PKey == "" {
			reply = fmt.Sprintf("ERR=%s", device.NAKParseError)
		}
		log.Warn("router: malformed sub-command", "raw", perr.Raw, "error", perr.Err)
		jobs = append(jobs, l.buildJob(rec, url, headers, reply))
	}

	if err := l.store.OutboxInsertBatch(ctx, rec.ID, jobs); err != nil {
		log.Error("router: enqueue replies failed", "error", err)
		metrics.RouterRowsProcessed.WithLabelValues("released").Inc()
		if relErr := l.store.InboxRelease(ctx, rec.ID, err.Error()); relErr != nil {
			log.Error("router: release after enqueue failure failed", "error", relErr)
		}
		return
	}
	metrics.RouterRowsProcessed.WithLabelValues("done").Inc()
}

func (l *Loop) buildJob(rec *store.InboxRecord, url string, headers map[string]string, reply string) *store.OutboxJob {
	body, _ := json.Marshal(map[string]string{"msg": reply, "source": replySource})
	return store.NewOutboxJob("POST", url, headers, body, uuid.NewString(), rec.IdempotencyKey)
}

// extractLine pulls the command text out of an Inbox payload. JSON payloads
// are probed for a handful of conventional field names; anything else is
// treated as plaintext command text.
func extractLine(payload []byte) string {
	var probe map[string]interface{}
	if err := json.Unmarshal(payload, &probe); err == nil {
		for _, field := range []string{"msg", "line", "message", "text", "cmd", "command"} {
			if v, ok := probe[field]; ok {
				if s, ok := v.(string); ok {
					return s
				}
			}
		}
	}
	return strings.TrimSpace(string(payload))
}
