package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("message is no longer pending")
)

// MessageRepository is what the processor needs from the scheduled_sms queue.
type MessageRepository interface {
	Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	RecordOutcome(ctx context.Context, msg model.ScheduledMessage, out model.Outcome) error
}

// Enqueuer appends pending rows to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg model.ScheduledMessage) (model.ScheduledMessage, error)
}

type BatchEnqueuer interface {
	EnqueueBatch(ctx context.Context, msgs []model.ScheduledMessage) (int, error)
}

type Messages struct {
	db  store.RecordStore
	now func() time.Time
}

func NewMessages(db store.RecordStore) *Messages {
	return &Messages{db: db, now: time.Now}
}

// Due returns pending rows with sendat <= now, oldest first. limit 0 means unbounded.
func (r *Messages) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	if limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	rows, err := r.db.Select(ctx, store.ScheduledSMS,
		store.Where(
			store.Eq("status", string(model.Pending)),
			store.Lte("sendat", now.UTC()),
		),
		store.QueryOptions{Limit: uint64(limit), OrderBy: []string{"sendat"}},
	)
	if err != nil {
		return nil, err
	}

	out := make([]model.ScheduledMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, messageFromRecord(row))
	}
	return out, nil
}

// Enqueue stores msg as a new pending row. A zero SendAt means now.
func (r *Messages) Enqueue(ctx context.Context, msg model.ScheduledMessage) (model.ScheduledMessage, error) {
	if msg.SendAt.IsZero() {
		msg.SendAt = r.now()
	}

	return insertPending(ctx, r.db, msg)
}

// EnqueueBatch stores all messages in one transaction; either every row is
// queued or none is.
func (r *Messages) EnqueueBatch(ctx context.Context, msgs []model.ScheduledMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	now := r.now()
	err := store.RunInTx(ctx, r.db, func(tx store.RecordStore) error {
		for _, msg := range msgs {
			if msg.SendAt.IsZero() {
				msg.SendAt = now
			}
			if _, err := insertPending(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func insertPending(ctx context.Context, db store.RecordStore, msg model.ScheduledMessage) (model.ScheduledMessage, error) {
	row, err := db.Insert(ctx, store.ScheduledSMS, store.Record{
		"id":           uuid.NewString(),
		"phone_number": msg.PhoneNumber,
		"body":         msg.Body,
		"storeid":      msg.StoreID,
		"sendat":       msg.SendAt.UTC(),
		"status":       string(model.Pending),
		"retry_count":  0,
		"skipped":      false,
	})
	if err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("enqueue sms: %w", err)
	}
	return messageFromRecord(row), nil
}

// RecordOutcome writes the result of one attempt. The row must still be
// pending; a sent outcome also bumps the owning store's sms_count in the
// same transaction, and fails with ErrNotPending if the row was already
// settled.
func (r *Messages) RecordOutcome(ctx context.Context, msg model.ScheduledMessage, out model.Outcome) error {
	patch := store.Record{
		"retry_count":  out.RetryCount,
		"last_attempt": out.AttemptAt.UTC(),
	}

	switch {
	case out.Status == model.Sent:
		patch["status"] = string(model.Sent)
		patch["message_id"] = out.MessageID
		patch["last_error"] = nil
		patch["error"] = nil
		patch["skipped"] = false
	case out.RetryAt != nil:
		patch["status"] = string(model.Pending)
		patch["sendat"] = out.RetryAt.UTC()
		patch["last_error"] = out.Reason
		patch["error"] = out.Reason
	default:
		patch["status"] = string(model.Failed)
		patch["last_error"] = out.Reason
		patch["error"] = out.Reason
		patch["skipped"] = out.Skipped
	}

	pending := store.Where(
		store.Eq("id", msg.ID),
		store.Eq("status", string(model.Pending)),
	)

	if out.Status != model.Sent {
		if _, err := r.db.Update(ctx, store.ScheduledSMS, pending, patch); err != nil {
			return fmt.Errorf("record outcome %s: %w", msg.ID, err)
		}
		return nil
	}

	err := store.RunInTx(ctx, r.db, func(tx store.RecordStore) error {
		// The pending filter is re-checked by the UPDATE itself, so a row
		// settled concurrently matches nothing and the counter is left alone.
		n, err := tx.Update(ctx, store.ScheduledSMS, pending, patch)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotPending
		}
		if msg.StoreID == 0 {
			return nil
		}
		return incrementSMSCount(ctx, tx, msg.StoreID)
	})
	if err != nil {
		return fmt.Errorf("record sent %s: %w", msg.ID, err)
	}
	return nil
}

// List pages through the queue newest first. An empty status lists every row.
func (r *Messages) List(ctx context.Context, status model.Status, limit, offset int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var f store.Filter
	if status != "" {
		f = store.Where(store.Eq("status", string(status)))
	}

	rows, err := r.db.Select(ctx, store.ScheduledSMS, f, store.QueryOptions{
		Limit:   uint64(limit),
		Offset:  uint64(offset),
		OrderBy: []string{"sendat DESC"},
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.ScheduledMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, messageFromRecord(row))
	}
	return out, nil
}

func messageFromRecord(r store.Record) model.ScheduledMessage {
	return model.ScheduledMessage{
		ID:          r.String("id"),
		PhoneNumber: r.String("phone_number"),
		Body:        r.String("body"),
		StoreID:     r.Int64("storeid"),
		SendAt:      r.Time("sendat"),
		Status:      model.Status(r.String("status")),
		RetryCount:  int(r.Int64("retry_count")),
		LastAttempt: r.TimePtr("last_attempt"),
		LastError:   r.StringPtr("last_error"),
		Error:       r.StringPtr("error"),
		Skipped:     r.Bool("skipped"),
		MessageID:   r.StringPtr("message_id"),
		CreatedAt:   r.Time("created_at"),
	}
}
