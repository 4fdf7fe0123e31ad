package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

const (
	ReasonMissingFields = "Missing required fields"
	ReasonInvalidPhone  = "Invalid phone number format"
)

// Locker guards a cycle against other processor instances. ok is false when
// someone else holds the lock. held is canceled when the lock is lost; the
// cycle runs under it so a lost lease stops further sends.
type Locker interface {
	TryLock(ctx context.Context) (held context.Context, unlock func(), ok bool, err error)
}

// RetryPolicy re-queues gateway failures until MaxAttempts attempts were made.
// MaxAttempts <= 1 means every failure is terminal.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Report summarizes one cycle.
type Report struct {
	Skipped  bool `json:"skipped"`
	Locked   bool `json:"locked,omitempty"`
	Selected int  `json:"selected"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Invalid  int  `json:"invalid"`
	Retried  int  `json:"retried"`
	// Dropped counts attempts whose outcome could not be stored, usually
	// because another instance settled the row first.
	Dropped int    `json:"dropped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Processor drains due scheduled_sms rows one at a time. It never returns
// an error: every outcome ends up on the row, in the log and in metrics.
type Processor struct {
	repo    repo.MessageRepository
	gateway gateway.Sender
	locker  Locker
	retry   RetryPolicy
	now     func() time.Time
	log     *logrus.Entry

	// serializes cycles within the process
	mu sync.Mutex

	onSent   func(ctx context.Context, msg model.ScheduledMessage, remoteMessageID string, sentAt time.Time) error
	onFailed func(ctx context.Context, msg model.ScheduledMessage, reason string) error
}

// NewProcessor wires the queue to a gateway. gw may be nil, in which case
// every cycle is skipped and rows stay pending.
func NewProcessor(r repo.MessageRepository, gw gateway.Sender) *Processor {
	return &Processor{
		repo:    r,
		gateway: gw,
		retry:   RetryPolicy{MaxAttempts: 1},
		now:     time.Now,
		log:     logger.Component("processor"),
	}
}

func (p *Processor) WithHooks(
	onSent func(ctx context.Context, msg model.ScheduledMessage, remoteMessageID string, sentAt time.Time) error,
	onFailed func(ctx context.Context, msg model.ScheduledMessage, reason string) error,
) *Processor {
	p.onSent = onSent
	p.onFailed = onFailed
	return p
}

func (p *Processor) WithLocker(l Locker) *Processor {
	p.locker = l
	return p
}

func (p *Processor) WithRetry(rp RetryPolicy) *Processor {
	if rp.MaxAttempts < 1 {
		rp.MaxAttempts = 1
	}
	p.retry = rp
	return p
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Configured reports whether a gateway is available.
func (p *Processor) Configured() bool {
	return p.gateway != nil
}

// RunOnce processes up to limit due messages; limit 0 means all of them.
func (p *Processor) RunOnce(ctx context.Context, limit int) Report {
	start := time.Now()
	defer func() { metrics.ObserveCycle(time.Since(start)) }()

	if p.gateway == nil {
		p.log.Warn("sms gateway not configured, skipping cycle")
		metrics.IncCycle("skipped")
		return Report{Skipped: true, Error: gateway.ErrNotConfigured.Error()}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Outcomes of attempts already made are stored even if ctx or the lease
	// ends mid-cycle; otherwise a delivered message would stay pending.
	persistCtx := context.WithoutCancel(ctx)
	// A lost lease stops the cycle between messages; it does not abort a
	// send already in flight.
	cycleCtx := ctx

	if p.locker != nil {
		held, unlock, ok, err := p.locker.TryLock(ctx)
		if err != nil {
			p.log.WithError(err).Error("acquire poll lock")
			metrics.IncCycle("error")
			return Report{Skipped: true, Error: err.Error()}
		}
		if !ok {
			p.log.Debug("poll lock held by another instance")
			metrics.IncCycle("locked")
			return Report{Skipped: true, Locked: true}
		}
		defer unlock()
		cycleCtx = held
	}

	msgs, err := p.repo.Due(cycleCtx, p.now(), limit)
	if err != nil {
		p.log.WithError(err).Error("select due messages")
		metrics.IncCycle("error")
		return Report{Error: err.Error()}
	}

	rep := Report{Selected: len(msgs)}
	for _, m := range msgs {
		if cycleCtx.Err() != nil {
			p.log.WithField("remaining", rep.Selected-rep.Sent-rep.Failed-rep.Invalid-rep.Retried-rep.Dropped).
				Info("cycle canceled, leaving rest pending")
			break
		}

		out := p.process(ctx, m)
		if !p.record(persistCtx, m, out) {
			rep.Dropped++
			continue
		}

		switch {
		case out.Status == model.Sent:
			rep.Sent++
		case out.RetryAt != nil:
			rep.Retried++
		case out.Skipped:
			rep.Invalid++
		default:
			rep.Failed++
		}
	}

	metrics.IncCycle("ok")
	if rep.Selected > 0 {
		p.log.WithFields(logrus.Fields{
			"selected": rep.Selected,
			"sent":     rep.Sent,
			"failed":   rep.Failed,
			"invalid":  rep.Invalid,
			"retried":  rep.Retried,
			"dropped":  rep.Dropped,
		}).Info("cycle completed")
	}
	return rep
}

// process decides the outcome of a single attempt. It touches only the gateway.
func (p *Processor) process(ctx context.Context, m model.ScheduledMessage) model.Outcome {
	now := p.now()
	out := model.Outcome{
		Status:     model.Failed,
		AttemptAt:  now,
		RetryCount: m.RetryCount + 1,
	}

	if m.PhoneNumber == "" || m.Body == "" {
		out.Skipped = true
		out.Reason = ReasonMissingFields
		return out
	}

	phone, err := gateway.NormalizePhone(m.PhoneNumber)
	if err != nil {
		out.Skipped = true
		out.Reason = ReasonInvalidPhone
		return out
	}

	metrics.ObserveQueueLag(m.SendAt, now)

	sendStart := time.Now()
	remoteID, err := p.gateway.Send(ctx, phone, m.Body)
	metrics.ObserveSend(time.Since(sendStart))

	if err != nil {
		out.Reason = gateway.Reason(err)
		if out.RetryCount < p.retry.MaxAttempts {
			at := now.Add(p.retry.Backoff * time.Duration(out.RetryCount))
			out.RetryAt = &at
		}
		return out
	}

	out.Status = model.Sent
	out.MessageID = remoteID
	return out
}

// record persists out and runs the hooks. It reports false when the outcome
// was not stored; hooks are skipped then.
func (p *Processor) record(ctx context.Context, m model.ScheduledMessage, out model.Outcome) bool {
	entry := p.log.WithFields(logrus.Fields{
		"id":       m.ID,
		"store_id": m.StoreID,
		"attempt":  out.RetryCount,
	})

	if err := p.repo.RecordOutcome(ctx, m, out); err != nil {
		metrics.IncPersistError()
		if errors.Is(err, repo.ErrNotPending) {
			entry.WithError(err).Warn("message settled elsewhere, outcome dropped")
		} else {
			entry.WithError(err).Error("persist outcome")
		}
		return false
	}

	switch {
	case out.Status == model.Sent:
		metrics.IncSMS("sent")
		entry.WithField("message_id", out.MessageID).Info("sms sent")
		if p.onSent != nil {
			if err := p.onSent(ctx, m, out.MessageID, out.AttemptAt); err != nil {
				entry.WithError(err).Warn("sent hook")
			}
		}
		return true
	case out.RetryAt != nil:
		metrics.IncSMS("retry")
		entry.WithFields(logrus.Fields{"reason": out.Reason, "retry_at": out.RetryAt}).Warn("sms failed, will retry")
		return true
	case out.Skipped:
		metrics.IncSMS("skipped")
		entry.WithField("reason", out.Reason).Warn("sms skipped")
	default:
		metrics.IncSMS("failed")
		entry.WithField("reason", out.Reason).Error("sms failed")
	}

	if p.onFailed != nil {
		if err := p.onFailed(ctx, m, out.Reason); err != nil {
			entry.WithError(err).Warn("failed hook")
		}
	}
	return true
}
