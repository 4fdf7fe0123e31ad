package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

// StopSuffix is appended to every bulk message.
const StopSuffix = "\n\nTo stop receiving messages, reply STOP."

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrNoCustomers    = errors.New("no customers found")
)

type CustomerRepository interface {
	ListByStore(ctx context.Context, storeID int64) ([]model.Customer, error)
	ListByBirthMonth(ctx context.Context, storeID int64, month time.Month) ([]model.Customer, error)
	SetBirthdayTrigger(ctx context.Context, phone string, on bool) error
}

type StoreRepository interface {
	ListWithBirthdaySMS(ctx context.Context) ([]model.Store, error)
}

// Service turns a store-wide message into one queued row per customer.
type Service struct {
	customers CustomerRepository
	stores    StoreRepository
	queue     repo.BatchEnqueuer
	maxLength int

	now func() time.Time
	log *logrus.Entry
}

func NewService(customers CustomerRepository, stores StoreRepository, queue repo.BatchEnqueuer, maxLength int) *Service {
	return &Service{
		customers: customers,
		stores:    stores,
		queue:     queue,
		maxLength: maxLength,
		now:       time.Now,
		log:       logger.Component("campaign"),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Compose trims text and appends StopSuffix, enforcing the length limit on
// the full message.
func (s *Service) Compose(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	full := text + StopSuffix
	if n := utf8.RuneCountInString(full); n > s.maxLength {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrMessageTooLong, n, s.maxLength)
	}
	return full, nil
}

// Bulk queues text for every customer of the store and returns how many
// rows were queued.
func (s *Service) Bulk(ctx context.Context, storeID int64, text string) (int, error) {
	body, err := s.Compose(text)
	if err != nil {
		return 0, err
	}

	customers, err := s.customers.ListByStore(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("list customers: %w", err)
	}
	if len(customers) == 0 {
		return 0, ErrNoCustomers
	}

	n, err := s.queue.EnqueueBatch(ctx, s.batch(customers, storeID, body))
	if err != nil {
		return 0, err
	}

	metrics.AddCampaignEnqueued("bulk", n)
	s.log.WithFields(logrus.Fields{"store_id": storeID, "count": n}).Info("bulk sms scheduled")
	return n, nil
}

// Birthdays queues each store's birthday text for customers born in the
// current month and flags them so the next visit shows the birthday badge.
// A failing store is logged and skipped; the first error is returned after
// all stores were tried.
func (s *Service) Birthdays(ctx context.Context) (int, error) {
	month := s.now().Month()

	stores, err := s.stores.ListWithBirthdaySMS(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}

	var (
		total    int
		firstErr error
	)
	for _, st := range stores {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.birthdaysForStore(ctx, st, month)
		total += n
		if err != nil {
			s.log.WithError(err).WithField("store_id", st.StoreNumber).Error("birthday campaign")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.log.WithFields(logrus.Fields{"month": month.String(), "count": total}).Info("birthday campaign done")
	return total, firstErr
}

func (s *Service) birthdaysForStore(ctx context.Context, st model.Store, month time.Month) (int, error) {
	customers, err := s.customers.ListByBirthMonth(ctx, st.StoreNumber, month)
	if err != nil {
		return 0, fmt.Errorf("list birthdays: %w", err)
	}
	if len(customers) == 0 {
		return 0, nil
	}

	n, err := s.queue.EnqueueBatch(ctx, s.batch(customers, st.StoreNumber, st.BirthdaySMS))
	if err != nil {
		return 0, err
	}
	metrics.AddCampaignEnqueued("birthday", n)

	for _, c := range customers {
		if err := s.customers.SetBirthdayTrigger(ctx, c.PhoneNumber, true); err != nil {
			s.log.WithError(err).WithField("phone", c.PhoneNumber).Warn("set birthday trigger")
		}
	}
	return n, nil
}

func (s *Service) batch(customers []model.Customer, storeID int64, body string) []model.ScheduledMessage {
	now := s.now()
	out := make([]model.ScheduledMessage, 0, len(customers))
	for _, c := range customers {
		out = append(out, model.ScheduledMessage{
			PhoneNumber: c.PhoneNumber,
			Body:        body,
			StoreID:     storeID,
			SendAt:      now,
		})
	}
	return out
}
