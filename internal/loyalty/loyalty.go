package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrStoreNotFound  = errors.New("store not found")
	ErrVisitNotFound  = errors.New("check-in record not found or already checked out")
)

const NewUser = "new_user"

// SendError is returned when the gateway rejects the review message.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "send review sms: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

type StoreRepository interface {
	Get(ctx context.Context, storeNumber int64) (*model.Store, error)
	IncrementSMSCount(ctx context.Context, storeNumber int64) error
}

type CustomerRepository interface {
	Get(ctx context.Context, phone string) (*model.Customer, error)
	Create(ctx context.Context, c model.Customer) error
	UpdateVisit(ctx context.Context, c model.Customer, at time.Time) error
	SetPoints(ctx context.Context, phone string, points int) error
}

type VisitRepository interface {
	Create(ctx context.Context, v model.Visit) (model.Visit, error)
	GetActive(ctx context.Context, id string, storeID int64) (*model.Visit, error)
	MarkCheckedOut(ctx context.Context, id string, storeID int64, employeeID string, promo bool, at time.Time) error
	MarkNoShow(ctx context.Context, id string, storeID int64, at time.Time) error
	ListActive(ctx context.Context, storeID int64) ([]model.Visit, error)
	ListCheckedOutSince(ctx context.Context, storeID int64, since time.Time) ([]model.Visit, error)
}

type Deps struct {
	Stores    StoreRepository
	Customers CustomerRepository
	Visits    VisitRepository
	Queue     repo.Enqueuer
	// Gateway may be nil; immediate sends then report gateway.ErrNotConfigured.
	Gateway gateway.Sender
}

// Service decides, at check-in and checkout, whether points are awarded and
// whether a promo message goes out. Store failures that do not change what
// the customer sees are logged and the flow continues.
type Service struct {
	stores         StoreRepository
	customers      CustomerRepository
	visits         VisitRepository
	queue          repo.Enqueuer
	gateway        gateway.Sender
	reviewFallback string

	now func() time.Time
	log *logrus.Entry
}

func NewService(d Deps, reviewFallback string) *Service {
	return &Service{
		stores:         d.Stores,
		customers:      d.Customers,
		visits:         d.Visits,
		queue:          d.Queue,
		gateway:        d.Gateway,
		reviewFallback: reviewFallback,
		now:            time.Now,
		log:            logger.Component("loyalty"),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// promoConfig loads the store for a promo decision. A lookup failure only
// disables the promo for this event.
func (s *Service) promoConfig(ctx context.Context, storeID int64) *model.Store {
	st, err := s.stores.Get(ctx, storeID)
	if err != nil {
		s.log.WithError(err).WithField("store_id", storeID).Warn("load store promo config")
		return nil
	}
	return st
}

func (s *Service) enqueuePromo(ctx context.Context, phone string, st *model.Store) error {
	_, err := s.queue.Enqueue(ctx, model.ScheduledMessage{
		PhoneNumber: phone,
		Body:        st.PromoSMS,
		StoreID:     st.StoreNumber,
		SendAt:      s.now(),
	})
	return err
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
