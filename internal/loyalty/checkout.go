package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

type CheckoutRequest struct {
	VisitID    string `json:"checkinId"`
	StoreID    int64  `json:"storeId"`
	EmployeeID string `json:"employeeId"`
}

type CheckoutResult struct {
	Points int  `json:"points"`
	Promo  bool `json:"promo"`
	// ReviewMessageID is set when the immediate review SMS went out.
	ReviewMessageID string `json:"reviewMessageId,omitempty"`
}

// Checkout awards one point for a completed visit. Reaching or passing the
// store's promo trigger queues the promo and resets the balance to zero.
// The review SMS is attempted afterwards; its failure does not fail the checkout.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	req.VisitID = strings.TrimSpace(req.VisitID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.VisitID == "" || req.StoreID <= 0 || req.EmployeeID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: store, check-in and employee are required", ErrInvalidRequest)
	}

	visit, err := s.visits.GetActive(ctx, req.VisitID, req.StoreID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return CheckoutResult{}, ErrVisitNotFound
	case err != nil:
		return CheckoutResult{}, fmt.Errorf("lookup visit: %w", err)
	}

	entry := s.log.WithFields(logrus.Fields{
		"store_id": req.StoreID,
		"visit_id": visit.ID,
		"phone":    visit.PhoneNumber,
	})

	points := 0
	cust, err := s.customers.Get(ctx, visit.PhoneNumber)
	switch {
	case err == nil:
		points = cust.Points
	case !errors.Is(err, repo.ErrNotFound):
		return CheckoutResult{}, fmt.Errorf("lookup customer points: %w", err)
	}

	st := s.promoConfig(ctx, req.StoreID)
	newPoints := points + 1
	hasPromo := st != nil && st.PromoEnabled() && newPoints >= *st.PromoTrigger

	balance := newPoints
	if hasPromo {
		balance = 0
	}
	if err := s.customers.SetPoints(ctx, visit.PhoneNumber, balance); err != nil {
		return CheckoutResult{}, err
	}

	if hasPromo {
		metrics.IncPromoTrigger("checkout")
		if st.PromoSMS != "" {
			if err := s.enqueuePromo(ctx, visit.PhoneNumber, st); err != nil {
				entry.WithError(err).Error("queue checkout promo")
			} else {
				entry.Info("checkout promo queued")
			}
		}
	}

	if err := s.visits.MarkCheckedOut(ctx, visit.ID, req.StoreID, req.EmployeeID, hasPromo, s.now()); err != nil {
		return CheckoutResult{}, err
	}

	res := CheckoutResult{Points: balance, Promo: hasPromo}
	id, err := s.ImmediateSend(ctx, visit.PhoneNumber, req.StoreID)
	switch {
	case err == nil:
		res.ReviewMessageID = id
	case errors.Is(err, gateway.ErrNotConfigured):
		entry.Debug("review sms skipped: gateway not configured")
	default:
		entry.WithError(err).Warn("review sms failed")
	}
	return res, nil
}

// NoShow removes a waiting customer from the list without awarding points.
func (s *Service) NoShow(ctx context.Context, visitID string, storeID int64) error {
	if _, err := s.visits.GetActive(ctx, visitID, storeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrVisitNotFound
		}
		return err
	}
	return s.visits.MarkNoShow(ctx, visitID, storeID, s.now())
}

func (s *Service) Waitlist(ctx context.Context, storeID int64) ([]model.Visit, error) {
	return s.visits.ListActive(ctx, storeID)
}

// DailyCheckouts returns today's checkouts, with the day taken in loc.
func (s *Service) DailyCheckouts(ctx context.Context, storeID int64, loc *time.Location) ([]model.Visit, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := s.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return s.visits.ListCheckedOutSince(ctx, storeID, start)
}
