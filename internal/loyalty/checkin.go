package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

type CheckInRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	BirthMonth  string `json:"birthMonth"`
	StoreID     int64  `json:"storeId"`
}

type CheckInResult struct {
	// Message is "Welcome back!", "Welcome, <name>!" or NewUser when the
	// kiosk must ask for a name first.
	Message string `json:"message"`
	Points  int    `json:"points"`
	Promo   bool   `json:"promo"`
	VisitID string `json:"visitId,omitempty"`
}

// CheckIn records an arrival. A returning customer whose balance equals the
// store's promo trigger exactly gets the promo queued and the balance reset.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.FirstName = strings.TrimSpace(req.FirstName)
	if req.PhoneNumber == "" || req.StoreID <= 0 {
		return CheckInResult{}, fmt.Errorf("%w: phone number and store are required", ErrInvalidRequest)
	}

	cust, err := s.customers.Get(ctx, req.PhoneNumber)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.checkInNew(ctx, req)
	case err != nil:
		return CheckInResult{}, fmt.Errorf("lookup customer: %w", err)
	}

	entry := s.log.WithFields(logrus.Fields{"store_id": req.StoreID, "phone": req.PhoneNumber})

	st := s.promoConfig(ctx, req.StoreID)
	hasPromo := st != nil && st.PromoEnabled() && cust.Points == *st.PromoTrigger

	now := s.now()
	if err := s.customers.UpdateVisit(ctx, model.Customer{
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		BirthMonth:  req.BirthMonth,
		StoreID:     req.StoreID,
	}, now); err != nil {
		return CheckInResult{}, err
	}

	visit, err := s.visits.Create(ctx, model.Visit{
		FirstName:       firstNonEmpty(req.FirstName, cust.FirstName),
		PhoneNumber:     req.PhoneNumber,
		StoreID:         req.StoreID,
		CheckinTime:     now,
		Promo:           hasPromo,
		BirthdayTrigger: cust.BirthdayTrigger,
	})
	if err != nil {
		return CheckInResult{}, err
	}

	points := cust.Points
	if hasPromo && st.PromoSMS != "" {
		metrics.IncPromoTrigger("checkin")
		if err := s.enqueuePromo(ctx, req.PhoneNumber, st); err != nil {
			entry.WithError(err).Error("queue check-in promo")
		} else if err := s.customers.SetPoints(ctx, req.PhoneNumber, 0); err != nil {
			entry.WithError(err).Error("reset points after check-in promo")
		} else {
			points = 0
			entry.Info("check-in promo queued")
		}
	}

	return CheckInResult{
		Message: "Welcome back!",
		Points:  points,
		Promo:   hasPromo,
		VisitID: visit.ID,
	}, nil
}

func (s *Service) checkInNew(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	if req.FirstName == "" {
		return CheckInResult{Message: NewUser}, nil
	}

	now := s.now()
	if err := s.customers.Create(ctx, model.Customer{
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		BirthMonth:  req.BirthMonth,
		StoreID:     req.StoreID,
		CheckInTime: &now,
	}); err != nil {
		return CheckInResult{}, err
	}

	visit, err := s.visits.Create(ctx, model.Visit{
		FirstName:   req.FirstName,
		PhoneNumber: req.PhoneNumber,
		StoreID:     req.StoreID,
		CheckinTime: now,
	})
	if err != nil {
		return CheckInResult{}, err
	}

	return CheckInResult{
		Message: fmt.Sprintf("Welcome, %s!", req.FirstName),
		VisitID: visit.ID,
	}, nil
}
