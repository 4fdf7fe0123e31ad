package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/sirupsen/logrus"
)

// ImmediateSend delivers the post-visit messages right away, bypassing the
// queue. When the customer's balance equals the promo trigger exactly, the
// balance is reset and the promo goes out first; promo failures are logged.
// The review message (or the fallback text) is always sent and its gateway
// id returned. Each successful send increments the store's sms_count.
func (s *Service) ImmediateSend(ctx context.Context, phone string, storeID int64) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	if s.gateway == nil {
		return "", gateway.ErrNotConfigured
	}

	to, err := gateway.NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	st, err := s.stores.Get(ctx, storeID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return "", ErrStoreNotFound
	case err != nil:
		return "", fmt.Errorf("fetch store message: %w", err)
	}

	entry := s.log.WithFields(logrus.Fields{"store_id": storeID, "phone": phone})

	if st.PromoEnabled() && st.PromoSMS != "" {
		if cust, key := s.lookupCustomer(ctx, phone, to); cust != nil && cust.Points == *st.PromoTrigger {
			metrics.IncPromoTrigger("immediate")
			if err := s.customers.SetPoints(ctx, key, 0); err != nil {
				entry.WithError(err).Error("reset points before promo")
			}
			s.sendPromo(ctx, entry, to, st)
		}
	}

	body := st.ReviewSMS
	if body == "" {
		body = s.reviewFallback
	}
	id, err := s.gateway.Send(ctx, to, body)
	metrics.IncImmediateSend("review", err == nil)
	if err != nil {
		return "", &SendError{Err: err}
	}
	if err := s.stores.IncrementSMSCount(ctx, storeID); err != nil {
		entry.WithError(err).Error("increment sms_count after review")
	}
	return id, nil
}

// lookupCustomer finds the customer under the number as entered, then
// under its normalized form. key is the phone the row was found under.
func (s *Service) lookupCustomer(ctx context.Context, raw, normalized string) (*model.Customer, string) {
	for _, key := range []string{raw, normalized} {
		c, err := s.customers.Get(ctx, key)
		if err == nil {
			return c, key
		}
		if !errors.Is(err, repo.ErrNotFound) {
			s.log.WithError(err).WithField("phone", key).Warn("lookup customer points")
			return nil, ""
		}
	}
	return nil, ""
}

func (s *Service) sendPromo(ctx context.Context, entry *logrus.Entry, to string, st *model.Store) {
	_, err := s.gateway.Send(ctx, to, st.PromoSMS)
	metrics.IncImmediateSend("promo", err == nil)
	if err != nil {
		entry.WithError(err).Error("send promo sms")
		return
	}
	if err := s.stores.IncrementSMSCount(ctx, st.StoreNumber); err != nil {
		entry.WithError(err).Error("increment sms_count after promo")
	}
}
