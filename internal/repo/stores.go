package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
)

type Stores struct {
	db store.RecordStore
}

func NewStores(db store.RecordStore) *Stores {
	return &Stores{db: db}
}

// Get returns ErrNotFound when no store has the given number.
func (r *Stores) Get(ctx context.Context, storeNumber int64) (*model.Store, error) {
	row, err := r.db.SelectOne(ctx, store.Stores, store.Where(store.Eq("store_number", storeNumber)))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("store %d: %w", storeNumber, ErrNotFound)
	}
	s := storeFromRecord(row)
	return &s, nil
}

func (r *Stores) Create(ctx context.Context, s model.Store) (*model.Store, error) {
	rec := settingsRecord(s)
	rec["store_number"] = s.StoreNumber
	rec["store_name"] = s.Name
	rec["sms_count"] = s.SMSCount

	row, err := r.db.Insert(ctx, store.Stores, rec)
	if err != nil {
		return nil, fmt.Errorf("create store %d: %w", s.StoreNumber, err)
	}
	out := storeFromRecord(row)
	return &out, nil
}

// UpdateSettings overwrites the message templates and promo threshold.
func (r *Stores) UpdateSettings(ctx context.Context, s model.Store) error {
	if _, err := r.db.Update(ctx, store.Stores,
		store.Where(store.Eq("store_number", s.StoreNumber)),
		settingsRecord(s),
	); err != nil {
		return fmt.Errorf("update store %d: %w", s.StoreNumber, err)
	}
	return nil
}

func (r *Stores) IncrementSMSCount(ctx context.Context, storeNumber int64) error {
	return incrementSMSCount(ctx, r.db, storeNumber)
}

// ListWithBirthdaySMS returns stores that have a non-empty birthday template.
func (r *Stores) ListWithBirthdaySMS(ctx context.Context) ([]model.Store, error) {
	rows, err := r.db.Select(ctx, store.Stores,
		store.Where(store.NotNull("birthday_sms")),
		store.QueryOptions{OrderBy: []string{"store_number"}},
	)
	if err != nil {
		return nil, err
	}

	var out []model.Store
	for _, row := range rows {
		s := storeFromRecord(row)
		if strings.TrimSpace(s.BirthdaySMS) == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func incrementSMSCount(ctx context.Context, db store.RecordStore, storeNumber int64) error {
	if _, err := db.Update(ctx, store.Stores,
		store.Where(store.Eq("store_number", storeNumber)),
		store.Record{"sms_count": store.Increment(1)},
	); err != nil {
		return fmt.Errorf("increment sms_count for store %d: %w", storeNumber, err)
	}
	return nil
}

func settingsRecord(s model.Store) store.Record {
	var trigger any
	if s.PromoTrigger != nil {
		trigger = *s.PromoTrigger
	}
	return store.Record{
		"promo_trigger": trigger,
		"promo_sms":     nullIfEmpty(s.PromoSMS),
		"promo_name":    nullIfEmpty(s.PromoName),
		"review_sms":    nullIfEmpty(s.ReviewSMS),
		"birthday_sms":  nullIfEmpty(s.BirthdaySMS),
	}
}

func storeFromRecord(r store.Record) model.Store {
	return model.Store{
		StoreNumber:  r.Int64("store_number"),
		Name:         r.String("store_name"),
		PromoTrigger: r.IntPtr("promo_trigger"),
		PromoSMS:     r.String("promo_sms"),
		PromoName:    r.String("promo_name"),
		ReviewSMS:    r.String("review_sms"),
		BirthdaySMS:  r.String("birthday_sms"),
		SMSCount:     r.Int64("sms_count"),
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
