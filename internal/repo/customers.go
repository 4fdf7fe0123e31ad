package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
)

type Customers struct {
	db store.RecordStore
}

func NewCustomers(db store.RecordStore) *Customers {
	return &Customers{db: db}
}

// Get returns ErrNotFound when the phone number has never checked in.
func (r *Customers) Get(ctx context.Context, phone string) (*model.Customer, error) {
	row, err := r.db.SelectOne(ctx, store.CheckIns, store.Where(store.Eq("phone_number", phone)))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("customer %s: %w", phone, ErrNotFound)
	}
	c := customerFromRecord(row)
	return &c, nil
}

func (r *Customers) Create(ctx context.Context, c model.Customer) error {
	rec := store.Record{
		"phone_number":     c.PhoneNumber,
		"first_name":       c.FirstName,
		"birth_month":      nullIfEmpty(c.BirthMonth),
		"points":           c.Points,
		"storeid":          c.StoreID,
		"birthday_trigger": c.BirthdayTrigger,
	}
	if c.CheckInTime != nil {
		rec["check_in_time"] = c.CheckInTime.UTC()
	}
	if _, err := r.db.Insert(ctx, store.CheckIns, rec); err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// UpdateVisit records a returning check-in. Name and birth month are only
// overwritten when non-empty.
func (r *Customers) UpdateVisit(ctx context.Context, c model.Customer, at time.Time) error {
	patch := store.Record{
		"storeid":       c.StoreID,
		"check_in_time": at.UTC(),
	}
	if c.FirstName != "" {
		patch["first_name"] = c.FirstName
	}
	if c.BirthMonth != "" {
		patch["birth_month"] = c.BirthMonth
	}
	if _, err := r.db.Update(ctx, store.CheckIns, store.Where(store.Eq("phone_number", c.PhoneNumber)), patch); err != nil {
		return fmt.Errorf("update customer visit: %w", err)
	}
	return nil
}

func (r *Customers) SetPoints(ctx context.Context, phone string, points int) error {
	if _, err := r.db.Update(ctx, store.CheckIns,
		store.Where(store.Eq("phone_number", phone)),
		store.Record{"points": points},
	); err != nil {
		return fmt.Errorf("set points: %w", err)
	}
	return nil
}

func (r *Customers) SetBirthdayTrigger(ctx context.Context, phone string, on bool) error {
	if _, err := r.db.Update(ctx, store.CheckIns,
		store.Where(store.Eq("phone_number", phone)),
		store.Record{"birthday_trigger": on},
	); err != nil {
		return fmt.Errorf("set birthday trigger: %w", err)
	}
	return nil
}

// ListByStore returns the store's customers that have a phone number.
func (r *Customers) ListByStore(ctx context.Context, storeID int64) ([]model.Customer, error) {
	rows, err := r.db.Select(ctx, store.CheckIns,
		store.Where(store.Eq("storeid", storeID), store.NotNull("phone_number")),
		store.QueryOptions{OrderBy: []string{"phone_number"}},
	)
	if err != nil {
		return nil, err
	}

	out := make([]model.Customer, 0, len(rows))
	for _, row := range rows {
		c := customerFromRecord(row)
		if c.PhoneNumber == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ListByBirthMonth matches the month name case-insensitively ("march", "March").
func (r *Customers) ListByBirthMonth(ctx context.Context, storeID int64, month time.Month) ([]model.Customer, error) {
	all, err := r.ListByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	var out []model.Customer
	for _, c := range all {
		if strings.EqualFold(strings.TrimSpace(c.BirthMonth), month.String()) {
			out = append(out, c)
		}
	}
	return out, nil
}

func customerFromRecord(r store.Record) model.Customer {
	return model.Customer{
		PhoneNumber:     r.String("phone_number"),
		FirstName:       r.String("first_name"),
		BirthMonth:      r.String("birth_month"),
		Points:          int(r.Int64("points")),
		StoreID:         r.Int64("storeid"),
		CheckInTime:     r.TimePtr("check_in_time"),
		BirthdayTrigger: r.Bool("birthday_trigger"),
	}
}
