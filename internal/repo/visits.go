package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
	"github.com/google/uuid"
)

// Visits is the waitlist (checkin_list).
type Visits struct {
	db store.RecordStore
}

func NewVisits(db store.RecordStore) *Visits {
	return &Visits{db: db}
}

func (r *Visits) Create(ctx context.Context, v model.Visit) (model.Visit, error) {
	if v.Status == "" {
		v.Status = model.CheckedIn
	}
	row, err := r.db.Insert(ctx, store.CheckinList, store.Record{
		"first_name":       v.FirstName,
		"phone_number":     v.PhoneNumber,
		"status":           string(v.Status),
		"storeid":          v.StoreID,
		"checkin_time":     v.CheckinTime.UTC(),
		"promo":            v.Promo,
		"birthday_trigger": v.BirthdayTrigger,
	})
	if err != nil {
		return model.Visit{}, fmt.Errorf("create visit: %w", err)
	}
	return visitFromRecord(row), nil
}

// GetActive returns ErrNotFound unless the visit exists in the store and is still checked in.
func (r *Visits) GetActive(ctx context.Context, id string, storeID int64) (*model.Visit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("visit %q: %w", id, ErrNotFound)
	}
	row, err := r.db.SelectOne(ctx, store.CheckinList, activeVisit(id, storeID))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	v := visitFromRecord(row)
	return &v, nil
}

func (r *Visits) MarkCheckedOut(ctx context.Context, id string, storeID int64, employeeID string, promo bool, at time.Time) error {
	if _, err := r.db.Update(ctx, store.CheckinList, activeVisit(id, storeID), store.Record{
		"status":           string(model.CheckedOut),
		"checkout_time":    at.UTC(),
		"employee_id":      employeeID,
		"promo":            promo,
		"birthday_trigger": false,
	}); err != nil {
		return fmt.Errorf("check out visit %s: %w", id, err)
	}
	return nil
}

func (r *Visits) MarkNoShow(ctx context.Context, id string, storeID int64, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("visit %q: %w", id, ErrNotFound)
	}
	if _, err := r.db.Update(ctx, store.CheckinList, activeVisit(id, storeID), store.Record{
		"status":        string(model.NoShow),
		"checkout_time": at.UTC(),
	}); err != nil {
		return fmt.Errorf("mark no-show %s: %w", id, err)
	}
	return nil
}

// ListActive returns the store's waitlist in arrival order.
func (r *Visits) ListActive(ctx context.Context, storeID int64) ([]model.Visit, error) {
	return r.list(ctx,
		store.Where(store.Eq("storeid", storeID), store.Eq("status", string(model.CheckedIn))),
		"checkin_time",
	)
}

// ListCheckedOutSince returns checkouts at or after since, latest first.
func (r *Visits) ListCheckedOutSince(ctx context.Context, storeID int64, since time.Time) ([]model.Visit, error) {
	return r.list(ctx,
		store.Where(
			store.Eq("storeid", storeID),
			store.Eq("status", string(model.CheckedOut)),
			store.Gte("checkout_time", since.UTC()),
		),
		"checkout_time DESC",
	)
}

func (r *Visits) list(ctx context.Context, f store.Filter, order string) ([]model.Visit, error) {
	rows, err := r.db.Select(ctx, store.CheckinList, f, store.QueryOptions{OrderBy: []string{order}})
	if err != nil {
		return nil, err
	}
	out := make([]model.Visit, 0, len(rows))
	for _, row := range rows {
		out = append(out, visitFromRecord(row))
	}
	return out, nil
}

func activeVisit(id string, storeID int64) store.Filter {
	return store.Where(
		store.Eq("id", id),
		store.Eq("storeid", storeID),
		store.Eq("status", string(model.CheckedIn)),
	)
}

func visitFromRecord(r store.Record) model.Visit {
	return model.Visit{
		ID:              r.String("id"),
		FirstName:       r.String("first_name"),
		PhoneNumber:     r.String("phone_number"),
		Status:          model.VisitStatus(r.String("status")),
		StoreID:         r.Int64("storeid"),
		CheckinTime:     r.Time("checkin_time"),
		CheckoutTime:    r.TimePtr("checkout_time"),
		EmployeeID:      r.String("employee_id"),
		Promo:           r.Bool("promo"),
		BirthdayTrigger: r.Bool("birthday_trigger"),
	}
}
