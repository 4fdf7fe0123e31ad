package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
)

func TestCustomers_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	customers := repo.NewCustomers(db)
	ctx := context.Background()

	if _, err := customers.Get(ctx, "5551234567"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := customers.Create(ctx, model.Customer{PhoneNumber: "5551234567", FirstName: "Ana", BirthMonth: "March", StoreID: 1}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// empty name keeps the stored one
	if err := customers.UpdateVisit(ctx, model.Customer{PhoneNumber: "5551234567", StoreID: 2}, t0); err != nil {
		t.Fatalf("UpdateVisit() error: %v", err)
	}
	if err := customers.SetPoints(ctx, "5551234567", 4); err != nil {
		t.Fatalf("SetPoints() error: %v", err)
	}

	c, err := customers.Get(ctx, "5551234567")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c.FirstName != "Ana" || c.BirthMonth != "March" {
		t.Fatalf("expected name and month kept, got %+v", c)
	}
	if c.StoreID != 2 || c.Points != 4 {
		t.Fatalf("expected store 2 and 4 points, got %+v", c)
	}
	if c.CheckInTime == nil || !c.CheckInTime.Equal(t0) {
		t.Fatalf("expected check-in time %v, got %v", t0, c.CheckInTime)
	}
}

func TestCustomers_ListByBirthMonth(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	customers := repo.NewCustomers(db)
	ctx := context.Background()

	for _, c := range []model.Customer{
		{PhoneNumber: "5550000001", FirstName: "A", BirthMonth: "march", StoreID: 1},
		{PhoneNumber: "5550000002", FirstName: "B", BirthMonth: "March ", StoreID: 1},
		{PhoneNumber: "5550000003", FirstName: "C", BirthMonth: "April", StoreID: 1},
		{PhoneNumber: "5550000004", FirstName: "D", BirthMonth: "March", StoreID: 2},
		{PhoneNumber: "5550000005", FirstName: "E", StoreID: 1},
	} {
		if err := customers.Create(ctx, c); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	all, err := customers.ListByStore(ctx, 1)
	if err != nil {
		t.Fatalf("ListByStore() error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 customers in store 1, got %d", len(all))
	}

	march, err := customers.ListByBirthMonth(ctx, 1, time.March)
	if err != nil {
		t.Fatalf("ListByBirthMonth() error: %v", err)
	}
	if len(march) != 2 {
		t.Fatalf("expected 2 March birthdays in store 1, got %+v", march)
	}
}

func TestStores_GetSettingsAndBirthdayList(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	stores := repo.NewStores(db)
	ctx := context.Background()

	if _, err := stores.Get(ctx, 9); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	trigger := 5
	if _, err := stores.Create(ctx, model.Store{StoreNumber: 1, Name: "Main", PromoTrigger: &trigger, PromoSMS: "free cut", BirthdaySMS: "Happy birthday!"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := stores.Create(ctx, model.Store{StoreNumber: 2, Name: "Side"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	s, err := stores.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !s.PromoEnabled() || *s.PromoTrigger != 5 || s.PromoSMS != "free cut" {
		t.Fatalf("unexpected store: %+v", s)
	}

	s.PromoTrigger = nil
	s.ReviewSMS = "Review us"
	if err := stores.UpdateSettings(ctx, *s); err != nil {
		t.Fatalf("UpdateSettings() error: %v", err)
	}
	if err := stores.IncrementSMSCount(ctx, 1); err != nil {
		t.Fatalf("IncrementSMSCount() error: %v", err)
	}

	s, _ = stores.Get(ctx, 1)
	if s.PromoEnabled() || s.ReviewSMS != "Review us" || s.SMSCount != 1 {
		t.Fatalf("unexpected store after update: %+v", s)
	}

	bday, err := stores.ListWithBirthdaySMS(ctx)
	if err != nil {
		t.Fatalf("ListWithBirthdaySMS() error: %v", err)
	}
	if len(bday) != 1 || bday[0].StoreNumber != 1 {
		t.Fatalf("expected only store 1, got %+v", bday)
	}
}

func TestVisits_Lifecycle(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	visits := repo.NewVisits(db)
	ctx := context.Background()

	v, err := visits.Create(ctx, model.Visit{FirstName: "Ana", PhoneNumber: "5551234567", StoreID: 1, CheckinTime: t0, BirthdayTrigger: true})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if v.ID == "" || v.Status != model.CheckedIn {
		t.Fatalf("unexpected visit: %+v", v)
	}
	other, _ := visits.Create(ctx, model.Visit{FirstName: "Bo", PhoneNumber: "5550000000", StoreID: 1, CheckinTime: t0.Add(time.Minute)})

	if _, err := visits.GetActive(ctx, v.ID, 2); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong store, got %v", err)
	}
	if _, err := visits.GetActive(ctx, "not-a-uuid", 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}

	active, _ := visits.ListActive(ctx, 1)
	if len(active) != 2 || active[0].ID != v.ID {
		t.Fatalf("expected waitlist in arrival order, got %+v", active)
	}

	if err := visits.MarkCheckedOut(ctx, v.ID, 1, "emp-1", true, t0.Add(time.Hour)); err != nil {
		t.Fatalf("MarkCheckedOut() error: %v", err)
	}
	if err := visits.MarkNoShow(ctx, other.ID, 1, t0.Add(time.Hour)); err != nil {
		t.Fatalf("MarkNoShow() error: %v", err)
	}

	if _, err := visits.GetActive(ctx, v.ID, 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected checked-out visit to be inactive, got %v", err)
	}

	done, err := visits.ListCheckedOutSince(ctx, 1, t0)
	if err != nil {
		t.Fatalf("ListCheckedOutSince() error: %v", err)
	}
	if len(done) != 1 {
		t.Fatalf("expected one checkout (no-shows excluded), got %+v", done)
	}
	got := done[0]
	if got.EmployeeID != "emp-1" || !got.Promo || got.BirthdayTrigger || got.CheckoutTime == nil {
		t.Fatalf("unexpected checked-out visit: %+v", got)
	}
}
