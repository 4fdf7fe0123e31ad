package loyalty_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/loyalty"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

const (
	storeID = int64(7)
	phone   = "5551234567"
	e164    = "+15551234567"
)

type sendCall struct {
	To   string
	Body string
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []sendCall
	fail  map[string]error
}

func (f *fakeGateway) Send(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{To: to, Body: body})
	if err := f.fail[body]; err != nil {
		return "", err
	}
	return fmt.Sprintf("SM%d", len(f.calls)), nil
}

func (f *fakeGateway) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type harness struct {
	db        *store.Memory
	stores    *repo.Stores
	customers *repo.Customers
	visits    *repo.Visits
	msgs      *repo.Messages
	gw        *fakeGateway
	svc       *loyalty.Service
}

func newHarness(t *testing.T, trigger int, withGateway bool) *harness {
	t.Helper()

	db := store.NewMemory()
	h := &harness{
		db:        db,
		stores:    repo.NewStores(db),
		customers: repo.NewCustomers(db),
		visits:    repo.NewVisits(db),
		msgs:      repo.NewMessages(db),
		gw:        &fakeGateway{fail: map[string]error{}},
	}

	deps := loyalty.Deps{
		Stores:    h.stores,
		Customers: h.customers,
		Visits:    h.visits,
		Queue:     h.msgs,
	}
	if withGateway {
		deps.Gateway = h.gw
	}
	h.svc = loyalty.NewService(deps, "fallback review").WithClock(func() time.Time { return t0 })

	_, err := h.stores.Create(context.Background(), model.Store{
		StoreNumber:  storeID,
		Name:         "Downtown",
		PromoTrigger: &trigger,
		PromoSMS:     "free coffee",
		ReviewSMS:    "review us",
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return h
}

func (h *harness) seedCustomer(t *testing.T, phone string, points int) {
	t.Helper()
	if err := h.customers.Create(context.Background(), model.Customer{
		PhoneNumber: phone,
		FirstName:   "Ana",
		Points:      points,
		StoreID:     storeID,
	}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func (h *harness) points(t *testing.T, phone string) int {
	t.Helper()
	c, err := h.customers.Get(context.Background(), phone)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	return c.Points
}

func (h *harness) pending(t *testing.T) []model.ScheduledMessage {
	t.Helper()
	due, err := h.msgs.Due(context.Background(), t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	return due
}

func (h *harness) smsCount(t *testing.T) int64 {
	t.Helper()
	st, err := h.stores.Get(context.Background(), storeID)
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	return st.SMSCount
}

func TestCheckIn_NewCustomerWithoutNameAsksForName(t *testing.T) {
	h := newHarness(t, 3, true)

	res, err := h.svc.CheckIn(context.Background(), loyalty.CheckInRequest{PhoneNumber: phone, StoreID: storeID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message != loyalty.NewUser {
		t.Fatalf("expected %q, got %q", loyalty.NewUser, res.Message)
	}
	if _, err := h.customers.Get(context.Background(), phone); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no customer row, got %v", err)
	}
}

func TestCheckIn_NewCustomerCreatesRowAndVisit(t *testing.T) {
	h := newHarness(t, 3, true)

	res, err := h.svc.CheckIn(context.Background(), loyalty.CheckInRequest{
		PhoneNumber: phone, FirstName: "Ana", BirthMonth: "March", StoreID: storeID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message != "Welcome, Ana!" || res.Points != 0 || res.VisitID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	waiting, err := h.svc.Waitlist(context.Background(), storeID)
	if err != nil {
		t.Fatalf("waitlist: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != res.VisitID || waiting[0].Status != model.CheckedIn {
		t.Fatalf("unexpected waitlist: %+v", waiting)
	}
}

func TestCheckIn_PromoOnlyAtExactTrigger(t *testing.T) {
	cases := []struct {
		name      string
		points    int
		wantPromo bool
		wantAfter int
	}{
		{name: "below trigger", points: 2, wantPromo: false, wantAfter: 2},
		{name: "at trigger", points: 3, wantPromo: true, wantAfter: 0},
		{name: "above trigger", points: 4, wantPromo: false, wantAfter: 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 3, true)
			h.seedCustomer(t, phone, tc.points)

			res, err := h.svc.CheckIn(context.Background(), loyalty.CheckInRequest{PhoneNumber: phone, StoreID: storeID})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Message != "Welcome back!" {
				t.Fatalf("unexpected message %q", res.Message)
			}
			if res.Promo != tc.wantPromo || res.Points != tc.wantAfter {
				t.Fatalf("expected promo=%v points=%d, got %+v", tc.wantPromo, tc.wantAfter, res)
			}
			if got := h.points(t, phone); got != tc.wantAfter {
				t.Fatalf("expected stored points %d, got %d", tc.wantAfter, got)
			}

			queued := h.pending(t)
			if tc.wantPromo {
				if len(queued) != 1 || queued[0].Body != "free coffee" || !queued[0].SendAt.Equal(t0) {
					t.Fatalf("expected one promo queued at t0, got %+v", queued)
				}
			} else if len(queued) != 0 {
				t.Fatalf("expected nothing queued, got %+v", queued)
			}

			if calls := h.gw.Calls(); len(calls) != 0 {
				t.Fatalf("check-in must not send directly, got %+v", calls)
			}
		})
	}
}

func TestCheckIn_KeepsNameWhenNotGiven(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 1)

	if _, err := h.svc.CheckIn(context.Background(), loyalty.CheckInRequest{PhoneNumber: phone, StoreID: storeID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := h.customers.Get(context.Background(), phone)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if c.FirstName != "Ana" || c.CheckInTime == nil || !c.CheckInTime.Equal(t0) {
		t.Fatalf("unexpected customer: %+v", c)
	}
}

func TestCheckIn_Validation(t *testing.T) {
	h := newHarness(t, 3, true)

	_, err := h.svc.CheckIn(context.Background(), loyalty.CheckInRequest{StoreID: storeID})
	if !errors.Is(err, loyalty.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func checkIn(t *testing.T, h *harness) string {
	t.Helper()
	v, err := h.visits.Create(context.Background(), model.Visit{
		FirstName: "Ana", PhoneNumber: phone, StoreID: storeID, CheckinTime: t0.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create visit: %v", err)
	}
	return v.ID
}

func TestCheckout_AwardsPointAndSendsReview(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 0)
	id := checkIn(t, h)

	res, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Points != 1 || res.Promo || res.ReviewMessageID != "SM1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := h.points(t, phone); got != 1 {
		t.Fatalf("expected 1 point, got %d", got)
	}

	calls := h.gw.Calls()
	if len(calls) != 1 || calls[0].To != e164 || calls[0].Body != "review us" {
		t.Fatalf("unexpected sends: %+v", calls)
	}
	if got := h.smsCount(t); got != 1 {
		t.Fatalf("expected sms_count 1, got %d", got)
	}

	visits, err := h.svc.DailyCheckouts(context.Background(), storeID, time.UTC)
	if err != nil {
		t.Fatalf("daily checkouts: %v", err)
	}
	if len(visits) != 1 || visits[0].EmployeeID != "emp-1" || visits[0].Status != model.CheckedOut {
		t.Fatalf("unexpected checkouts: %+v", visits)
	}
}

func TestCheckout_ReachingTriggerQueuesPromo(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 2)
	id := checkIn(t, h)

	res, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Promo || res.Points != 0 {
		t.Fatalf("expected promo with reset balance, got %+v", res)
	}
	if got := h.points(t, phone); got != 0 {
		t.Fatalf("expected points reset, got %d", got)
	}

	queued := h.pending(t)
	if len(queued) != 1 || queued[0].Body != "free coffee" || queued[0].StoreID != storeID {
		t.Fatalf("expected promo queued, got %+v", queued)
	}

	// Only the review goes out synchronously; the reset balance no longer matches.
	if calls := h.gw.Calls(); len(calls) != 1 || calls[0].Body != "review us" {
		t.Fatalf("unexpected sends: %+v", calls)
	}
}

func TestCheckout_PastTriggerStillFires(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 5)
	id := checkIn(t, h)

	res, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Promo || res.Points != 0 {
		t.Fatalf("expected promo with reset balance, got %+v", res)
	}
}

func TestCheckout_UnknownCustomerStartsAtZero(t *testing.T) {
	h := newHarness(t, 3, false)
	id := checkIn(t, h)

	res, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Points != 1 || res.ReviewMessageID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckout_ReviewFailureDoesNotFailCheckout(t *testing.T) {
	h := newHarness(t, 3, true)
	h.gw.fail["review us"] = errors.New("carrier rejected")
	h.seedCustomer(t, phone, 0)
	id := checkIn(t, h)

	res, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewMessageID != "" {
		t.Fatalf("expected no review id, got %q", res.ReviewMessageID)
	}
	if got := h.smsCount(t); got != 0 {
		t.Fatalf("expected sms_count 0, got %d", got)
	}
}

func TestCheckout_VisitMustBeActive(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 0)
	id := checkIn(t, h)

	req := loyalty.CheckoutRequest{VisitID: id, StoreID: storeID, EmployeeID: "emp-1"}
	if _, err := h.svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if _, err := h.svc.Checkout(context.Background(), req); !errors.Is(err, loyalty.ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound on second checkout, got %v", err)
	}

	other := loyalty.CheckoutRequest{VisitID: checkIn(t, h), StoreID: 99, EmployeeID: "emp-1"}
	if _, err := h.svc.Checkout(context.Background(), other); !errors.Is(err, loyalty.ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound for another store, got %v", err)
	}

	if _, err := h.svc.Checkout(context.Background(), loyalty.CheckoutRequest{VisitID: id, StoreID: storeID}); !errors.Is(err, loyalty.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without employee, got %v", err)
	}
}

func TestNoShow(t *testing.T) {
	h := newHarness(t, 3, true)
	id := checkIn(t, h)

	if err := h.svc.NoShow(context.Background(), id, storeID); err != nil {
		t.Fatalf("no-show: %v", err)
	}
	waiting, err := h.svc.Waitlist(context.Background(), storeID)
	if err != nil {
		t.Fatalf("waitlist: %v", err)
	}
	if len(waiting) != 0 {
		t.Fatalf("expected empty waitlist, got %+v", waiting)
	}
	if err := h.svc.NoShow(context.Background(), id, storeID); !errors.Is(err, loyalty.ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestImmediateSend_PromoAtExactTrigger(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, phone, 3)

	id, err := h.svc.ImmediateSend(context.Background(), phone, storeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "SM2" {
		t.Fatalf("expected review id SM2, got %q", id)
	}

	calls := h.gw.Calls()
	if len(calls) != 2 || calls[0].Body != "free coffee" || calls[1].Body != "review us" {
		t.Fatalf("expected promo then review, got %+v", calls)
	}
	if got := h.points(t, phone); got != 0 {
		t.Fatalf("expected points reset, got %d", got)
	}
	if got := h.smsCount(t); got != 2 {
		t.Fatalf("expected sms_count 2, got %d", got)
	}
}

func TestImmediateSend_FindsCustomerByNormalizedPhone(t *testing.T) {
	h := newHarness(t, 3, true)
	h.seedCustomer(t, e164, 3)

	if _, err := h.svc.ImmediateSend(context.Background(), "(555) 123-4567", storeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.points(t, e164); got != 0 {
		t.Fatalf("expected points reset, got %d", got)
	}
}

func TestImmediateSend_PromoFailureStillSendsReview(t *testing.T) {
	h := newHarness(t, 3, true)
	h.gw.fail["free coffee"] = errors.New("boom")
	h.seedCustomer(t, phone, 3)

	id, err := h.svc.ImmediateSend(context.Background(), phone, storeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "SM2" {
		t.Fatalf("expected review id SM2, got %q", id)
	}
	if got := h.smsCount(t); got != 1 {
		t.Fatalf("expected only the review counted, got %d", got)
	}
}

func TestImmediateSend_FallbackReview(t *testing.T) {
	h := newHarness(t, 3, true)
	trigger := 3
	if err := h.stores.UpdateSettings(context.Background(), model.Store{StoreNumber: storeID, PromoTrigger: &trigger}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	if _, err := h.svc.ImmediateSend(context.Background(), phone, storeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := h.gw.Calls()
	if len(calls) != 1 || calls[0].Body != "fallback review" {
		t.Fatalf("expected fallback review, got %+v", calls)
	}
}

func TestImmediateSend_Errors(t *testing.T) {
	t.Run("no gateway", func(t *testing.T) {
		h := newHarness(t, 3, false)
		if _, err := h.svc.ImmediateSend(context.Background(), phone, storeID); !errors.Is(err, gateway.ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	})

	t.Run("missing phone", func(t *testing.T) {
		h := newHarness(t, 3, true)
		if _, err := h.svc.ImmediateSend(context.Background(), " ", storeID); !errors.Is(err, loyalty.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("invalid phone", func(t *testing.T) {
		h := newHarness(t, 3, true)
		if _, err := h.svc.ImmediateSend(context.Background(), "123", storeID); !errors.Is(err, gateway.ErrInvalidPhoneNumber) {
			t.Fatalf("expected ErrInvalidPhoneNumber, got %v", err)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		h := newHarness(t, 3, true)
		if _, err := h.svc.ImmediateSend(context.Background(), phone, 99); !errors.Is(err, loyalty.ErrStoreNotFound) {
			t.Fatalf("expected ErrStoreNotFound, got %v", err)
		}
	})

	t.Run("review send fails", func(t *testing.T) {
		h := newHarness(t, 3, true)
		h.gw.fail["review us"] = errors.New("carrier rejected")
		_, err := h.svc.ImmediateSend(context.Background(), phone, storeID)
		var sendErr *loyalty.SendError
		if !errors.As(err, &sendErr) {
			t.Fatalf("expected SendError, got %v", err)
		}
		if len(h.gw.Calls()) != 1 {
			t.Fatalf("expected a single attempt, got %+v", h.gw.Calls())
		}
	})
}
