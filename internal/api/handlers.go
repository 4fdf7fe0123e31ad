package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/cache"
	"github.com/LeventeLantos/kiosk-messaging/internal/loyalty"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/scheduler"
	"github.com/LeventeLantos/kiosk-messaging/internal/service"
	"github.com/go-chi/chi/v5"
)

// LoyaltyService is what the kiosk and dashboard endpoints need.
type LoyaltyService interface {
	CheckIn(ctx context.Context, req loyalty.CheckInRequest) (loyalty.CheckInResult, error)
	Checkout(ctx context.Context, req loyalty.CheckoutRequest) (loyalty.CheckoutResult, error)
	NoShow(ctx context.Context, visitID string, storeID int64) error
	Waitlist(ctx context.Context, storeID int64) ([]model.Visit, error)
	DailyCheckouts(ctx context.Context, storeID int64, loc *time.Location) ([]model.Visit, error)
	ImmediateSend(ctx context.Context, phone string, storeID int64) (string, error)
}

type CampaignService interface {
	Bulk(ctx context.Context, storeID int64, text string) (int, error)
}

type StoreRepository interface {
	Get(ctx context.Context, storeNumber int64) (*model.Store, error)
	Create(ctx context.Context, s model.Store) (*model.Store, error)
	UpdateSettings(ctx context.Context, s model.Store) error
}

type MessageLister interface {
	List(ctx context.Context, status model.Status, limit, offset int) ([]model.ScheduledMessage, error)
}

type Processor interface {
	RunOnce(ctx context.Context, limit int) service.Report
	Configured() bool
}

type Deps struct {
	Scheduler *scheduler.Scheduler
	// Cron may be nil.
	Cron      *scheduler.Cron
	Processor Processor
	Messages  MessageLister
	// Sent may be nil when Redis is disabled.
	Sent      cache.MessageCache
	Loyalty   LoyaltyService
	Campaigns CampaignService
	Stores    StoreRepository

	StoreDriver string
	// RunLimit caps a manually triggered processor cycle.
	RunLimit int
}

type Handler struct {
	sched     *scheduler.Scheduler
	cron      *scheduler.Cron
	proc      Processor
	messages  MessageLister
	sent      cache.MessageCache
	loyalty   LoyaltyService
	campaigns CampaignService
	stores    StoreRepository

	storeDriver string
	runLimit    int
	now         func() time.Time
}

func NewHandler(d Deps) *Handler {
	runLimit := d.RunLimit
	if runLimit <= 0 {
		runLimit = 10
	}
	return &Handler{
		sched:       d.Scheduler,
		cron:        d.Cron,
		proc:        d.Processor,
		messages:    d.Messages,
		sent:        d.Sent,
		loyalty:     d.Loyalty,
		campaigns:   d.Campaigns,
		stores:      d.Stores,
		storeDriver: d.StoreDriver,
		runLimit:    runLimit,
		now:         time.Now,
	}
}

// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    h.now().UTC().Format(time.RFC3339),
		"store":   h.storeDriver,
		"gateway": h.proc != nil && h.proc.Configured(),
	})
}

// GET /v1/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		scheduler.Status
		Jobs []scheduler.JobInfo `json:"jobs,omitempty"`
	}{Status: h.sched.Status()}
	if h.cron != nil {
		resp.Jobs = h.cron.Jobs()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// POST /v1/scheduler/trigger wakes the running loop for an extra poll.
func (h *Handler) SchedulerTrigger(w http.ResponseWriter, r *http.Request) {
	if !h.sched.Trigger() {
		writeError(w, http.StatusConflict, "scheduler is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

// POST /v1/scheduler/run runs one processor cycle and returns its report.
func (h *Handler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.proc.RunOnce(r.Context(), h.runLimit))
}

// POST /v1/scheduler/jobs/{name}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.cron == nil {
		writeError(w, http.StatusNotFound, "no jobs registered")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.cron.Run(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": name, "ok": true})
}

// GET /v1/messages?status=&limit=&offset=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 50)
	offset := parseInt(q.Get("offset"), 0)

	status := model.Status(strings.ToLower(strings.TrimSpace(q.Get("status"))))
	switch status {
	case "", model.Pending, model.Sent, model.Failed:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	items, err := h.messages.List(r.Context(), status, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /v1/messages/{id}/delivery reads the gateway receipt cached on send.
func (h *Handler) MessageDelivery(w http.ResponseWriter, r *http.Request) {
	if h.sent == nil {
		writeError(w, http.StatusNotFound, "delivery cache disabled")
		return
	}
	v, err := h.sent.GetSent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "no delivery recorded")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /v1/stores/{storeID}/sent?day=YYYY-MM-DD counts deliveries for a UTC day.
func (h *Handler) StoreSentCount(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathStoreID(w, r)
	if !ok {
		return
	}
	if h.sent == nil {
		writeError(w, http.StatusNotFound, "delivery cache disabled")
		return
	}

	day := h.now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = d
	}

	n, err := h.sent.SentOn(r.Context(), storeID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"storeId": storeID,
		"day":     day.Format(time.DateOnly),
		"sent":    n,
	})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
