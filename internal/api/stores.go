package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/kiosk-messaging/internal/campaign"
	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/go-chi/chi/v5"
)

type storeSettings struct {
	PromoTrigger *int   `json:"promoTrigger"`
	PromoSMS     string `json:"promoSms"`
	PromoName    string `json:"promoName"`
	ReviewSMS    string `json:"reviewSms"`
	BirthdaySMS  string `json:"birthdaySms"`
}

func (s storeSettings) validate() error {
	if s.PromoTrigger != nil && *s.PromoTrigger < 0 {
		return errors.New("promoTrigger must be >= 0")
	}
	return nil
}

type createStoreRequest struct {
	StoreNumber storeID `json:"storeNumber"`
	Name        string  `json:"storeName"`
	storeSettings
}

// GET /api/stores/{storeID}
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathStoreID(w, r)
	if !ok {
		return
	}
	st, err := h.stores.Get(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/stores
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.StoreNumber <= 0 {
		writeError(w, http.StatusBadRequest, "storeNumber is required")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.stores.Get(r.Context(), int64(req.StoreNumber)); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("store %d already exists", req.StoreNumber))
		return
	} else if !errors.Is(err, repo.ErrNotFound) {
		storeError(w, err)
		return
	}

	st, err := h.stores.Create(r.Context(), req.toModel(int64(req.StoreNumber), req.Name))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// PUT /api/stores/{storeID}/settings
func (h *Handler) UpdateStoreSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathStoreID(w, r)
	if !ok {
		return
	}
	var req storeSettings
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.stores.Get(r.Context(), id); err != nil {
		storeError(w, err)
		return
	}
	if err := h.stores.UpdateSettings(r.Context(), req.toModel(id, "")); err != nil {
		storeError(w, err)
		return
	}

	st, err := h.stores.Get(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type bulkSMSRequest struct {
	Message string `json:"message"`
}

// POST /api/stores/{storeID}/bulk-sms
// 202: { "count": n, "message": "Messages scheduled for n customers" }
func (h *Handler) BulkSMS(w http.ResponseWriter, r *http.Request) {
	id, ok := pathStoreID(w, r)
	if !ok {
		return
	}
	var req bulkSMSRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	n, err := h.campaigns.Bulk(r.Context(), id, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrEmptyMessage), errors.Is(err, campaign.ErrMessageTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, campaign.ErrNoCustomers):
			writeError(w, http.StatusNotFound, "No customers found")
		default:
			logger.Log.WithError(err).WithField("store_id", id).Error("bulk sms")
			writeError(w, http.StatusInternalServerError, "Failed to schedule messages")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"count":   n,
		"message": fmt.Sprintf("Messages scheduled for %d customers", n),
	})
}

func (s storeSettings) toModel(number int64, name string) model.Store {
	return model.Store{
		StoreNumber:  number,
		Name:         name,
		PromoTrigger: s.PromoTrigger,
		PromoSMS:     s.PromoSMS,
		PromoName:    s.PromoName,
		ReviewSMS:    s.ReviewSMS,
		BirthdaySMS:  s.BirthdaySMS,
	}
}

func pathStoreID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return 0, false
	}
	return id, true
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	logger.Log.WithError(err).Error("store request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
