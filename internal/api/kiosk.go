package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/loyalty"
	"github.com/go-chi/chi/v5"
)

// storeID accepts both 7 and "7"; kiosks send the store number as typed.
type storeID int64

func (s *storeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(raw))
		if len(b) == 0 {
			*s = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.New("storeId must be a number")
	}
	*s = storeID(n)
	return nil
}

type scheduleSMSRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Immediate   bool    `json:"immediate"`
	StoreID     storeID `json:"storeid"`
}

// POST /api/scheduleSms
// 200: { "success": true, "messageId": "...", "message": "SMS sent successfully" }
// 200: { "success": true, "message": "SMS scheduled successfully" } when not immediate or no gateway
// 400: missing or invalid phone number
// 404: unknown store
// 500: store or gateway failure
func (h *Handler) ScheduleSMS(w http.ResponseWriter, r *http.Request) {
	var req scheduleSMSRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	if !req.Immediate {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "SMS scheduled successfully"})
		return
	}

	id, err := h.loyalty.ImmediateSend(r.Context(), req.PhoneNumber, int64(req.StoreID))
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrNotConfigured):
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "SMS scheduled successfully"})
		case errors.Is(err, loyalty.ErrInvalidRequest), errors.Is(err, gateway.ErrInvalidPhoneNumber):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, loyalty.ErrStoreNotFound):
			writeError(w, http.StatusNotFound, "Failed to fetch store message")
		default:
			var sendErr *loyalty.SendError
			if errors.As(err, &sendErr) {
				writeError(w, http.StatusInternalServerError, "Failed to send SMS: "+gateway.Reason(sendErr.Err))
				return
			}
			logger.Log.WithError(err).Error("immediate sms")
			writeError(w, http.StatusInternalServerError, "Failed to fetch store message")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": id,
		"message":   "SMS sent successfully",
	})
}

type checkInRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	FirstName   string  `json:"firstName"`
	BirthMonth  string  `json:"birthMonth"`
	StoreID     storeID `json:"storeId"`
}

// POST /api/checkins
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	res, err := h.loyalty.CheckIn(r.Context(), loyalty.CheckInRequest{
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		BirthMonth:  req.BirthMonth,
		StoreID:     int64(req.StoreID),
	})
	if err != nil {
		h.loyaltyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/checkins?storeId=
func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	id, ok := queryStoreID(w, r)
	if !ok {
		return
	}
	visits, err := h.loyalty.Waitlist(r.Context(), id)
	if err != nil {
		h.loyaltyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visits})
}

type checkoutRequest struct {
	StoreID    storeID `json:"storeId"`
	EmployeeID string  `json:"employeeId"`
}

// POST /api/checkins/{id}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	res, err := h.loyalty.Checkout(r.Context(), loyalty.CheckoutRequest{
		VisitID:    chi.URLParam(r, "id"),
		StoreID:    int64(req.StoreID),
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		h.loyaltyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/checkins/{id}/no-show
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := h.loyalty.NoShow(r.Context(), chi.URLParam(r, "id"), int64(req.StoreID)); err != nil {
		h.loyaltyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /api/checkouts/daily?storeId=&tz=
func (h *Handler) DailyCheckouts(w http.ResponseWriter, r *http.Request) {
	id, ok := queryStoreID(w, r)
	if !ok {
		return
	}

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tz")
			return
		}
		loc = l
	}

	visits, err := h.loyalty.DailyCheckouts(r.Context(), id, loc)
	if err != nil {
		h.loyaltyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visits})
}

func (h *Handler) loyaltyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loyalty.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, loyalty.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "Check-in record not found or already checked out")
	case errors.Is(err, loyalty.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, "store not found")
	default:
		logger.Log.WithError(err).Error("loyalty request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryStoreID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("storeId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "storeId is required")
		return 0, false
	}
	return id, true
}
