package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sender delivers one SMS and returns the provider-assigned message id.
type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
}

var ErrNotConfigured = errors.New("SMS service not configured")

// Error is a rejection reported by the SMS provider.
type Error struct {
	Provider string
	Code     string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s error %s: %s", e.Provider, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s error %s", e.Provider, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	default:
		return fmt.Sprintf("%s error: status %d", e.Provider, e.Status)
	}
}

// Reason turns a send error into the text persisted on the message row.
// Provider codes win over free-form messages.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Code != "" {
		return fmt.Sprintf("%s error: %s", gwErr.Provider, gwErr.Code)
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Failed to send SMS"
}

// maxResponseBody caps how much of a provider reply is read.
const maxResponseBody = 64 << 10

// roundTrip sends req and returns the status with the (capped) body.
func roundTrip(hc *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", req.URL.Host, err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
