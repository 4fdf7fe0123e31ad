package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookClient posts each SMS as JSON to a relay endpoint. Any 2xx reply
// carrying a message id counts as accepted.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type webhookReply struct {
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

func (r webhookReply) remoteID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ID
}

func (c *WebhookClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	payload, err := json.Marshal(webhookRequest{PhoneNumber: phoneNumber, Message: message})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := roundTrip(c.client, req)
	if err != nil {
		return "", err
	}

	var reply webhookReply
	decodeErr := json.Unmarshal(body, &reply)

	if !isSuccess(status) {
		rejected := &Error{Provider: "webhook", Status: status}
		if decodeErr == nil {
			rejected.Code = reply.Code
			rejected.Message = firstNonBlank(reply.Error, reply.Message)
		} else {
			rejected.Message = strings.TrimSpace(string(body))
		}
		return "", rejected
	}

	if decodeErr != nil {
		return "", fmt.Errorf("decode webhook reply: %w body=%q", decodeErr, string(body))
	}
	id := reply.remoteID()
	if id == "" {
		return "", fmt.Errorf("webhook reply without message id: body=%q", string(body))
	}
	return id, nil
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
