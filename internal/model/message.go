package model

import "time"

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Failed  Status = "failed"
)

// ScheduledMessage is one outbound SMS attempt. Rows are never deleted;
// they move from pending to a terminal status at most once.
type ScheduledMessage struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phoneNumber"`
	Body        string     `json:"body"`
	StoreID     int64      `json:"storeId"`
	SendAt      time.Time  `json:"sendAt"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Skipped     bool       `json:"skipped"`
	MessageID   *string    `json:"messageId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Outcome is what a single processing attempt writes back to the row.
type Outcome struct {
	Status     Status
	MessageID  string
	Reason     string
	Skipped    bool
	AttemptAt  time.Time
	RetryCount int

	// RetryAt keeps the row pending and moves sendAt forward.
	RetryAt *time.Time
}
