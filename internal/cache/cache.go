package cache

import (
	"context"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
)

// MessageCache keeps a short-lived record of delivered messages keyed by queue id,
// plus a per-store count of deliveries for each UTC day.
type MessageCache interface {
	StoreSent(ctx context.Context, msg model.ScheduledMessage, remoteMessageID string, sentAt time.Time) error
	GetSent(ctx context.Context, id string) (*Delivery, error)
	SentOn(ctx context.Context, storeID int64, day time.Time) (int64, error)
}
