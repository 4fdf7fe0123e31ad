package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/model"
	"github.com/redis/go-redis/v9"
)

// Day counters outlive the receipts so yesterday's total can still be read.
const dayCounterTTL = 8 * 24 * time.Hour

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Delivery is the receipt kept for a sent scheduled_sms row.
type Delivery struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	StoreID         int64     `json:"storeId"`
	PhoneNumber     string    `json:"phoneNumber"`
	SentAt          time.Time `json:"sentAt"`
}

func deliveryKey(id string) string { return "sms:" + id }

func dayKey(storeID int64, day time.Time) string {
	return fmt.Sprintf("sms:store:%d:%s", storeID, day.UTC().Format(time.DateOnly))
}

// StoreSent writes the receipt and bumps the store's counter for sentAt's day
// in one MULTI block.
func (c *RedisCache) StoreSent(ctx context.Context, msg model.ScheduledMessage, remoteMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(Delivery{
		RemoteMessageID: remoteMessageID,
		StoreID:         msg.StoreID,
		PhoneNumber:     msg.PhoneNumber,
		SentAt:          sentAt.UTC(),
	})
	if err != nil {
		return err
	}

	counter := dayKey(msg.StoreID, sentAt)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, deliveryKey(msg.ID), b, c.ttl)
		p.Incr(ctx, counter)
		p.Expire(ctx, counter, dayCounterTTL)
		return nil
	})
	return err
}

// GetSent returns nil, nil on a cache miss.
func (c *RedisCache) GetSent(ctx context.Context, id string) (*Delivery, error) {
	raw, err := c.rdb.Get(ctx, deliveryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v Delivery
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode delivery %s: %w", id, err)
	}
	return &v, nil
}

// SentOn reads the delivery counter for storeID on day (UTC). Missing is zero.
func (c *RedisCache) SentOn(ctx context.Context, storeID int64, day time.Time) (int64, error) {
	raw, err := c.rdb.Get(ctx, dayKey(storeID, day)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
