package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events on company:<id>:events.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink { return &RedisSink{rdb: rdb} }

func Channel(companyID string) string { return "company:" + companyID + ":events" }

func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := s.rdb.Publish(ctx, Channel(e.CompanyID), payload).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}
