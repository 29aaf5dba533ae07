package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestSubscribeWaitsForConfirmation(t *testing.T) {
	// Nothing listens on port 1, so the subscription can never be confirmed.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	s := NewCountsService(nil, rdb, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := s.Subscribe(ctx, uuid.New())
	if err == nil {
		sub.Close()
		t.Fatal("Subscribe returned without a confirmed subscription")
	}
	if sub != nil {
		t.Fatal("failed Subscribe must not hand out a PubSub")
	}
}
