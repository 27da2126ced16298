package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/pkg/utils"
)

// StopBus fans a turn-stop signal out across instances. The HTTP stop
// request can land on any replica; the replica actually holding the
// in-flight turn picks it up off pub/sub.
type StopBus interface {
	Publish(ctx context.Context, chatID uuid.UUID) error
	StartForwarder(ctx context.Context, onStop func(chatID uuid.UUID)) error
	Close() error
}

type stopBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewStopBus(log *logger.Logger) (StopBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(utils.GetEnv("REDIS_STOP_CHANNEL", "turn_stop", log))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &stopBus{
		log:     log.With("service", "RedisStopBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *stopBus) Publish(ctx context.Context, chatID uuid.UUID) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis stop bus not initialized")
	}
	return b.rdb.Publish(ctx, b.channel, chatID.String()).Err()
}

func (b *stopBus) StartForwarder(ctx context.Context, onStop func(chatID uuid.UUID)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis stop bus not initialized")
	}
	if onStop == nil {
		return fmt.Errorf("onStop callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				chatID, err := uuid.Parse(m.Payload)
				if err != nil {
					b.log.Warn("bad stop payload", "payload", m.Payload, "error", err)
					continue
				}
				onStop(chatID)
			}
		}
	}()
	return nil
}

func (b *stopBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
