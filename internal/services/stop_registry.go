package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/chat"
	redisclient "github.com/yungbote/driftchat-backend/internal/clients/redis"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
)

// StopRegistry maps chats with an in-flight turn to their abort flags so
// the stop endpoint (which arrives on a different connection) can reach
// them. With a bus configured the signal also fans out across instances.
type StopRegistry struct {
	mu    sync.Mutex
	flags map[uuid.UUID]*chat.AbortFlag
	bus   redisclient.StopBus
	log   *logger.Logger
}

func NewStopRegistry(log *logger.Logger, bus redisclient.StopBus) *StopRegistry {
	return &StopRegistry{
		flags: map[uuid.UUID]*chat.AbortFlag{},
		bus:   bus,
		log:   log.With("service", "StopRegistry"),
	}
}

// StartForwarder subscribes to cross-instance stop signals. No-op
// without a bus.
func (r *StopRegistry) StartForwarder(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	return r.bus.StartForwarder(ctx, r.stopLocal)
}

// Register tracks the turn's abort flag; the returned release func must
// run when the turn ends. One in-flight turn per chat.
func (r *StopRegistry) Register(chatID uuid.UUID, flag *chat.AbortFlag) func() {
	r.mu.Lock()
	r.flags[chatID] = flag
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if r.flags[chatID] == flag {
			delete(r.flags, chatID)
		}
		r.mu.Unlock()
	}
}

// Stop aborts the chat's in-flight turn, locally and (when a bus is
// configured) on whichever replica holds it.
func (r *StopRegistry) Stop(ctx context.Context, chatID uuid.UUID) {
	r.stopLocal(chatID)
	if r.bus != nil {
		if err := r.bus.Publish(ctx, chatID); err != nil {
			r.log.Warn("publish stop signal failed", "chat_id", chatID, "error", err)
		}
	}
}

func (r *StopRegistry) stopLocal(chatID uuid.UUID) {
	r.mu.Lock()
	flag := r.flags[chatID]
	r.mu.Unlock()
	if flag != nil {
		flag.Abort()
	}
}
