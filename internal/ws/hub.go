package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/models"
)

// Hub broadcasts refresh audit records to subscribed clients.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[*Subscriber]struct{}
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds the broadcast hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		subscribers:  make(map[*Subscriber]struct{}),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers a subscriber.
func (h *Hub) Add(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}
}

// Remove drops a subscriber.
func (h *Hub) Remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
}

// NotifyRefresh fans a completed stage's audit record out to every
// subscriber.
func (h *Hub) NotifyRefresh(rec models.JobAuditRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		h.logger.Warn("failed to encode refresh record", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		sub.Send(payload)
	}
}

// Start begins the ping loop keeping subscriber connections alive.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for sub := range h.subscribers {
				_ = sub.Ping()
			}
			h.mu.RUnlock()
		}
	}
}
