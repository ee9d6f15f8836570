package notify

import (
	"context"
	"sync"

	"github.com/rogersnm/skillmap/internal/model"
	"go.uber.org/zap"
)

const defaultBuffer = 64

// Hub is an in-process fan-out. A slow subscriber loses events rather than
// blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan model.Event]struct{}
	closed bool
	logger *zap.Logger
}

var (
	_ Publisher  = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[chan model.Event]struct{}),
		logger: logger,
	}
}

func (h *Hub) Publish(ctx context.Context, ev model.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				zap.String("type", string(ev.Type)),
				zap.String("tree_id", ev.TreeID))
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan model.Event, error) {
	ch := make(chan model.Event, defaultBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()
	return ch, nil
}

func (h *Hub) remove(ch chan model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
