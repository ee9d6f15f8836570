package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/rogersnm/skillmap/internal/adapter"
	"github.com/rogersnm/skillmap/internal/cache"
	"github.com/rogersnm/skillmap/internal/config"
	"github.com/rogersnm/skillmap/internal/metrics"
	"github.com/rogersnm/skillmap/internal/notify"
	"github.com/rogersnm/skillmap/internal/repository"
	"github.com/rogersnm/skillmap/internal/service"
	"github.com/rogersnm/skillmap/internal/store"
	"go.uber.org/zap"
)

// stack is the in-process store: repository, services and an adapter
// serving an rpc queue that the CLI client talks to.
type stack struct {
	baseDir   string
	origin    string
	summaries *cache.Summaries
	repo      *repository.Repository
	hub       *notify.Hub
	redis     *notify.RedisGateway
	collector *metrics.Collector
	adapter   *adapter.Adapter
	queue     *adapter.Queue

	cancel context.CancelFunc
	done   chan struct{}
}

func newStack(cfg *config.Config, dataDir string, logger *zap.Logger) *stack {
	s := &stack{
		baseDir:   dataDir,
		origin:    uuid.NewString(),
		summaries: cache.New(),
		hub:       notify.NewHub(logger.Named("hub")),
		collector: metrics.NewCollector(),
		queue:     adapter.NewQueue(16),
	}
	s.repo = repository.New(store.NewLocal(s.baseDir, logger.Named("store")), s.summaries, logger.Named("repository"))

	var events notify.Publisher = notify.Nop{}
	switch cfg.NotifyMode() {
	case config.ModeLocal:
		events = s.hub
	case config.ModeRedis:
		gw, err := notify.NewRedisGateway(cfg.Notify.RedisURL, cfg.Channel(), s.origin, logger.Named("redis"))
		if err != nil {
			logger.Warn("redis notifications unavailable, continuing without them", zap.Error(err))
			events = s.hub
			break
		}
		s.redis = gw
		events = notify.Multi{s.hub, gw}
	}
	events = s.collector.InstrumentPublisher(events)

	s.adapter = adapter.New(
		service.NewTreeService(s.repo, events, logger.Named("trees")),
		service.NewStatusService(s.repo, events, logger.Named("statuses")),
		s.collector,
		logger.Named("adapter"),
	)
	return s
}

func (s *stack) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = s.adapter.Serve(ctx, s.queue.Calls())
	}()
}

func (s *stack) close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.queue.Close()
	s.hub.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
