package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel shared by every skillmap process.
const DefaultChannel = "skillmap-sync"

// BreakerConfig controls when publishing to redis is short-circuited.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// RedisGateway publishes events on a redis channel and delivers events
// published there by other processes.
type RedisGateway struct {
	client  *redis.Client
	channel string
	origin  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var (
	_ Publisher  = (*RedisGateway)(nil)
	_ Subscriber = (*RedisGateway)(nil)
)

// NewRedisGateway connects to redisURL and verifies the connection.
func NewRedisGateway(redisURL, channel, origin string, logger *zap.Logger) (*RedisGateway, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisGatewayWithClient(client, channel, origin, DefaultBreakerConfig(), logger), nil
}

// NewRedisGatewayWithClient builds a gateway from an existing client.
func NewRedisGatewayWithClient(client *redis.Client, channel, origin string, cfg BreakerConfig, logger *zap.Logger) *RedisGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	g := &RedisGateway{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

// Publish stamps ev with this gateway's origin, unless already set, and
// sends it. While the breaker is open it fails fast with
// gobreaker.ErrOpenState.
func (g *RedisGateway) Publish(ctx context.Context, ev model.Event) error {
	if ev.Origin == "" {
		ev.Origin = g.origin
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = g.breaker.Execute(func() (any, error) {
		return nil, g.client.Publish(ctx, g.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("publishing %s for %s: %w", ev.Type, ev.TreeID, err)
	}
	return nil
}

// Subscribe delivers events from other origins. Messages that do not decode
// are logged and skipped.
func (g *RedisGateway) Subscribe(ctx context.Context) (<-chan model.Event, error) {
	ps := g.client.Subscribe(ctx, g.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", g.channel, err)
	}

	out := make(chan model.Event, defaultBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					g.logger.Warn("skipping undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if ev.Origin != "" && ev.Origin == g.origin {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// BreakerState reports the publish circuit breaker state.
func (g *RedisGateway) BreakerState() gobreaker.State {
	return g.breaker.State()
}

func (g *RedisGateway) Close() error {
	return g.client.Close()
}
