package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/go-redis/redis/v8"
)

const defaultSubscriberBuffer = 16

// RedisOpts addresses the Redis server used as the side channel.
type RedisOpts struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisOptsFromConfig maps the [shared.SideChannelConfig] section onto [RedisOpts].
func RedisOptsFromConfig(c shared.SideChannelConfig) RedisOpts {
	return RedisOpts{Addr: c.Addr, Password: c.Password, DB: c.DB, DialTimeout: c.DialTimeout}
}

func (o RedisOpts) client(poolSize int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: o.DialTimeout,
		PoolSize:    poolSize,
		MaxRetries:  -1,
	})
}

// redisConn is a [Conn] backed by a dedicated single-connection client.
type redisConn struct {
	client   *redis.Client
	closed   atomic.Bool
	released atomic.Bool
}

// RedisDialer returns a [Dialer] that opens a dedicated client and verifies it with PING.
//
// Each dial gets its own client with a pool of one, so a discarded handle never shares
// a socket with its replacement.
func RedisDialer(opts RedisOpts) Dialer {
	return func(ctx context.Context) (Conn, error) {
		client := opts.client(1)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach side channel at %s: %w", opts.Addr, err)
		}
		return &redisConn{client: client}, nil
	}
}

func (c *redisConn) observe(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		c.closed.Store(true)
	}
	return err
}

func (c *redisConn) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.observe(c.client.Publish(ctx, channel, payload).Err())
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.observe(c.client.Ping(ctx).Err())
}

func (c *redisConn) Closed() bool {
	return c.closed.Load()
}

func (c *redisConn) Close() error {
	c.closed.Store(true)
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	return c.client.Close()
}

// RedisSubscriber receives queue change events on its own client, apart from the publishing handle.
type RedisSubscriber struct {
	client *redis.Client
	logger *log.Logger
	buffer int
}

// NewRedisSubscriber creates a [RedisSubscriber]. A nil logger discards output.
func NewRedisSubscriber(opts RedisOpts, logger *log.Logger) *RedisSubscriber {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &RedisSubscriber{client: opts.client(2), logger: logger, buffer: defaultSubscriberBuffer}
}

// Subscribe delivers decoded events published on channel until ctx ends, then closes the returned channel.
//
// Payloads that do not decode are logged and skipped. A consumer that falls behind loses events
// rather than stalling the subscription.
func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string) (<-chan models.QueueChange, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: failed to subscribe to %s: %v", shared.ErrServiceUnavailable, channel, err)
	}

	out := make(chan models.QueueChange, s.buffer)
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

				var ev models.QueueChange
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("skipping undecodable queue event", "channel", msg.Channel, "error", err)
					continue
				}

				select {
				case out <- ev:
				default:
					s.logger.Warn("watcher is behind, dropping queue event", "channel", msg.Channel, "revision", ev.Revision)
				}
			}
		}
	}()

	return out, nil
}

// Close releases the subscriber's client.
func (s *RedisSubscriber) Close() error {
	return s.client.Close()
}
