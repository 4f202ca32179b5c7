package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis shares cached results across API instances. Expiry is delegated to
// Redis, so Sweep has nothing to do.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

type redisEnvelope struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewRedis(ctx context.Context, cfg RedisConfig, logger *log.Logger) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = "socialdesk:ai"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger}, nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Redis) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logf("result cache get failed key=%s err=%v", key, err)
		}
		return Entry{}, false
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.logf("result cache decode failed key=%s err=%v", key, err)
		return Entry{}, false
	}
	if time.Since(envelope.CreatedAt) > c.ttl {
		return Entry{}, false
	}
	return Entry{Value: envelope.Value, CreatedAt: envelope.CreatedAt}, true
}

func (c *Redis) Put(ctx context.Context, key string, value json.RawMessage) {
	encoded, err := json.Marshal(redisEnvelope{Value: value, CreatedAt: time.Now().UTC()})
	if err != nil {
		c.logf("result cache encode failed key=%s err=%v", key, err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), encoded, c.ttl).Err(); err != nil {
		c.logf("result cache set failed key=%s err=%v", key, err)
	}
}

func (c *Redis) Sweep(context.Context) int {
	return 0
}

func (c *Redis) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
