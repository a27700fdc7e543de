package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/tuya-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-bridge/internal/state"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

const (
	keyPrefix    = "tuya:device:"
	fieldUpdated = "_updated"
	pingTimeout  = 5 * time.Second
	scanCount    = 100
)

// Sentinel errors.
var (
	// ErrDisabled indicates Redis is disabled in configuration.
	ErrDisabled = errors.New("redisstate: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("redisstate: connection failed")
)

// Mirror writes channel changes into per-device hashes.
type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect creates a client and verifies it with a ping.
func Connect(cfg config.RedisConfig) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return New(rdb, cfg.TTL), nil
}

// New wraps an existing client. ttl <= 0 disables expiry.
func New(rdb *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{rdb: rdb, ttl: ttl}
}

// Key returns the hash key for a device.
func Key(deviceID string) string { return keyPrefix + deviceID }

// Name identifies this sink in logs and metrics.
func (m *Mirror) Name() string { return "redis" }

// WriteChange sets the channel field and refreshes the hash TTL in one
// transaction.
func (m *Mirror) WriteChange(ctx context.Context, ev state.ChangeEvent) error {
	key := Key(ev.DeviceID)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, changeFields(ev, ts)...)
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", key, err)
	}
	return nil
}

// Get returns the mirrored channels of one device, without the
// bookkeeping fields. A missing device returns nil and no error.
func (m *Mirror) Get(ctx context.Context, deviceID string) (map[string]string, error) {
	fields, err := m.rdb.HGetAll(ctx, Key(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	delete(fields, fieldUpdated)
	return fields, nil
}

// Delete removes one device's hash.
func (m *Mirror) Delete(ctx context.Context, deviceID string) error {
	return m.rdb.Del(ctx, Key(deviceID)).Err()
}

// RemoveAllExcept deletes the hashes of devices not in keepIDs and returns
// the removed ids. Used at startup to drop devices removed from the registry.
func (m *Mirror) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}

	var removed []string
	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		id, ok := strings.CutPrefix(full, keyPrefix)
		if !ok {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		if err := m.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// HealthCheck pings the server.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}

// changeFields returns the HSET field/value pairs for ev.
func changeFields(ev state.ChangeEvent, ts time.Time) []any {
	return []any{
		ev.Channel, topic.FormatValue(ev.NewValue),
		fieldUpdated, ts.UTC().Format(time.RFC3339Nano),
	}
}
