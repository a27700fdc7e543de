package redisstate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/tuya-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-bridge/internal/state"
)

func TestKey(t *testing.T) {
	if got := Key("bf123"); got != "tuya:device:bf123" {
		t.Errorf("Key() = %q", got)
	}
}

func TestChangeFields(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"on", true, "on"},
		{"off", false, "off"},
		{"number", 12.5, "12.5"},
		{"string", "scene_1", "scene_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := changeFields(state.ChangeEvent{Channel: "3", NewValue: tt.value}, ts)
			if len(got) != 4 {
				t.Fatalf("fields = %v, want 2 pairs", got)
			}
			if got[0] != "3" || got[1] != tt.want {
				t.Errorf("channel pair = %v=%v, want 3=%s", got[0], got[1], tt.want)
			}
			if got[2] != fieldUpdated || got[3] != "2026-01-02T03:04:05Z" {
				t.Errorf("updated pair = %v=%v", got[2], got[3])
			}
		})
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.RedisConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// liveMirror connects to a dev Redis on a scratch DB or skips.
func liveMirror(t *testing.T) *Mirror {
	t.Helper()
	addr := os.Getenv("TUYABRIDGE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available, skipping: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	m := New(rdb, time.Minute)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMirror_Live(t *testing.T) {
	m := liveMirror(t)
	ctx := context.Background()

	for _, ev := range []state.ChangeEvent{
		{DeviceID: "d1", Channel: "1", NewValue: true},
		{DeviceID: "d1", Channel: "2", NewValue: false},
		{DeviceID: "old", Channel: "1", NewValue: true},
	} {
		if err := m.WriteChange(ctx, ev); err != nil {
			t.Fatalf("WriteChange() error = %v", err)
		}
	}

	got, err := m.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["1"] != "on" || got["2"] != "off" || len(got) != 2 {
		t.Errorf("Get(d1) = %v", got)
	}

	ttl, err := m.rdb.TTL(ctx, Key("d1")).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("TTL = %v, %v, want positive", ttl, err)
	}

	removed, err := m.RemoveAllExcept(ctx, []string{"d1"})
	if err != nil {
		t.Fatalf("RemoveAllExcept() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "old" {
		t.Errorf("removed = %v, want [old]", removed)
	}

	if got, err := m.Get(ctx, "old"); err != nil || got != nil {
		t.Errorf("Get(old) = %v, %v, want nil", got, err)
	}
}
