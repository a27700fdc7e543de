package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/state"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

func newTestPoller(client *MockMQTTClient, pool DevicePool, logger Logger, sinks ...Sink) (*Poller, *state.Store) {
	store := state.NewStore()
	pub := NewStatePublisher(client, topic.NewRouter("tuya"), 0, sinks, nil, logger)
	p := NewPoller(PollerConfig{Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}, pool, store, pub, nil, logger)
	return p, store
}

func TestPoller_FirstPassPublishesEverything(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", on("1"), off("2"))
	p, store := newTestPoller(client, newMockPool(a), nil)

	events := p.Tick(context.Background())
	if len(events) != 2 {
		t.Fatalf("Tick() returned %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.HadOld {
			t.Errorf("first event for %s/%s should have HadOld=false", ev.DeviceID, ev.Channel)
		}
	}
	if got := client.PublishedTo("tuya/d1/2/state"); len(got) != 1 || string(got[0].Payload) != "off" {
		t.Errorf("d1/2 publishes = %+v, want one 'off'", got)
	}
	if v, ok := store.Get("d1", "1"); !ok || v != true {
		t.Errorf("store d1/1 = %v, %v", v, ok)
	}
	if p.LastPass().IsZero() {
		t.Error("LastPass should be set after a tick")
	}
}

func TestPoller_NoChangeNoPublish(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", on("1"))
	p, _ := newTestPoller(client, newMockPool(a), nil)

	p.Tick(context.Background())
	client.ClearPublished()

	if events := p.Tick(context.Background()); len(events) != 0 {
		t.Errorf("second Tick() returned %d events, want 0", len(events))
	}
	if n := len(client.GetPublished()); n != 0 {
		t.Errorf("published %d messages on an unchanged pass", n)
	}
}

func TestPoller_OnlyChangedChannelsPublished(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", on("1"), off("2"))
	p, _ := newTestPoller(client, newMockPool(a), nil)

	p.Tick(context.Background())
	client.ClearPublished()

	a.setStatus(on("1"), on("2"))
	events := p.Tick(context.Background())
	if len(events) != 1 || events[0].Channel != "2" {
		t.Fatalf("events = %+v, want only channel 2", events)
	}
	if events[0].OldValue != false || events[0].NewValue != true || !events[0].HadOld {
		t.Errorf("event = %+v, want false -> true", events[0])
	}
	published := client.GetPublished()
	if len(published) != 1 || published[0].Topic != "tuya/d1/2/state" {
		t.Errorf("published = %+v", published)
	}
}

func TestPoller_FetchFailureLeavesState(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", on("1"))
	logger := &recordingLogger{}
	p, store := newTestPoller(client, newMockPool(a), logger)

	p.Tick(context.Background())
	client.ClearPublished()

	a.setFetchErr(device.Unreachable("d1", device.OpStatus, errFake))
	for i := 0; i < 3; i++ {
		if events := p.Tick(context.Background()); len(events) != 0 {
			t.Fatalf("failed pass produced events: %+v", events)
		}
	}
	if v, ok := store.Get("d1", "1"); !ok || v != true {
		t.Errorf("state changed by failed fetch: %v, %v", v, ok)
	}
	if len(client.GetPublished()) != 0 {
		t.Error("failed fetch must not publish")
	}

	h, ok := p.Health("d1")
	if !ok || h.ConsecutiveFailures != 3 || h.Reachable() {
		t.Errorf("health = %+v, want 3 failures and unreachable", h)
	}
	if p.Failing() != 1 {
		t.Errorf("Failing() = %d, want 1", p.Failing())
	}
	if logger.Count("warn", "device fetch failed") != 1 {
		t.Error("only the first failure should warn")
	}
	if logger.Count("debug", "device fetch failed") != 2 {
		t.Error("repeat failures should log at debug")
	}

	// Recovery with the same value publishes nothing.
	a.setFetchErr(nil)
	if events := p.Tick(context.Background()); len(events) != 0 {
		t.Errorf("recovery pass produced events: %+v", events)
	}
	if h, _ := p.Health("d1"); !h.Reachable() {
		t.Error("device should be reachable after recovery")
	}
	if logger.Count("info", "device reachable again") != 1 {
		t.Error("expected recovery log")
	}
}

func TestPoller_FailureIsolatedPerDevice(t *testing.T) {
	client := NewMockMQTTClient()
	bad := newMockAdapter("bad")
	bad.setFetchErr(device.Unreachable("bad", device.OpStatus, errFake))
	good := newMockAdapter("good", on("1"))
	p, _ := newTestPoller(client, newMockPool(bad, good), nil)

	events := p.Tick(context.Background())
	if len(events) != 1 || events[0].DeviceID != "good" {
		t.Errorf("events = %+v, want one from good", events)
	}
}

func TestPoller_FetchTimeout(t *testing.T) {
	client := NewMockMQTTClient()
	slow := newMockAdapter("slow", on("1"))
	slow.block = make(chan struct{})
	defer close(slow.block)
	fast := newMockAdapter("fast", on("1"))
	p, _ := newTestPoller(client, newMockPool(slow, fast), nil)

	start := time.Now()
	events := p.Tick(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("tick did not honour the fetch timeout")
	}
	if len(events) != 1 || events[0].DeviceID != "fast" {
		t.Errorf("events = %+v, want one from fast", events)
	}
	if h, _ := p.Health("slow"); h.ConsecutiveFailures != 1 {
		t.Errorf("slow health = %+v", h)
	}
}

func TestPoller_Resync(t *testing.T) {
	client := NewMockMQTTClient()
	sink := &mockSink{name: "mem"}
	a := newMockAdapter("d1", on("1"), off("2"))
	p, _ := newTestPoller(client, newMockPool(a), nil, sink)

	p.Tick(context.Background())
	client.ClearPublished()

	if n := p.Resync(); n != 2 {
		t.Errorf("Resync() = %d, want 2", n)
	}
	published := client.GetPublished()
	if len(published) != 2 || published[0].Topic != "tuya/d1/1/state" || !published[0].Retained {
		t.Errorf("published = %+v", published)
	}
	if len(sink.Events()) != 2 {
		t.Errorf("sink saw %d events, want only the 2 real changes", len(sink.Events()))
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", on("1"))
	p, _ := newTestPoller(client, newMockPool(a), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for p.LastPass().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if p.Phase() != PhaseIdle {
		t.Errorf("Phase() = %s after stop, want idle", p.Phase())
	}
	if len(client.PublishedTo("tuya/d1/1/state")) != 1 {
		t.Error("expected exactly one state publish across passes")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), "timeout"},
		{"unreachable", device.Unreachable("d1", device.OpStatus, errFake), "unreachable"},
		{"protocol", device.Protocol("d1", device.OpStatus, errFake), "protocol"},
		{"other", errFake, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Errorf("errorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	tests := map[Phase]string{
		PhaseIdle:     "idle",
		PhaseFetching: "fetching",
		PhaseDiffing:  "diffing",
		PhaseSleeping: "sleeping",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func TestPoller_NumericChannelPublishesOnOff(t *testing.T) {
	client := NewMockMQTTClient()
	a := newMockAdapter("d1", device.ChannelValue{Channel: "19", Value: 2305.0})
	p, store := newTestPoller(client, newMockPool(a), nil)

	p.Tick(context.Background())

	if got := client.PublishedTo("tuya/d1/19/state"); len(got) != 1 || string(got[0].Payload) != "on" {
		t.Errorf("d1/19 publishes = %+v, want one 'on'", got)
	}
	if v, _ := store.Get("d1", "19"); v != 2305.0 {
		t.Errorf("store d1/19 = %v, want raw reading 2305", v)
	}

	client.ClearPublished()
	a.setStatus(device.ChannelValue{Channel: "19", Value: 0.0})
	p.Tick(context.Background())

	if got := client.PublishedTo("tuya/d1/19/state"); len(got) != 1 || string(got[0].Payload) != "off" {
		t.Errorf("d1/19 publishes = %+v, want one 'off'", got)
	}
}
