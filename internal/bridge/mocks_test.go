package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/state"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	subscribeErr  error
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(c bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = c
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns messages published to topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers payload on topic to the handler registered for
// filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// mockAdapter is a scriptable device.Adapter.
type mockAdapter struct {
	mu       sync.Mutex
	id       string
	status   device.Status
	fetchErr error
	setErr   error
	sets     []setCall
	block    chan struct{}
}

type setCall struct {
	Channel int
	On      bool
}

func newMockAdapter(id string, status ...device.ChannelValue) *mockAdapter {
	return &mockAdapter{id: id, status: status}
}

func (a *mockAdapter) Status(ctx context.Context) (device.Status, error) {
	a.mu.Lock()
	block := a.block
	a.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, device.Unreachable(a.id, device.OpStatus, ctx.Err())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	out := make(device.Status, len(a.status))
	copy(out, a.status)
	return out, nil
}

func (a *mockAdapter) SetChannel(_ context.Context, channel int, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sets = append(a.sets, setCall{Channel: channel, On: on})
	if a.setErr != nil {
		return a.setErr
	}
	key := fmt.Sprint(channel)
	for i, cv := range a.status {
		if cv.Channel == key {
			a.status[i].Value = on
			return nil
		}
	}
	a.status = append(a.status, device.ChannelValue{Channel: key, Value: on})
	return nil
}

func (a *mockAdapter) setStatus(status ...device.ChannelValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

func (a *mockAdapter) setFetchErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchErr = err
}

func (a *mockAdapter) Sets() []setCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]setCall, len(a.sets))
	copy(out, a.sets)
	return out
}

// mockPool implements DevicePool over a fixed set of adapters.
type mockPool struct {
	order    []string
	adapters map[string]device.Adapter
}

func newMockPool(adapters ...*mockAdapter) *mockPool {
	p := &mockPool{adapters: make(map[string]device.Adapter)}
	for _, a := range adapters {
		p.order = append(p.order, a.id)
		p.adapters[a.id] = a
	}
	return p
}

func (p *mockPool) Get(id string) (device.Adapter, bool) {
	a, ok := p.adapters[id]
	return a, ok
}

func (p *mockPool) IDs() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// mockSink records change events.
type mockSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []state.ChangeEvent
}

func (s *mockSink) Name() string { return s.name }

func (s *mockSink) WriteChange(_ context.Context, ev state.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *mockSink) Events() []state.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]state.ChangeEvent, len(s.events))
	copy(out, s.events)
	return out
}

// mockAudit records command records.
type mockAudit struct {
	mu      sync.Mutex
	err     error
	records []CommandRecord
}

func (a *mockAudit) RecordCommand(_ context.Context, rec CommandRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return a.err
}

func (a *mockAudit) Records() []CommandRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CommandRecord, len(a.records))
	copy(out, a.records)
	return out
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu       sync.Mutex
	messages []logEntry
}

type logEntry struct {
	Level string
	Msg   string
	KVs   []any
}

func (l *recordingLogger) add(level, msg string, kvs []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, logEntry{Level: level, Msg: msg, KVs: kvs})
}

func (l *recordingLogger) Debug(msg string, kvs ...any) { l.add("debug", msg, kvs) }
func (l *recordingLogger) Info(msg string, kvs ...any)  { l.add("info", msg, kvs) }
func (l *recordingLogger) Warn(msg string, kvs ...any)  { l.add("warn", msg, kvs) }
func (l *recordingLogger) Error(msg string, kvs ...any) { l.add("error", msg, kvs) }

// Has reports whether an entry at level with msg carried key=value.
func (l *recordingLogger) Has(level, msg, key string, value any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.messages {
		if e.Level != level || e.Msg != msg {
			continue
		}
		for i := 0; i+1 < len(e.KVs); i += 2 {
			if e.KVs[i] == key && e.KVs[i+1] == value {
				return true
			}
		}
	}
	return false
}

// Count returns how many entries were logged at level with msg.
func (l *recordingLogger) Count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.messages {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}

var errFake = errors.New("fake failure")

func on(ch string) device.ChannelValue  { return device.ChannelValue{Channel: ch, Value: true} }
func off(ch string) device.ChannelValue { return device.ChannelValue{Channel: ch, Value: false} }
