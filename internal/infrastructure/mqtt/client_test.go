package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tuya-bridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newDisconnectedClient returns a Client that was never connected.
func newDisconnectedClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "tuya-bridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected AutoReconnect and CleanSession")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "tuya/bridge/status", "tuya-bridge-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "tuya/bridge/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will must be retained")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("c1")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"c1"`) {
		t.Errorf("online payload = %s", online)
	}
	offline := buildOfflinePayload("c1")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic string
		ok    bool
	}{
		{"tuya/d1/1/state", true},
		{"", false},
		{"tuya/+/1/state", false},
		{"tuya/#", false},
	}
	for _, tt := range tests {
		err := ValidatePublishTopic(tt.topic)
		if (err == nil) != tt.ok {
			t.Errorf("ValidatePublishTopic(%q) error = %v, want ok=%v", tt.topic, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidatePublishTopic(%q) error = %v, want ErrInvalidTopic", tt.topic, err)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter string
		ok     bool
	}{
		{"tuya/+/+/set", true},
		{"tuya/#", true},
		{"#", true},
		{"tuya/d1/1/set", true},
		{"", false},
		{"tuya/d+/1/set", false},
		{"tuya/#/set", false},
		{"tuya/a#", false},
	}
	for _, tt := range tests {
		if err := ValidateFilter(tt.filter); (err == nil) != tt.ok {
			t.Errorf("ValidateFilter(%q) error = %v, want ok=%v", tt.filter, err, tt.ok)
		}
	}
}

func TestConnect_InvalidStatusTopic(t *testing.T) {
	_, err := Connect(testConfig(), "tuya/+/status")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Connect() error = %v, want ErrInvalidTopic", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	client := newDisconnectedClient()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"wildcard topic", "tuya/+/1/state", 1, nil, ErrInvalidTopic},
		{"invalid qos", "tuya/d1/1/state", 3, nil, ErrInvalidQoS},
		{"oversized payload", "tuya/d1/1/state", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", "tuya/d1/1/state", 1, []byte("on"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, true)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := newDisconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty filter error = %v", err)
	}
	if err := client.Subscribe("tuya/+/+/set", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := client.Subscribe("tuya/+/+/set", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := client.Subscribe("tuya/+/+/set", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if err := client.Unsubscribe("tuya/+/+/set"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	client := newDisconnectedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	wrapped(nil, &fakeMessage{topic: "tuya/d1/1/set", payload: []byte("on")})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want one panic entry", logger.errors)
	}
}

func TestWrapHandler_LogsError(t *testing.T) {
	client := newDisconnectedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	var gotTopic, gotPayload string
	wrapped := client.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return errors.New("handler error")
	})
	wrapped(nil, &fakeMessage{topic: "tuya/d1/1/set", payload: []byte("off")})

	if gotTopic != "tuya/d1/1/set" || gotPayload != "off" {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %v, want one", logger.warns)
	}
}

func TestWrapHandler_NoLogger(t *testing.T) {
	client := newDisconnectedClient()
	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	// Must not propagate the panic.
	wrapped(nil, &fakeMessage{topic: "t"})
}

func TestCallbacks(t *testing.T) {
	client := newDisconnectedClient()

	var disconnectErr error
	client.SetOnDisconnect(func(err error) { disconnectErr = err })
	client.handleDisconnect(errors.New("lost"))

	if disconnectErr == nil || disconnectErr.Error() != "lost" {
		t.Errorf("onDisconnect got %v", disconnectErr)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
