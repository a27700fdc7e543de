package topic

import (
	"errors"
	"testing"
)

func TestRouter_Builders(t *testing.T) {
	r := NewRouter("ns")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"StateTopic", r.StateTopic("dev1", "2"), "ns/dev1/2/state"},
		{"CommandTopic", r.CommandTopic("dev1", "2"), "ns/dev1/2/set"},
		{"CommandSubscription", r.CommandSubscription(), "ns/+/+/set"},
		{"StatusTopic", r.StatusTopic(), "ns/bridge/status"},
		{"HealthTopic", r.HealthTopic(), "ns/bridge/health"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestRouter_DecodeCommandTopic(t *testing.T) {
	r := NewRouter("ns")

	tests := []struct {
		topic       string
		wantDevice  string
		wantChannel string
		wantOK      bool
	}{
		{"ns/dev1/2/set", "dev1", "2", true},
		{"ns/dev1/2/get", "", "", false},
		{"ns/dev1/set", "", "", false},
		{"ns/dev1/2/set/extra", "", "", false},
		{"other/dev1/2/set", "", "", false},
		{"ns//2/set", "", "", false},
		{"ns/dev1//set", "", "", false},
		{"", "", "", false},
		{"ns/dev1/2/SET", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			dev, ch, ok := r.DecodeCommandTopic(tt.topic)
			if ok != tt.wantOK || dev != tt.wantDevice || ch != tt.wantChannel {
				t.Errorf("DecodeCommandTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, dev, ch, ok, tt.wantDevice, tt.wantChannel, tt.wantOK)
			}
		})
	}
}

func TestRouter_RoundTrip(t *testing.T) {
	r := NewRouter("tuya")
	dev, ch, ok := r.DecodeCommandTopic(r.CommandTopic("bf12ab", "1"))
	if !ok || dev != "bf12ab" || ch != "1" {
		t.Errorf("round trip = (%q, %q, %v)", dev, ch, ok)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		payload string
		want    Action
		wantErr bool
	}{
		{"on", ActionOn, false},
		{"ON", ActionOn, false},
		{"On", ActionOn, false},
		{" on\n", ActionOn, false},
		{"off", ActionOff, false},
		{"OFF", ActionOff, false},
		{"toggle", ActionOff, true},
		{"", ActionOff, true},
		{"1", ActionOff, true},
	}

	for _, tt := range tests {
		got, err := ParseAction([]byte(tt.payload))
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownAction) {
				t.Errorf("ParseAction(%q) error = %v, want ErrUnknownAction", tt.payload, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAction(%q) = (%v, %v), want %v", tt.payload, got, err, tt.want)
		}
	}
}

func TestParseAction_CaseEquivalence(t *testing.T) {
	upper, err1 := ParseAction([]byte("ON"))
	lower, err2 := ParseAction([]byte("on"))
	if err1 != nil || err2 != nil || upper != lower {
		t.Errorf("ON and on decode differently: %v/%v, %v/%v", upper, err1, lower, err2)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{true, "on"},
		{false, "off"},
		{float64(230), "230"},
		{2.5, "2.5"},
		{0.1, "0.1"},
		{7, "7"},
		{"white", "white"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatePayload(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{true, "on"},
		{false, "off"},
		{float64(2305), "on"},
		{float64(0), "off"},
		{-1.5, "on"},
		{7, "on"},
		{0, "off"},
		{"white", "on"},
		{"", "off"},
		{nil, "off"},
		{map[string]any{}, "off"},
		{map[string]any{"h": 1.0}, "on"},
		{[]any{}, "off"},
		{[]any{1.0}, "on"},
	}
	for _, tt := range tests {
		if got := StatePayload(tt.in); got != tt.want {
			t.Errorf("StatePayload(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAction_String(t *testing.T) {
	if ActionOn.String() != "on" || ActionOff.String() != "off" {
		t.Error("unexpected Action.String()")
	}
	if !ActionOn.On() || ActionOff.On() {
		t.Error("unexpected Action.On()")
	}
}
