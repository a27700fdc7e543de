package topic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Topic suffixes.
const (
	SuffixState = "state"
	SuffixSet   = "set"

	bridgeSegment = "bridge"
)

// ErrUnknownAction is returned by ParseAction for payloads other than on/off.
var ErrUnknownAction = errors.New("topic: unknown action")

// Action is a switch command carried in a command payload.
type Action int

// Supported actions.
const (
	ActionOff Action = iota
	ActionOn
)

// String returns the wire form of the action.
func (a Action) String() string {
	if a == ActionOn {
		return "on"
	}
	return "off"
}

// On reports whether the action switches the channel on.
func (a Action) On() bool { return a == ActionOn }

// Router builds and decodes topics under a single namespace.
type Router struct {
	Namespace string
}

// NewRouter returns a Router for namespace ns.
func NewRouter(ns string) Router {
	return Router{Namespace: ns}
}

// StateTopic returns <ns>/<deviceID>/<channel>/state.
func (r Router) StateTopic(deviceID, channel string) string {
	return r.Namespace + "/" + deviceID + "/" + channel + "/" + SuffixState
}

// CommandTopic returns <ns>/<deviceID>/<channel>/set.
func (r Router) CommandTopic(deviceID, channel string) string {
	return r.Namespace + "/" + deviceID + "/" + channel + "/" + SuffixSet
}

// CommandSubscription returns the wildcard filter matching every command topic.
func (r Router) CommandSubscription() string {
	return r.Namespace + "/+/+/" + SuffixSet
}

// StatusTopic returns the bridge availability topic.
func (r Router) StatusTopic() string {
	return r.Namespace + "/" + bridgeSegment + "/status"
}

// HealthTopic returns the bridge health topic.
func (r Router) HealthTopic() string {
	return r.Namespace + "/" + bridgeSegment + "/health"
}

// DecodeCommandTopic extracts the device id and channel from a command topic.
//
// The topic must have exactly four segments: the namespace, a non-empty
// device id, a non-empty channel, and the literal "set". Anything else
// reports ok=false.
func (r Router) DecodeCommandTopic(topic string) (deviceID, channel string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return "", "", false
	}
	if parts[0] != r.Namespace || parts[3] != SuffixSet {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// ParseAction decodes a command payload. Matching ignores case and
// surrounding whitespace.
func ParseAction(payload []byte) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on":
		return ActionOn, nil
	case "off":
		return ActionOff, nil
	default:
		return ActionOff, ErrUnknownAction
	}
}

// StatePayload renders a channel value for its state topic, which only
// ever carries on or off. False, zero, the empty string, empty objects and
// nil are off; everything else is on.
func StatePayload(v any) string {
	if truthy(v) {
		return ActionOn.String()
	}
	return ActionOff.String()
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}

// FormatValue renders a channel value as text for sinks that keep the raw
// reading. Booleans become on/off, numbers use the shortest decimal form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "on"
		}
		return "off"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
