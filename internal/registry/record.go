package registry

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion is used when a record has no parsable protocol version.
const DefaultVersion = 3.3

// Record is one device entry. Records are values and never change after load.
type Record struct {
	ID      string
	Address string
	Key     string
	Version float64
	Name    string
}

// DisplayName returns the configured name, or the id when unnamed.
func (r Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Reasons a record is kept out of the active set.
const (
	ExclusionNoAddress      = "no address"
	ExclusionInvalidAddress = "invalid address"
)

// HasAddress reports whether the record can be polled.
func (r Record) HasAddress() bool {
	return r.Exclusion() == ""
}

// Exclusion returns why the record cannot be polled, or "" when it can.
func (r Record) Exclusion() string {
	switch {
	case r.Address == "":
		return ExclusionNoAddress
	case net.ParseIP(r.Address) == nil && !validHostname(r.Address):
		return ExclusionInvalidAddress
	default:
		return ""
	}
}

// validHostname checks RFC 1123 syntax: dot-separated labels of letters,
// digits and inner hyphens, at most 63 bytes each and 253 in total.
func validHostname(h string) bool {
	h = strings.TrimSuffix(h, ".")
	if h == "" || len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
				return false
			}
		}
	}
	return true
}

// rawRecord mirrors the on-disk shape. devices.json entries carry many
// more fields (product keys, mapping tables); they are ignored.
type rawRecord struct {
	ID      string  `json:"id" yaml:"id"`
	Key     string  `json:"key" yaml:"key"`
	IP      string  `json:"ip" yaml:"ip"`
	Version version `json:"version" yaml:"version"`
	Name    string  `json:"name" yaml:"name"`
}

// version accepts 3.3, "3.3" or nothing.
type version struct {
	value float64
	set   bool
}

func (v *version) parse(s string) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return
	}
	v.value, v.set = f, true
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *version) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v.parse(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.parse(s)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *version) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.parse(node.Value)
	}
	return nil
}

func (v version) orDefault() float64 {
	if v.set {
		return v.value
	}
	return DefaultVersion
}
