package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the registry source encoding.
type Format int

// Supported formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks a format by file extension. Unknown extensions are JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Registry is the loaded, read-only device list.
type Registry struct {
	records []Record
	byID    map[string]int
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Index: -1, Msg: "opening device list", Err: err}
	}
	defer f.Close()

	reg, err := parse(f, FormatFromPath(path), path)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Parse reads a registry from r in the given format.
func Parse(r io.Reader, format Format) (*Registry, error) {
	return parse(r, format, "")
}

func parse(r io.Reader, format Format, source string) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ConfigError{Source: source, Index: -1, Msg: "reading device list", Err: err}
	}

	var raw []rawRecord
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&raw)
	}
	if err != nil {
		return nil, &ConfigError{Source: source, Index: -1, Msg: "malformed device list", Err: err}
	}

	return build(raw, source)
}

// New builds a registry from records already in memory.
func New(records []Record) (*Registry, error) {
	return fromRecords(records, "")
}

func build(raw []rawRecord, source string) (*Registry, error) {
	records := make([]Record, len(raw))
	for i, rr := range raw {
		records[i] = Record{
			ID:      strings.TrimSpace(rr.ID),
			Address: strings.TrimSpace(rr.IP),
			Key:     rr.Key,
			Version: rr.Version.orDefault(),
			Name:    rr.Name,
		}
	}
	return fromRecords(records, source)
}

func fromRecords(records []Record, source string) (*Registry, error) {
	reg := &Registry{
		records: make([]Record, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for i, rec := range records {
		if err := reg.add(i, rec, source); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// topicReserved are characters that would break the id's topic level.
const topicReserved = "/+#\x00"

func (r *Registry) add(i int, rec Record, source string) error {
	if rec.ID == "" {
		return &ConfigError{Source: source, Index: i, Msg: "missing id"}
	}
	if strings.ContainsAny(rec.ID, topicReserved) {
		return &ConfigError{Source: source, Index: i, Msg: fmt.Sprintf("device id %q contains a character reserved in topics (/, +, # or NUL)", rec.ID)}
	}
	if rec.Key == "" {
		return &ConfigError{Source: source, Index: i, Msg: fmt.Sprintf("device %s: missing key", rec.ID)}
	}
	if _, dup := r.byID[rec.ID]; dup {
		return &ConfigError{Source: source, Index: i, Msg: fmt.Sprintf("duplicate id %s", rec.ID)}
	}
	if rec.Version == 0 {
		rec.Version = DefaultVersion
	}
	r.byID[rec.ID] = len(r.records)
	r.records = append(r.records, rec)
	return nil
}

// All returns every record in source order.
func (r *Registry) All() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Active returns the records with a usable address, in source order.
func (r *Registry) Active() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if rec.HasAddress() {
			out = append(out, rec)
		}
	}
	return out
}

// Excluded returns the records without a usable address.
func (r *Registry) Excluded() []Record {
	var out []Record
	for _, rec := range r.records {
		if !rec.HasAddress() {
			out = append(out, rec)
		}
	}
	return out
}

// Lookup returns the record for id.
func (r *Registry) Lookup(id string) (Record, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Record{}, false
	}
	return r.records[i], true
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}
