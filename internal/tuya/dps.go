package tuya

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/tuya-bridge/internal/device"
)

// errNoDPS is returned when a decoded payload has no "dps" object.
var errNoDPS = errors.New("response has no dps")

// decodeDPS extracts the "dps" object from a JSON status payload,
// keeping the device's key order.
func decodeDPS(data []byte) (device.Status, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if key != "dps" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("skipping %q: %w", key, err)
			}
			continue
		}
		return decodeObject(dec)
	}
	return nil, errNoDPS
}

func decodeObject(dec *json.Decoder) (device.Status, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("dps: %w", err)
	}

	var status device.Status
	for dec.More() {
		channel, err := readKey(dec)
		if err != nil {
			return nil, fmt.Errorf("dps: %w", err)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("dps %s: %w", channel, err)
		}
		status = append(status, device.ChannelValue{Channel: channel, Value: v})
	}
	return status, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
