package tuya

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// encodeReply builds a device to client frame carrying a return code.
func encodeReply(seq, cmd, retCode uint32, payload []byte) []byte {
	p := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(p, retCode)
	p = append(p, payload...)
	return Frame{Seq: seq, Cmd: cmd, Payload: p}.Encode()
}

func TestFrame_EncodeLayout(t *testing.T) {
	raw := Frame{Seq: 7, Cmd: CmdDPQuery, Payload: []byte("abc")}.Encode()

	if len(raw) != headerLen+3+trailerLen {
		t.Fatalf("len = %d", len(raw))
	}
	if got := binary.BigEndian.Uint32(raw[0:]); got != framePrefix {
		t.Errorf("prefix = %#x", got)
	}
	if got := binary.BigEndian.Uint32(raw[12:]); got != 3+trailerLen {
		t.Errorf("length field = %d, want %d", got, 3+trailerLen)
	}
	if got := binary.BigEndian.Uint32(raw[len(raw)-4:]); got != frameSuffix {
		t.Errorf("suffix = %#x", got)
	}
}

func TestReadFrame_RoundTrip(t *testing.T) {
	raw := encodeReply(9, CmdStatus, 0, []byte(`{"dps":{"1":true}}`))

	f, err := ReadFrame(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Seq != 9 || f.Cmd != CmdStatus {
		t.Errorf("seq/cmd = %d/%#x", f.Seq, f.Cmd)
	}
	if !f.HasRetCode || f.RetCode != 0 {
		t.Errorf("retcode = %v/%d, want present and 0", f.HasRetCode, f.RetCode)
	}
	if string(f.Payload) != `{"dps":{"1":true}}` {
		t.Errorf("payload = %q", f.Payload)
	}
}

func TestReadFrame_NoRetCode(t *testing.T) {
	raw := Frame{Seq: 1, Cmd: CmdStatus, Payload: []byte(`{"dps":{}}`)}.Encode()

	f, err := ReadFrame(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.HasRetCode {
		t.Error("JSON payload mistaken for a return code")
	}
	if string(f.Payload) != `{"dps":{}}` {
		t.Errorf("payload = %q", f.Payload)
	}
}

func TestReadFrame_Corrupt(t *testing.T) {
	good := encodeReply(1, CmdStatus, 0, []byte("payload"))

	tests := []struct {
		name   string
		mutate func([]byte)
		want   error
	}{
		{"prefix", func(b []byte) { b[3] = 0 }, errBadPrefix},
		{"crc", func(b []byte) { b[headerLen+5] ^= 0xff }, errBadCRC},
		{"suffix", func(b []byte) { b[len(b)-1] = 0 }, errBadSuffix},
		{"length", func(b []byte) { binary.BigEndian.PutUint32(b[12:], maxFrameLen+1) }, errTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append([]byte(nil), good...)
			tt.mutate(raw)
			_, err := ReadFrame(bytes.NewReader(raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	raw := encodeReply(1, CmdStatus, 0, []byte("payload"))
	_, err := ReadFrame(bytes.NewReader(raw[:len(raw)-3]))
	if err == nil || !strings.Contains(err.Error(), "EOF") {
		t.Errorf("ReadFrame() error = %v, want EOF", err)
	}
}
