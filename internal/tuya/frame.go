package tuya

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame markers.
const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	headerLen  = 16
	trailerLen = 8

	// maxFrameLen bounds the length field of an inbound frame.
	maxFrameLen = 64 * 1024
)

// Command codes.
const (
	CmdControl   uint32 = 0x07
	CmdStatus    uint32 = 0x08
	CmdHeartBeat uint32 = 0x09
	CmdDPQuery   uint32 = 0x0a
)

var (
	errBadPrefix = errors.New("bad frame prefix")
	errBadSuffix = errors.New("bad frame suffix")
	errBadCRC    = errors.New("frame crc mismatch")
	errTooLarge  = errors.New("frame too large")
)

// Frame is one protocol message.
type Frame struct {
	Seq     uint32
	Cmd     uint32
	RetCode uint32
	// HasRetCode is set on decoded device frames that carried a return code.
	HasRetCode bool
	Payload    []byte
}

// Encode serializes a client to device frame.
func (f Frame) Encode() []byte {
	buf := make([]byte, headerLen+len(f.Payload)+trailerLen)
	binary.BigEndian.PutUint32(buf[0:], framePrefix)
	binary.BigEndian.PutUint32(buf[4:], f.Seq)
	binary.BigEndian.PutUint32(buf[8:], f.Cmd)
	binary.BigEndian.PutUint32(buf[12:], uint32(len(f.Payload)+trailerLen))
	copy(buf[headerLen:], f.Payload)

	end := headerLen + len(f.Payload)
	binary.BigEndian.PutUint32(buf[end:], crc32.ChecksumIEEE(buf[:end]))
	binary.BigEndian.PutUint32(buf[end+4:], frameSuffix)
	return buf
}

// ReadFrame reads and verifies one frame from r.
//
// A leading 4-byte big-endian value whose upper 24 bits are zero is taken
// as the device return code and stripped from the payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	if binary.BigEndian.Uint32(header[0:]) != framePrefix {
		return Frame{}, errBadPrefix
	}

	length := binary.BigEndian.Uint32(header[12:])
	if length < trailerLen || length > maxFrameLen {
		return Frame{}, fmt.Errorf("%w: length %d", errTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	payloadLen := int(length) - trailerLen
	if binary.BigEndian.Uint32(body[payloadLen+4:]) != frameSuffix {
		return Frame{}, errBadSuffix
	}

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(body[:payloadLen])
	if crc.Sum32() != binary.BigEndian.Uint32(body[payloadLen:]) {
		return Frame{}, errBadCRC
	}

	f := Frame{
		Seq:     binary.BigEndian.Uint32(header[4:]),
		Cmd:     binary.BigEndian.Uint32(header[8:]),
		Payload: body[:payloadLen],
	}
	if len(f.Payload) >= 4 && binary.BigEndian.Uint32(f.Payload)&0xFFFFFF00 == 0 {
		f.RetCode = binary.BigEndian.Uint32(f.Payload)
		f.HasRetCode = true
		f.Payload = f.Payload[4:]
	}
	return f, nil
}
