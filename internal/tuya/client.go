package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/registry"
)

// Protocol constants.
const (
	DefaultPort    = 6668
	DefaultTimeout = 5 * time.Second

	version31 = "3.1"
	version33 = "3.3"

	// version33HeaderLen is "3.3" followed by 12 zero bytes.
	version33HeaderLen = 15

	// maxReplyFrames bounds how many unrelated frames (heartbeats, pushes)
	// are skipped while waiting for a reply.
	maxReplyFrames = 4
)

// ErrUnsupportedVersion is wrapped in device.ErrProtocol for versions
// other than 3.1 and 3.3.
var ErrUnsupportedVersion = errors.New("tuya: unsupported protocol version")

// Dialer opens the TCP session. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	Port int

	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration

	Dialer Dialer
}

// Client talks to one device. It is safe for concurrent use, but devices
// only accept one session at a time; wrap it with device.Serialize.
type Client struct {
	id      string
	addr    string
	version string
	cipher  *ecbCipher
	timeout time.Duration
	dialer  Dialer
	seq     atomic.Uint32
}

// New creates a Client for rec. The local key must be 16 bytes.
func New(rec registry.Record, opts Options) (*Client, error) {
	c, err := newECBCipher([]byte(rec.Key))
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", rec.ID, err)
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	return &Client{
		id:      rec.ID,
		addr:    net.JoinHostPort(rec.Address, strconv.Itoa(port)),
		version: strconv.FormatFloat(rec.Version, 'f', 1, 64),
		cipher:  c,
		timeout: timeout,
		dialer:  dialer,
	}, nil
}

// NewFactory returns a device.Factory producing Clients with opts.
func NewFactory(opts Options) device.Factory {
	return func(rec registry.Record) (device.Adapter, error) {
		return New(rec, opts)
	}
}

// Status queries all data points.
func (c *Client) Status(ctx context.Context) (device.Status, error) {
	payload, err := c.encodeQuery()
	if err != nil {
		return nil, device.Protocol(c.id, device.OpStatus, err)
	}

	reply, err := c.roundTrip(ctx, device.OpStatus, CmdDPQuery, payload, CmdDPQuery, CmdStatus)
	if err != nil {
		return nil, err
	}

	plain, err := c.decodePayload(reply.Payload)
	if err != nil {
		return nil, device.Protocol(c.id, device.OpStatus, err)
	}
	status, err := decodeDPS(plain)
	if err != nil {
		return nil, device.Protocol(c.id, device.OpStatus, fmt.Errorf("%w: %q", err, truncate(plain)))
	}
	return status, nil
}

// SetChannel switches one channel on or off.
func (c *Client) SetChannel(ctx context.Context, channel int, on bool) error {
	payload, err := c.encodeControl(channel, on)
	if err != nil {
		return device.Protocol(c.id, device.OpSetChannel, err)
	}
	_, err = c.roundTrip(ctx, device.OpSetChannel, CmdControl, payload, CmdControl, CmdStatus)
	return err
}

func (c *Client) nowString() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func (c *Client) encodeQuery() ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"gwId":  c.id,
		"devId": c.id,
		"uid":   c.id,
		"t":     c.nowString(),
	})
	if err != nil {
		return nil, err
	}

	switch c.version {
	case version33:
		return c.cipher.encrypt(body), nil
	case version31:
		return body, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, c.version)
	}
}

func (c *Client) encodeControl(channel int, on bool) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"devId": c.id,
		"uid":   c.id,
		"t":     c.nowString(),
		"dps":   map[string]bool{strconv.Itoa(channel): on},
	})
	if err != nil {
		return nil, err
	}

	switch c.version {
	case version33:
		header := make([]byte, version33HeaderLen)
		copy(header, version33)
		return append(header, c.cipher.encrypt(body)...), nil
	case version31:
		return c.cipher.sign31(body), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, c.version)
	}
}

// decodePayload turns a reply payload into plaintext JSON.
func (c *Client) decodePayload(p []byte) ([]byte, error) {
	if bytes.HasPrefix(p, []byte(version33)) {
		if len(p) < version33HeaderLen {
			return nil, errors.New("short 3.3 payload")
		}
		p = p[version33HeaderLen:]
	} else if bytes.HasPrefix(p, []byte(version31)) {
		return c.cipher.open31(p)
	}

	if len(p) == 0 || p[0] == '{' {
		return p, nil
	}
	plain, err := c.cipher.decrypt(p)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plain, nil
}

// roundTrip sends one request and returns the first reply whose command
// is in accept.
func (c *Client) roundTrip(ctx context.Context, op string, cmd uint32, payload []byte, accept ...uint32) (Frame, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Frame{}, device.Unreachable(c.id, op, ctxErr(ctx, err))
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return Frame{}, device.Unreachable(c.id, op, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck // Unblocks pending I/O
	})
	defer stop()

	seq := c.seq.Add(1)
	if _, err := conn.Write(Frame{Seq: seq, Cmd: cmd, Payload: payload}.Encode()); err != nil {
		return Frame{}, device.Unreachable(c.id, op, ctxErr(ctx, err))
	}

	for i := 0; i < maxReplyFrames; i++ {
		reply, err := ReadFrame(conn)
		if err != nil {
			if isTransportErr(err) {
				return Frame{}, device.Unreachable(c.id, op, ctxErr(ctx, err))
			}
			return Frame{}, device.Protocol(c.id, op, err)
		}
		if !slices.Contains(accept, reply.Cmd) {
			continue
		}
		if reply.HasRetCode && reply.RetCode != 0 {
			return Frame{}, device.Protocol(c.id, op, fmt.Errorf("device returned code %d: %q", reply.RetCode, truncate(reply.Payload)))
		}
		return reply, nil
	}
	return Frame{}, device.Protocol(c.id, op, fmt.Errorf("no reply to command 0x%02x after %d frames", cmd, maxReplyFrames))
}

// ctxErr attaches the context error when the context ended the I/O.
// The connection deadline equals the context deadline, so an I/O timeout
// can surface a moment before ctx.Err() is set.
func ctxErr(ctx context.Context, err error) error {
	if e := ctx.Err(); e != nil {
		return fmt.Errorf("%w: %w", e, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func isTransportErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
