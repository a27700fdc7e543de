package tuya

import (
	"bytes"
	"crypto/aes"
	"crypto/md5" //nolint:gosec // Required by protocol 3.1 signing
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var errPadding = errors.New("invalid pkcs7 padding")

// ecbCipher is AES-128 in ECB mode with PKCS7 padding. The mode is fixed
// by the device firmware.
type ecbCipher struct {
	key []byte
}

func newECBCipher(key []byte) (*ecbCipher, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("local key must be 16 bytes, got %d", len(key))
	}
	return &ecbCipher{key: key}, nil
}

func (c *ecbCipher) encrypt(plain []byte) []byte {
	block, _ := aes.NewCipher(c.key)
	bs := block.BlockSize()

	pad := bs - len(plain)%bs
	data := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Encrypt(out[i:i+bs], data[i:i+bs])
	}
	return out
}

func (c *ecbCipher) decrypt(ct []byte) ([]byte, error) {
	block, _ := aes.NewCipher(c.key)
	bs := block.BlockSize()
	if len(ct) == 0 || len(ct)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(ct), bs)
	}

	out := make([]byte, len(ct))
	for i := 0; i < len(ct); i += bs {
		block.Decrypt(out[i:i+bs], ct[i:i+bs])
	}

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs || pad > len(out) {
		return nil, errPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, errPadding
		}
	}
	return out[:len(out)-pad], nil
}

// sign31 wraps an encrypted 3.1 CONTROL payload:
// "3.1" + md5hex("data="+b64+"||lpv=3.1||"+key)[8:24] + b64.
func (c *ecbCipher) sign31(plain []byte) []byte {
	b64 := base64.StdEncoding.EncodeToString(c.encrypt(plain))
	sum := md5.Sum([]byte("data=" + b64 + "||lpv=" + version31 + "||" + string(c.key))) //nolint:gosec // Protocol signature
	digest := hex.EncodeToString(sum[:])[8:24]
	return []byte(version31 + digest + b64)
}

// open31 reverses sign31. The digest is not verified.
func (c *ecbCipher) open31(payload []byte) ([]byte, error) {
	const headerLen = len(version31) + 16
	if len(payload) < headerLen {
		return nil, errors.New("short 3.1 payload")
	}
	raw, err := base64.StdEncoding.DecodeString(string(payload[headerLen:]))
	if err != nil {
		return nil, fmt.Errorf("decoding 3.1 payload: %w", err)
	}
	return c.decrypt(raw)
}
