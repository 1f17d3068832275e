package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/c360/perfkit/errors"
)

// Stored values carry a one-byte header describing the transforms applied,
// so decode works regardless of the configuration at write time.
const (
	flagGzip      byte = 1 << 0
	flagEncrypted byte = 1 << 1
)

// codec applies optional gzip compression and AES-GCM encryption to values
// on their way into a tier.
type codec struct {
	compress    bool
	compressMin int64
	gcm         cipher.AEAD
}

func newCodec(cfg Config) (*codec, error) {
	c := &codec{
		compress:    cfg.Compression,
		compressMin: cfg.CompressionMinBytes,
	}
	if c.compressMin <= 0 {
		c.compressMin = 512
	}

	if cfg.Encryption {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "newCodec", "decode encryption key")
		}
		if len(key) != 32 {
			return nil, errors.WrapPermanent(
				fmt.Errorf("encryption key must be 32 bytes, got %d", len(key)),
				"cache", "newCodec", "validate encryption key")
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "newCodec", "init cipher")
		}
		c.gcm, err = cipher.NewGCM(block)
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "newCodec", "init gcm")
		}
	}

	return c, nil
}

// encode applies the configured transforms and prefixes the header byte.
func (c *codec) encode(value []byte) ([]byte, error) {
	var flags byte
	out := value

	if c.compress && int64(len(out)) >= c.compressMin {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(out); err != nil {
			return nil, errors.WrapTransient(err, "cache", "encode", "gzip value")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.WrapTransient(err, "cache", "encode", "gzip value")
		}
		// Keep the compressed form only when it actually shrinks.
		if buf.Len() < len(out) {
			out = buf.Bytes()
			flags |= flagGzip
		}
	}

	if c.gcm != nil {
		nonce := make([]byte, c.gcm.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, errors.WrapTransient(err, "cache", "encode", "generate nonce")
		}
		out = c.gcm.Seal(nonce, nonce, out, nil)
		flags |= flagEncrypted
	}

	return append([]byte{flags}, out...), nil
}

// decode reverses encode based on the header byte.
func (c *codec) decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.WrapPermanent(
			fmt.Errorf("stored value missing header"), "cache", "decode", "read header")
	}
	flags, out := stored[0], stored[1:]

	if flags&flagEncrypted != 0 {
		if c.gcm == nil {
			return nil, errors.WrapPermanent(
				fmt.Errorf("encrypted entry but encryption not configured"),
				"cache", "decode", "decrypt value")
		}
		ns := c.gcm.NonceSize()
		if len(out) < ns {
			return nil, errors.WrapPermanent(
				fmt.Errorf("encrypted entry shorter than nonce"), "cache", "decode", "decrypt value")
		}
		plain, err := c.gcm.Open(nil, out[:ns], out[ns:], nil)
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "decode", "decrypt value")
		}
		out = plain
	}

	if flags&flagGzip != 0 {
		zr, err := gzip.NewReader(bytes.NewReader(out))
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "decode", "gunzip value")
		}
		plain, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, errors.WrapPermanent(err, "cache", "decode", "gunzip value")
		}
		out = plain
	}

	return out, nil
}
