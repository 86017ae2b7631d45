package session

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/cmsauth/internal"
)

// ErrCorruptPayload is returned by [Codec.Decrypt] for data that does not
// decrypt or decode.
var ErrCorruptPayload = errors.New("session payload corrupt")

// Codec encrypts session payloads at rest with AES-256-CBC.
//
// Stored form: base64(iv || ciphertext). Plaintext is the JSON encoding of the
// payload map, PKCS#7 padded. The key is SHA-256 of the configured salt.
type Codec struct {
	block   cipher.Block
	sources []internal.RandomSource
}

// NewCodec derives the cipher key from salt.
func NewCodec(salt string) (*Codec, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	key := sha256.Sum256([]byte(salt))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Codec{block: block, sources: internal.DefaultSources}, nil
}

// Encrypt serializes and encrypts payload. A fresh IV is drawn on every call.
func (c *Codec) Encrypt(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}
	plain = pad(plain, aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(plain))
	iv := out[:aes.BlockSize]
	if _, err := internal.ReadRandom(iv, c.sources, nil); err != nil {
		return "", fmt.Errorf("session payload iv: %w", err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses [Codec.Encrypt]. An empty string decodes to an empty map.
func (c *Codec) Decrypt(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, ErrCorruptPayload
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)
	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return payload, nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrCorruptPayload
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrCorruptPayload
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrCorruptPayload
		}
	}
	return b[:len(b)-n], nil
}
