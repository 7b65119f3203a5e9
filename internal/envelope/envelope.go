// Package envelope implements the WeCom callback message envelope: AES-256-CBC
// with the key's first 16 bytes as IV, PKCS#7 padding to 32 bytes, and the
// layout [16 random][4-byte big-endian length][message][receiver id].
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/set-night/llmgate/internal/domain"
)

const (
	keySize     = 32
	randomSize  = 16
	lengthSize  = 4
	padBlock    = 32
	headerBytes = randomSize + lengthSize
)

// Cipher packs and unpacks envelopes for a single receiver id.
type Cipher struct {
	key        []byte
	iv         []byte
	receiverID string
	rand       io.Reader
}

// ParseKey decodes a base64 AES key. The platform hands out 43-character keys
// with the trailing '=' stripped; both forms are accepted.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if len(encoded) == 43 {
		encoded += "="
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode aes key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}

func New(key []byte, receiverID string) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", keySize, len(key))
	}
	k := make([]byte, keySize)
	copy(k, key)
	return &Cipher{
		key:        k,
		iv:         k[:aes.BlockSize],
		receiverID: receiverID,
		rand:       rand.Reader,
	}, nil
}

func (c *Cipher) ReceiverID() string {
	return c.receiverID
}

// Encrypt seals plaintext into a base64 envelope addressed to the receiver id.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	var buf bytes.Buffer
	buf.Grow(headerBytes + len(plaintext) + len(c.receiverID) + padBlock)

	random := make([]byte, randomSize)
	if _, err := io.ReadFull(c.rand, random); err != nil {
		return "", fmt.Errorf("read random prefix: %w", err)
	}
	buf.Write(random)

	var length [lengthSize]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(plaintext)))
	buf.Write(length[:])
	buf.WriteString(plaintext)
	buf.WriteString(c.receiverID)

	data := pad(buf.Bytes())

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, data)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a base64 envelope. Every malformed input maps to domain.ErrIntegrity.
func (c *Cipher) Decrypt(ciphertextB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", domain.ErrIntegrity, err)
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", domain.ErrIntegrity, len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(plain, raw)

	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	if len(plain) < headerBytes {
		return "", fmt.Errorf("%w: envelope too short", domain.ErrIntegrity)
	}

	msgLen := int(binary.BigEndian.Uint32(plain[randomSize:headerBytes]))
	if msgLen > len(plain)-headerBytes {
		return "", fmt.Errorf("%w: message length %d exceeds envelope", domain.ErrIntegrity, msgLen)
	}
	msg := plain[headerBytes : headerBytes+msgLen]
	receiver := plain[headerBytes+msgLen:]
	if string(receiver) != c.receiverID {
		return "", fmt.Errorf("%w: receiver id mismatch", domain.ErrIntegrity)
	}
	return string(msg), nil
}

func pad(data []byte) []byte {
	n := padBlock - len(data)%padBlock
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", domain.ErrIntegrity)
	}
	n := int(data[len(data)-1])
	if n < 1 || n > padBlock || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", domain.ErrIntegrity)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", domain.ErrIntegrity)
		}
	}
	return data[:len(data)-n], nil
}
