// Package phi encrypts protected health information at field level with
// AES-256-GCM. Ciphertexts carry the key version that produced them so keys
// can be rotated without rewriting stored data at once.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const versionPrefix = "v"

// FieldEncryptor encrypts and decrypts single field values.
type FieldEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi: create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encryptor encrypts with its current key and decrypts with any key it knows.
type Encryptor struct {
	mu       sync.RWMutex
	version  int
	current  cipher.AEAD
	previous map[int]cipher.AEAD
}

func NewEncryptor(key []byte, version int) (*Encryptor, error) {
	if version < 1 {
		return nil, fmt.Errorf("phi: key version must be positive, got %d", version)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{version: version, current: aead, previous: map[int]cipher.AEAD{}}, nil
}

// AddPreviousKey registers a retired key for decryption only.
func (e *Encryptor) AddPreviousKey(key []byte, version int) error {
	aead, err := newAEAD(key)
	if err != nil {
		return fmt.Errorf("phi: previous key v%d: %w", version, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if version == e.version {
		return fmt.Errorf("phi: version %d is the current key", version)
	}
	e.previous[version] = aead
	return nil
}

func (e *Encryptor) Version() int { return e.version }

// Encrypt returns "v<version>:<base64(nonce|ciphertext)>".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	e.mu.RLock()
	aead := e.current
	e.mu.RUnlock()

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + strconv.Itoa(e.version) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	version, payload, err := splitVersion(ciphertext)
	if err != nil {
		return "", err
	}
	aead, err := e.keyFor(version)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("phi: decode: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("phi: ciphertext too short")
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("phi: decrypt: %w", err)
	}
	return string(plain), nil
}

// NeedsReEncryption reports whether ciphertext was produced by a retired key.
func (e *Encryptor) NeedsReEncryption(ciphertext string) bool {
	version, _, err := splitVersion(ciphertext)
	return err == nil && version != e.version
}

func (e *Encryptor) keyFor(version int) (cipher.AEAD, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if version == e.version {
		return e.current, nil
	}
	if aead, ok := e.previous[version]; ok {
		return aead, nil
	}
	return nil, fmt.Errorf("phi: no key for version %d", version)
}

func splitVersion(s string) (int, string, error) {
	head, payload, ok := strings.Cut(s, ":")
	if !ok || !strings.HasPrefix(head, versionPrefix) {
		return 0, "", fmt.Errorf("phi: ciphertext has no key version")
	}
	v, err := strconv.Atoi(strings.TrimPrefix(head, versionPrefix))
	if err != nil {
		return 0, "", fmt.Errorf("phi: invalid key version %q", head)
	}
	return v, payload, nil
}

// ParseKeys builds an Encryptor from a hex key and an optional list of
// retired keys in "version:hex" form separated by commas. An empty current
// key returns nil, meaning encryption is disabled.
func ParseKeys(currentHex string, version int, previous string) (*Encryptor, error) {
	if currentHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(currentHex)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	enc, err := NewEncryptor(key, version)
	if err != nil {
		return nil, err
	}
	for _, item := range strings.Split(previous, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		vs, kh, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("PHI_PREVIOUS_KEYS entry %q must be version:hex", item)
		}
		v, err := strconv.Atoi(vs)
		if err != nil {
			return nil, fmt.Errorf("PHI_PREVIOUS_KEYS entry %q: invalid version", item)
		}
		k, err := hex.DecodeString(kh)
		if err != nil {
			return nil, fmt.Errorf("PHI_PREVIOUS_KEYS entry v%d is not valid hex: %w", v, err)
		}
		if err := enc.AddPreviousKey(k, v); err != nil {
			return nil, err
		}
	}
	return enc, nil
}

// SealPtr returns an encrypted copy of *value. Nil encryptors and nil or
// empty values are returned as is.
func SealPtr(enc FieldEncryptor, value *string) (*string, error) {
	if enc == nil || value == nil || *value == "" {
		return value, nil
	}
	out, err := enc.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenPtr reverses SealPtr.
func OpenPtr(enc FieldEncryptor, value *string) (*string, error) {
	if enc == nil || value == nil || *value == "" {
		return value, nil
	}
	out, err := enc.Decrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
