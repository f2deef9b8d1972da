package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
)

// EnvelopeKey is the state key holding the sealed payload of an encrypted run.
const EnvelopeKey = "__encrypted__"

// ErrKeySize is returned for keys that are not 32 bytes long.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptedStore struct {
	ports.Store
	config EncryptionConfig
}

// sealed is the plaintext of the envelope: everything that can carry user data.
type sealed struct {
	State domain.State      `json:"state"`
	Log   []domain.LogEntry `json:"log"`
	Error string            `json:"error,omitempty"`
}

// NewEncryptionMiddleware creates a middleware that encrypts run state,
// log snapshots and error text using AES-GCM. Status, iterations and
// timestamps stay readable for listing and monitoring.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key: %w", ErrKeySize)
		}
	}
	return func(next ports.Store) ports.Store {
		return &encryptedStore{Store: next, config: config}
	}, nil
}

func (m *encryptedStore) CreateRun(ctx context.Context, run *domain.Run) error {
	envelope, err := m.seal(run)
	if err != nil {
		return err
	}
	return m.Store.CreateRun(ctx, envelope)
}

func (m *encryptedStore) SaveRun(ctx context.Context, run *domain.Run) error {
	envelope, err := m.seal(run)
	if err != nil {
		return err
	}
	return m.Store.SaveRun(ctx, envelope)
}

func (m *encryptedStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	envelope, err := m.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptedStore) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	envelopes, err := m.Store.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	runs := make([]*domain.Run, 0, len(envelopes))
	for _, e := range envelopes {
		run, err := m.open(e)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (m *encryptedStore) Close() error {
	return closeNext(m.Store)
}

// seal builds an opaque copy of run. The engine's copy is never modified.
func (m *encryptedStore) seal(run *domain.Run) (*domain.Run, error) {
	plainText, err := json.Marshal(sealed{State: run.State, Log: run.Log, Error: run.Error})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt run: %w", err)
	}

	envelope := *run
	envelope.State = domain.State{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	envelope.Log = []domain.LogEntry{}
	envelope.Error = ""
	envelope.Iterations = make(map[string]int, len(run.Iterations))
	for k, v := range run.Iterations {
		envelope.Iterations[k] = v
	}
	return &envelope, nil
}

func (m *encryptedStore) open(envelope *domain.Run) (*domain.Run, error) {
	encoded, ok := envelope.State[EnvelopeKey].(string)
	if !ok {
		// Fail secure: a plain record means the store was written without encryption.
		return nil, fmt.Errorf("run %s is missing its encrypted envelope", envelope.ID)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt run %s: %w", envelope.ID, err)
	}

	var payload sealed
	if err := json.Unmarshal(plainText, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted run: %w", err)
	}
	run := envelope.Clone()
	run.State = payload.State
	if run.State == nil {
		run.State = domain.State{}
	}
	run.Log = payload.Log
	if run.Log == nil {
		run.Log = []domain.LogEntry{}
	}
	run.Error = payload.Error
	return run, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
