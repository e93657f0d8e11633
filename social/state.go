package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// DefaultStateTTL bounds the time between redirect and callback.
const DefaultStateTTL = 10 * time.Minute

// StateManager encodes the OAuth state parameter and verifies it on callback.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is carried through the provider round trip.
type OAuthState struct {
	Nonce        string `json:"n"`
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// EncryptedStateManager seals the state with AES-GCM and signs the
// ciphertext with HMAC-SHA256, so the PKCE verifier never leaves in clear.
type EncryptedStateManager struct {
	encryptionKey []byte
	hmacKey       []byte
	ttl           time.Duration
	now           func() time.Time
}

// NewEncryptedStateManager derives both keys from secret.
func NewEncryptedStateManager(secret string, ttl time.Duration) (*EncryptedStateManager, error) {
	if secret == "" {
		return nil, errors.New("oauth state secret is empty", errors.CategoryInternal).
			WithCode(errors.CodeInternal)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	encKey, err := deriveKey("oauth-state-enc", secret)
	if err != nil {
		return nil, err
	}
	macKey, err := deriveKey("oauth-state-mac", secret)
	if err != nil {
		return nil, err
	}

	return &EncryptedStateManager{
		encryptionKey: encKey,
		hmacKey:       macKey,
		ttl:           ttl,
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source.
func (sm *EncryptedStateManager) WithClock(now func() time.Time) *EncryptedStateManager {
	if now != nil {
		sm.now = now
	}
	return sm
}

// Encode fills missing nonce and timestamps, then seals the state.
func (sm *EncryptedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil {
		return "", invalidState("nil state")
	}

	now := sm.now()
	if state.IssuedAt == 0 {
		state.IssuedAt = now.Unix()
	}
	if state.ExpiresAt == 0 {
		state.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if state.Nonce == "" {
		state.Nonce = uuid.NewString()
	}

	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to marshal oauth state")
	}

	gcm, err := sm.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate state nonce")
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	signature := sm.sign(ciphertext)

	return base64.RawURLEncoding.EncodeToString(append(signature, ciphertext...)), nil
}

// Decode verifies the signature, opens the state and checks expiry.
func (sm *EncryptedStateManager) Decode(token string) (*OAuthState, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalidState("malformed encoding")
	}
	if len(data) < sha256.Size {
		return nil, invalidState("truncated state")
	}

	signature, ciphertext := data[:sha256.Size], data[sha256.Size:]
	if !hmac.Equal(signature, sm.sign(ciphertext)) {
		return nil, invalidState("signature mismatch")
	}

	gcm, err := sm.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, invalidState("truncated ciphertext")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, invalidState("decryption failed")
	}

	var state OAuthState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, invalidState("malformed payload")
	}

	if sm.now().Unix() > state.ExpiresAt {
		clone := ErrStateExpired.Clone()
		if clone == nil {
			return nil, ErrStateExpired
		}
		return nil, clone
	}

	return &state, nil
}

func (sm *EncryptedStateManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create state cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create state GCM")
	}
	return gcm, nil
}

func (sm *EncryptedStateManager) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, sm.hmacKey)
	mac.Write(payload)
	return mac.Sum(nil)
}

// stateKeySize selects AES-256 for the cipher key.
const stateKeySize = 32

// deriveKey expands secret into an independent key per purpose.
func deriveKey(purpose, secret string) ([]byte, error) {
	key := make([]byte, stateKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive oauth state key")
	}
	return key, nil
}

func invalidState(reason string) error {
	clone := ErrInvalidState.Clone()
	if clone == nil {
		clone = ErrInvalidState
	}
	return clone.WithMetadata(map[string]any{"reason": reason})
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
