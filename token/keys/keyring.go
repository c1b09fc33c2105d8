package keys

import (
	"crypto"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRetirementWindow is how long a rotated-out public key keeps
// verifying tokens. It should be at least the longest access token lifetime
// so tokens signed just before a rotation stay verifiable until they expire.
const DefaultRetirementWindow = 24 * time.Hour

var _ Signer = (*Keyring)(nil)

// Keyring signs with a single active key pair while retaining the public
// halves of previously active keys. Verification resolves keys by the kid
// header, so tokens signed before a rotation verify until their key's
// retirement window lapses. The JWKS endpoint publishes the active key and
// every retained one.
type Keyring struct {
	mu         sync.RWMutex
	active     *KeyPair
	retired    map[string]retiredKey
	retirement time.Duration
	nowFunc    func() time.Time
}

type retiredKey struct {
	publicKey crypto.PublicKey
	algorithm string
	expiresAt time.Time
}

type KeyringOption func(*Keyring)

// WithRetirementWindow overrides how long rotated-out keys keep verifying
func WithRetirementWindow(window time.Duration) KeyringOption {
	return func(k *Keyring) {
		k.retirement = window
	}
}

// WithNowTime sets the time function used for retirement checks
func WithNowTime(nowFunc func() time.Time) KeyringOption {
	return func(k *Keyring) {
		k.nowFunc = nowFunc
	}
}

// NewKeyring creates a keyring with the given active signing key
func NewKeyring(active *KeyPair, opts ...KeyringOption) (*Keyring, error) {
	if active == nil {
		return nil, fmt.Errorf("active key pair cannot be nil")
	}
	if active.KeyID == "" {
		return nil, fmt.Errorf("active key pair needs a key ID")
	}

	keyring := &Keyring{
		active:     active,
		retired:    make(map[string]retiredKey),
		retirement: DefaultRetirementWindow,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(keyring)
	}
	return keyring, nil
}

// Sign creates a signed JWT with the active key, stamping its kid header
func (k *Keyring) Sign(claims jwt.MapClaims) (string, error) {
	k.mu.RLock()
	active := k.active
	k.mu.RUnlock()

	token := jwt.NewWithClaims(active.GetSigningMethod(), claims)
	token.Header["kid"] = active.KeyID

	signedToken, err := token.SignedString(active.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// GetVerificationKey resolves the public key for a parsed token by its kid
// header. Tokens signed by retired keys verify until the retirement window
// lapses; unknown kids and non-RSA algorithms are rejected.
func (k *Keyring) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if kid == k.active.KeyID {
		return k.active.PublicKey, nil
	}
	if retired, exists := k.retired[kid]; exists && k.nowFunc().Before(retired.expiresAt) {
		return retired.publicKey, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

// GetSigningMethod returns the active key's signing method
func (k *Keyring) GetSigningMethod() jwt.SigningMethod {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active.GetSigningMethod()
}

// ActiveKeyID returns the kid new tokens are signed with
func (k *Keyring) ActiveKeyID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active.KeyID
}

// Rotate makes next the signing key. The outgoing key's public half moves to
// the retired set and keeps verifying for the retirement window.
func (k *Keyring) Rotate(next *KeyPair) error {
	if next == nil {
		return fmt.Errorf("next key pair cannot be nil")
	}
	if next.KeyID == "" {
		return fmt.Errorf("next key pair needs a key ID")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if next.KeyID == k.active.KeyID {
		return fmt.Errorf("next key ID %q is already active", next.KeyID)
	}

	now := k.nowFunc()
	k.retired[k.active.KeyID] = retiredKey{
		publicKey: k.active.PublicKey,
		algorithm: k.active.Algorithm,
		expiresAt: now.Add(k.retirement),
	}
	for kid, retired := range k.retired {
		if !now.Before(retired.expiresAt) {
			delete(k.retired, kid)
		}
	}

	k.active = next
	return nil
}

// GetJWKS returns the active key plus all retained retired keys
func (k *Keyring) GetJWKS() (*JWKS, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	activeJWK, err := k.active.ToJWK()
	if err != nil {
		return nil, fmt.Errorf("failed to convert active key to JWK: %w", err)
	}

	jwks := &JWKS{Keys: []JWK{*activeJWK}}
	now := k.nowFunc()
	for kid, retired := range k.retired {
		if !now.Before(retired.expiresAt) {
			continue
		}
		pair := &KeyPair{KeyID: kid, PublicKey: retired.publicKey, Algorithm: retired.algorithm}
		jwk, err := pair.ToJWK()
		if err != nil {
			return nil, fmt.Errorf("failed to convert retired key %q to JWK: %w", kid, err)
		}
		jwks.Keys = append(jwks.Keys, *jwk)
	}
	return jwks, nil
}
