package collaborators

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	c "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuthenticator checks X-API-Key values against a bcrypt hash.
// Verified keys are cached so bcrypt runs once per key and cache period.
type APIKeyAuthenticator struct {
	hash  []byte
	cache *c.Cache
}

func NewAPIKeyAuthenticator(bcryptHash string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		hash:  []byte(bcryptHash),
		cache: c.New(10*time.Minute, 20*time.Minute),
	}
}

// Enabled is false when no hash is configured; every request is then allowed.
func (a *APIKeyAuthenticator) Enabled() bool {
	return len(a.hash) > 0
}

func (a *APIKeyAuthenticator) Verify(apiKey string) bool {
	if !a.Enabled() {
		return true
	}
	if apiKey == "" {
		return false
	}
	sum := sha256.Sum256([]byte(apiKey))
	cacheKey := hex.EncodeToString(sum[:])
	if _, found := a.cache.Get(cacheKey); found {
		return true
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(apiKey)); err != nil {
		return false
	}
	a.cache.SetDefault(cacheKey, true)
	return true
}

// HashAPIKey produces the value for auth.api_key_hash.
func HashAPIKey(apiKey string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
