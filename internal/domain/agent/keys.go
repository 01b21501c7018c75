package agent

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key is invalid (malformed, expired, or revoked).
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// KeyService validates agent API keys and resolves agent identities.
type KeyService struct {
	store KeyStore
}

// NewKeyService creates a new KeyService with the given store.
func NewKeyService(store KeyStore) *KeyService {
	return &KeyService{store: store}
}

// Validate checks an API key and returns the associated agent.
// The key must carry the agent_sk_ prefix; the prefix check is constant-time
// so key probing cannot distinguish "wrong prefix" from "wrong key" by timing.
// Returns ErrInvalidKey if the key is malformed, unknown, expired, or revoked.
//
// Supports both SHA-256 (direct lookup) and Argon2id (iteration) hashes.
func (s *KeyService) Validate(ctx context.Context, rawKey string) (*Agent, error) {
	if !hasKeyPrefix(rawKey) {
		return nil, ErrInvalidKey
	}

	// First try direct SHA-256 lookup (fast path for seeded keys)
	keyHash := HashKey(rawKey)
	apiKey, err := s.store.GetAPIKey(ctx, keyHash)
	if err == nil {
		return s.validateAndResolve(ctx, apiKey)
	}

	// Fallback: iterate all keys and verify (supports Argon2id hashes)
	allKeys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, ErrInvalidKey
	}

	for _, candidate := range allKeys {
		match, verifyErr := VerifyKey(rawKey, candidate.Key)
		if verifyErr != nil {
			continue
		}
		if match {
			return s.validateAndResolve(ctx, candidate)
		}
	}

	return nil, ErrInvalidKey
}

// validateAndResolve checks revocation/expiry and returns the agent.
func (s *KeyService) validateAndResolve(ctx context.Context, apiKey *APIKey) (*Agent, error) {
	if apiKey.Revoked {
		return nil, ErrInvalidKey
	}
	if apiKey.IsExpired() {
		return nil, ErrInvalidKey
	}
	agent, err := s.store.GetAgent(ctx, apiKey.AgentID)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// hasKeyPrefix checks the agent_sk_ prefix in constant time.
func hasKeyPrefix(rawKey string) bool {
	if len(rawKey) < len(KeyPrefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rawKey[:len(KeyPrefix)]), []byte(KeyPrefix)) == 1
}

// HashKey returns the SHA-256 hex hash of the raw key.
// Used for seeded keys; generated keys use HashKeyArgon2id.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	// Bare SHA-256 hex is exactly 64 hex characters
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

// isHexString checks if a string contains only valid hexadecimal characters.
func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash.
// Supports Argon2id (PHC format), SHA-256 prefixed, and bare SHA-256 hex.
// Returns (true, nil) if match, (false, nil) if no match,
// (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	hashType := DetectHashType(storedHash)

	switch hashType {
	case "argon2id":
		match, err := safeArgon2idCompare(rawKey, storedHash)
		if err != nil {
			return false, err
		}
		return match, nil

	case "sha256":
		var expectedHash string
		if strings.HasPrefix(storedHash, "sha256:") {
			expectedHash = strings.TrimPrefix(storedHash, "sha256:")
		} else {
			expectedHash = storedHash
		}

		computedHash := HashKey(rawKey)

		// Constant-time comparison to prevent timing attacks
		match := subtle.ConstantTimeCompare([]byte(computedHash), []byte(expectedHash)) == 1
		return match, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed Argon2id hashes with invalid
// parameters (e.g., t=0 rounds, p=0 parallelism). This function catches those panics
// and converts them to errors instead, ensuring VerifyKey never panics.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
