package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeKeyStore is a map-backed KeyStore for tests.
type fakeKeyStore struct {
	keys   map[string]*APIKey
	agents map[string]*Agent
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:   make(map[string]*APIKey),
		agents: make(map[string]*Agent),
	}
}

func (s *fakeKeyStore) seed(agentID, storedHash string) {
	s.agents[agentID] = &Agent{ID: agentID, Name: agentID}
	s.keys[storedHash] = &APIKey{Key: storedHash, AgentID: agentID}
}

func (s *fakeKeyStore) GetAPIKey(_ context.Context, keyHash string) (*APIKey, error) {
	k, ok := s.keys[keyHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return k, nil
}

func (s *fakeKeyStore) ListAPIKeys(_ context.Context) ([]*APIKey, error) {
	out := make([]*APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeKeyStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

func TestKeyService_Validate_SHA256FastPath(t *testing.T) {
	t.Parallel()

	rawKey := "agent_sk_test-key-1"
	store := newFakeKeyStore()
	store.seed("agent-1", HashKey(rawKey))
	svc := NewKeyService(store)

	got, err := svc.Validate(context.Background(), rawKey)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got.ID != "agent-1" {
		t.Errorf("agent ID = %q, want agent-1", got.ID)
	}
}

func TestKeyService_Validate_WrongPrefix(t *testing.T) {
	t.Parallel()

	store := newFakeKeyStore()
	store.seed("agent-1", HashKey("agent_sk_test-key-1"))
	svc := NewKeyService(store)

	tests := []string{
		"sk_test-key-1",
		"AGENT_SK_test-key-1",
		"test-key-1",
		"",
	}
	for _, rawKey := range tests {
		if _, err := svc.Validate(context.Background(), rawKey); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidKey", rawKey, err)
		}
	}
}

func TestKeyService_Validate_UnknownKey(t *testing.T) {
	t.Parallel()

	store := newFakeKeyStore()
	store.seed("agent-1", HashKey("agent_sk_test-key-1"))
	svc := NewKeyService(store)

	if _, err := svc.Validate(context.Background(), "agent_sk_other-key"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate() error = %v, want ErrInvalidKey", err)
	}
}

func TestKeyService_Validate_RevokedKey(t *testing.T) {
	t.Parallel()

	rawKey := "agent_sk_revoked"
	store := newFakeKeyStore()
	store.seed("agent-1", HashKey(rawKey))
	store.keys[HashKey(rawKey)].Revoked = true
	svc := NewKeyService(store)

	if _, err := svc.Validate(context.Background(), rawKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate() error = %v, want ErrInvalidKey for revoked key", err)
	}
}

func TestKeyService_Validate_ExpiredKey(t *testing.T) {
	t.Parallel()

	rawKey := "agent_sk_expired"
	store := newFakeKeyStore()
	store.seed("agent-1", HashKey(rawKey))
	past := time.Now().UTC().Add(-time.Hour)
	store.keys[HashKey(rawKey)].ExpiresAt = &past
	svc := NewKeyService(store)

	if _, err := svc.Validate(context.Background(), rawKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate() error = %v, want ErrInvalidKey for expired key", err)
	}
}

func TestKeyService_Validate_Argon2idFallback(t *testing.T) {
	t.Parallel()

	rawKey := "agent_sk_argon-key"
	hash, err := HashKeyArgon2id(rawKey)
	if err != nil {
		t.Fatalf("HashKeyArgon2id() error: %v", err)
	}

	store := newFakeKeyStore()
	store.seed("agent-2", hash)
	svc := NewKeyService(store)

	got, err := svc.Validate(context.Background(), rawKey)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got.ID != "agent-2" {
		t.Errorf("agent ID = %q, want agent-2", got.ID)
	}
}

func TestVerifyKey(t *testing.T) {
	t.Parallel()

	rawKey := "agent_sk_verify-me"

	tests := []struct {
		name       string
		storedHash string
		wantMatch  bool
		wantErr    error
	}{
		{"bare sha256 hex", HashKey(rawKey), true, nil},
		{"prefixed sha256", "sha256:" + HashKey(rawKey), true, nil},
		{"wrong sha256", HashKey("agent_sk_other"), false, nil},
		{"unknown format", "md5:abcdef", false, ErrUnknownHashType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			match, err := VerifyKey(rawKey, tt.storedHash)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("VerifyKey() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyKey() error: %v", err)
			}
			if match != tt.wantMatch {
				t.Errorf("VerifyKey() = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}

func TestVerifyKey_MalformedArgon2idDoesNotPanic(t *testing.T) {
	t.Parallel()

	// Zero-parameter PHC strings panic inside the argon2 library;
	// VerifyKey must convert that to an error.
	malformed := "$argon2id$v=19$m=0,t=0,p=0$AAAA$AAAA"
	if _, err := VerifyKey("agent_sk_x", malformed); err == nil {
		t.Error("VerifyKey() = nil error for malformed hash, want error")
	}
}

func TestDetectHashType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hash string
		want string
	}{
		{"$argon2id$v=19$m=48128,t=1,p=1$c2FsdA$aGFzaA", "argon2id"},
		{"sha256:" + HashKey("agent_sk_a"), "sha256"},
		{HashKey("agent_sk_a"), "sha256"},
		{"plainpassword", "unknown"},
	}

	for _, tt := range tests {
		if got := DetectHashType(tt.hash); got != tt.want {
			t.Errorf("DetectHashType(%q) = %q, want %q", tt.hash, got, tt.want)
		}
	}
}
