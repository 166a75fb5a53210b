package credentials

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// Credential is one stored secret, addressed by (Username, Realm).
// Username is the key name within the realm, not the upstream login.
type Credential struct {
	Username  string
	Realm     string
	Secret    string
	CreatedAt time.Time
}

// Summary describes a stored credential without its secret
type Summary struct {
	Username  string
	Realm     string
	CreatedAt time.Time
}

// Store is the secure key-value secret store
type Store interface {
	// Find returns every credential stored under (username, realm)
	Find(ctx context.Context, username, realm string) ([]Credential, error)
	// Create stores a secret; a second create for the same pair is a conflict
	Create(ctx context.Context, secret, username, realm string) error
	// Delete removes the secret stored under (username, realm)
	Delete(ctx context.Context, username, realm string) error
	// List returns summaries of all stored credentials
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu    sync.RWMutex
	items []Credential
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Find returns all credentials matching (username, realm)
func (s *MemoryStore) Find(_ context.Context, username, realm string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Credential
	for _, c := range s.items {
		if c.Username == username && c.Realm == realm {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create stores a secret under (username, realm)
func (s *MemoryStore) Create(_ context.Context, secret, username, realm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.items {
		if c.Username == username && c.Realm == realm {
			return errors.New(errors.ErrorTypeConflict,
				fmt.Sprintf("credential %s already exists in realm %s", username, realm))
		}
	}
	s.items = append(s.items, Credential{Username: username, Realm: realm, Secret: secret, CreatedAt: s.now()})
	return nil
}

// Delete removes every credential matching (username, realm)
func (s *MemoryStore) Delete(_ context.Context, username, realm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	removed := false
	for _, c := range s.items {
		if c.Username == username && c.Realm == realm {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	s.items = kept
	if !removed {
		return errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("credential %s not found in realm %s", username, realm))
	}
	return nil
}

// List returns summaries ordered by realm then username
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, Summary{Username: c.Username, Realm: c.Realm, CreatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Realm != out[j].Realm {
			return out[i].Realm < out[j].Realm
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// Seed appends a credential without the uniqueness check. It exists to model
// stores that already hold duplicates.
func (s *MemoryStore) Seed(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, c)
}
