package credentials

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// countingStore records calls made against an underlying store
type countingStore struct {
	Store
	finds, creates, deletes int
	findErr, deleteErr      error
}

func (c *countingStore) Find(ctx context.Context, username, realm string) ([]Credential, error) {
	c.finds++
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.Store.Find(ctx, username, realm)
}

func (c *countingStore) Create(ctx context.Context, secret, username, realm string) error {
	c.creates++
	return c.Store.Create(ctx, secret, username, realm)
}

func (c *countingStore) Delete(ctx context.Context, username, realm string) error {
	c.deletes++
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.Store.Delete(ctx, username, realm)
}

type failingUpdater struct{}

func (failingUpdater) UpdateInput(context.Context, string, string, map[string]string) error {
	return fmt.Errorf("read-only filesystem")
}

func TestParseSecret(t *testing.T) {
	assert.Equal(t, UseStored, ParseSecret("<encrypted>").Kind)
	assert.Equal(t, "", ParseSecret("<encrypted>").Value())

	lit := ParseSecret("hunter2")
	assert.Equal(t, Literal, lit.Kind)
	assert.Equal(t, "hunter2", lit.Value())
	assert.NotContains(t, lit.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", lit), "hunter2")

	// Near misses of the mask are literals
	assert.Equal(t, Literal, ParseSecret(" <encrypted>").Kind)
	assert.Equal(t, Literal, ParseSecret("<ENCRYPTED>").Kind)
}

func TestManagerLiteralThenMask(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: NewMemoryStore()}
	updater := config.NewMemoryInputStore()
	m := NewManager(store, updater, zaptest.NewLogger(t))

	got, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.deletes, "a literal clears the realm first")
	assert.Equal(t, 0, store.finds, "a literal never reads stored secrets")
	assert.Equal(t, MaskSentinel, updater.Updates("infoblox_gridmanager://corp")["password"])

	// Second run sees the mask and reuses the stored value without re-storing
	got, err = m.Resolve(ctx, "infoblox_gridmanager", "corp", MaskSentinel)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.deletes)
	assert.Equal(t, 1, store.finds)
}

func TestManagerRotation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: NewMemoryStore()}
	m := NewManager(store, config.NewMemoryInputStore(), zaptest.NewLogger(t))

	_, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "old")
	require.NoError(t, err)

	got, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.Equal(t, 2, store.deletes)
	assert.Equal(t, 2, store.creates)

	stored, err := store.Find(ctx, PasswordKey, "corp")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "new", stored[0].Secret)
}

func TestManagerMissingCredential(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		seed  []Credential
		realm string
	}{
		{name: "nothing stored", realm: "corp"},
		{
			name:  "stored under another realm",
			seed:  []Credential{{Username: PasswordKey, Realm: "lab", Secret: "x"}},
			realm: "corp",
		},
		{
			name: "duplicates",
			seed: []Credential{
				{Username: PasswordKey, Realm: "corp", Secret: "a"},
				{Username: PasswordKey, Realm: "corp", Secret: "b"},
			},
			realm: "corp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemoryStore()
			for _, c := range tt.seed {
				mem.Seed(c)
			}
			updater := config.NewMemoryInputStore()
			m := NewManager(mem, updater, zaptest.NewLogger(t))

			_, err := m.Resolve(ctx, "infoblox_gridmanager", tt.realm, MaskSentinel)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeMissingCredential))
			assert.Contains(t, err.Error(), "reconfigure its value")
			assert.Empty(t, updater.Updates("infoblox_gridmanager://"+tt.realm))
		})
	}
}

func TestManagerErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("store lookup fails", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(), findErr: fmt.Errorf("disk I/O error")}
		m := NewManager(store, nil, nil)
		_, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", MaskSentinel)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
		assert.Contains(t, err.Error(), "failed to look up stored password")
	})

	t.Run("literal ignores unreadable rows", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(), findErr: fmt.Errorf("cipher: message authentication failed")}
		m := NewManager(store, nil, nil)
		got, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "x")
		require.NoError(t, err)
		assert.Equal(t, "x", got)
		assert.Equal(t, 0, store.finds)
	})

	t.Run("store removal fails", func(t *testing.T) {
		store := &countingStore{Store: NewMemoryStore(), deleteErr: fmt.Errorf("database is locked")}
		m := NewManager(store, nil, nil)
		_, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "x")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
		assert.Contains(t, err.Error(), "failed to remove stored password")
		assert.Equal(t, 0, store.creates)
	})

	t.Run("mask update fails", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), failingUpdater{}, nil)
		_, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "x")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		assert.Contains(t, err.Error(), "read-only filesystem")
	})
}

func TestManagerForget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil, nil)

	_, err := m.Resolve(ctx, "infoblox_gridmanager", "corp", "x")
	require.NoError(t, err)
	require.NoError(t, m.Forget(ctx, "corp"))

	err = m.Forget(ctx, "corp")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestMemoryStoreConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, "a", PasswordKey, "corp"))

	err := store.Create(ctx, "b", PasswordKey, "corp")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "corp", list[0].Realm)
}
