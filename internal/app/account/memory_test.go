package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPresence reports a fixed set of usernames as online.
type stubPresence map[string]bool

func (s stubPresence) IsPresent(username string) bool {
	return s[username]
}

func TestMemoryStoreRegisterAssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	aliceID, err := s.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), aliceID)

	bobID, err := s.Register(ctx, "bob", "swordfish")
	require.NoError(t, err)
	assert.Equal(t, int64(3), bobID)
}

func TestMemoryStoreRegisterRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = s.Register(ctx, "alice", "different-password")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestMemoryStoreBootstrapNameReserved(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.Register(ctx, BootstrapUsername, "hunter2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	// The seeded entry has no credentials, so it can never be logged into.
	_, err = s.Verify(ctx, BootstrapUsername, "")
	assert.ErrorIs(t, err, ErrWrongCredentials)
}

func TestMemoryStoreVerify(t *testing.T) {
	s := NewMemoryStore(stubPresence{"carol": true})
	ctx := context.Background()

	aliceID, err := s.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, err = s.Register(ctx, "carol", "hunter2")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		id, err := s.Verify(ctx, "alice", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, aliceID, id)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Verify(ctx, "nobody", "hunter2")
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.Verify(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrWrongCredentials)
	})

	t.Run("already online", func(t *testing.T) {
		_, err := s.Verify(ctx, "carol", "hunter2")
		assert.ErrorIs(t, err, ErrCurrentlyOnline)
	})
}
