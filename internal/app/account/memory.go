package account

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"wetalk/internal/pkg/logx"
)

type memoryRecord struct {
	passwordHash []byte
	imageID      int64
}

// MemoryStore keeps accounts for the lifetime of the process.
// Image ids come from a monotonic counter; the bootstrap "Group" entry is
// seeded first and always holds id 1.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]memoryRecord
	nextID   int64
	presence PresenceChecker
	logger   zerolog.Logger
}

// NewMemoryStore creates a MemoryStore with the bootstrap entry seeded.
// The presence checker may be nil, in which case Verify never reports
// ErrCurrentlyOnline.
func NewMemoryStore(presence PresenceChecker) *MemoryStore {
	s := &MemoryStore{
		users:    make(map[string]memoryRecord),
		nextID:   BootstrapImageID,
		presence: presence,
		logger:   logx.Logger().With().Str("component", "MemoryStore").Logger(),
	}

	// The bootstrap entry has no password hash, so Verify can never succeed
	// for it and Register rejects the name as a duplicate.
	s.users[BootstrapUsername] = memoryRecord{imageID: s.nextID}
	s.nextID++

	return s
}

// Register creates a new account with a bcrypt password hash.
func (s *MemoryStore) Register(ctx context.Context, username, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return 0, ErrDuplicateUsername
	}

	rec := memoryRecord{
		passwordHash: hash,
		imageID:      s.nextID,
	}
	s.nextID++
	s.users[username] = rec

	s.logger.Info().Str("username", username).Int64("image_id", rec.imageID).Msg("Account registered.")

	return rec.imageID, nil
}

// Verify checks credentials and presence under one critical section.
func (s *MemoryStore) Verify(ctx context.Context, username, password string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[username]
	if !exists {
		return 0, ErrUnknownUser
	}

	if len(rec.passwordHash) == 0 {
		// Bootstrap entry, not a client account.
		return 0, ErrWrongCredentials
	}

	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return 0, ErrWrongCredentials
	}

	if s.presence != nil && s.presence.IsPresent(username) {
		return 0, ErrCurrentlyOnline
	}

	return rec.imageID, nil
}
