package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"wetalk/internal/pkg/logx"
)

// FSStore keeps one record file per username under a single directory.
type FSStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFSStore creates an FSStore rooted at dir. The directory is created
// lazily on first write.
func NewFSStore(dir string) *FSStore {
	return &FSStore{
		dir:    dir,
		logger: logx.Logger().With().Str("component", "FSStore").Str("dir", dir).Logger(),
	}
}

// Write replaces the record for username. The payload lands in a temp file
// first and is renamed into place so readers never observe a torn record.
func (s *FSStore) Write(ctx context.Context, username string, payload json.RawMessage) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	target := filepath.Join(s.dir, recordName(username))
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}

	s.logger.Debug().Str("username", username).Int("bytes", len(payload)).Msg("History record written.")

	return nil
}

// Read returns the record for username, or ErrNotFound.
func (s *FSStore) Read(ctx context.Context, username string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, recordName(username)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return json.RawMessage(data), nil
}
