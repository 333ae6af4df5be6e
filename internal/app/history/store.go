/*
Package history persists per-user chat history records.

A record is a single opaque JSON value supplied by the client at logout and
replayed verbatim when the same username binds again. Writes always replace
the whole record; there is no incremental append.
*/
package history

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a username.
var ErrNotFound = errors.New("no history record")

// Store is the history store contract.
type Store interface {
	// Write durably stores the payload for the username, replacing any
	// prior record.
	Write(ctx context.Context, username string, payload json.RawMessage) error

	// Read returns the stored payload, or ErrNotFound.
	Read(ctx context.Context, username string) (json.RawMessage, error)
}

// ServiceConfig holds the configuration for the history backends.
type ServiceConfig struct {
	// Backend selects the implementation: "fs" or "s3".
	Backend string

	// Dir is the record directory for the fs backend.
	Dir string

	// S3 connection settings for the s3 backend.
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// NewStore is the factory function for Store. It returns the concrete
// implementation selected by cfg.Backend.
func NewStore(cfg ServiceConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.Dir), nil
	case "s3":
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}

// recordName encodes a username into a key-safe file name. Usernames are
// client-controlled, so they never appear raw in a path.
func recordName(username string) string {
	return hex.EncodeToString([]byte(username)) + ".json"
}
