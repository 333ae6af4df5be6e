/*
Package account manages user registration and credential verification.

Registration is independent of presence: an account outlives every
connection, while a chat binding lives only as long as its connection.
Verification consults presence so an account that is already bound on the
chat endpoint cannot log in a second time.
*/
package account

import (
	"context"
	"errors"
)

const (
	// BootstrapUsername is the pseudo-user reserved at startup. It anchors
	// the broadcast ("Group") entry in every presence list and can never be
	// registered or logged in by a client.
	BootstrapUsername = "Group"

	// BootstrapImageID is the avatar identifier reserved for the bootstrap
	// entry. Client registrations start at BootstrapImageID + 1.
	BootstrapImageID int64 = 1
)

var (
	// ErrDuplicateUsername is returned when registering a username that already exists.
	ErrDuplicateUsername = errors.New("username already registered")

	// ErrUnknownUser is returned when verifying a username that was never registered.
	ErrUnknownUser = errors.New("unknown user")

	// ErrWrongCredentials is returned when the password does not match.
	ErrWrongCredentials = errors.New("wrong credentials")

	// ErrCurrentlyOnline is returned when the account already has a live chat binding.
	ErrCurrentlyOnline = errors.New("user is currently logged in")
)

// PresenceChecker reports whether a username currently has a live chat binding.
type PresenceChecker interface {
	IsPresent(username string) bool
}

// Store is the credential store contract.
type Store interface {
	// Register creates a new account and returns its image id.
	// Fails with ErrDuplicateUsername if the username is taken.
	Register(ctx context.Context, username, password string) (int64, error)

	// Verify checks the password for an existing account and returns its
	// image id. The presence check runs in the same critical section as the
	// credential check, so two concurrent logins for one account cannot
	// both observe "not present".
	Verify(ctx context.Context, username, password string) (int64, error)
}
