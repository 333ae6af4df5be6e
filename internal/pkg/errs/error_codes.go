/*
Package errs provides custom error types and application-level error code constants.

These codes identify specific business or system errors both inside the server
and in failure responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 3xxx: Account and Session Errors
const (
	// ErrInvalidUsername indicates a missing or malformed username.
	ErrInvalidUsername = 3101

	// ErrInvalidPassword indicates a missing or malformed password.
	ErrInvalidPassword = 3102

	// ErrUserAlreadyExists indicates that the requested username is already registered.
	ErrUserAlreadyExists = 3103

	// ErrInvalidCredentials indicates a password mismatch for a known account.
	ErrInvalidCredentials = 3104

	// ErrUserNotFound indicates that no account exists for the given username.
	ErrUserNotFound = 3105

	// ErrAlreadyOnline indicates the account already has a live chat binding.
	ErrAlreadyOnline = 3106

	// ErrTicketInvalid indicates a missing, expired, or mismatched session ticket.
	ErrTicketInvalid = 3107

	// ErrAlreadyConnected indicates a second chat binding attempt for a present username.
	ErrAlreadyConnected = 3108
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server internal error.
	ErrUnknown = 5000
)
