/*
Package token issues and validates the session tickets that link a
successful login on the auth endpoint to a later presence bind on the
chat endpoint.

The ticket is a signed HS256 JWT carried in the login response and echoed
back inside the add_user frame. The chat endpoint never trusts a
client-supplied username without a matching ticket.
*/
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionTTL defines how long a ticket stays valid after login.
	SessionTTL = 12 * time.Hour

	// Issuer identifies the issuer of the ticket.
	Issuer = "wetalk-server"
)

// Claims defines the session ticket payload.
type Claims struct {
	jwt.StandardClaims

	// Username is the account the ticket was issued for. A chat bind is
	// only accepted when this matches the username in the add_user frame.
	Username string `json:"username"`

	// ImageID is the account's numeric avatar identifier.
	ImageID int64 `json:"image_id"`
}

// Issue creates and signs a session ticket for the given account.
func Issue(username string, imageID int64, secretKey string) (string, error) {
	now := time.Now()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(SessionTTL).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    Issuer,
		},
		Username: username,
		ImageID:  imageID,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return t.SignedString([]byte(secretKey))
}

// Parse validates a ticket string and returns its claims.
func Parse(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !t.Valid {
		return nil, errors.New("invalid or expired ticket")
	}

	return claims, nil
}
