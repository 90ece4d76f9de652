package auth

import (
	"errors"
	"time"
)

// DefaultRole is granted to every newly registered account.
const DefaultRole = "USER"

// ErrInvalidCredentials indicates login failure. Handlers map it to 401
// without revealing whether the account exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is a registered account in the identity service.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
}
