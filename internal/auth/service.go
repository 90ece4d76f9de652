package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/parley-chat/parley/internal/platform/httpx"
)

// Service wraps account registration and login.
type Service struct {
	repo  Repository
	codec *Codec
}

// NewService constructs a new Service.
func NewService(repo Repository, codec *Codec) *Service {
	return &Service{repo: repo, codec: codec}
}

// Register creates an account with the default role. The password is stored
// as a bcrypt hash, never in clear.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user := User{
		Username:     username,
		PasswordHash: string(hash),
		Roles:        []string{DefaultRole},
		IsActive:     true,
	}
	id, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return &user, nil
}

// Login validates credentials and issues a signed token carrying the
// account's roles. Every failure mode collapses to ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.codec.Issue(user.Username, user.Roles, time.Now())
	if err != nil {
		return "", nil, fmt.Errorf("auth: issue token: %w", err)
	}
	return token, user, nil
}
