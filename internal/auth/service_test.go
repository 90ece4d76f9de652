package auth_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/platform/httpx"
)

type stubRepo struct {
	users  map[string]*auth.User
	nextID int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[string]*auth.User), nextID: 1}
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *stubRepo) Create(ctx context.Context, user auth.User) (int64, error) {
	if _, ok := s.users[user.Username]; ok {
		return 0, fmt.Errorf("auth: username %s: %w", user.Username, httpx.ErrConflict)
	}
	user.ID = s.nextID
	s.nextID++
	s.users[user.Username] = &user
	return user.ID, nil
}

func newService(repo auth.Repository) (*auth.Service, *auth.Codec) {
	codec := auth.NewCodec("test-secret", time.Hour)
	return auth.NewService(repo, codec), codec
}

func TestRegisterHashesPassword(t *testing.T) {
	repo := newStubRepo()
	service, _ := newService(repo)

	user, err := service.Register(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []string{auth.DefaultRole}, user.Roles)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newStubRepo()
	service, _ := newService(repo)

	_, err := service.Register(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	_, err = service.Register(context.Background(), "alice", "other-pass")
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	repo := newStubRepo()
	service, codec := newService(repo)

	_, err := service.Register(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	token, user, err := service.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	p := codec.Verify(token, time.Now().Add(time.Second))
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Subject)
	assert.Equal(t, []string{auth.DefaultRole}, p.Authorities)
}

func TestLoginFailureModesCollapse(t *testing.T) {
	repo := newStubRepo()
	service, _ := newService(repo)

	_, err := service.Register(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	_, _, err = service.Login(context.Background(), "alice", "wrong-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, _, err = service.Login(context.Background(), "nobody", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	repo.users["alice"].IsActive = false
	_, _, err = service.Login(context.Background(), "alice", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
