package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scip/internal/revocation"
)

func newAuth(t *testing.T) (*authService, *fakeAuthRepo) {
	t.Helper()
	repo := newFakeAuthRepo()
	svc := NewAuthService(AuthConfig{Secret: []byte("test-secret"), TokenTTL: time.Hour, Issuer: "scip"},
		repo, revocation.NewMemory(), zap.NewNop()).(*authService)
	return svc, repo
}

func TestAuthService_RegisterLoginAuthenticate(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Alice@Example.com ", "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))

	token, expiresAt, loggedIn, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	actor, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "a", "password1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "A@example.com", "b", "password2")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_RegisterInvalid(t *testing.T) {
	svc, _ := newAuth(t)
	_, err := svc.Register(context.Background(), "", "a", "password1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "a", "password1")
	require.NoError(t, err)

	_, _, _, err = svc.Login(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_AuthenticateRejects(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "a", "password1")
	require.NoError(t, err)
	token, _, _, err := svc.Login(ctx, "a@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Authenticate(ctx, token+"x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	other := NewAuthService(AuthConfig{Secret: []byte("other"), Issuer: "scip"}, newFakeAuthRepo(), revocation.NewMemory(), zap.NewNop())
	_, err = other.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthService_AuthenticateUnknownSubject(t *testing.T) {
	svc, repo := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "a", "password1")
	require.NoError(t, err)
	token, _, _, err := svc.Login(ctx, "a@example.com", "password1")
	require.NoError(t, err)

	repo.mu.Lock()
	delete(repo.users, "a@example.com")
	repo.mu.Unlock()

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_RejectsOtherAlgorithms(t *testing.T) {
	svc, _ := newAuth(t)
	claims := jwt.RegisteredClaims{
		ID:        "x",
		Subject:   "mallory",
		Issuer:    "scip",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), unsigned)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "a", "password1")
	require.NoError(t, err)
	token, _, _, err := svc.Login(ctx, "a@example.com", "password1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	fresh, _, _, err := svc.Login(ctx, "a@example.com", "password1")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, fresh)
	assert.NoError(t, err)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "S3cret"))
	assert.False(t, verifyPassword("", "s3cret"))
	assert.False(t, verifyPassword("$argon2i$v=19$m=1,t=1,p=1$AA$AA", "s3cret"))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrTokenExpired))
	assert.True(t, IsAuthError(ErrInvalidCredentials))
	assert.False(t, IsAuthError(ErrPersistence))
}
