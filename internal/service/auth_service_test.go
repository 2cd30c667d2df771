package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/attendhq/attendance-api/internal/models"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
)

func newTestAuthService(t *testing.T) *AuthService {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	verifier := BcryptVerifier{Username: "admin", PasswordHash: string(hash)}
	return NewAuthService(verifier, nil, nil, AuthConfig{Secret: "test_secret", Expiration: time.Hour})
}

func TestAuthServiceLoginIssuesToken(t *testing.T) {
	svc := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "letmein"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongUsername(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "root", Password: "letmein"})
	require.Error(t, err)
}

func TestAuthServiceValidateGarbageToken(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestPlainVerifierRejectsEmptyPassword(t *testing.T) {
	v := PlainVerifier{Username: "admin", Password: ""}
	assert.False(t, v.Verify("admin", ""))

	v.Password = "devpass"
	assert.True(t, v.Verify("admin", "devpass"))
	assert.False(t, v.Verify("admin", "other"))
}
