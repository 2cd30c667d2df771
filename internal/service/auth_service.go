package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/attendhq/attendance-api/internal/models"
	appErrors "github.com/attendhq/attendance-api/pkg/errors"
)

// CredentialVerifier abstracts the admin credential check so the literal
// comparison can be swapped for a directory-backed one.
type CredentialVerifier interface {
	Verify(username, password string) bool
}

// BcryptVerifier checks a password against a configured bcrypt hash.
type BcryptVerifier struct {
	Username     string
	PasswordHash string
}

// Verify implements CredentialVerifier.
func (v BcryptVerifier) Verify(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(v.Username)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)) == nil
}

// PlainVerifier compares against a plaintext password. Development only.
type PlainVerifier struct {
	Username string
	Password string
}

// Verify implements CredentialVerifier.
func (v PlainVerifier) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) == 1
	return userOK && passOK && v.Password != ""
}

// AuthConfig defines token issuing parameters.
type AuthConfig struct {
	Secret     string
	Expiration time.Duration
}

// AuthService issues and validates admin access tokens.
type AuthService struct {
	verifier  CredentialVerifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(verifier CredentialVerifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiration <= 0 {
		config.Expiration = 24 * time.Hour
	}
	return &AuthService{verifier: verifier, validator: validate, logger: logger, config: config, now: time.Now}
}

// Login authenticates the admin and returns an access token.
func (s *AuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	if !s.verifier.Verify(req.Username, req.Password) {
		s.logger.Warn("login rejected", zap.String("username", req.Username))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	issued := s.now().UTC()
	claims := models.JWTClaims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Username,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.config.Expiration)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Expiration.Seconds()),
		IssuedAt:    issued,
	}, nil
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}
