package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "payroll-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
}

func newIssueInput() IssueInput {
	return IssueInput{
		BusinessID: uuid.New(),
		UserID:     uuid.New(),
		Username:   "amina",
		Roles:      []string{RoleApprover},
	}
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newTestJWTService()
	input := newIssueInput()

	token, expiresAt, err := svc.IssueAccessToken(input)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, input.BusinessID, claims.BusinessUUID())
	assert.Equal(t, input.UserID.String(), claims.UserID)
	assert.True(t, claims.HasRole(RoleApprover))
	assert.False(t, claims.HasRole(RoleAdmin))
	assert.NotEmpty(t, claims.ID)
	assert.Greater(t, claims.RemainingTTL(), 14*time.Minute)
	assert.False(t, claims.IssuedAtTime().IsZero())
}

func TestJWTService_IssueRequiresSubject(t *testing.T) {
	svc := newTestJWTService()

	in := newIssueInput()
	in.BusinessID = uuid.Nil
	_, _, err := svc.IssueAccessToken(in)
	assert.ErrorIs(t, err, ErrMissingBusinessID)

	in = newIssueInput()
	in.UserID = uuid.Nil
	_, _, err = svc.IssueAccessToken(in)
	assert.ErrorIs(t, err, ErrMissingUserID)

	in = newIssueInput()
	in.Roles = nil
	_, _, err = svc.IssueAccessToken(in)
	assert.ErrorIs(t, err, ErrMissingRoles)
}

func TestJWTService_ValidateFailures(t *testing.T) {
	svc := newTestJWTService()

	t.Run("expired", func(t *testing.T) {
		past := newTestJWTService()
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := past.IssueAccessToken(newIssueInput())
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("different secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret", Issuer: "payroll-test", AccessTokenExpiration: time.Minute})
		token, _, err := other.IssueAccessToken(newIssueInput())
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else", AccessTokenExpiration: time.Minute})
		token, _, err := other.IssueAccessToken(newIssueInput())
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing business id", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "payroll-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			UserID: uuid.NewString(),
			Roles:  []string{RoleViewer},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrMissingBusinessID)
	})

	t.Run("no roles", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "payroll-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			BusinessID: uuid.NewString(),
			UserID:     uuid.NewString(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrMissingRoles)
	})
}
