package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/infrastructure/config"
)

// Roles known to the authorization policy
const (
	RoleAdmin    = "payroll_admin"
	RoleApprover = "payroll_approver"
	RoleOfficer  = "payroll_officer"
	RoleViewer   = "payroll_viewer"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrInvalidClaims     = errors.New("invalid token claims")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrMissingBusinessID = errors.New("missing business_id in claims")
	ErrMissingUserID     = errors.New("missing user_id in claims")
	ErrMissingRoles      = errors.New("token carries no roles")
	ErrTokenRevoked      = errors.New("token has been revoked")
)

// Claims are the bearer token claims this service acts on
type Claims struct {
	jwt.RegisteredClaims
	BusinessID string   `json:"business_id"`
	UserID     string   `json:"user_id"`
	Username   string   `json:"username,omitempty"`
	Roles      []string `json:"roles"`
}

// JWTService validates access tokens, and issues them for tooling and tests.
// Tokens are HS256 signed with the shared secret.
type JWTService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
		now:        time.Now,
	}
}

// IssueInput describes the subject of a new token
type IssueInput struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	Username   string
	Roles      []string
}

// IssueAccessToken signs an access token for input
func (s *JWTService) IssueAccessToken(input IssueInput) (string, time.Time, error) {
	if input.BusinessID == uuid.Nil {
		return "", time.Time{}, ErrMissingBusinessID
	}
	if input.UserID == uuid.Nil {
		return "", time.Time{}, ErrMissingUserID
	}
	if len(input.Roles) == 0 {
		return "", time.Time{}, ErrMissingRoles
	}

	now := s.now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		BusinessID: input.BusinessID.String(),
		UserID:     input.UserID.String(),
		Username:   input.Username,
		Roles:      input.Roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken parses and validates a token, returning its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if _, err := uuid.Parse(claims.BusinessID); err != nil {
		return nil, ErrMissingBusinessID
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrMissingUserID
	}
	if len(claims.Roles) == 0 {
		return nil, ErrMissingRoles
	}
	return claims, nil
}

// BusinessUUID returns the business the token acts for
func (c *Claims) BusinessUUID() uuid.UUID {
	id, _ := uuid.Parse(c.BusinessID)
	return id
}

// HasRole reports whether the token carries role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IssuedAtTime returns the token's issued-at time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// RemainingTTL returns the time until the token expires
func (c *Claims) RemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(time.Until(c.ExpiresAt.Time), 0)
}
