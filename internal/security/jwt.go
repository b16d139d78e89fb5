package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carried by both token classes. Subject is the user ID; the nickname
// rides along so the access token is self-contained for display purposes.
type Claims struct {
	TokenType string `json:"token_type"`
	Nickname  string `json:"nickname,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(id), nil
}

// JWTManager signs and verifies access and refresh tokens with two
// independent secrets so a leak of one class does not compromise the other.
type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
}

func (m *JWTManager) SignAccessToken(userID uint, nickname string, ttl time.Duration) (string, error) {
	return m.sign(userID, nickname, ttl, "access", m.accessSecret, uuid.NewString())
}

// SignAccessTokenWithJTI mints an access token reusing an existing token ID.
// Pairing the access token with its refresh token's jti lets an access token
// be traced back to the session record that anchors it.
func (m *JWTManager) SignAccessTokenWithJTI(userID uint, nickname string, ttl time.Duration, jti string) (string, error) {
	return m.sign(userID, nickname, ttl, "access", m.accessSecret, jti)
}

func (m *JWTManager) SignRefreshToken(userID uint, nickname string, ttl time.Duration) (string, error) {
	return m.sign(userID, nickname, ttl, "refresh", m.refreshSecret, uuid.NewString())
}

func (m *JWTManager) sign(userID uint, nickname string, ttl time.Duration, tokenType string, secret []byte, jti string) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		Nickname:  nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, "access")
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, "refresh")
}

func (m *JWTManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	return claims, nil
}

// ExpiryOf decodes the expiry claim without verifying the signature. It is
// for presentation only (cookie lifetimes); never use it for authorization.
func ExpiryOf(raw string) (time.Time, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	return claims.ExpiresAt.Time, nil
}
