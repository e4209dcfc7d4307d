package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// Keys signs and verifies HS256 access tokens for one issuer. Sessions are
// owned by the identity service; minting here serves tooling and tests.
type Keys struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewKeys(cfg config.JWTConfig) (*Keys, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is required")
	}
	return &Keys{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Mint issues a token valid for ttl from now.
func (k *Keys) Mint(now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	if ttl <= 0 {
		return "", errors.New("jwt ttl must be positive")
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    k.issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns its claims.
func (k *Keys) Parse(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if _, err := k.parser.ParseWithClaims(raw, claims, k.key); err != nil {
		return nil, err
	}
	return claims, nil
}

func (k *Keys) key(*jwt.Token) (any, error) {
	return k.secret, nil
}

// MintAccessToken is Mint with keys built from cfg.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	keys, err := NewKeys(cfg)
	if err != nil {
		return "", err
	}
	return keys.Mint(now, ttl, payload)
}

// ParseAccessToken is Parse with keys built from cfg.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	keys, err := NewKeys(cfg)
	if err != nil {
		return nil, err
	}
	return keys.Parse(raw)
}
