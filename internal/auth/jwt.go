// Package auth provides the bearer token verifiers used by the API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// claimsToken exposes verified JWT claims through middleware.Token.
type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

var ErrNoExpiry = errors.New("auth: token has no expiry")

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(cfg config.JWTConfig) (*HMACVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: JWT secret is empty")
	}
	return &HMACVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}, nil
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return nil, ErrNoExpiry
	}
	return &claimsToken{claims: claims}, nil
}

// IssueToken creates a signed access token for subject.
func IssueToken(cfg config.JWTConfig, subject, name string) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("auth: JWT secret is empty")
	}
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if name != "" {
		claims["name"] = name
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}
