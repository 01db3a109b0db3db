// Package auth authenticates bearer tokens from the external identity
// provider and binds each request to a Session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

// Claims is the token payload issued by the identity provider. Subject is
// the user id.
type Claims struct {
	SessionID   string `json:"sid"`
	DeviceNonce string `json:"device_nonce"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Picture     string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTIdentityProvider validates HS256 tokens signed with a shared secret.
type JWTIdentityProvider struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

var _ interfaces.IdentityProvider = (*JWTIdentityProvider)(nil)

func NewJWTIdentityProvider(secret []byte, issuer string, clk clock.Clock) (*JWTIdentityProvider, error) {
	if len(secret) < 32 {
		return nil, errors.New("identity token secret must be at least 32 bytes")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithTimeFunc(clk.Now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTIdentityProvider{
		secret: secret,
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

func (p *JWTIdentityProvider) Authenticate(ctx context.Context, bearer string) (*interfaces.Identity, error) {
	var claims Claims
	_, err := p.parser.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnauthenticated, err)
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.DeviceNonce == "" {
		return nil, fmt.Errorf("%w: token is missing sub, sid or device_nonce", interfaces.ErrUnauthenticated)
	}

	return &interfaces.Identity{
		UserID:      claims.Subject,
		SessionID:   claims.SessionID,
		DeviceNonce: claims.DeviceNonce,
		Name:        claims.Name,
		Email:       claims.Email,
		Picture:     claims.Picture,
	}, nil
}

// IssueToken signs claims the way the identity provider does. Used by
// tests and local tooling.
func (p *JWTIdentityProvider) IssueToken(identity *interfaces.Identity, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID:   identity.SessionID,
		DeviceNonce: identity.DeviceNonce,
		Name:        identity.Name,
		Email:       identity.Email,
		Picture:     identity.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
