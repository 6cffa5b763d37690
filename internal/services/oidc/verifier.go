package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned when no verifier accepts a bearer token
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// JWKSVerifier validates RS256/ES256 tokens issued by a registered OIDC provider
type JWKSVerifier struct {
	providerName string
	provider     *Provider
	keys         *JWKSManager
}

var _ TokenVerifier = (*JWKSVerifier)(nil)

// NewJWKSVerifier creates a verifier bound to one provider registration
func NewJWKSVerifier(providerName string, provider *Provider, keys *JWKSManager) *JWKSVerifier {
	return &JWKSVerifier{providerName: providerName, provider: provider, keys: keys}
}

// Verify checks signature, expiry and issuer against the provider's published keys
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	config, err := v.provider.GetConfig(ctx, v.providerName)
	if err != nil {
		return nil, err
	}
	jwksURL := jwksURLFor(config)

	keySet, err := v.keys.GetJWKS(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	token, err := parseToken(tokenString, keySet, config.Issuer)
	if err != nil {
		// A token signed with a key we have not seen may follow a key rotation
		refreshed, ok, refreshErr := v.keys.Refresh(ctx, jwksURL)
		if refreshErr != nil || !ok {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if token, err = parseToken(tokenString, refreshed, config.Issuer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return claimsFromToken(token), nil
}

func parseToken(tokenString string, keySet jwk.Set, issuer string) (jwt.Token, error) {
	return jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithAcceptableSkew(30*time.Second),
	)
}

func jwksURLFor(config *models.OIDCConfig) string {
	if config.JWKSUrl != nil && *config.JWKSUrl != "" {
		return *config.JWKSUrl
	}
	return strings.TrimSuffix(config.Issuer, "/") + "/.well-known/jwks.json"
}

func claimsFromToken(token jwt.Token) *models.JWTClaims {
	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
		Iat: token.IssuedAt().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if name, ok := token.Get("name"); ok {
		claims.Name, _ = name.(string)
	}
	return claims
}

// Chain tries each verifier in order and returns the first success
type Chain []TokenVerifier

var _ TokenVerifier = Chain(nil)

// Verify returns ErrInvalidToken wrapping the last failure when every verifier rejects
func (c Chain) Verify(ctx context.Context, token string) (*models.JWTClaims, error) {
	var lastErr error = ErrInvalidToken
	for _, verifier := range c {
		claims, err := verifier.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if errors.Is(lastErr, ErrInvalidToken) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}
