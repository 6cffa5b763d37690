package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier validates HS256 tokens signed with a shared secret, as issued by
// hosted auth services such as Supabase
type HMACVerifier struct {
	secret []byte
	issuer string
}

var _ TokenVerifier = (*HMACVerifier)(nil)

// NewHMACVerifier creates a shared-secret verifier. An empty issuer disables the issuer check.
func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

type hmacClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify checks the signature, expiry and issuer
func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (*models.JWTClaims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: shared secret not configured", ErrInvalidToken)
	}

	claims := &hmacClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, errors.New("missing subject"))
	}

	result := &models.JWTClaims{
		Sub:   claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Iss:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		result.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		result.Iat = claims.IssuedAt.Unix()
	}
	if len(claims.Audience) > 0 {
		result.Aud = claims.Audience[0]
	}
	return result, nil
}
