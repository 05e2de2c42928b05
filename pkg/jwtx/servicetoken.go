// Package jwtx issues and verifies the HS256 bearer tokens that platform
// services present when calling the guard's internal API. These are
// service-to-service credentials only; end-user sessions are handled
// elsewhere in the platform.
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultServiceTokenTTL bounds how long a minted service token stays
// valid.
const DefaultServiceTokenTTL = 10 * time.Minute

var (
	ErrInvalidToken = errors.New("jwtx: invalid token")
	ErrWrongIssuer  = errors.New("jwtx: unexpected issuer")
)

// ServiceClaims identifies the calling service.
type ServiceClaims struct {
	Service string // caller name, e.g. "platform-api"
	Issuer  string
	Expiry  time.Time
}

// Signer mints service tokens with a shared HMAC secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner builds a Signer. A zero ttl falls back to
// DefaultServiceTokenTTL.
func NewSigner(secret []byte, issuer string, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultServiceTokenTTL
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Sign mints a token identifying the named calling service.
func (s *Signer) Sign(service string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   service,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates service tokens minted by a Signer sharing the same
// secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier builds a Verifier for tokens from the given issuer.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty verification secret")
	}
	return &Verifier{secret: secret, issuer: issuer}, nil
}

// Verify checks the signature, expiry, and issuer of raw and returns the
// caller identity.
func (v *Verifier) Verify(raw string) (ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
			}
			return v.secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return ServiceClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return ServiceClaims{}, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return ServiceClaims{}, ErrWrongIssuer
	}

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	return ServiceClaims{
		Service: claims.Subject,
		Issuer:  claims.Issuer,
		Expiry:  expiry,
	}, nil
}
