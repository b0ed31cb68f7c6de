// Package auth verifies the bearer token a storage event source presents
// when posting to /events. Tokens are HS256 JWTs signed with a shared secret.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

// DefaultClockSkew is the leeway applied to exp, nbf and iat.
const DefaultClockSkew = time.Minute

// Verifier checks event tokens. A Verifier with an empty Secret accepts
// every request.
type Verifier struct {
	Secret         []byte
	ExpectedIssuer string
	ClockSkew      time.Duration
	now            func() time.Time
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{Secret: []byte(secret), ExpectedIssuer: issuer, ClockSkew: DefaultClockSkew}
}

// Enabled reports whether requests are checked at all.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.Secret) > 0
}

// VerifyRequest checks the Authorization header of r.
func (v *Verifier) VerifyRequest(r *http.Request) (*jwt.Claims, error) {
	if !v.Enabled() {
		return nil, nil
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Verify parses and validates a compact HS256 token.
func (v *Verifier) Verify(tokenString string) (*jwt.Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &jwt.Claims{}
	if err := tok.Claims(v.Secret, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := time.Now
	if v.now != nil {
		now = v.now
	}
	expected := jwt.Expected{Time: now()}
	if v.ExpectedIssuer != "" {
		expected.Issuer = v.ExpectedIssuer
	}

	switch err := claims.ValidateWithLeeway(expected, v.ClockSkew); {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrNotValidYet), errors.Is(err, jwt.ErrIssuedInTheFuture):
		return nil, ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return nil, fmt.Errorf("%w: expected '%s', got '%s'", ErrInvalidIssuer, v.ExpectedIssuer, claims.Issuer)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// Sign issues a token for subject valid for ttl. Used by operators to
// configure the event source and by tests.
func Sign(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret cannot be empty")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.Expiry = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}
