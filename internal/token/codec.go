package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"qrattend/internal/session"
)

var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// sessionClaims is the JWT payload. The session claim travels as a private
// claim; the registered claims mirror it for interop with standard tooling.
type sessionClaims struct {
	Session session.Claim `json:"ses"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a fixed HS256 key.
type Codec struct {
	key    []byte
	issuer string
	policy session.Policy
}

// NewCodec builds a codec. The key is copied and never mutated afterwards.
func NewCodec(key []byte, issuer string, policy session.Policy) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("token signing key required")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k, issuer: issuer, policy: policy}, nil
}

// Issue signs claim. The claim's IssuedAt anchors the validity window.
func (c *Codec) Issue(claim session.Claim, ttl time.Duration) (string, error) {
	if err := claim.Validate(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	claims := sessionClaims{
		Session: claim,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claim.SessionID,
			Issuer:    c.issuer,
			Subject:   claim.IssuerID,
			IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claim.IssuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode verifies the signature of tokenStr and then its age at now. The
// lifetime comes from the policy for the claim's kind, not from the token.
func (c *Codec) Decode(tokenStr string, now time.Time) (session.Claim, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return session.Claim{}, classify(err)
	}

	claim := claims.Session
	if err := claim.Validate(); err != nil {
		return session.Claim{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID != claim.SessionID || claims.Subject != claim.IssuerID {
		return session.Claim{}, fmt.Errorf("%w: registered claims disagree with session", ErrMalformed)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return session.Claim{}, fmt.Errorf("%w: issuer mismatch", ErrMalformed)
	}

	ttl, err := c.policy.TTL(claim.Kind)
	if err != nil {
		return session.Claim{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if now.Sub(claim.IssuedAt) > ttl {
		return session.Claim{}, ErrExpired
	}
	claim.IssuedAt = claim.IssuedAt.UTC()
	return claim, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
