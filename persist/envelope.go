package persist

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/graphcache/cache"
)

// Issuer is the iss claim of every sealed snapshot.
const Issuer = "graphcache"

// SealOptions configures Seal.
type SealOptions struct {
	// TTL sets the envelope's expiry. Zero means the envelope never expires.
	TTL time.Duration

	// KeyID is written to the kid header.
	KeyID string

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

type envelopeClaims struct {
	Snapshot *cache.Snapshot `json:"snapshot"`
	jwt.RegisteredClaims
}

// Seal signs s with key and returns the compact token.
func Seal(s *cache.Snapshot, key []byte, opts SealOptions) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	if s == nil {
		s = &cache.Snapshot{}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	issued := now()

	claims := envelopeClaims{
		Snapshot: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
	if opts.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issued.Add(opts.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if opts.KeyID != "" {
		token.Header["kid"] = opts.KeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("persist: seal: %w", err)
	}
	return signed, nil
}

// Open verifies a token produced by Seal and returns its snapshot. Any
// verification failure matches ErrInvalidEnvelope.
func Open(token string, key []byte) (*cache.Snapshot, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	var claims envelopeClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if claims.Snapshot == nil {
		return nil, fmt.Errorf("%w: no snapshot claim", ErrInvalidEnvelope)
	}
	return claims.Snapshot, nil
}
