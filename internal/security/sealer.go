package security

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// cacheIssuer is the iss claim of sealed cache payloads.
const cacheIssuer = "vitsdept-session-cache"

var (
	// ErrInvalidSeal is returned when a sealed cache payload is malformed, tampered with or expired.
	ErrInvalidSeal = errors.New("invalid sealed identity")
)

// identityClaims is the JWT body stored in the device cache.
type identityClaims struct {
	jwt.RegisteredClaims
	TokenHash string          `json:"th"`
	Identity  domain.Identity `json:"identity"`
}

// CacheSealer signs the cached identity payload so that a device-local copy cannot be
// edited into a different principal. The payload is bound to the hash of the session
// token it was cached with and carries the session expiry.
type CacheSealer struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	// alg is KeyAlg of the key; empty when the key cannot seal.
	alg string
}

// NewCacheSealer returns a sealer that signs with privateKey (RSA or ECDSA P-256, see KeyAlg).
func NewCacheSealer(privateKey crypto.Signer) *CacheSealer {
	pub := privateKey.Public()
	return &CacheSealer{privateKey: privateKey, publicKey: pub, alg: KeyAlg(pub)}
}

// Seal returns a signed, compact representation of identity bound to token.
func (s *CacheSealer) Seal(token string, identity domain.Identity, now, expiresAt time.Time) (string, error) {
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    cacheIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenHash: HashToken(token),
		Identity:  identity,
	}
	method := jwt.GetSigningMethod(s.alg)
	if method == nil {
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(method, claims).SignedString(s.privateKey)
}

// Open verifies sealed and returns the identity if it was sealed for token and has not
// expired at now.
func (s *CacheSealer) Open(sealed, token string, now time.Time) (domain.Identity, error) {
	claims := &identityClaims{}
	if s.alg == "" {
		return domain.Identity{}, ErrInvalidSeal
	}
	parsed, err := jwt.ParseWithClaims(sealed, claims, func(*jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, jwt.WithValidMethods([]string{s.alg}), jwt.WithIssuer(cacheIssuer), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		return domain.Identity{}, ErrInvalidSeal
	}
	if !TokenEqual(claims.TokenHash, HashToken(token)) {
		return domain.Identity{}, ErrInvalidSeal
	}
	if claims.Identity.UserID == "" || claims.Identity.UserID != claims.Subject {
		return domain.Identity{}, ErrInvalidSeal
	}
	return claims.Identity, nil
}
