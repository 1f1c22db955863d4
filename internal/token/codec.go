package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrMalformedToken   = errors.New("token is malformed")
)

// Token types embedded in signed claims so a credential can never be
// presented at the wrong endpoint.
const (
	TypeMagicLink = "magic_link"
	TypeSession   = "session"
)

// Codec turns the shared secret into signed, time-boxed credentials and
// hides them at rest. It holds no state between calls.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// MintMagicLinkToken produces a self-contained signed token for a magic
// link. The claims identify who the credential belongs to without a
// storage lookup; the database only ever sees the hash.
func (c *Codec) MintMagicLinkToken(email, tokenID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"email":    email,
		"token_id": tokenID,
		"type":     TypeMagicLink,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	return c.sign(claims)
}

// MintSessionToken produces the signed bearer value stored in the session
// cookie.
func (c *Codec) MintSessionToken(userID, email string, username *string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"type":    TypeSession,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if username != nil {
		claims["username"] = *username
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifySignedToken parses and validates a signed token. Expiry is enforced
// by the jwt library at parse time, not re-checked manually. Fails closed:
// tampered or expired tokens are rejected with a distinct error.
func (c *Codec) VerifySignedToken(tokenString string) (jwt.MapClaims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformedToken
		}
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// HashForStorage derives the one-way lookup key stored in place of a
// plaintext credential. Deterministic so the store can be queried by hash;
// a database leak never yields a usable bearer value.
func HashForStorage(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateNumericCode returns a cryptographically-sourced, zero-padded
// numeric code of the given length, uniform over the code space.
func GenerateNumericCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
