package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

// Signer issues and verifies cookie values. The cookie holds an HS256 token
// whose ID claim is the cache token, so a forged cookie never reaches the store.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates a signer with the given HMAC secret
func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue returns a fresh cache token and the signed cookie value wrapping it
func (s *Signer) Issue(ttl time.Duration) (token, cookie string, err error) {
	token = uuid.NewString()
	now := s.now()

	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		ID:        token,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	cookie, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return token, cookie, nil
}

// Verify checks the cookie signature and expiry and returns the cache token
func (s *Signer) Verify(cookie string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(cookie, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCookie
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidCookie
	}
	return claims.ID, nil
}
