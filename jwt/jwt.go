package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

// DefaultTTL is how long a token stays valid when no TTL is configured
const DefaultTTL = 30 * time.Minute

// ErrInvalidToken is returned for tokens that are malformed, expired or signed
// with another key
var ErrInvalidToken = errors.New("invalid jwt token")

type claims struct {
	UserID int `json:"user_id"`
	jwt.StandardClaims
}

// Signer issues and verifies HS256 tokens carrying a user id
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner creates a Signer. A zero ttl means DefaultTTL.
func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

// CreateCookie creates an cookie containing a JWT token that is set to expire
// after the signer's TTL.
func (s *Signer) CreateCookie(userID int, cookieName string) (http.Cookie, error) {
	expirationTime := s.now().Add(s.ttl)

	// Create a claim with an expiry and userID
	claims := &claims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  s.now().Unix(),
		},
	}

	// Create the JWT token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return http.Cookie{}, fmt.Errorf("sign token: %w", err)
	}

	// Return an http cookie with the token
	return http.Cookie{
		Name:     cookieName,
		Value:    tokenString,
		Expires:  expirationTime,
		HttpOnly: true,
		Path:     "/",
	}, nil
}

// VerifyToken verifies a JWT token and returns the user id it carries.
func (s *Signer) VerifyToken(tokenString string) (int, error) {
	claims := &claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}
