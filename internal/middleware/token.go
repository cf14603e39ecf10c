package middleware

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed, badly signed
	// or carries no usable user id.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenVerifier validates HS256 bearer tokens issued by the auth service
// and extracts the numeric user id.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier for tokens signed with secret. An
// empty issuer disables the iss check.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify validates tokenString and returns the user id from the "sub"
// claim, falling back to "user_id". Both string and numeric forms are
// accepted.
func (v *TokenVerifier) Verify(tokenString string) (int64, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}

	for _, name := range []string{"sub", "user_id"} {
		if id, ok := userIDClaim(claims[name]); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: missing user id", ErrInvalidToken)
}

func userIDClaim(v any) (int64, bool) {
	var id int64
	switch c := v.(type) {
	case string:
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	case float64:
		if c != float64(int64(c)) {
			return 0, false
		}
		id = int64(c)
	default:
		return 0, false
	}
	return id, id > 0
}
