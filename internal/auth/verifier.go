package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that does not verify.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier exchanges an opaque bearer credential for a verified user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// JWTVerifier validates HS256 tokens issued by the account service.
// The subject claim carries the user id.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier with the shared signing secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// VerifyToken parses and validates the token and returns the subject user id.
func (v *JWTVerifier) VerifyToken(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
