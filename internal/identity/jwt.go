package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
)

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens issued by the platform's auth service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperr.Wrap(apperr.CodeNotAuthenticated, "invalid or expired token", err)
	}
	if !ValidUserID(claims.Subject) {
		return Identity{}, apperr.ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return Identity{}, apperr.ErrInvalidToken
	}
	return NewIdentity(claims.Subject, claims.Role), nil
}

// Sign mints a token the verifier accepts. Used by the dev CLI and tests;
// production tokens come from the auth service.
func (v *JWTVerifier) Sign(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
