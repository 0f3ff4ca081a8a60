//go:generate go run go.uber.org/mock/mockgen -source=token.go -destination=../mocks/mock_token_verifier.go -package=mocks

// Package auth is the boundary to the external identity collaborator: it
// resolves the bearer credential presented at connection handshake into an
// authenticated identity. Credential issuance (login, register, password
// handling) lives outside this system.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-sync/domain/chat"
	apperrors "chat-sync/errors"
)

// ITokenVerifier resolves a bearer credential to the identity it was issued
// for, or rejects it before any protocol event is processed.
type ITokenVerifier interface {
	Verify(token string) (chat.Identity, error)
}

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// HS256Verifier validates tokens signed with a shared HMAC-SHA256 secret.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT string
// and extracts the identity it carries.
func (v *HS256Verifier) Verify(tokenString string) (chat.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return chat.Identity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return chat.Identity{}, apperrors.ErrInvalidToken
	}
	return chat.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// GenerateToken creates a signed JWT for a specific identity. The server
// never issues tokens itself; this is for tests and local tooling.
func GenerateToken(secret string, identity chat.Identity, ttl time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-sync",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
