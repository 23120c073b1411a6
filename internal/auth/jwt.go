package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/npoportal/internal/model"
)

// ErrInvalidBearer はBearerトークンの署名・形式・期限が不正な場合に返される。
var ErrInvalidBearer = errors.New("invalid bearer token")

// TokenIssuer はセッションIDを載せたHS256トークンを発行・検証する。
// トークン単体では認証にならず、jtiが指すセッションがストアに残っている必要がある。
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue はセッションに対応するトークンを発行する。
func (i *TokenIssuer) Issue(session *model.Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   session.AccountID,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// SessionID はトークンを検証し、セッションIDを返す。
func (i *TokenIssuer) SessionID(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidBearer
	}
	if claims.ID == "" {
		return "", ErrInvalidBearer
	}
	return claims.ID, nil
}
