package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of the session cookie.
type Claims struct {
	UserID    int64       `json:"uid"`
	Role      models.Role `json:"role"`
	SessionID int64       `json:"sid"` // login_history.id
	jwt.RegisteredClaims
}

// TokenManager signs and validates session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long an issued token stays valid.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a signed token for an open session.
func (m *TokenManager) Issue(userID int64, role models.Role, sessionID int64) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses tokenString and returns its claims if the signature and expiry hold.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == 0 || claims.SessionID == 0 {
		return nil, errors.New("token is missing user or session id")
	}
	return claims, nil
}
