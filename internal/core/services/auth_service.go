package services

import (
	"errors"
	"time"

	"livesession/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AuthService mints and validates session join tokens. Identity itself
// comes from the external identity service; the token only binds a
// known user to one session slot for the relay's benefit.
type AuthService interface {
	GenerateJoinToken(sessionID domain.SessionID, userID domain.ParticipantID, displayName string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type Claims struct {
	SessionID   domain.SessionID     `json:"session_id"`
	UserID      domain.ParticipantID `json:"user_id"`
	DisplayName string               `json:"display_name"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret    []byte
	joinTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, joinTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:    []byte(jwtSecret),
		joinTokenTTL: joinTokenTTL,
	}
}

func (s *authService) GenerateJoinToken(sessionID domain.SessionID, userID domain.ParticipantID, displayName string) (string, error) {
	claims := &Claims{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.joinTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
