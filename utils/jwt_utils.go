package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateJWTTokenWithSecret(identity models.Identity, jwtSecret, issuer string, expiration time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID: identity.ID.Hex(),
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

func VerifyJWTTokenWithSecret(tokenString string, jwtSecret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// IdentityFromToken verifies the token and returns the identity it carries.
func IdentityFromToken(tokenString string, jwtSecret string) (models.Identity, error) {
	claims, err := VerifyJWTTokenWithSecret(tokenString, jwtSecret)
	if err != nil {
		return models.Identity{}, err
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return models.Identity{}, errors.New("invalid user ID in token")
	}

	role := claims.Role
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	return models.Identity{ID: userID, Role: role}, nil
}
