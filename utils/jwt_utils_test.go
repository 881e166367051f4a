package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
)

const testSecret = "jwt-test-secret-value"

func TestIdentityFromToken_RoundTrip(t *testing.T) {
	identity := models.Identity{ID: primitive.NewObjectID(), Role: models.RoleAdmin}

	token, err := GenerateJWTTokenWithSecret(identity, testSecret, "mediavault", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyJWTTokenWithSecret(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "mediavault", claims.Issuer)
	assert.Equal(t, identity.ID.Hex(), claims.Subject)

	got, err := IdentityFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestIdentityFromToken_Rejects(t *testing.T) {
	identity := models.Identity{ID: primitive.NewObjectID(), Role: models.RoleUser}

	token, err := GenerateJWTTokenWithSecret(identity, testSecret, "mediavault", time.Hour)
	require.NoError(t, err)
	_, err = IdentityFromToken(token, "another-secret-value")
	assert.Error(t, err)

	expired, err := GenerateJWTTokenWithSecret(identity, testSecret, "mediavault", -time.Minute)
	require.NoError(t, err)
	_, err = IdentityFromToken(expired, testSecret)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	badID := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "nope", Role: models.RoleUser})
	signed, err := badID.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = IdentityFromToken(signed, testSecret)
	assert.Error(t, err)

	_, err = IdentityFromToken("garbage", testSecret)
	assert.Error(t, err)
}

func TestIdentityFromToken_UnknownRoleIsUser(t *testing.T) {
	identity := models.Identity{ID: primitive.NewObjectID(), Role: "superuser"}

	token, err := GenerateJWTTokenWithSecret(identity, testSecret, "mediavault", time.Hour)
	require.NoError(t, err)

	got, err := IdentityFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.False(t, got.IsAdmin())
}
