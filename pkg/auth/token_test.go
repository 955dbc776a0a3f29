package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "secret",
		JWTIssuer:            "trisikha-auth",
		JWTExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Role:   enums.MemberRoleAdmin,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)

	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.MemberRoleAdmin, claims.Role)
	require.Equal(t, cfg.JWTIssuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)

	exp := now.Add(time.Duration(cfg.JWTExpirationMinutes) * time.Minute)
	require.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testAuthConfig()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAdmin,
	})
	require.NoError(t, err)

	tampered := cfg
	tampered.JWTSecret = "other-secret"
	_, err = ParseAccessToken(tampered, token)
	require.Error(t, err)
}

func TestMintAccessTokenRejectsUnknownRole(t *testing.T) {
	_, err := MintAccessToken(testAuthConfig(), time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRole("superuser"),
	})
	require.Error(t, err)
}
