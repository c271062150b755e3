package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testConfig(secret string) *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	return cfg
}

var testUser = &models.User{ID: "user-123", Email: "test@example.com", Role: models.RoleModerator}

func TestGenerateAccessToken_ValidAndClaims(t *testing.T) {
	cfg := testConfig("test-secret-32-bytes-should-be-long-enough")
	tokenStr, err := GenerateAccessToken(cfg, testUser, 2*time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg.JWT.Secret, tokenStr)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "test@example.com", claims.Email)
	require.Equal(t, models.RoleModerator, claims.Role)
	require.NotNil(t, claims.IssuedAt)
}

func TestGenerateAccessToken_Expiry(t *testing.T) {
	cfg := testConfig("another-secret-32-bytes-longgggg")
	tokenStr, err := GenerateAccessToken(cfg, testUser, -time.Second)
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg.JWT.Secret, tokenStr)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseToken_WrongSecretFails(t *testing.T) {
	tokenStr, err := GenerateAccessToken(testConfig("secret-one-32-bytes-xxxxxxxxxxxxxxxx"), testUser, 2*time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken("different-secret-xxxxxxxxxxxxxxxx", tokenStr)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseAccessToken("x", "not.a.jwt")
	require.Error(t, err)
}

// Rejected when alg=none (unsigned token)
func TestParseToken_AlgNoneRejected(t *testing.T) {
	payload := `{"sub":"u-none","iss":"alumni-backend","exp":9999999999}`
	tok := (&jwt.Token{}).EncodeSegment([]byte(`{"alg":"none"}`)) + "." + (&jwt.Token{}).EncodeSegment([]byte(payload)) + "."
	_, err := ParseAccessToken("x", tok)
	require.Error(t, err)
}

func TestParseToken_ForeignIssuerRejected(t *testing.T) {
	secret := "issuer-secret-32-bytes-xxxxxxxxxxxx"
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	raw, err := foreign.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(secret, raw)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

// Tampering with payload must fail signature verification
func TestParseToken_TamperedPayload(t *testing.T) {
	secret := "tamper-test-secret-32-bytes-xxxxxxx"
	tokenStr, err := GenerateAccessToken(testConfig(secret), testUser, 5*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payloadBytes, _ := jwt.NewParser().DecodeSegment(parts[1])
	parts[1] = (&jwt.Token{}).EncodeSegment([]byte(strings.Replace(string(payloadBytes), "user-123", "attacker", 1)))

	_, err = ParseAccessToken(secret, strings.Join(parts, "."))
	require.Error(t, err)
}

func TestExpiresAt(t *testing.T) {
	tokenStr, err := GenerateAccessToken(testConfig("exp-secret-32-bytes-xxxxxxxxxxxxxxx"), testUser, time.Hour)
	require.NoError(t, err)

	exp, err := ExpiresAt(tokenStr)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)
}

func TestVerifierExposesClaims(t *testing.T) {
	secret := "verifier-secret-32-bytes-xxxxxxxxxx"
	tokenStr, err := GenerateAccessToken(testConfig(secret), testUser, time.Minute)
	require.NoError(t, err)

	tok, err := NewVerifier(secret).Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, models.RoleModerator, claims["role"])
}
