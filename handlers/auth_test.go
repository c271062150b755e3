package handlers

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int         `json:"expiresIn"`
	User         models.User `json:"user"`
}

func TestRegisterIssuesTokensAndWelcomesUser(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/register", map[string]interface{}{
		"firstName":      "Amina",
		"lastName":       "Warsame",
		"email":          "Amina.Warsame@Example.com",
		"password":       "correct-horse",
		"graduationYear": 2012,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[authResponse](t, w)
	assert.NotEmpty(t, got.AccessToken)
	assert.NotEmpty(t, got.RefreshToken)
	assert.Equal(t, 900, got.ExpiresIn)
	assert.Equal(t, "amina.warsame@example.com", got.User.Email)
	assert.Equal(t, models.RoleAlumni, got.User.Role)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "amina.warsame@example.com", sent[0].To.Address)

	me := e.do(http.MethodGet, "/api/auth/me", nil, got.AccessToken)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, got.User.ID, decode[models.User](t, me).ID)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	e := newEnv(t)
	body := map[string]interface{}{"firstName": "A", "lastName": "B", "email": "dup@example.com", "password": "password123"}
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/auth/register", body, "").Code)

	w := e.do(http.MethodPost, "/api/auth/register", body, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/api/auth/register", map[string]interface{}{
		"firstName": "A", "lastName": "B", "email": "short@example.com", "password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decode[struct {
		Fields []models.FieldError `json:"fields"`
	}](t, w)
	require.NotEmpty(t, errBody.Fields)
	assert.Equal(t, "password", errBody.Fields[0].Field)

	w = e.do(http.MethodPost, "/api/auth/register", `{"firstName":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	u, _ := e.member(models.RoleAlumni)

	w := e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: "nobody@example.com", Password: "password123"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[authResponse](t, w)
	assert.NotEmpty(t, got.AccessToken)
	assert.NotNil(t, got.User.LastLogin)

	_, err := e.users.SetActive(context.Background(), u.ID, false)
	require.NoError(t, err)
	w = e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "password123"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)
	u, _ := e.member(models.RoleAlumni)
	login := decode[authResponse](t, e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "password123"}, ""))

	w := e.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := decode[map[string]interface{}](t, w)
	access, _ := refreshed["accessToken"].(string)
	require.NotEmpty(t, access)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/auth/me", nil, access).Code)

	w = e.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": "not-a-session"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	e := newEnv(t)
	u, _ := e.member(models.RoleAlumni)
	login := decode[authResponse](t, e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "password123"}, ""))
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/auth/me", nil, login.AccessToken).Code)

	w := e.do(http.MethodPost, "/api/auth/logout", map[string]string{"refreshToken": login.RefreshToken}, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", nil, login.AccessToken).Code)
	w = e.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresToken(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", nil, "garbage").Code)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)

	w := e.do(http.MethodPut, "/api/auth/password", passwordRequest{CurrentPassword: "wrong-one", NewPassword: "brand-new-pass"}, tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPut, "/api/auth/password", passwordRequest{CurrentPassword: "password123", NewPassword: "brand-new-pass"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "password123"}, "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: u.Email, Password: "brand-new-pass"}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", nil, tok).Code)
}

func TestChangePasswordLogsBlacklistFailure(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	e.redis.SetError("LOADING redis is loading the dataset")
	w := e.do(http.MethodPut, "/api/auth/password", passwordRequest{CurrentPassword: "password123", NewPassword: "brand-new-pass"}, tok)
	e.redis.SetError("")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, buf.String(), "blacklisting access token after password change")
	assert.Contains(t, buf.String(), "user="+u.ID)
}
