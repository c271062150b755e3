package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upload posts a single multipart "file" part.
func (e *env) upload(path, token, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(e.t, err)
	_, err = part.Write(data)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestDirectory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	viewer, tok := e.member(models.RoleAlumni)
	dev, _ := e.member(models.RoleAlumni)
	_, err := e.users.Update(ctx, dev.ID, users.ProfileUpdate{Profile: &models.Profile{
		Company: "Hormuud Telecom", JobTitle: "Engineer", Skills: []string{"go", "mongodb"},
	}}, false)
	require.NoError(t, err)
	gone, _ := e.member(models.RoleAlumni)
	_, err = e.users.SetActive(ctx, gone.ID, false)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/users", nil, "").Code)

	w := e.do(http.MethodGet, "/api/users?search=hormuud", nil, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[models.Page[models.User]](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, dev.ID, page.Items[0].ID)

	page = decode[models.Page[models.User]](t, e.do(http.MethodGet, "/api/users?skills=go,mongodb", nil, tok))
	require.Len(t, page.Items, 1)
	page = decode[models.Page[models.User]](t, e.do(http.MethodGet, "/api/users?skills=go,rust", nil, tok))
	assert.Empty(t, page.Items)

	page = decode[models.Page[models.User]](t, e.do(http.MethodGet, "/api/users?includeInactive=true&limit=100", nil, tok))
	for _, u := range page.Items {
		assert.NotEqual(t, gone.ID, u.ID, "inactive users are hidden from members")
	}
	assert.Contains(t, ids(page.Items), viewer.ID)

	_, adminTok := e.member(models.RoleAdmin)
	page = decode[models.Page[models.User]](t, e.do(http.MethodGet, "/api/users?includeInactive=true&limit=100", nil, adminTok))
	assert.Contains(t, ids(page.Items), gone.ID)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/users?sortBy=password", nil, tok).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/users?order=sideways", nil, tok).Code)
}

func ids(us []models.User) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.ID)
	}
	return out
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)
	other, otherTok := e.member(models.RoleAlumni)
	_, adminTok := e.member(models.RoleAdmin)

	w := e.do(http.MethodPut, "/api/users/"+u.ID, UpdateUserRequest{
		Major:    ptr("Computer Science"),
		Location: &models.Location{City: "Mogadishu", Country: "Somalia"},
	}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.User](t, w)
	assert.Equal(t, "Computer Science", got.Major)
	assert.Equal(t, "Mogadishu", got.Location.City)
	assert.Equal(t, u.FirstName, got.FirstName)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/api/users/"+u.ID, UpdateUserRequest{Major: ptr("Law")}, otherTok).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/api/users/"+u.ID, UpdateUserRequest{Role: ptr(models.RoleAdmin)}, tok).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/users/"+u.ID, UpdateUserRequest{Phone: ptr("call me")}, tok).Code)

	w = e.do(http.MethodPut, "/api/users/"+other.ID, UpdateUserRequest{Role: ptr(models.RoleModerator), IsVerified: ptr(true)}, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[models.User](t, w)
	assert.Equal(t, models.RoleModerator, got.Role)
	assert.True(t, got.IsVerified)
}

func TestDeleteAndActivate(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)
	_, otherTok := e.member(models.RoleAlumni)
	_, adminTok := e.member(models.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/users/"+u.ID, nil, otherTok).Code)

	refresh, err := e.sessions.CreateSession(context.Background(), u.ID, "test", time.Hour)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/users/"+u.ID, nil, tok).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/users/"+u.ID, nil, otherTok).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/users/"+u.ID, nil, adminTok).Code)
	sess, err := e.sessions.ValidateRefresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.Nil(t, sess, "sessions end with the account")

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, "/api/users/"+u.ID+"/activate", nil, otherTok).Code)
	w := e.do(http.MethodPatch, "/api/users/"+u.ID+"/activate", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.User](t, w).IsActive)
}

func TestSetRole(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)
	_, adminTok := e.member(models.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, "/api/users/"+u.ID+"/role", map[string]string{"role": "admin"}, tok).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, "/api/users/"+u.ID+"/role", map[string]string{"role": "root"}, adminTok).Code)

	w := e.do(http.MethodPatch, "/api/users/"+u.ID+"/role", map[string]string{"role": "moderator"}, adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleModerator, decode[models.User](t, w).Role)
}

func TestUploadAvatar(t *testing.T) {
	e := newEnv(t)
	u, tok := e.member(models.RoleAlumni)
	_, otherTok := e.member(models.RoleAlumni)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	w := e.upload("/api/users/"+u.ID+"/avatar", tok, "me.PNG", "image/png", png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.User](t, w)
	require.True(t, strings.HasPrefix(got.Profile.Avatar, "http://files.test/avatars/"+u.ID+"/"), got.Profile.Avatar)
	assert.True(t, strings.HasSuffix(got.Profile.Avatar, ".png"))
	key := strings.TrimPrefix(got.Profile.Avatar, "http://files.test/")
	assert.Equal(t, "image/png", e.store.ContentType(key))

	assert.Equal(t, http.StatusForbidden, e.upload("/api/users/"+u.ID+"/avatar", otherTok, "x.png", "image/png", png).Code)
	assert.Equal(t, http.StatusBadRequest, e.upload("/api/users/"+u.ID+"/avatar", tok, "cv.pdf", "application/pdf", []byte("%PDF")).Code)
	big := make([]byte, MaxImageSize+1)
	assert.Equal(t, http.StatusBadRequest, e.upload("/api/users/"+u.ID+"/avatar", tok, "big.jpg", "image/jpeg", big).Code)
}

func TestUserStats(t *testing.T) {
	e := newEnv(t)
	_, tok := e.member(models.RoleAlumni)
	_, adminTok := e.member(models.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/users/stats", nil, tok).Code)
	w := e.do(http.MethodGet, "/api/users/stats", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[users.Stats](t, w)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Active)
}

func TestAdminManagesSingleNameFederatedUser(t *testing.T) {
	e := newEnv(t)
	_, adminTok := e.member(models.RoleAdmin)
	fed, err := e.users.UpsertFromClaims(context.Background(), map[string]interface{}{
		"sub": "idp|1", "email": "prince@example.com", "name": "Prince",
	})
	require.NoError(t, err)
	require.Empty(t, fed.LastName)

	w := e.do(http.MethodPatch, "/api/users/"+fed.ID+"/role", map[string]string{"role": models.RoleModerator}, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodDelete, "/api/users/"+fed.ID, nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodPatch, "/api/users/"+fed.ID+"/activate", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	u, err := e.users.Get(context.Background(), fed.ID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.Equal(t, models.RoleModerator, u.Role)
}
