package handlers

import (
	"net/http"
	"testing"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminDashboard(t *testing.T) {
	e := newEnv(t)
	_, tok := e.member(models.RoleAlumni)
	_, modTok := e.member(models.RoleModerator)
	_, adminTok := e.member(models.RoleAdmin)

	e.publishedEvent(modTok, 0)
	e.openJob(tok)
	a := e.draftAnnouncement(modTok, "Newsletter")
	e.draftAnnouncement(modTok, "Still a draft")
	require.Equal(t, http.StatusOK, e.do(http.MethodPatch, "/api/announcements/"+a.ID+"/publish", nil, modTok).Code)
	camp := e.campaign(adminTok, 10000)
	w := e.do(http.MethodPost, "/api/payments", PaymentRequest{
		Type: models.PaymentDonation, CampaignID: camp.ID, Amount: 2000, Method: models.MethodCash,
	}, adminTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/dashboard", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/dashboard", nil, modTok).Code)

	w = e.do(http.MethodGet, "/api/admin/dashboard", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode[Dashboard](t, w)
	assert.Equal(t, int64(3), d.Users.Total)
	assert.Equal(t, int64(1), d.Users.ByRole[models.RoleAdmin])
	assert.Equal(t, int64(1), d.UpcomingEvents)
	assert.Equal(t, int64(1), d.OpenJobs)
	assert.Equal(t, int64(1), d.PublishedAnnouncements)
	require.Len(t, d.Payments.Completed, 1)
	assert.Equal(t, "usd", d.Payments.Completed[0].Currency)
	assert.Equal(t, int64(2000), d.Payments.Completed[0].Amount)
}
