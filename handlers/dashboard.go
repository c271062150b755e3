package handlers

import (
	"context"
	"net/http"

	"github.com/alumni-network/alumni-backend-system/internal/announcements"
	"github.com/alumni-network/alumni-backend-system/internal/events"
	"github.com/alumni-network/alumni-backend-system/internal/jobs"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

// Dashboard is the admin overview.
type Dashboard struct {
	Users                  users.Stats    `json:"users"`
	UpcomingEvents         int64          `json:"upcomingEvents"`
	OpenJobs               int64          `json:"openJobs"`
	PublishedAnnouncements int64          `json:"publishedAnnouncements"`
	Payments               payments.Stats `json:"payments"`
}

type DashboardHandler struct {
	users         *users.Service
	events        *events.Service
	jobs          *jobs.Service
	announcements *announcements.Service
	payments      *payments.Service
}

func NewDashboardHandler(u *users.Service, e *events.Service, j *jobs.Service, a *announcements.Service, p *payments.Service) *DashboardHandler {
	return &DashboardHandler{users: u, events: e, jobs: j, announcements: a, payments: p}
}

// Register routes under /admin
func (h *DashboardHandler) Register(rg *gin.RouterGroup, g Guards) {
	rg.GET("/admin/dashboard", g.Auth, adminOnly, h.Get)
}

func (h *DashboardHandler) Get(c *gin.Context) {
	d, err := h.collect(c.Request.Context())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DashboardHandler) collect(ctx context.Context) (*Dashboard, error) {
	var (
		d   Dashboard
		err error
	)
	if d.Users, err = h.users.Stats(ctx); err != nil {
		return nil, err
	}
	if d.UpcomingEvents, err = h.events.CountUpcoming(ctx); err != nil {
		return nil, err
	}
	if d.OpenJobs, err = h.jobs.CountOpen(ctx); err != nil {
		return nil, err
	}
	if d.PublishedAnnouncements, err = h.announcements.CountPublished(ctx); err != nil {
		return nil, err
	}
	if d.Payments, err = h.payments.Stats(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}
