package handlers

import (
	"net/http"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/jobs"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

// JobRequest creates a job posting or partially updates one.
type JobRequest struct {
	Title           *string        `json:"title"`
	Company         *string        `json:"company"`
	Description     *string        `json:"description"`
	Requirements    []string       `json:"requirements"`
	Location        *string        `json:"location"`
	Type            *string        `json:"type" binding:"omitempty,oneof=full-time part-time contract internship remote"`
	ExperienceLevel *string        `json:"experienceLevel" binding:"omitempty,oneof=entry mid senior executive"`
	Salary          *models.Salary `json:"salary"`
	ApplicationURL  *string        `json:"applicationUrl" binding:"omitempty,url"`
	ContactEmail    *string        `json:"contactEmail" binding:"omitempty,email"`
	Status          *string        `json:"status" binding:"omitempty,oneof=open closed filled"`
	Deadline        *time.Time     `json:"deadline"`
}

func (r JobRequest) input() jobs.Input {
	return jobs.Input{
		Title:           r.Title,
		Company:         r.Company,
		Description:     r.Description,
		Requirements:    r.Requirements,
		Location:        r.Location,
		Type:            r.Type,
		ExperienceLevel: r.ExperienceLevel,
		Salary:          r.Salary,
		ApplicationURL:  r.ApplicationURL,
		ContactEmail:    r.ContactEmail,
		Status:          r.Status,
		Deadline:        r.Deadline,
	}
}

type applyRequest struct {
	CoverLetter string `json:"coverLetter" binding:"max=5000"`
	ResumeURL   string `json:"resumeUrl" binding:"omitempty,url"`
}

type JobsHandler struct {
	svc *jobs.Service
}

func NewJobsHandler(svc *jobs.Service) *JobsHandler {
	return &JobsHandler{svc: svc}
}

// Register routes under /jobs. Any signed-in member may post and apply.
func (h *JobsHandler) Register(rg *gin.RouterGroup, g Guards) {
	j := rg.Group("/jobs")
	j.GET("", g.Optional, h.List)
	j.GET("/:id", g.Optional, h.Get)
	j.POST("", g.Auth, h.Create)
	j.PUT("/:id", g.Auth, h.Update)
	j.PATCH("/:id/close", g.Auth, h.Close)
	j.DELETE("/:id", g.Auth, h.Delete)
	j.POST("/:id/apply", g.Auth, h.Apply)
	j.GET("/:id/applications", g.Auth, h.Applications)
	j.PATCH("/:id/applications/:userId", g.Auth, h.SetApplicationStatus)
}

// List defaults to open postings; status=all lists every status.
func (h *JobsHandler) List(c *gin.Context) {
	f := jobs.Filter{
		Type:            c.Query("type"),
		ExperienceLevel: c.Query("experienceLevel"),
		Location:        c.Query("location"),
		Company:         c.Query("company"),
		Search:          c.Query("search"),
		Status:          c.Query("status"),
		PostedBy:        c.Query("postedBy"),
		IncludeInactive: actor(c).IsAdmin() && c.Query("includeInactive") == "true",
	}
	page, err := h.svc.List(c.Request.Context(), f, pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get hides applications from everyone but the poster and admins.
func (h *JobsHandler) Get(c *gin.Context) {
	j, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	a := actor(c)
	if !j.IsActive && !a.IsAdmin() {
		httperr.Write(c, models.ErrNotFound)
		return
	}
	if !a.CanManage(j.PostedBy) {
		j.Applications = nil
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobsHandler) Create(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	j, err := h.svc.Create(c.Request.Context(), req.input(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h *JobsHandler) Update(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	j, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.input(), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobsHandler) Close(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"omitempty,oneof=closed filled"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Bind(c, err)
			return
		}
	}
	j, err := h.svc.Close(c.Request.Context(), c.Param("id"), req.Status, actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job deleted"})
}

func (h *JobsHandler) Apply(c *gin.Context) {
	var req applyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Bind(c, err)
			return
		}
	}
	if _, err := h.svc.Apply(c.Request.Context(), c.Param("id"), actor(c).ID, jobs.ApplyInput{
		CoverLetter: req.CoverLetter,
		ResumeURL:   req.ResumeURL,
	}); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "application submitted"})
}

func (h *JobsHandler) Applications(c *gin.Context) {
	apps, err := h.svc.Applications(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if apps == nil {
		apps = []models.Application{}
	}
	c.JSON(http.StatusOK, gin.H{"items": apps, "total": len(apps)})
}

func (h *JobsHandler) SetApplicationStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	j, err := h.svc.SetApplicationStatus(c.Request.Context(), c.Param("id"), c.Param("userId"), req.Status, actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}
