package handlers

import (
	"net/http"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/announcements"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

// AnnouncementRequest creates an announcement or partially updates one.
type AnnouncementRequest struct {
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	Category  *string    `json:"category" binding:"omitempty,oneof=general news achievement job event urgent"`
	Priority  *string    `json:"priority" binding:"omitempty,oneof=low medium high"`
	IsPinned  *bool      `json:"isPinned"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (r AnnouncementRequest) input() announcements.Input {
	return announcements.Input{
		Title:     r.Title,
		Content:   r.Content,
		Category:  r.Category,
		Priority:  r.Priority,
		IsPinned:  r.IsPinned,
		ExpiresAt: r.ExpiresAt,
	}
}

type AnnouncementsHandler struct {
	svc *announcements.Service
}

func NewAnnouncementsHandler(svc *announcements.Service) *AnnouncementsHandler {
	return &AnnouncementsHandler{svc: svc}
}

// Register routes under /announcements
func (h *AnnouncementsHandler) Register(rg *gin.RouterGroup, g Guards) {
	a := rg.Group("/announcements")
	a.GET("", g.Optional, h.List)
	a.GET("/:id", g.Optional, h.Get)
	a.POST("", g.Auth, staffOnly, h.Create)
	a.PUT("/:id", g.Auth, staffOnly, h.Update)
	a.DELETE("/:id", g.Auth, staffOnly, h.Delete)
	a.PATCH("/:id/publish", g.Auth, staffOnly, h.Publish)
	a.PATCH("/:id/archive", g.Auth, staffOnly, h.Archive)
	a.PATCH("/:id/pin", g.Auth, staffOnly, h.TogglePin)
	a.POST("/:id/like", g.Auth, h.Like)
	a.DELETE("/:id/like", g.Auth, h.Unlike)
}

// List serves the public feed. Staff see every status and may filter by it.
func (h *AnnouncementsHandler) List(c *gin.Context) {
	f := announcements.Filter{
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	}
	page, err := h.svc.List(c.Request.Context(), f, pagination(c), actor(c).IsStaff())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AnnouncementsHandler) Get(c *gin.Context) {
	a, err := h.svc.View(c.Request.Context(), c.Param("id"), actor(c).IsStaff())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) Create(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	a, err := h.svc.Create(c.Request.Context(), req.input(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *AnnouncementsHandler) Update(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	a, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "announcement deleted"})
}

func (h *AnnouncementsHandler) Publish(c *gin.Context) {
	a, err := h.svc.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) Archive(c *gin.Context) {
	a, err := h.svc.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) TogglePin(c *gin.Context) {
	a, err := h.svc.TogglePin(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) Like(c *gin.Context) {
	a, err := h.svc.Like(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementsHandler) Unlike(c *gin.Context) {
	a, err := h.svc.Unlike(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
