package handlers

import (
	"fmt"
	"net/http"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/gin-gonic/gin"
)

type directoryQuery struct {
	Search          string `form:"search"`
	GraduationYear  int    `form:"graduationYear"`
	Major           string `form:"major"`
	Industry        string `form:"industry"`
	City            string `form:"city"`
	Country         string `form:"country"`
	Skills          string `form:"skills"`
	Role            string `form:"role"`
	SortBy          string `form:"sortBy"`
	Order           string `form:"order" binding:"omitempty,oneof=asc desc"`
	IncludeInactive bool   `form:"includeInactive"`
}

// UpdateUserRequest is a partial profile update. Absent fields are unchanged.
type UpdateUserRequest struct {
	FirstName      *string          `json:"firstName"`
	LastName       *string          `json:"lastName"`
	GraduationYear *int             `json:"graduationYear" binding:"omitempty,min=1900,max=2100"`
	Degree         *string          `json:"degree"`
	Major          *string          `json:"major"`
	StudentID      *string          `json:"studentId"`
	Phone          *string          `json:"phone" binding:"omitempty,phone"`
	Profile        *models.Profile  `json:"profile"`
	Location       *models.Location `json:"location"`
	Role           *string          `json:"role"`
	IsActive       *bool            `json:"isActive"`
	IsVerified     *bool            `json:"isVerified"`
}

type UsersHandler struct {
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	store       storage.ObjectStore
}

func NewUsersHandler(u *users.Service, s *sessions.Service, store storage.ObjectStore) *UsersHandler {
	return &UsersHandler{usersSvc: u, sessionsSvc: s, store: store}
}

// Register routes under /users. The directory is for signed-in members only.
func (h *UsersHandler) Register(rg *gin.RouterGroup, g Guards) {
	u := rg.Group("/users", g.Auth)
	u.GET("", h.Directory)
	u.GET("/stats", adminOnly, h.Stats)
	u.GET("/:id", h.Get)
	u.PUT("/:id", h.Update)
	u.DELETE("/:id", h.Delete)
	u.PATCH("/:id/activate", adminOnly, h.Activate)
	u.PATCH("/:id/role", adminOnly, h.SetRole)
	u.POST("/:id/avatar", h.UploadAvatar)
}

func (h *UsersHandler) Directory(c *gin.Context) {
	var q directoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httperr.Bind(c, err)
		return
	}
	f := users.Filter{
		Search:          q.Search,
		GraduationYear:  q.GraduationYear,
		Major:           q.Major,
		Industry:        q.Industry,
		City:            q.City,
		Country:         q.Country,
		Skills:          splitList(q.Skills),
		Role:            q.Role,
		IncludeInactive: q.IncludeInactive,
		SortBy:          q.SortBy,
		Order:           q.Order,
	}
	page, err := h.usersSvc.Directory(c.Request.Context(), f, pagination(c), actor(c).IsAdmin())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns a profile. Deactivated accounts are only visible to admins.
func (h *UsersHandler) Get(c *gin.Context) {
	id := c.Param("id")
	u, err := h.usersSvc.Get(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if !u.IsActive && !actor(c).IsAdmin() {
		httperr.Write(c, fmt.Errorf("user %s: %w", id, models.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Update(c *gin.Context) {
	id := c.Param("id")
	a := actor(c)
	if !a.CanManage(id) {
		httperr.Write(c, fmt.Errorf("cannot edit another member's profile: %w", models.ErrForbidden))
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	u, err := h.usersSvc.Update(c.Request.Context(), id, users.ProfileUpdate{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		GraduationYear: req.GraduationYear,
		Degree:         req.Degree,
		Major:          req.Major,
		StudentID:      req.StudentID,
		Phone:          req.Phone,
		Profile:        req.Profile,
		Location:       req.Location,
		Role:           req.Role,
		IsActive:       req.IsActive,
		IsVerified:     req.IsVerified,
	}, a.IsAdmin())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Delete deactivates the account and ends its sessions.
func (h *UsersHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !actor(c).CanManage(id) {
		httperr.Write(c, fmt.Errorf("cannot delete another member: %w", models.ErrForbidden))
		return
	}
	if _, err := h.usersSvc.SetActive(c.Request.Context(), id, false); err != nil {
		httperr.Write(c, err)
		return
	}
	if n, err := h.sessionsSvc.RevokeUser(c.Request.Context(), id); err != nil {
		logger.With("user", id).Warnf("revoking sessions: %v", err)
	} else if n > 0 {
		logger.With("user", id).Infof("revoked %d sessions", n)
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deactivated"})
}

func (h *UsersHandler) Activate(c *gin.Context) {
	u, err := h.usersSvc.SetActive(c.Request.Context(), c.Param("id"), true)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) SetRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required,oneof=alumni moderator admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	u, err := h.usersSvc.SetRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) UploadAvatar(c *gin.Context) {
	id := c.Param("id")
	if !actor(c).CanManage(id) {
		httperr.Write(c, fmt.Errorf("cannot change another member's avatar: %w", models.ErrForbidden))
		return
	}
	if _, err := h.usersSvc.Get(c.Request.Context(), id); err != nil {
		httperr.Write(c, err)
		return
	}
	url, err := uploadImage(c, h.store, "avatars/"+id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	u, err := h.usersSvc.SetAvatar(c.Request.Context(), id, url)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Stats(c *gin.Context) {
	stats, err := h.usersSvc.Stats(c.Request.Context())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
