package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/events"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

// EventRequest creates an event or partially updates one.
type EventRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Type        *string               `json:"type" binding:"omitempty,oneof=reunion networking workshop webinar social fundraiser other"`
	StartDate   *time.Time            `json:"startDate"`
	EndDate     *time.Time            `json:"endDate"`
	Location    *models.EventLocation `json:"location"`
	Capacity    *int                  `json:"capacity" binding:"omitempty,min=0"`
	Status      *string               `json:"status" binding:"omitempty,oneof=draft published cancelled completed"`
	Tags        []string              `json:"tags"`
}

func (r EventRequest) input() events.Input {
	return events.Input{
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Location:    r.Location,
		Capacity:    r.Capacity,
		Status:      r.Status,
		Tags:        r.Tags,
	}
}

type EventsHandler struct {
	svc   *events.Service
	store storage.ObjectStore
}

func NewEventsHandler(svc *events.Service, store storage.ObjectStore) *EventsHandler {
	return &EventsHandler{svc: svc, store: store}
}

// Register routes under /events. Reads are public; drafts are staff-only.
func (h *EventsHandler) Register(rg *gin.RouterGroup, g Guards) {
	e := rg.Group("/events")
	e.GET("", g.Optional, h.List)
	e.GET("/:id", g.Optional, h.Get)
	e.POST("", g.Auth, staffOnly, h.Create)
	e.PUT("/:id", g.Auth, staffOnly, h.Update)
	e.DELETE("/:id", g.Auth, staffOnly, h.Delete)
	e.POST("/:id/image", g.Auth, staffOnly, h.UploadImage)
	e.POST("/:id/register", g.Auth, h.RegisterAttendee)
	e.DELETE("/:id/register", g.Auth, h.CancelRegistration)
	e.PATCH("/:id/attendees/:userId", g.Auth, adminOnly, h.MarkAttended)
}

func (h *EventsHandler) List(c *gin.Context) {
	staff := actor(c).IsStaff()
	f := events.Filter{
		Type:            c.Query("type"),
		Status:          c.Query("status"),
		Search:          c.Query("search"),
		Tag:             c.Query("tag"),
		IncludeInactive: staff && c.Query("includeInactive") == "true",
	}
	if v := c.Query("upcoming"); v != "" {
		upcoming, err := strconv.ParseBool(v)
		if err != nil {
			httperr.Write(c, models.NewValidationError("invalid upcoming",
				models.FieldError{Field: "upcoming", Message: "upcoming must be true or false"}))
			return
		}
		f.Upcoming = &upcoming
	}
	if !staff && (f.Status == "" || f.Status == models.EventDraft) {
		f.Status = models.EventPublished
	}
	page, err := h.svc.List(c.Request.Context(), f, pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *EventsHandler) Get(c *gin.Context) {
	id := c.Param("id")
	e, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if !actor(c).IsStaff() && (!e.IsActive || e.Status == models.EventDraft) {
		httperr.Write(c, fmt.Errorf("event %s: %w", id, models.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EventsHandler) Create(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	e, err := h.svc.Create(c.Request.Context(), req.input(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *EventsHandler) Update(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	e, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EventsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

func (h *EventsHandler) UploadImage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		httperr.Write(c, err)
		return
	}
	url, err := uploadImage(c, h.store, "events/"+id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	e, err := h.svc.SetImage(c.Request.Context(), id, url)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EventsHandler) RegisterAttendee(c *gin.Context) {
	e, err := h.svc.Register(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EventsHandler) CancelRegistration(c *gin.Context) {
	e, err := h.svc.CancelRegistration(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EventsHandler) MarkAttended(c *gin.Context) {
	e, err := h.svc.MarkAttended(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
