package handlers

import (
	"net/http"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/notifications"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

// SendNotificationRequest is an admin message. Without recipients it is
// broadcast to every active user.
type SendNotificationRequest struct {
	Recipients []string          `json:"recipients" binding:"omitempty,dive,objectid"`
	Type       string            `json:"type" binding:"omitempty,oneof=announcement event payment job system message"`
	Title      string            `json:"title" binding:"required,max=200"`
	Message    string            `json:"message" binding:"required"`
	Link       string            `json:"link"`
	Data       map[string]string `json:"data"`
}

type NotificationsHandler struct {
	svc *notifications.Service
}

func NewNotificationsHandler(svc *notifications.Service) *NotificationsHandler {
	return &NotificationsHandler{svc: svc}
}

// Register routes under /notifications
func (h *NotificationsHandler) Register(rg *gin.RouterGroup, g Guards) {
	n := rg.Group("/notifications", g.Auth)
	n.GET("", h.List)
	n.GET("/unread-count", h.UnreadCount)
	n.PATCH("/read-all", h.MarkAllRead)
	n.PATCH("/:id/read", h.MarkRead)
	n.DELETE("/:id", h.Delete)
	n.POST("", adminOnly, h.Send)
}

func (h *NotificationsHandler) List(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), actor(c).ID, c.Query("unread") == "true", pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NotificationsHandler) UnreadCount(c *gin.Context) {
	n, err := h.svc.UnreadCount(c.Request.Context(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkRead(c.Request.Context(), c.Param("id"), actor(c).ID); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *NotificationsHandler) MarkAllRead(c *gin.Context) {
	n, err := h.svc.MarkAllRead(c.Request.Context(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *NotificationsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c).ID); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
}

func (h *NotificationsHandler) Send(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}
	tmpl := models.Notification{
		Sender:  actor(c).ID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Link:    req.Link,
		Data:    req.Data,
	}
	var (
		sent int
		err  error
	)
	if len(req.Recipients) > 0 {
		sent, err = h.svc.Broadcast(c.Request.Context(), req.Recipients, tmpl)
	} else {
		sent, err = h.svc.BroadcastAll(c.Request.Context(), tmpl)
	}
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sent": sent})
}
