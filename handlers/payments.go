package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/alumni-network/alumni-backend-system/pkg/httperr"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// PaymentRequest starts a payment. Amount is in minor units of Currency.
type PaymentRequest struct {
	Type        string `json:"type" binding:"required,oneof=donation membership event other"`
	CampaignID  string `json:"campaignId" binding:"omitempty,objectid"`
	EventID     string `json:"eventId" binding:"omitempty,objectid"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"omitempty,currency"`
	Method      string `json:"method" binding:"required,oneof=stripe hormuud zaad cash"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,phone"`
	Anonymous   bool   `json:"anonymous"`
	Note        string `json:"note" binding:"max=500"`
}

// CampaignRequest creates a campaign or partially updates one.
type CampaignRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	GoalAmount  *int64     `json:"goalAmount" binding:"omitempty,gt=0"`
	Currency    *string    `json:"currency" binding:"omitempty,currency"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

func (r CampaignRequest) input() payments.CampaignInput {
	return payments.CampaignInput{
		Title:       r.Title,
		Description: r.Description,
		GoalAmount:  r.GoalAmount,
		Currency:    r.Currency,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
	}
}

type PaymentsHandler struct {
	svc         *payments.Service
	idempotency gin.HandlerFunc
}

// NewPaymentsHandler wires the payment routes. idempotency guards payment
// creation and may be nil.
func NewPaymentsHandler(svc *payments.Service, idempotency gin.HandlerFunc) *PaymentsHandler {
	return &PaymentsHandler{svc: svc, idempotency: idempotency}
}

// Register routes under /payments and /campaigns
func (h *PaymentsHandler) Register(rg *gin.RouterGroup, g Guards) {
	p := rg.Group("/payments")
	p.POST("/webhooks/:provider", h.Webhook)
	p.GET("/methods", h.Methods)

	create := []gin.HandlerFunc{g.Auth}
	if h.idempotency != nil {
		create = append(create, h.idempotency)
	}
	p.POST("", append(create, h.Initiate)...)
	p.GET("", g.Auth, adminOnly, h.List)
	p.GET("/me", g.Auth, h.ListMine)
	p.GET("/stats", g.Auth, adminOnly, h.Stats)
	p.GET("/:id", g.Auth, h.Get)
	p.GET("/:id/receipt", g.Auth, h.Receipt)
	p.POST("/:id/refund", g.Auth, adminOnly, h.Refund)
	p.POST("/:id/cancel", g.Auth, h.Cancel)

	c := rg.Group("/campaigns")
	c.GET("", g.Optional, h.ListCampaigns)
	c.GET("/:id", h.GetCampaign)
	c.POST("", g.Auth, adminOnly, h.CreateCampaign)
	c.PUT("/:id", g.Auth, adminOnly, h.UpdateCampaign)
	c.PATCH("/:id/pause", g.Auth, adminOnly, h.campaignStatus(models.CampaignPaused))
	c.PATCH("/:id/resume", g.Auth, adminOnly, h.campaignStatus(models.CampaignActive))
	c.PATCH("/:id/complete", g.Auth, adminOnly, h.campaignStatus(models.CampaignCompleted))
	c.PATCH("/:id/close", g.Auth, adminOnly, h.campaignStatus(models.CampaignCancelled))
	c.DELETE("/:id", g.Auth, adminOnly, h.DeleteCampaign)
}

func (h *PaymentsHandler) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.svc.Methods()})
}

// Initiate answers 201 for accepted payments and 402 when the provider
// declined; both carry the payment.
func (h *PaymentsHandler) Initiate(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	res, err := h.svc.Initiate(c.Request.Context(), actor(c), payments.InitiateInput{
		Type:        req.Type,
		CampaignID:  req.CampaignID,
		EventID:     req.EventID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		PhoneNumber: req.PhoneNumber,
		Anonymous:   req.Anonymous,
		Note:        req.Note,
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}
	status := http.StatusCreated
	if res.Payment.Status == models.PaymentFailed {
		status = http.StatusPaymentRequired
	}
	c.JSON(status, res)
}

// Webhook receives provider callbacks. The raw body is needed for signature
// verification.
func (h *PaymentsHandler) Webhook(c *gin.Context) {
	method := c.Param("provider")
	header, ok := h.svc.SignatureHeader(method)
	if !ok {
		httperr.Write(c, fmt.Errorf("webhook provider %q: %w", method, models.ErrNotFound))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httperr.Write(c, models.NewValidationError("unreadable body"))
		return
	}
	if _, err := h.svc.HandleWebhook(c.Request.Context(), method, payload, c.GetHeader(header)); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *PaymentsHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func paymentFilter(c *gin.Context) (payments.Filter, error) {
	f := payments.Filter{
		UserID:     c.Query("userId"),
		CampaignID: c.Query("campaignId"),
		Status:     c.Query("status"),
		Method:     c.Query("method"),
		Type:       c.Query("type"),
	}
	var err error
	if f.From, err = queryDate(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

// queryDate accepts RFC 3339 timestamps or plain dates.
func queryDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, models.NewValidationError("invalid date",
		models.FieldError{Field: key, Message: key + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp"})
}

func (h *PaymentsHandler) List(c *gin.Context) {
	f, err := paymentFilter(c)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	page, err := h.svc.List(c.Request.Context(), f, pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PaymentsHandler) ListMine(c *gin.Context) {
	f, err := paymentFilter(c)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	page, err := h.svc.ListMine(c.Request.Context(), actor(c).ID, f, pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PaymentsHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *PaymentsHandler) Receipt(c *gin.Context) {
	url, err := h.svc.ReceiptURL(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *PaymentsHandler) Refund(c *gin.Context) {
	res, err := h.svc.Refund(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentsHandler) Cancel(c *gin.Context) {
	p, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListCampaigns shows active campaigns by default. Admins may filter by any
// status and include deleted ones.
func (h *PaymentsHandler) ListCampaigns(c *gin.Context) {
	status := c.Query("status")
	admin := actor(c).IsAdmin()
	if !admin && status == "" {
		status = models.CampaignActive
	}
	page, err := h.svc.ListCampaigns(c.Request.Context(), status, admin && c.Query("includeInactive") == "true", pagination(c))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PaymentsHandler) GetCampaign(c *gin.Context) {
	id := c.Param("id")
	camp, err := h.svc.GetCampaign(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if !camp.IsActive {
		httperr.Write(c, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"campaign":    camp,
		"progress":    camp.Progress(),
		"goalReached": camp.GoalReached(),
	})
}

func (h *PaymentsHandler) CreateCampaign(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	camp, err := h.svc.CreateCampaign(c.Request.Context(), req.input(), actor(c).ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, camp)
}

func (h *PaymentsHandler) UpdateCampaign(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Bind(c, err)
		return
	}
	camp, err := h.svc.UpdateCampaign(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h *PaymentsHandler) campaignStatus(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		camp, err := h.svc.SetCampaignStatus(c.Request.Context(), c.Param("id"), status)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, camp)
	}
}

func (h *PaymentsHandler) DeleteCampaign(c *gin.Context) {
	if err := h.svc.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "campaign deleted"})
}
