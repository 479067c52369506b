package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vouch/internal/auth"
	"vouch/internal/bank"
	"vouch/internal/domain"
	"vouch/internal/notify"
	"vouch/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	links   service.LinkService
	reports service.ReportService
	tokens  *auth.Tokens
	hub     *notify.Hub
	logger  *logrus.Logger
}

func NewHandler(
	users service.UserService,
	links service.LinkService,
	reports service.ReportService,
	tokens *auth.Tokens,
	hub *notify.Hub,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		users:   users,
		links:   links,
		reports: reports,
		tokens:  tokens,
		hub:     hub,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.POST("/auth/refresh", RequireRefresh(h.tokens), h.refresh)

		api.POST("/webhook/bank", h.webhook)

		authed := api.Group("", RequireAccess(h.tokens))
		{
			authed.GET("/items", h.listItems)
			authed.POST("/link-token", h.createLinkToken)
			authed.POST("/reports", h.generateReport)
			authed.GET("/reports", h.listReports)
			authed.GET("/reports/:id", h.getReport)
			authed.GET("/reports/:id/artifact", h.getReportArtifact)
			authed.GET("/ws", h.subscribe)
		}

		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondSession(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondSession(c, http.StatusOK, user)
}

// refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is never rotated.
func (h *Handler) refresh(c *gin.Context) {
	identity := identityFrom(c)

	user, err := h.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	accessToken, err := h.tokens.IssueAccess(user)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

func (h *Handler) respondSession(c *gin.Context, status int, user *domain.User) {
	accessToken, err := h.tokens.IssueAccess(user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	refreshToken, err := h.tokens.IssueRefresh(user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(status, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userResponse{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

// webhook receives provider callbacks. Deliveries are acknowledged
// unconditionally so the provider never retries into an error loop; anything
// unprocessable is logged and dropped.
func (h *Handler) webhook(c *gin.Context) {
	ack := func() { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }

	userID := c.Query("userId")
	if userID == "" {
		h.logger.Warn("webhook delivery without userId, dropping")
		ack()
		return
	}

	var event service.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.logger.WithError(err).Warn("malformed webhook payload, dropping")
		ack()
		return
	}

	h.links.HandleWebhook(c.Request.Context(), userID, event)
	ack()
}

type itemResponse struct {
	ItemID          string            `json:"itemId"`
	InstitutionName string            `json:"institutionName"`
	LinkedAt        string            `json:"linkedAt"`
	Accounts        []itemAccountInfo `json:"accounts"`
}

type itemAccountInfo struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
}

func (h *Handler) listItems(c *gin.Context) {
	identity := identityFrom(c)

	items, err := h.links.ListItems(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]itemResponse, len(items))
	for i := range items {
		accounts := make([]itemAccountInfo, len(items[i].Accounts))
		for j, acc := range items[i].Accounts {
			accounts[j] = itemAccountInfo{
				AccountID: acc.AccountID,
				Name:      acc.Name,
				Mask:      acc.Mask,
				Type:      acc.Type,
				Subtype:   acc.Subtype,
			}
		}
		resp[i] = itemResponse{
			ItemID:          items[i].ItemID,
			InstitutionName: items[i].InstitutionName,
			LinkedAt:        items[i].LinkedAt.Format(time.RFC3339),
			Accounts:        accounts,
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": resp})
}

func (h *Handler) createLinkToken(c *gin.Context) {
	identity := identityFrom(c)

	result, err := h.links.CreateLinkToken(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"linkToken": result.LinkToken})
}

type generateReportRequest struct {
	Amount             decimal.Decimal `json:"amount"`
	ItemID             string          `json:"itemId"`
	AccountID          string          `json:"accountId"`
	RequesterName      string          `json:"requesterName"`
	AccountLabel       string          `json:"accountLabel"`
	Purpose            string          `json:"purpose"`
	IncludeAssetReport bool            `json:"includeAssetReport"`
}

type accountResponse struct {
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Mask      string          `json:"mask"`
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	BankName  string          `json:"bankName"`
	Available decimal.Decimal `json:"available"`
}

type reportResponse struct {
	ID               string          `json:"id"`
	RequestedAmount  decimal.Decimal `json:"requestedAmount"`
	Sufficient       bool            `json:"sufficient"`
	BankNames        []string        `json:"bankNames"`
	ItemID           string          `json:"itemId,omitempty"`
	AccountID        string          `json:"accountId,omitempty"`
	RequesterName    string          `json:"requesterName,omitempty"`
	AccountLabel     string          `json:"accountLabel,omitempty"`
	Purpose          string          `json:"purpose,omitempty"`
	ArtifactLocation string          `json:"artifactLocation,omitempty"`
	CreatedAt        string          `json:"createdAt"`
}

func (h *Handler) generateReport(c *gin.Context) {
	identity := identityFrom(c)

	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	result, err := h.reports.Generate(c.Request.Context(), identity.UserID, service.GenerateInput{
		Amount:             req.Amount,
		ItemID:             req.ItemID,
		AccountID:          req.AccountID,
		RequesterName:      req.RequesterName,
		AccountLabel:       req.AccountLabel,
		Purpose:            req.Purpose,
		IncludeAssetReport: req.IncludeAssetReport,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	accounts := make([]accountResponse, len(result.Aggregate.Accounts))
	for i, acc := range result.Aggregate.Accounts {
		accounts[i] = accountResponse{
			AccountID: acc.AccountID,
			Name:      acc.Name,
			Mask:      acc.Mask,
			Type:      acc.Type,
			Subtype:   acc.Subtype,
			BankName:  acc.BankName,
			Available: acc.Available,
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"reportId":        result.Report.ID,
		"sufficient":      result.Report.Sufficient,
		"requestedAmount": result.Report.RequestedAmount,
		"totalBalance":    result.Aggregate.TotalAvailable,
		"currency":        result.Aggregate.CurrencyOrDefault(),
		"bankNames":       result.Report.BankNames,
		"generatedAt":     result.Report.CreatedAt.Format(time.RFC3339),
		"accounts":        accounts,
		"report":          reportToResponse(result.Report),
	})
}

func (h *Handler) getReport(c *gin.Context) {
	identity := identityFrom(c)

	report, err := h.reports.Get(c.Request.Context(), identity.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reportToResponse(report))
}

func (h *Handler) getReportArtifact(c *gin.Context) {
	identity := identityFrom(c)

	url, err := h.reports.ArtifactURL(c.Request.Context(), identity.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) listReports(c *gin.Context) {
	identity := identityFrom(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	result, err := h.reports.List(c.Request.Context(), identity.UserID, page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}

	reports := make([]reportResponse, len(result.Reports))
	for i := range result.Reports {
		reports[i] = reportToResponse(&result.Reports[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"reports":    reports,
		"total":      result.Total,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalPages": result.TotalPages,
	})
}

func (h *Handler) subscribe(c *gin.Context) {
	identity := identityFrom(c)

	if err := h.hub.Subscribe(c.Writer, c.Request, identity.UserID); err != nil {
		h.logger.WithError(err).Debug("websocket session ended")
	}
}

func reportToResponse(report *domain.Report) reportResponse {
	return reportResponse{
		ID:               report.ID,
		RequestedAmount:  report.RequestedAmount,
		Sufficient:       report.Sufficient,
		BankNames:        report.BankNames,
		ItemID:           report.ItemRef,
		AccountID:        report.AccountID,
		RequesterName:    report.RequesterName,
		AccountLabel:     report.AccountLabel,
		Purpose:          report.Purpose,
		ArtifactLocation: report.ArtifactLocation,
		CreatedAt:        report.CreatedAt.Format(time.RFC3339),
	}
}

// respondError translates service and domain errors into the API error
// envelope. Provider errors surface their safe display message, never the
// raw upstream detail.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS", "message": "invalid email or password"})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "USER_EXISTS", "message": "an account with this email already exists"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "FORBIDDEN", "message": "you do not have access to this resource"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "resource not found"})
	case errors.Is(err, domain.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "TIMEOUT", "message": "the report was not ready in time, please try again"})
	default:
		var bankErr *bank.Error
		if errors.As(err, &bankErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": bankErr.Code, "message": bank.DisplayMessage(err)})
			return
		}
		h.logger.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "internal server error"})
	}
}
