package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	_ "github.com/vendalink/channel-service/docs"
	conversationRepo "github.com/vendalink/channel-service/internal/repository/conversation"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
	notificationRepo "github.com/vendalink/channel-service/internal/repository/notification"
	"github.com/vendalink/channel-service/internal/service"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// WebhookProcessor ingests one raw provider callback body.
type WebhookProcessor interface {
	Process(ctx context.Context, body []byte) error
}

type Handler struct {
	pipeline      WebhookProcessor
	lifecycle     *service.Lifecycle
	supervisor    *service.Supervisor
	router        *service.Router
	conversations conversationRepo.Repository
	notifications notificationRepo.Repository
	server        *http.Server
}

// @title Channel Service API
// @version 1.0
// @description WhatsApp channel integration engine for the CRM
// @host localhost:8080
// @BasePath /
func NewHttpHandler(
	addr string,
	pipeline WebhookProcessor,
	lifecycle *service.Lifecycle,
	supervisor *service.Supervisor,
	convRouter *service.Router,
	conversations conversationRepo.Repository,
	notifications notificationRepo.Repository,
) *Handler {
	h := &Handler{
		pipeline:      pipeline,
		lifecycle:     lifecycle,
		supervisor:    supervisor,
		router:        convRouter,
		conversations: conversations,
		notifications: notifications,
	}

	// create router
	router := gin.Default()

	// register routes
	router.POST("/webhook", h.webhook)

	api := router.Group("/api")
	api.POST("/tenants/:tenantId/channel/connect", h.connectChannel)
	api.GET("/tenants/:tenantId/channel", h.channelStatus)
	api.POST("/tenants/:tenantId/channel/reconnect", h.reconnectChannel)
	api.DELETE("/tenants/:tenantId/channel", h.disconnectChannel)
	api.POST("/tenants/:tenantId/channel/send", h.sendText)
	api.GET("/tenants/:tenantId/channel/chats", h.listChats)
	api.GET("/tenants/:tenantId/channel/chats/:remoteId/messages", h.listChatMessages)
	api.GET("/leads/:leadId/messages", h.listLeadMessages)
	api.GET("/agents/:agentId/notifications", h.listNotifications)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// create http server
	h.server = &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	return h
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Webhook godoc
// @Summary Receive a provider callback
// @Description Accepts any provider event and acknowledges once the envelope parses
// @Tags Webhook
// @Accept json
// @Success 200 {object} map[string]bool
// @Failure 500 {object} map[string]bool
// @Router /webhook [post]
func (h *Handler) webhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	if err := h.pipeline.Process(c.Request.Context(), raw); err != nil {
		// Only an envelope parse failure lands here; downstream effects never
		// fail the acknowledgment.
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type connectChannelReq struct {
	TenantName string `json:"tenant_name" binding:"required"`
}

// ConnectChannel godoc
// @Summary Provision a channel instance for a tenant
// @Tags Channel
// @Accept json
// @Param tenantId path int true "Tenant ID"
// @Success 200 {object} domain.ChannelInstance
// @Failure 400
// @Failure 502
// @Router /api/tenants/{tenantId}/channel/connect [post]
func (h *Handler) connectChannel(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req connectChannelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := h.lifecycle.Provision(c.Request.Context(), tenantID, req.TenantName)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	h.supervisor.Start(tenantID, req.TenantName)

	c.JSON(http.StatusOK, inst)
}

// ChannelStatus godoc
// @Summary Get the tenant's channel status and pairing code
// @Tags Channel
// @Param tenantId path int true "Tenant ID"
// @Success 200 {object} domain.ChannelInstance
// @Failure 404
// @Router /api/tenants/{tenantId}/channel [get]
func (h *Handler) channelStatus(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	inst, err := h.lifecycle.Status(tenantID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, inst)
}

// ReconnectChannel godoc
// @Summary Reset the reconnect retry counter and resume recovery
// @Tags Channel
// @Param tenantId path int true "Tenant ID"
// @Success 200 {object} map[string]bool
// @Failure 404
// @Router /api/tenants/{tenantId}/channel/reconnect [post]
func (h *Handler) reconnectChannel(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	inst, err := h.lifecycle.Status(tenantID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.supervisor.Start(tenantID, inst.InstanceName)
	h.supervisor.ResetRetry(tenantID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DisconnectChannel godoc
// @Summary Delete the provider instance and stop supervision
// @Tags Channel
// @Param tenantId path int true "Tenant ID"
// @Param purge query bool false "Also remove the stored instance row"
// @Success 200 {object} map[string]bool
// @Failure 404
// @Router /api/tenants/{tenantId}/channel [delete]
func (h *Handler) disconnectChannel(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	h.supervisor.Stop(tenantID)

	disconnect := h.lifecycle.Disconnect
	if c.Query("purge") == "true" {
		disconnect = h.lifecycle.Purge
	}

	if err := disconnect(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sendTextReq struct {
	To   string `json:"to" binding:"required"`
	Body string `json:"body" binding:"required"`
}

// SendText godoc
// @Summary Send an outbound text message through the tenant's channel
// @Tags Messages
// @Accept json
// @Param tenantId path int true "Tenant ID"
// @Success 200 {object} map[string]bool
// @Failure 400
// @Failure 404
// @Failure 502
// @Router /api/tenants/{tenantId}/channel/send [post]
func (h *Handler) sendText(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	var req sendTextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.router.SendText(c.Request.Context(), tenantID, req.To, req.Body)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !sent {
		c.JSON(http.StatusBadGateway, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListChats godoc
// @Summary List provider chats for the tenant's instance
// @Tags Chats
// @Param tenantId path int true "Tenant ID"
// @Success 200 {array} evolution.Chat
// @Failure 404
// @Router /api/tenants/{tenantId}/channel/chats [get]
func (h *Handler) listChats(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	chats, err := h.lifecycle.ListChats(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chats)
}

// ListChatMessages godoc
// @Summary List provider-native messages for one chat
// @Tags Chats
// @Param tenantId path int true "Tenant ID"
// @Param remoteId path string true "Remote chat ID"
// @Success 200
// @Failure 404
// @Router /api/tenants/{tenantId}/channel/chats/{remoteId}/messages [get]
func (h *Handler) listChatMessages(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}

	raw, err := h.lifecycle.ListMessages(c.Request.Context(), tenantID, c.Param("remoteId"))
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no channel instance for tenant"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// ListLeadMessages godoc
// @Summary List logged messages for a lead
// @Tags Messages
// @Param leadId path int true "Lead ID"
// @Success 200 {array} domain.Message
// @Router /api/leads/{leadId}/messages [get]
func (h *Handler) listLeadMessages(c *gin.Context) {
	leadID, err := strconv.ParseInt(c.Param("leadId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.conversations.ListMessagesByLead(leadID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// ListNotifications godoc
// @Summary List notifications for an agent
// @Tags Notifications
// @Param agentId path int true "Agent ID"
// @Param unread query bool false "Only unread"
// @Success 200 {array} domain.Notification
// @Router /api/agents/{agentId}/notifications [get]
func (h *Handler) listNotifications(c *gin.Context) {
	agentID, err := strconv.ParseInt(c.Param("agentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
		return
	}

	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.ListByAgent(agentID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, notifications)
}

func tenantParam(c *gin.Context) (int64, bool) {
	tenantID, err := strconv.ParseInt(c.Param("tenantId"), 10, 64)
	if err != nil || tenantID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return 0, false
	}
	return tenantID, true
}
