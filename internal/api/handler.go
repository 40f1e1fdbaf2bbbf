package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/metrics"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/rongwang/intentmarket/internal/service"
	"github.com/rongwang/intentmarket/internal/utils"
)

// Handler exposes the service over HTTP
type Handler struct {
	svc     service.Service
	logger  *utils.Logger
	limiter *RateLimiter
}

// NewHandler creates a new Handler
func NewHandler(svc service.Service, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

// WithRateLimiter limits every /api route through rl
func (h *Handler) WithRateLimiter(rl *RateLimiter) *Handler {
	h.limiter = rl
	return h
}

// SetupRoutes registers every route on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Authenticated requests are limited per user, the rest per client IP
	var limit []gin.HandlerFunc
	if h.limiter != nil {
		limit = append(limit, h.limiter.Middleware())
	}
	api := router.Group("/api")

	// Public routes
	public := api.Group("", limit...)
	public.POST("/auth/signup", h.SignUp)
	public.POST("/auth/login", h.Login)
	public.GET("/market/analytics", h.GetMarketAnalytics)

	// Authenticated routes
	authed := api.Group("", append([]gin.HandlerFunc{AuthMiddleware()}, limit...)...)

	authed.GET("/user", h.GetCurrentUser)
	authed.GET("/user/intents", h.ListMyIntents)
	authed.GET("/user/offers", h.ListMyOffers)
	authed.GET("/user/received-offers", h.ListReceivedOffers)
	authed.GET("/user/purchases", h.ListMyPurchases)
	authed.GET("/user/stats", h.GetUserStats)

	authed.GET("/intents", h.ListIntents)
	authed.POST("/intents", h.CreateIntent)
	authed.GET("/intents/:id", h.GetIntent)
	authed.PATCH("/intents/:id", h.UpdateIntent)
	authed.DELETE("/intents/:id", h.DeleteIntent)
	authed.GET("/intents/:id/offers", h.ListIntentOffers)

	authed.GET("/offers", h.ListOffers)
	authed.POST("/offers", h.CreateOffer)
	authed.PATCH("/offers/:id", h.UpdateOffer)
	authed.DELETE("/offers/:id", h.DeleteOffer)
	authed.PATCH("/offers/:id/accept", h.AcceptOffer)
	authed.PATCH("/offers/:id/decline", h.DeclineOffer)
	authed.POST("/offers/:id/message", h.SendOfferMessage)

	authed.POST("/purchases", h.CreatePurchase)
	authed.GET("/purchases/:id", h.GetPurchase)
}

// Health reports whether the store is reachable
func (h *Handler) Health(c *gin.Context) {
	if err := h.svc.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "error", Store: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Store: "ok"})
}

// Authentication handlers
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.svc.GetUser(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) GetUserStats(c *gin.Context) {
	stats, err := h.svc.GetUserStats(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if stats.Consumer != nil {
		c.JSON(http.StatusOK, stats.Consumer)
		return
	}
	c.JSON(http.StatusOK, stats.Producer)
}

func (h *Handler) GetMarketAnalytics(c *gin.Context) {
	summary, err := h.svc.GetMarketAnalytics(c.Request.Context(), marketQueryFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
