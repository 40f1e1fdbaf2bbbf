package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/models"
)

func (h *Handler) ListIntents(c *gin.Context) {
	filter, err := intentFilterFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	intents, err := h.svc.ListIntents(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intents)
}

func (h *Handler) ListMyIntents(c *gin.Context) {
	intents, err := h.svc.ListMyIntents(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intents)
}

func (h *Handler) GetIntent(c *gin.Context) {
	intent, err := h.svc.GetIntent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	intent, err := h.svc.CreateIntent(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

func (h *Handler) UpdateIntent(c *gin.Context) {
	var patch models.IntentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBadRequest(c, err)
		return
	}

	intent, err := h.svc.UpdateIntent(c.Request.Context(), c.GetString("userId"), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) DeleteIntent(c *gin.Context) {
	deleted, err := h.svc.DeleteIntent(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !deleted {
		respondNotFound(c, "Intent not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListIntentOffers(c *gin.Context) {
	offers, err := h.svc.ListIntentOffers(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}
