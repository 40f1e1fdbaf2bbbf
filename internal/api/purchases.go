package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/models"
)

func (h *Handler) ListMyPurchases(c *gin.Context) {
	purchases, err := h.svc.ListMyPurchases(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchases)
}

func (h *Handler) GetPurchase(c *gin.Context) {
	purchase, err := h.svc.GetPurchase(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *Handler) CreatePurchase(c *gin.Context) {
	var req models.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	purchase, err := h.svc.CreatePurchase(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}
