package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/models"
)

func (h *Handler) ListOffers(c *gin.Context) {
	offers, err := h.svc.ListOffers(c.Request.Context(), c.GetString("userId"), offerFilterFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

func (h *Handler) ListMyOffers(c *gin.Context) {
	offers, err := h.svc.ListMyOffers(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

func (h *Handler) ListReceivedOffers(c *gin.Context) {
	offers, err := h.svc.ListReceivedOffers(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

func (h *Handler) CreateOffer(c *gin.Context) {
	var req models.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	offer, err := h.svc.CreateOffer(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

func (h *Handler) UpdateOffer(c *gin.Context) {
	var patch models.OfferPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBadRequest(c, err)
		return
	}

	offer, err := h.svc.UpdateOffer(c.Request.Context(), c.GetString("userId"), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *Handler) DeleteOffer(c *gin.Context) {
	deleted, err := h.svc.DeleteOffer(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !deleted {
		respondNotFound(c, "Offer not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AcceptOffer(c *gin.Context) {
	offer, err := h.svc.AcceptOffer(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// DeclineOffer accepts an optional {"reason": "..."} body
func (h *Handler) DeclineOffer(c *gin.Context) {
	var req models.DeclineOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, err)
		return
	}

	offer, err := h.svc.DeclineOffer(c.Request.Context(), c.GetString("userId"), c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *Handler) SendOfferMessage(c *gin.Context) {
	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.svc.SendOfferMessage(c.Request.Context(), c.GetString("userId"), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
