package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rongwang/intentmarket/internal/analytics"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/rongwang/intentmarket/internal/service"
)

// intentFilterFrom reads the intent list filter from the query string
func intentFilterFrom(c *gin.Context) (models.IntentFilter, error) {
	filter := models.IntentFilter{
		Status:   models.IntentStatus(c.Query("status")),
		Category: c.Query("category"),
		Region:   c.Query("region"),
		Search:   c.Query("search"),
	}

	min, err := models.ParseAmount("budgetMin", c.Query("budgetMin"))
	if err != nil {
		return models.IntentFilter{}, err
	}
	max, err := models.ParseAmount("budgetMax", c.Query("budgetMax"))
	if err != nil {
		return models.IntentFilter{}, err
	}
	if min != nil || max != nil {
		filter.Budget = &models.BudgetRange{Min: min, Max: max}
	}
	return filter, filter.Validate()
}

func offerFilterFrom(c *gin.Context) models.OfferFilter {
	return models.OfferFilter{
		IntentID:   c.Query("intentId"),
		ProducerID: c.Query("producerId"),
		Status:     models.OfferStatus(c.Query("status")),
	}
}

func marketQueryFrom(c *gin.Context) service.MarketQuery {
	return service.MarketQuery{
		Category:  c.Query("category"),
		Region:    c.Query("region"),
		Search:    c.Query("search"),
		Budget:    analytics.BudgetBucket(c.Query("budgetFilter")),
		Timeframe: analytics.TimeframeBucket(c.Query("timeframeFilter")),
	}
}
