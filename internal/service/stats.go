package service

import (
	"context"
	"fmt"

	"github.com/rongwang/intentmarket/internal/analytics"
	"github.com/rongwang/intentmarket/internal/models"
)

// MarketQuery selects the active intents the market analytics run over
type MarketQuery struct {
	Category  string
	Region    string
	Search    string
	Budget    analytics.BudgetBucket
	Timeframe analytics.TimeframeBucket
}

func (s *DefaultService) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	user, err := s.actor(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch user.Role {
	case models.RoleConsumer:
		stats, err := s.consumerStats(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &models.UserStats{Consumer: stats}, nil
	case models.RoleProducer:
		stats, err := s.producerStats(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &models.UserStats{Producer: stats}, nil
	default:
		return nil, fmt.Errorf("%w: invalid user type %q", models.ErrInvalidArgument, user.Role)
	}
}

// consumerStats counts pending offers on the consumer's active intents as new
func (s *DefaultService) consumerStats(ctx context.Context, userID string) (*models.ConsumerStats, error) {
	active, err := s.repo.ListIntents(ctx, models.IntentFilter{UserID: userID, Status: models.IntentActive})
	if err != nil {
		return nil, err
	}
	purchases, err := s.repo.ListPurchases(ctx, models.PurchaseFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(active))
	for _, i := range active {
		ids = append(ids, i.ID)
	}
	pending, err := s.repo.ListOffers(ctx, models.OfferFilter{IntentIDs: ids, Status: models.OfferPending})
	if err != nil {
		return nil, err
	}

	var savings float64
	for _, o := range pending {
		savings += o.Savings()
	}
	return &models.ConsumerStats{
		ActiveIntents:      len(active),
		NewOffers:          len(pending),
		CompletedPurchases: len(purchases),
		PotentialSavings:   savings,
	}, nil
}

func (s *DefaultService) producerStats(ctx context.Context, userID string) (*models.ProducerStats, error) {
	offers, err := s.repo.ListOffers(ctx, models.OfferFilter{ProducerID: userID})
	if err != nil {
		return nil, err
	}

	stats := &models.ProducerStats{TotalOffers: len(offers)}
	for _, o := range offers {
		switch o.Status {
		case models.OfferPending:
			stats.PendingOffers++
		case models.OfferAccepted:
			stats.AcceptedOffers++
		}
	}
	return stats, nil
}

func (s *DefaultService) GetMarketAnalytics(ctx context.Context, query MarketQuery) (*analytics.Summary, error) {
	budget, err := analytics.ParseBudgetBucket(string(query.Budget))
	if err != nil {
		return nil, err
	}
	timeframe, err := analytics.ParseTimeframeBucket(string(query.Timeframe))
	if err != nil {
		return nil, err
	}

	intents, err := s.repo.ListIntents(ctx, models.IntentFilter{
		Status:   models.IntentActive,
		Category: query.Category,
		Region:   query.Region,
		Search:   query.Search,
	})
	if err != nil {
		return nil, err
	}

	filtered := analytics.Filter{Budget: budget, Timeframe: timeframe}.Apply(intents)
	summary := analytics.Summarize(filtered)
	return &summary, nil
}
