package service

import (
	"context"
	"fmt"

	"github.com/rongwang/intentmarket/internal/models"
)

func (s *DefaultService) ListMyPurchases(ctx context.Context, userID string) ([]models.Purchase, error) {
	return s.repo.ListPurchases(ctx, models.PurchaseFilter{UserID: userID})
}

func (s *DefaultService) GetPurchase(ctx context.Context, userID, purchaseID string) (*models.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.UserID != userID {
		return nil, fmt.Errorf("%w: purchase %s belongs to another user", models.ErrForbidden, purchaseID)
	}
	return purchase, nil
}

// CreatePurchase completes an intent, optionally through one of its offers.
// The intent and offer status changes happen in the same repository call.
func (s *DefaultService) CreatePurchase(ctx context.Context, userID string, req models.CreatePurchaseRequest) (*models.Purchase, error) {
	intent, err := s.repo.GetIntent(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if err := requireIntentOwner(userID, intent); err != nil {
		s.logRejected("purchase", "intent", intent.ID, userID, err)
		return nil, err
	}

	purchase := &models.Purchase{
		IntentID: intent.ID,
		UserID:   userID,
		Details:  req.Details.Clone(),
	}

	if req.OfferID != nil && *req.OfferID != "" {
		offer, err := s.repo.GetOffer(ctx, *req.OfferID)
		if err != nil {
			return nil, err
		}
		if offer.IntentID != intent.ID {
			return nil, fmt.Errorf("%w: offer %s is not for intent %s", models.ErrInvalidArgument, offer.ID, intent.ID)
		}
		offerID := offer.ID
		purchase.OfferID = &offerID
		purchase.Details = purchase.Details.FillFromOffer(*offer)
	}

	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		s.logRejected("purchase", "intent", intent.ID, userID, err)
		return nil, err
	}
	s.logger.LogAction("created", "purchase", purchase.ID, userID)
	return purchase, nil
}
