package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/intentmarket/internal/metrics"
	"github.com/rongwang/intentmarket/internal/models"
)

const messageAck = "Message sent successfully"

// ListOffers requires the caller to be the filtered producer or to own the
// filtered intent.
func (s *DefaultService) ListOffers(ctx context.Context, userID string, filter models.OfferFilter) ([]models.Offer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	switch {
	case filter.ProducerID != "" && filter.ProducerID == userID:
	case filter.IntentID != "":
		intent, err := s.repo.GetIntent(ctx, filter.IntentID)
		if err != nil {
			return nil, err
		}
		if err := requireIntentOwner(userID, intent); err != nil {
			return nil, err
		}
	case filter.ProducerID != "":
		return nil, fmt.Errorf("%w: cannot list another producer's offers", models.ErrForbidden)
	default:
		return nil, fmt.Errorf("%w: intentId or producerId is required", models.ErrInvalidArgument)
	}
	return s.repo.ListOffers(ctx, filter)
}

func (s *DefaultService) ListIntentOffers(ctx context.Context, userID, intentID string) ([]models.Offer, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := requireIntentOwner(userID, intent); err != nil {
		return nil, err
	}
	return s.repo.ListOffers(ctx, models.OfferFilter{IntentID: intentID})
}

func (s *DefaultService) ListMyOffers(ctx context.Context, userID string) ([]models.Offer, error) {
	return s.repo.ListOffers(ctx, models.OfferFilter{ProducerID: userID})
}

// ListReceivedOffers returns the offers made on any of the caller's intents
func (s *DefaultService) ListReceivedOffers(ctx context.Context, userID string) ([]models.Offer, error) {
	intents, err := s.repo.ListIntents(ctx, models.IntentFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(intents))
	for _, i := range intents {
		ids = append(ids, i.ID)
	}
	return s.repo.ListOffers(ctx, models.OfferFilter{IntentIDs: ids})
}

func (s *DefaultService) CreateOffer(ctx context.Context, userID string, req models.CreateOfferRequest) (*models.Offer, error) {
	user, err := s.actor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(user, models.RoleProducer); err != nil {
		s.logRejected("create", "offer", req.IntentID, userID, err)
		return nil, err
	}

	intent, err := s.repo.GetIntent(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != models.IntentActive {
		return nil, fmt.Errorf("%w: intent %s is %s", models.ErrConflict, intent.ID, intent.Status)
	}

	offer := req.ToOffer(user.ID)
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateOffer(ctx, &offer); err != nil {
		return nil, err
	}
	s.logger.LogAction("created", "offer", offer.ID, userID)
	return &offer, nil
}

func (s *DefaultService) UpdateOffer(ctx context.Context, userID, offerID string, patch models.OfferPatch) (*models.Offer, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := requireOfferProducer(userID, offer); err != nil {
		s.logRejected("update", "offer", offerID, userID, err)
		return nil, err
	}

	updated, err := s.repo.UpdateOffer(ctx, offerID, patch)
	if err != nil {
		s.logRejected("update", "offer", offerID, userID, err)
		return nil, err
	}
	s.logger.LogAction("updated", "offer", offerID, userID)
	return updated, nil
}

// DeleteOffer reports false without error when the offer does not exist
func (s *DefaultService) DeleteOffer(ctx context.Context, userID, offerID string) (bool, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := requireOfferProducer(userID, offer); err != nil {
		s.logRejected("delete", "offer", offerID, userID, err)
		return false, err
	}

	deleted, err := s.repo.DeleteOffer(ctx, offerID)
	if err != nil {
		s.logRejected("delete", "offer", offerID, userID, err)
		return false, err
	}
	if deleted {
		s.logger.LogAction("deleted", "offer", offerID, userID)
	}
	return deleted, nil
}

func (s *DefaultService) AcceptOffer(ctx context.Context, userID, offerID string) (*models.Offer, error) {
	return s.decideOffer(ctx, userID, offerID, "accept", models.OfferAccepted, "")
}

func (s *DefaultService) DeclineOffer(ctx context.Context, userID, offerID, reason string) (*models.Offer, error) {
	return s.decideOffer(ctx, userID, offerID, "decline", models.OfferDeclined, strings.TrimSpace(reason))
}

// decideOffer moves a pending offer to accepted or declined on behalf of the
// intent owner. The repository performs the pending check atomically.
func (s *DefaultService) decideOffer(ctx context.Context, userID, offerID, action string, to models.OfferStatus, reason string) (_ *models.Offer, err error) {
	defer func() {
		metrics.RecordOfferDecision(action, outcome(err))
	}()

	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.offerIntentOwner(ctx, userID, offer); err != nil {
		s.logRejected(action, "offer", offerID, userID, err)
		return nil, err
	}

	updated, err := s.repo.TransitionOffer(ctx, offerID, to, reason, s.now())
	if err != nil {
		s.logRejected(action, "offer", offerID, userID, err)
		return nil, err
	}
	s.logger.LogAction(string(to), "offer", offerID, userID)
	return updated, nil
}

// SendOfferMessage validates and acknowledges a message about an offer.
// Messages are not stored or delivered.
func (s *DefaultService) SendOfferMessage(ctx context.Context, userID, offerID string, req models.MessageRequest) (*models.MessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", models.ErrInvalidArgument)
	}
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.ProducerID != userID {
		if _, err := s.offerIntentOwner(ctx, userID, offer); err != nil {
			s.logRejected("message", "offer", offerID, userID, err)
			return nil, err
		}
	}

	s.logger.LogAction("messaged", "offer", offerID, userID)
	return &models.MessageResponse{
		Success:   true,
		Message:   messageAck,
		Timestamp: s.now().UTC(),
	}, nil
}

// ExpireOffers moves every overdue pending offer to expired
func (s *DefaultService) ExpireOffers(ctx context.Context) (int, error) {
	n, err := s.repo.ExpireOffers(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired %d offers", n)
	}
	return n, nil
}
