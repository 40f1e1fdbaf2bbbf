package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/intentmarket/internal/models"
)

// actor loads the acting user. A token for a user that no longer exists is
// treated as unauthenticated.
func (s *DefaultService) actor(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", models.ErrUnauthenticated)
		}
		return nil, err
	}
	return user, nil
}

func requireRole(user *models.User, role models.Role) error {
	if user.Role != role {
		return fmt.Errorf("%w: only %ss may do this", models.ErrForbidden, role)
	}
	return nil
}

func requireIntentOwner(userID string, intent *models.Intent) error {
	if intent.UserID != userID {
		return fmt.Errorf("%w: intent %s belongs to another user", models.ErrForbidden, intent.ID)
	}
	return nil
}

func requireOfferProducer(userID string, offer *models.Offer) error {
	if offer.ProducerID != userID {
		return fmt.Errorf("%w: offer %s belongs to another producer", models.ErrForbidden, offer.ID)
	}
	return nil
}

// offerIntentOwner checks that userID owns the intent the offer responds to
func (s *DefaultService) offerIntentOwner(ctx context.Context, userID string, offer *models.Offer) (*models.Intent, error) {
	intent, err := s.repo.GetIntent(ctx, offer.IntentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: offer %s has no intent", models.ErrForbidden, offer.ID)
		}
		return nil, err
	}
	if err := requireIntentOwner(userID, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *DefaultService) logRejected(action, resourceType, resourceID, userID string, err error) {
	if errors.Is(err, models.ErrForbidden) || errors.Is(err, models.ErrConflict) {
		s.logger.WithFields(map[string]interface{}{
			resourceType + "_id": resourceID,
			"user_id":            userID,
			"action":             action,
		}).Warnf("%s rejected: %v", resourceType, err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// outcome labels an operation result for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
