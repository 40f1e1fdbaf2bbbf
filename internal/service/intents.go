package service

import (
	"context"

	"github.com/rongwang/intentmarket/internal/models"
)

func (s *DefaultService) ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListIntents(ctx, filter)
}

func (s *DefaultService) ListMyIntents(ctx context.Context, userID string) ([]models.Intent, error) {
	return s.repo.ListIntents(ctx, models.IntentFilter{UserID: userID})
}

func (s *DefaultService) GetIntent(ctx context.Context, intentID string) (*models.Intent, error) {
	return s.repo.GetIntent(ctx, intentID)
}

func (s *DefaultService) CreateIntent(ctx context.Context, userID string, req models.CreateIntentRequest) (*models.Intent, error) {
	intent := req.ToIntent(userID)
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateIntent(ctx, &intent); err != nil {
		return nil, err
	}
	s.logger.LogAction("created", "intent", intent.ID, userID)
	return &intent, nil
}

func (s *DefaultService) UpdateIntent(ctx context.Context, userID, intentID string, patch models.IntentPatch) (*models.Intent, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := requireIntentOwner(userID, intent); err != nil {
		s.logRejected("update", "intent", intentID, userID, err)
		return nil, err
	}

	updated, err := s.repo.UpdateIntent(ctx, intentID, patch)
	if err != nil {
		s.logRejected("update", "intent", intentID, userID, err)
		return nil, err
	}
	s.logger.LogAction("updated", "intent", intentID, userID)
	return updated, nil
}

// DeleteIntent reports false without error when the intent does not exist
func (s *DefaultService) DeleteIntent(ctx context.Context, userID, intentID string) (bool, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := requireIntentOwner(userID, intent); err != nil {
		s.logRejected("delete", "intent", intentID, userID, err)
		return false, err
	}

	deleted, err := s.repo.DeleteIntent(ctx, intentID)
	if err != nil {
		s.logRejected("delete", "intent", intentID, userID, err)
		return false, err
	}
	if deleted {
		s.logger.LogAction("deleted", "intent", intentID, userID)
	}
	return deleted, nil
}
