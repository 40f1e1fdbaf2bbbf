package repository

import (
	"context"
	"time"

	"github.com/rongwang/intentmarket/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy.
// Lookups of unknown ids return models.ErrNotFound; illegal state changes return
// models.ErrConflict.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// Intent operations
	ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error)
	GetIntent(ctx context.Context, id string) (*models.Intent, error)
	CreateIntent(ctx context.Context, intent *models.Intent) error
	UpdateIntent(ctx context.Context, id string, patch models.IntentPatch) (*models.Intent, error)
	DeleteIntent(ctx context.Context, id string) (bool, error)

	// Offer operations
	ListOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error)
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	CreateOffer(ctx context.Context, offer *models.Offer) error
	UpdateOffer(ctx context.Context, id string, patch models.OfferPatch) (*models.Offer, error)
	DeleteOffer(ctx context.Context, id string) (bool, error)
	// TransitionOffer moves a pending, unexpired offer to a terminal status.
	// It is a compare-and-set: concurrent callers see exactly one winner.
	TransitionOffer(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error)
	ExpireOffers(ctx context.Context, now time.Time) (int, error)

	// Purchase operations
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	// CreatePurchase records the purchase, completes the intent and accepts the
	// referenced offer in one atomic step.
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error

	Ping(ctx context.Context) error
}
