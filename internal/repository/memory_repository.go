package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/intentmarket/internal/models"
)

// MemoryRepository implements the Repository interface with maps guarded by a mutex.
// Every value handed out is a copy.
type MemoryRepository struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[string]models.User
	intents   map[string]models.Intent
	offers    map[string]models.Offer
	purchases map[string]models.Purchase
}

// MemoryOption configures a MemoryRepository
type MemoryOption func(*MemoryRepository)

// WithClock overrides the time source used for generated timestamps
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		r.now = now
	}
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		now:       time.Now,
		users:     make(map[string]models.User),
		intents:   make(map[string]models.Intent),
		offers:    make(map[string]models.Offer),
		purchases: make(map[string]models.Purchase),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// User repository methods
func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username %q already taken", models.ErrConflict, user.Username)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = r.now().UTC()
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return &u, nil
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, username)
}

// Intent repository methods
func (r *MemoryRepository) ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	intents := make([]models.Intent, 0, len(r.intents))
	for _, i := range r.intents {
		if filter.Matches(i) {
			intents = append(intents, i.Clone())
		}
	}
	models.SortIntents(intents)
	return intents, nil
}

func (r *MemoryRepository) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", models.ErrNotFound, id)
	}
	out := i.Clone()
	return &out, nil
}

func (r *MemoryRepository) CreateIntent(ctx context.Context, intent *models.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if _, exists := r.intents[intent.ID]; exists {
		return fmt.Errorf("%w: intent %s already exists", models.ErrConflict, intent.ID)
	}
	intent.Status = models.IntentActive
	intent.CreatedAt = r.now().UTC()
	*intent = intent.Clone()
	r.intents[intent.ID] = intent.Clone()
	return nil
}

func (r *MemoryRepository) UpdateIntent(ctx context.Context, id string, patch models.IntentPatch) (*models.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", models.ErrNotFound, id)
	}
	if current.Status != models.IntentActive {
		return nil, fmt.Errorf("%w: intent %s is %s", models.ErrConflict, id, current.Status)
	}
	updated := current.Apply(patch)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	r.intents[id] = updated
	out := updated.Clone()
	return &out, nil
}

func (r *MemoryRepository) DeleteIntent(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.intents[id]; !ok {
		return false, nil
	}
	for _, o := range r.offers {
		if o.IntentID == id {
			return false, fmt.Errorf("%w: intent %s has offers", models.ErrConflict, id)
		}
	}
	for _, p := range r.purchases {
		if p.IntentID == id {
			return false, fmt.Errorf("%w: intent %s has purchases", models.ErrConflict, id)
		}
	}
	delete(r.intents, id)
	return true, nil
}

// Offer repository methods
func (r *MemoryRepository) ListOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	offers := make([]models.Offer, 0)
	for _, o := range r.offers {
		if filter.Matches(o) {
			offers = append(offers, o.Clone())
		}
	}
	models.SortOffers(offers)
	return offers, nil
}

func (r *MemoryRepository) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
	}
	out := o.Clone()
	return &out, nil
}

func (r *MemoryRepository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[offer.IntentID]
	if !ok {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, offer.IntentID)
	}
	if intent.Status != models.IntentActive {
		return fmt.Errorf("%w: intent %s is %s", models.ErrConflict, intent.ID, intent.Status)
	}
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	if _, exists := r.offers[offer.ID]; exists {
		return fmt.Errorf("%w: offer %s already exists", models.ErrConflict, offer.ID)
	}
	offer.Status = models.OfferPending
	offer.DecidedAt = nil
	offer.DeclineReason = ""
	offer.CreatedAt = r.now().UTC()
	r.offers[offer.ID] = offer.Clone()
	return nil
}

func (r *MemoryRepository) UpdateOffer(ctx context.Context, id string, patch models.OfferPatch) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
	}
	if current.Status != models.OfferPending {
		return nil, fmt.Errorf("%w: offer %s is %s", models.ErrConflict, id, current.Status)
	}
	updated := current.Apply(patch)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	r.offers[id] = updated
	out := updated.Clone()
	return &out, nil
}

func (r *MemoryRepository) DeleteOffer(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return false, nil
	}
	if o.Status != models.OfferPending {
		return false, fmt.Errorf("%w: offer %s is %s", models.ErrConflict, id, o.Status)
	}
	for _, p := range r.purchases {
		if p.OfferID != nil && *p.OfferID == id {
			return false, fmt.Errorf("%w: offer %s has a purchase", models.ErrConflict, id)
		}
	}
	delete(r.offers, id)
	return true, nil
}

func (r *MemoryRepository) TransitionOffer(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: offer no longer pending", models.ErrConflict)
	}
	if to != models.OfferExpired && o.ExpiredAt(at) {
		return nil, fmt.Errorf("%w: offer no longer pending", models.ErrConflict)
	}
	decided := at.UTC()
	o.Status = to
	o.DecidedAt = &decided
	o.DeclineReason = reason
	r.offers[id] = o
	out := o.Clone()
	return &out, nil
}

func (r *MemoryRepository) ExpireOffers(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	decided := now.UTC()
	count := 0
	for id, o := range r.offers {
		if o.Status == models.OfferPending && o.ExpiredAt(now) {
			o.Status = models.OfferExpired
			o.DecidedAt = &decided
			r.offers[id] = o
			count++
		}
	}
	return count, nil
}

// Purchase repository methods
func (r *MemoryRepository) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purchases := make([]models.Purchase, 0)
	for _, p := range r.purchases {
		if filter.Matches(p) {
			purchases = append(purchases, p.Clone())
		}
	}
	models.SortPurchases(purchases)
	return purchases, nil
}

func (r *MemoryRepository) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %s", models.ErrNotFound, id)
	}
	out := p.Clone()
	return &out, nil
}

func (r *MemoryRepository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()

	// All checks run before any write so a failure leaves every map untouched.
	intent, ok := r.intents[purchase.IntentID]
	if !ok {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, purchase.IntentID)
	}
	if intent.Status != models.IntentActive {
		return fmt.Errorf("%w: intent %s is %s", models.ErrConflict, intent.ID, intent.Status)
	}

	var offer models.Offer
	if purchase.OfferID != nil {
		offer, ok = r.offers[*purchase.OfferID]
		if !ok {
			return fmt.Errorf("%w: offer %s", models.ErrNotFound, *purchase.OfferID)
		}
		if offer.IntentID != intent.ID {
			return fmt.Errorf("%w: offer %s belongs to another intent", models.ErrInvalidArgument, offer.ID)
		}
		if err := checkPurchasable(offer, now); err != nil {
			return err
		}
	}

	if purchase.ID == "" {
		purchase.ID = uuid.New().String()
	}
	if _, exists := r.purchases[purchase.ID]; exists {
		return fmt.Errorf("%w: purchase %s already exists", models.ErrConflict, purchase.ID)
	}
	purchase.CompletedAt = now

	intent.Status = models.IntentCompleted
	r.intents[intent.ID] = intent
	if purchase.OfferID != nil && offer.Status == models.OfferPending {
		offer.Status = models.OfferAccepted
		offer.DecidedAt = &now
		r.offers[offer.ID] = offer
	}
	r.purchases[purchase.ID] = purchase.Clone()
	return nil
}

// checkPurchasable reports whether an offer can back a purchase: accepted, or
// still pending and unexpired.
func checkPurchasable(o models.Offer, now time.Time) error {
	switch {
	case o.Status == models.OfferAccepted:
		return nil
	case o.Status == models.OfferPending && !o.ExpiredAt(now):
		return nil
	default:
		return fmt.Errorf("%w: offer %s is %s", models.ErrConflict, o.ID, o.Status)
	}
}
