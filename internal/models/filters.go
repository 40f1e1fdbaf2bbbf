package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BudgetRange is an overlap filter on an intent's budget. Missing bounds are
// unbounded.
type BudgetRange struct {
	Min *float64
	Max *float64
}

// Overlaps reports whether an intent budget [min, max] overlaps the range
func (r BudgetRange) Overlaps(budgetMin, budgetMax *float64) bool {
	if r.Min != nil && budgetMax != nil && *budgetMax < *r.Min {
		return false
	}
	if r.Max != nil && budgetMin != nil && *budgetMin > *r.Max {
		return false
	}
	return true
}

// IntentFilter selects intents. Zero-valued fields do not filter.
type IntentFilter struct {
	UserID   string
	Status   IntentStatus
	Category string
	Region   string
	Search   string
	Budget   *BudgetRange
}

// Validate rejects filter values the stores cannot interpret
func (f IntentFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown intent status %q", ErrInvalidArgument, f.Status)
	}
	if f.Budget != nil {
		if err := validBound("budgetMin", f.Budget.Min); err != nil {
			return err
		}
		if err := validBound("budgetMax", f.Budget.Max); err != nil {
			return err
		}
		if f.Budget.Min != nil && f.Budget.Max != nil && *f.Budget.Min > *f.Budget.Max {
			return fmt.Errorf("%w: budgetMin must not exceed budgetMax", ErrInvalidArgument)
		}
	}
	return nil
}

func validBound(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrInvalidArgument, name)
	}
	if *v < 0 {
		return fmt.Errorf("%w: %s must be non-negative", ErrInvalidArgument, name)
	}
	return nil
}

// Matches reports whether i satisfies every field of the filter
func (f IntentFilter) Matches(i Intent) bool {
	if f.UserID != "" && i.UserID != f.UserID {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Category != "" && i.Category != f.Category {
		return false
	}
	if f.Region != "" && i.Region != f.Region {
		return false
	}
	if f.Search != "" && !matchesSearch(i, f.Search) {
		return false
	}
	if f.Budget != nil && !f.Budget.Overlaps(i.BudgetMin, i.BudgetMax) {
		return false
	}
	return true
}

func matchesSearch(i Intent, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(i.Title), term) {
		return true
	}
	for _, feature := range i.Features {
		if strings.Contains(strings.ToLower(feature), term) {
			return true
		}
	}
	return false
}

// OfferFilter selects offers. A nil IntentIDs does not filter; a non-nil
// empty IntentIDs matches nothing.
type OfferFilter struct {
	IntentID   string
	IntentIDs  []string
	ProducerID string
	Status     OfferStatus
}

// Validate rejects filter values the stores cannot interpret
func (f OfferFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown offer status %q", ErrInvalidArgument, f.Status)
	}
	return nil
}

// Matches reports whether o satisfies every field of the filter
func (f OfferFilter) Matches(o Offer) bool {
	if f.IntentID != "" && o.IntentID != f.IntentID {
		return false
	}
	if f.IntentIDs != nil && !containsString(f.IntentIDs, o.IntentID) {
		return false
	}
	if f.ProducerID != "" && o.ProducerID != f.ProducerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// PurchaseFilter selects purchases
type PurchaseFilter struct {
	UserID   string
	IntentID string
}

// Matches reports whether p satisfies every field of the filter
func (f PurchaseFilter) Matches(p Purchase) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.IntentID != "" && p.IntentID != f.IntentID {
		return false
	}
	return true
}

// ParseAmount parses an optional numeric query value. An empty string yields nil.
func ParseAmount(name, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, name)
	}
	return &v, nil
}

// SortIntents orders newest first with id as tie-break
func SortIntents(intents []Intent) {
	sort.SliceStable(intents, func(a, b int) bool {
		if !intents[a].CreatedAt.Equal(intents[b].CreatedAt) {
			return intents[a].CreatedAt.After(intents[b].CreatedAt)
		}
		return intents[a].ID > intents[b].ID
	})
}

// SortOffers orders newest first with id as tie-break
func SortOffers(offers []Offer) {
	sort.SliceStable(offers, func(a, b int) bool {
		if !offers[a].CreatedAt.Equal(offers[b].CreatedAt) {
			return offers[a].CreatedAt.After(offers[b].CreatedAt)
		}
		return offers[a].ID > offers[b].ID
	})
}

// SortPurchases orders most recently completed first with id as tie-break
func SortPurchases(purchases []Purchase) {
	sort.SliceStable(purchases, func(a, b int) bool {
		if !purchases[a].CompletedAt.Equal(purchases[b].CompletedAt) {
			return purchases[a].CompletedAt.After(purchases[b].CompletedAt)
		}
		return purchases[a].ID > purchases[b].ID
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
