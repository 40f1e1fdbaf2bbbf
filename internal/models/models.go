package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Role distinguishes the two sides of the marketplace
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleProducer Role = "producer"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleConsumer || r == RoleProducer
}

// IntentStatus is the lifecycle state of an intent
type IntentStatus string

const (
	IntentActive    IntentStatus = "active"
	IntentCompleted IntentStatus = "completed"
	IntentExpired   IntentStatus = "expired"
)

// Valid reports whether s is a known intent status
func (s IntentStatus) Valid() bool {
	switch s {
	case IntentActive, IntentCompleted, IntentExpired:
		return true
	}
	return false
}

// OfferStatus is the lifecycle state of an offer
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
	OfferExpired  OfferStatus = "expired"
)

// Valid reports whether s is a known offer status
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferAccepted, OfferDeclined, OfferExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s
func (s OfferStatus) IsTerminal() bool {
	return s == OfferAccepted || s == OfferDeclined || s == OfferExpired
}

// CanTransitionTo reports whether the offer state machine allows s -> next.
// Only pending offers move, and only into a terminal state.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	return s == OfferPending && next.IsTerminal()
}

// User represents a marketplace account
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	Name      string    `db:"name" json:"name"`
	Role      Role      `db:"role" json:"userType"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Intent is a consumer's declared purchase need
type Intent struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Title     string       `json:"title"`
	Timeframe string       `json:"timeframe"`
	BudgetMin *float64     `json:"budgetMin"`
	BudgetMax *float64     `json:"budgetMax"`
	Features  []string     `json:"features"`
	Brands    []string     `json:"brands"`
	Category  string       `json:"category,omitempty"`
	Region    string       `json:"region,omitempty"`
	Status    IntentStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Validate checks the field invariants of an intent
func (i Intent) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(i.Timeframe) == "" {
		return fmt.Errorf("%w: timeframe is required", ErrInvalidArgument)
	}
	if i.BudgetMin != nil && *i.BudgetMin < 0 {
		return fmt.Errorf("%w: budgetMin must be non-negative", ErrInvalidArgument)
	}
	if i.BudgetMax != nil && *i.BudgetMax < 0 {
		return fmt.Errorf("%w: budgetMax must be non-negative", ErrInvalidArgument)
	}
	if i.BudgetMin != nil && i.BudgetMax != nil && *i.BudgetMin >= *i.BudgetMax {
		return fmt.Errorf("%w: budgetMin must be less than budgetMax", ErrInvalidArgument)
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored slices
func (i Intent) Clone() Intent {
	out := i
	out.BudgetMin = cloneFloat(i.BudgetMin)
	out.BudgetMax = cloneFloat(i.BudgetMax)
	out.Features = cloneStrings(i.Features)
	out.Brands = cloneStrings(i.Brands)
	return out
}

// IntentPatch carries the owner-editable fields of an intent. Nil fields are
// left unchanged.
type IntentPatch struct {
	Title     *string   `json:"title"`
	Timeframe *string   `json:"timeframe"`
	BudgetMin *float64  `json:"budgetMin"`
	BudgetMax *float64  `json:"budgetMax"`
	Features  *[]string `json:"features"`
	Brands    *[]string `json:"brands"`
	Category  *string   `json:"category"`
	Region    *string   `json:"region"`
}

// Apply merges p into i and returns the result
func (i Intent) Apply(p IntentPatch) Intent {
	out := i.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Timeframe != nil {
		out.Timeframe = *p.Timeframe
	}
	if p.BudgetMin != nil {
		out.BudgetMin = cloneFloat(p.BudgetMin)
	}
	if p.BudgetMax != nil {
		out.BudgetMax = cloneFloat(p.BudgetMax)
	}
	if p.Features != nil {
		out.Features = cloneStrings(*p.Features)
	}
	if p.Brands != nil {
		out.Brands = cloneStrings(*p.Brands)
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Region != nil {
		out.Region = *p.Region
	}
	return out
}

// Offer is a producer's priced response to one intent
type Offer struct {
	ID            string      `json:"id"`
	IntentID      string      `json:"intentId"`
	ProducerID    string      `json:"producerId"`
	Company       string      `json:"company"`
	Product       string      `json:"product"`
	Price         float64     `json:"price"`
	OriginalPrice *float64    `json:"originalPrice"`
	ExpiresAt     *time.Time  `json:"expiresAt"`
	Status        OfferStatus `json:"status"`
	DeclineReason string      `json:"declineReason,omitempty"`
	DecidedAt     *time.Time  `json:"decidedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Validate checks the field invariants of an offer
func (o Offer) Validate() error {
	if strings.TrimSpace(o.IntentID) == "" {
		return fmt.Errorf("%w: intentId is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(o.Company) == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(o.Product) == "" {
		return fmt.Errorf("%w: product is required", ErrInvalidArgument)
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	if o.OriginalPrice != nil && *o.OriginalPrice <= o.Price {
		return fmt.Errorf("%w: originalPrice must be greater than price", ErrInvalidArgument)
	}
	return nil
}

// DiscountLabel derives the "N% off" label from the original and current price.
// It is empty when there is no original price.
func (o Offer) DiscountLabel() string {
	if o.OriginalPrice == nil || *o.OriginalPrice <= 0 || *o.OriginalPrice <= o.Price {
		return ""
	}
	pct := math.Round((*o.OriginalPrice - o.Price) / *o.OriginalPrice * 100)
	return fmt.Sprintf("%d%% off", int(pct))
}

// Savings is how much cheaper the offer is than its original price
func (o Offer) Savings() float64 {
	if o.OriginalPrice == nil {
		return 0
	}
	return math.Max(0, *o.OriginalPrice-o.Price)
}

// ExpiredAt reports whether a pending offer has passed its expiry at now
func (o Offer) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// MarshalJSON adds the derived discount label to the wire form
func (o Offer) MarshalJSON() ([]byte, error) {
	type offerJSON Offer
	return json.Marshal(struct {
		offerJSON
		Discount string `json:"discount,omitempty"`
	}{offerJSON(o), o.DiscountLabel()})
}

// Clone returns a deep copy of the offer
func (o Offer) Clone() Offer {
	out := o
	out.OriginalPrice = cloneFloat(o.OriginalPrice)
	out.ExpiresAt = cloneTime(o.ExpiresAt)
	out.DecidedAt = cloneTime(o.DecidedAt)
	return out
}

// OfferPatch carries the producer-editable fields of a pending offer
type OfferPatch struct {
	Company       *string    `json:"company"`
	Product       *string    `json:"product"`
	Price         *float64   `json:"price"`
	OriginalPrice *float64   `json:"originalPrice"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// Apply merges p into o and returns the result
func (o Offer) Apply(p OfferPatch) Offer {
	out := o.Clone()
	if p.Company != nil {
		out.Company = *p.Company
	}
	if p.Product != nil {
		out.Product = *p.Product
	}
	if p.Price != nil {
		out.Price = *p.Price
	}
	if p.OriginalPrice != nil {
		out.OriginalPrice = cloneFloat(p.OriginalPrice)
	}
	if p.ExpiresAt != nil {
		out.ExpiresAt = cloneTime(p.ExpiresAt)
	}
	return out
}

// Purchase is the immutable record of a completed transaction
type Purchase struct {
	ID          string          `json:"id"`
	IntentID    string          `json:"intentId"`
	OfferID     *string         `json:"offerId"`
	UserID      string          `json:"userId"`
	CompletedAt time.Time       `json:"completedAt"`
	Details     PurchaseDetails `json:"details"`
}

// Clone returns a deep copy of the purchase
func (p Purchase) Clone() Purchase {
	out := p
	if p.OfferID != nil {
		id := *p.OfferID
		out.OfferID = &id
	}
	out.Details = p.Details.Clone()
	return out
}

// PurchaseDetails holds the known purchase attributes plus an opaque blob
// for anything the client wants to attach.
type PurchaseDetails struct {
	Price   *float64        `json:"price,omitempty"`
	Company string          `json:"company,omitempty"`
	Product string          `json:"product,omitempty"`
	Notes   string          `json:"notes,omitempty"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

// Clone returns a deep copy of the details
func (d PurchaseDetails) Clone() PurchaseDetails {
	out := d
	out.Price = cloneFloat(d.Price)
	if d.Extra != nil {
		out.Extra = append(json.RawMessage(nil), d.Extra...)
	}
	return out
}

// FillFromOffer copies offer attributes the client left empty
func (d PurchaseDetails) FillFromOffer(o Offer) PurchaseDetails {
	out := d.Clone()
	if out.Price == nil {
		price := o.Price
		out.Price = &price
	}
	if out.Company == "" {
		out.Company = o.Company
	}
	if out.Product == "" {
		out.Product = o.Product
	}
	return out
}

// Value stores details as a JSONB document
func (d PurchaseDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads details from a JSONB column
func (d *PurchaseDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = PurchaseDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into PurchaseDetails", src)
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return append([]string{}, v...)
}
