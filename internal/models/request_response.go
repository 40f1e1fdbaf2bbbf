package models

import "time"

// Request models
type SignUpRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	UserType Role   `json:"userType" binding:"required,oneof=consumer producer"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateIntentRequest struct {
	Title     string   `json:"title" binding:"required"`
	Timeframe string   `json:"timeframe" binding:"required"`
	BudgetMin *float64 `json:"budgetMin"`
	BudgetMax *float64 `json:"budgetMax"`
	Features  []string `json:"features"`
	Brands    []string `json:"brands"`
	Category  string   `json:"category"`
	Region    string   `json:"region"`
}

// ToIntent converts the request into an unsaved intent
func (r CreateIntentRequest) ToIntent(userID string) Intent {
	return Intent{
		UserID:    userID,
		Title:     r.Title,
		Timeframe: r.Timeframe,
		BudgetMin: r.BudgetMin,
		BudgetMax: r.BudgetMax,
		Features:  cloneStrings(r.Features),
		Brands:    cloneStrings(r.Brands),
		Category:  r.Category,
		Region:    r.Region,
	}
}

type CreateOfferRequest struct {
	IntentID      string     `json:"intentId" binding:"required"`
	Company       string     `json:"company" binding:"required"`
	Product       string     `json:"product" binding:"required"`
	Price         float64    `json:"price" binding:"required"`
	OriginalPrice *float64   `json:"originalPrice"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// ToOffer converts the request into an unsaved offer. The producer always
// comes from the caller, never from the body.
func (r CreateOfferRequest) ToOffer(producerID string) Offer {
	return Offer{
		IntentID:      r.IntentID,
		ProducerID:    producerID,
		Company:       r.Company,
		Product:       r.Product,
		Price:         r.Price,
		OriginalPrice: cloneFloat(r.OriginalPrice),
		ExpiresAt:     cloneTime(r.ExpiresAt),
	}
}

type DeclineOfferRequest struct {
	Reason string `json:"reason"`
}

type CreatePurchaseRequest struct {
	IntentID string          `json:"intentId" binding:"required"`
	OfferID  *string         `json:"offerId"`
	Details  PurchaseDetails `json:"details"`
}

type MessageRequest struct {
	Message string `json:"message"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	UserType  Role   `json:"userType,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type MessageResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsumerStats is the dashboard summary for a consumer
type ConsumerStats struct {
	ActiveIntents      int     `json:"activeIntents"`
	NewOffers          int     `json:"newOffers"`
	CompletedPurchases int     `json:"completedPurchases"`
	PotentialSavings   float64 `json:"potentialSavings"`
}

// ProducerStats is the dashboard summary for a producer
type ProducerStats struct {
	TotalOffers    int `json:"totalOffers"`
	PendingOffers  int `json:"pendingOffers"`
	AcceptedOffers int `json:"acceptedOffers"`
}

// UserStats carries exactly one of the role-specific summaries
type UserStats struct {
	Consumer *ConsumerStats
	Producer *ProducerStats
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
