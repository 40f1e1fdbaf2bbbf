package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/intentmarket/internal/analytics"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/rongwang/intentmarket/internal/repository"
	"github.com/rongwang/intentmarket/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// Intents
	ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error)
	ListMyIntents(ctx context.Context, userID string) ([]models.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*models.Intent, error)
	CreateIntent(ctx context.Context, userID string, req models.CreateIntentRequest) (*models.Intent, error)
	UpdateIntent(ctx context.Context, userID, intentID string, patch models.IntentPatch) (*models.Intent, error)
	DeleteIntent(ctx context.Context, userID, intentID string) (bool, error)

	// Offers
	ListOffers(ctx context.Context, userID string, filter models.OfferFilter) ([]models.Offer, error)
	ListIntentOffers(ctx context.Context, userID, intentID string) ([]models.Offer, error)
	ListMyOffers(ctx context.Context, userID string) ([]models.Offer, error)
	ListReceivedOffers(ctx context.Context, userID string) ([]models.Offer, error)
	CreateOffer(ctx context.Context, userID string, req models.CreateOfferRequest) (*models.Offer, error)
	UpdateOffer(ctx context.Context, userID, offerID string, patch models.OfferPatch) (*models.Offer, error)
	DeleteOffer(ctx context.Context, userID, offerID string) (bool, error)
	AcceptOffer(ctx context.Context, userID, offerID string) (*models.Offer, error)
	DeclineOffer(ctx context.Context, userID, offerID, reason string) (*models.Offer, error)
	SendOfferMessage(ctx context.Context, userID, offerID string, req models.MessageRequest) (*models.MessageResponse, error)
	ExpireOffers(ctx context.Context) (int, error)

	// Purchases
	ListMyPurchases(ctx context.Context, userID string) ([]models.Purchase, error)
	GetPurchase(ctx context.Context, userID, purchaseID string) (*models.Purchase, error)
	CreatePurchase(ctx context.Context, userID string, req models.CreatePurchaseRequest) (*models.Purchase, error)

	// Dashboards
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	GetMarketAnalytics(ctx context.Context, query MarketQuery) (*analytics.Summary, error)

	Health(ctx context.Context) error
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	jwtSecret     []byte
	tokenDuration time.Duration
	logger        *utils.Logger
	now           func() time.Time
}

// Option configures a DefaultService
type Option func(*DefaultService)

// WithLogger sets the logger used for mutations and rejected transitions
func WithLogger(logger *utils.Logger) Option {
	return func(s *DefaultService) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *DefaultService) {
		s.now = now
	}
}

// WithTokenDuration sets how long issued tokens stay valid
func WithTokenDuration(d time.Duration) Option {
	return func(s *DefaultService) {
		s.tokenDuration = d
	}
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, jwtSecret string, opts ...Option) Service {
	s := &DefaultService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
		logger:        utils.NewDiscardLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	if !req.UserType.Valid() {
		return nil, fmt.Errorf("%w: userType must be consumer or producer", models.ErrInvalidArgument)
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Name:     req.Name,
		Role:     req.UserType,
		Password: string(hashedPassword),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.logger.LogAction("created", "user", user.ID, user.ID)

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Username:  user.Username,
		Name:      user.Name,
		UserType:  user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid username or password", models.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrUnauthenticated)
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Username:  user.Username,
		Name:      user.Name,
		UserType:  user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

func (s *DefaultService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.actor(ctx, userID)
}

func (s *DefaultService) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	now := s.now()
	expirationTime := now.Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":  user.ID, // subject
		"role": string(user.Role),
		"exp":  expirationTime.Unix(),
		"iat":  now.Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
