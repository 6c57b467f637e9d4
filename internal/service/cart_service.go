package service

import (
	"context"
	"fmt"
	"time"

	"gamestore/internal/events"
	"gamestore/internal/metrics"
	"gamestore/internal/models"

	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// CartStore must perform Checkout as one transaction: every cart row of the
// user present when it starts becomes a purchase and exactly those rows are
// removed.
type CartStore interface {
	AddCartEntry(ctx context.Context, userID, gameID int64) error
	ListCartEntries(ctx context.Context, userID int64) ([]models.CartEntry, error)
	Checkout(ctx context.Context, userID int64) ([]models.Purchase, error)
	ListPurchases(ctx context.Context, userID int64) ([]models.Purchase, error)
}

type CartService struct {
	cart      CartStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewCartService(logger zerolog.Logger, cart CartStore, publisher events.Publisher, m *metrics.Metrics) *CartService {
	return &CartService{
		cart:      cart,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("service", "cart").Logger(),
	}
}

// AddToCart records the intent to buy gameID. Neither the game's existence
// nor an earlier identical entry is checked.
func (s *CartService) AddToCart(ctx context.Context, userID, gameID int64) error {
	return s.cart.AddCartEntry(ctx, userID, gameID)
}

func (s *CartService) ViewCart(ctx context.Context, userID int64) ([]models.CartEntry, error) {
	return s.cart.ListCartEntries(ctx, userID)
}

// Checkout turns the whole cart into purchases. An empty cart yields no
// purchases and no error.
func (s *CartService) Checkout(ctx context.Context, userID int64) ([]models.Purchase, error) {
	purchases, err := s.cart.Checkout(ctx, userID)
	if err != nil {
		s.metrics.RecordCheckout("failed", 0)
		return nil, fmt.Errorf("checkout for user %d failed: %w", userID, err)
	}
	if len(purchases) == 0 {
		s.metrics.RecordCheckout("empty", 0)
		return nil, nil
	}

	s.metrics.RecordCheckout("converted", len(purchases))
	s.logger.Info().Int64("user_id", userID).Int("purchases", len(purchases)).Msg("checkout completed")

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishPurchases(pubCtx, purchases); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to publish purchase events")
	}
	return purchases, nil
}

// ViewPurchases lists the user's purchases, most recent first.
func (s *CartService) ViewPurchases(ctx context.Context, userID int64) ([]models.Purchase, error) {
	return s.cart.ListPurchases(ctx, userID)
}
