package service

import (
	"context"
	"errors"
	"fmt"

	"gamestore/internal/models"
	"gamestore/internal/store"

	"github.com/rs/zerolog"
)

// GameStore scopes every mutation by publisher id in the same statement.
type GameStore interface {
	ListGames(ctx context.Context, search string) ([]models.Game, error)
	ListGamesByPublisher(ctx context.Context, publisherID int64) ([]models.Game, error)
	GetOwnedGame(ctx context.Context, gameID, publisherID int64) (*models.Game, error)
	CreateGame(ctx context.Context, game *models.Game) error
	UpdateGame(ctx context.Context, game *models.Game) (bool, error)
	DeleteGame(ctx context.Context, gameID, publisherID int64) (bool, error)
}

type CatalogService struct {
	games  GameStore
	logger zerolog.Logger
}

func NewCatalogService(logger zerolog.Logger, games GameStore) *CatalogService {
	return &CatalogService{
		games:  games,
		logger: logger.With().Str("service", "catalog").Logger(),
	}
}

// ListGames returns all games when search is empty, otherwise the games whose
// title contains search.
func (s *CatalogService) ListGames(ctx context.Context, search string) ([]models.Game, error) {
	return s.games.ListGames(ctx, search)
}

func (s *CatalogService) ListPublisherGames(ctx context.Context, publisherID int64) ([]models.Game, error) {
	return s.games.ListGamesByPublisher(ctx, publisherID)
}

func (s *CatalogService) GetOwnedGame(ctx context.Context, gameID, publisherID int64) (*models.Game, error) {
	game, err := s.games.GetOwnedGame(ctx, gameID, publisherID)
	if err != nil {
		if errors.Is(err, store.ErrDBNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return game, nil
}

func (s *CatalogService) AddGame(ctx context.Context, publisherID int64, title, genre string, price float64) (*models.Game, error) {
	game := &models.Game{
		Title:       title,
		Genre:       genre,
		Price:       price,
		PublisherID: publisherID,
	}
	if err := s.games.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to add game for publisher %d: %w", publisherID, err)
	}
	s.logger.Info().Int64("publisher_id", publisherID).Int64("game_id", game.ID).Msg("game added")
	return game, nil
}

// EditGame applies the change only if game.PublisherID owns the game. The
// boolean is false for a silent no-op.
func (s *CatalogService) EditGame(ctx context.Context, game *models.Game) (bool, error) {
	updated, err := s.games.UpdateGame(ctx, game)
	if err != nil {
		return false, err
	}
	if !updated {
		s.logger.Debug().Int64("publisher_id", game.PublisherID).Int64("game_id", game.ID).Msg("edit matched no owned game")
	}
	return updated, nil
}

func (s *CatalogService) DeleteGame(ctx context.Context, gameID, publisherID int64) (bool, error) {
	deleted, err := s.games.DeleteGame(ctx, gameID, publisherID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info().Int64("publisher_id", publisherID).Int64("game_id", gameID).Msg("game deleted")
	}
	return deleted, nil
}
