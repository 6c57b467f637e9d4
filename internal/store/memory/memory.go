// Package memory is an in-process implementation of the storefront stores.
// Titles are matched case-sensitively, like a binary collation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gamestore/internal/models"
	"gamestore/internal/session"
	"gamestore/internal/store"
)

type cartRow struct {
	id     int64
	userID int64
	gameID int64
}

type Store struct {
	mu sync.Mutex

	accounts  map[models.Role]map[int64]*models.Account
	games     map[int64]models.Game
	cart      []cartRow
	purchases []models.Purchase
	sessions  map[string]session.Session

	nextID  int64
	now     func() time.Time
	nextErr map[string]error
}

func New() *Store {
	return &Store{
		accounts: map[models.Role]map[int64]*models.Account{
			models.RoleUser:      {},
			models.RolePublisher: {},
		},
		games:    make(map[int64]models.Game),
		sessions: make(map[string]session.Session),
		now:      time.Now,
		nextErr:  make(map[string]error),
	}
}

// SetClock replaces the time source used for purchase dates.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr[op] = err
}

func (s *Store) takeErr(op string) error {
	if err, ok := s.nextErr[op]; ok {
		delete(s.nextErr, op)
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetAccountByIdentifier(_ context.Context, role models.Role, identifier string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("GetAccountByIdentifier"); err != nil {
		return nil, err
	}
	for _, acc := range s.accounts[role] {
		if acc.Identifier == identifier {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, store.ErrDBNotFound
}

func (s *Store) GetAccountByID(_ context.Context, role models.Role, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("GetAccountByID"); err != nil {
		return nil, err
	}
	acc, ok := s.accounts[role][id]
	if !ok {
		return nil, store.ErrDBNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *Store) identifierTaken(role models.Role, identifier string, except int64) bool {
	for id, acc := range s.accounts[role] {
		if id != except && acc.Identifier == identifier {
			return true
		}
	}
	return false
}

func (s *Store) CreateAccount(_ context.Context, role models.Role, identifier, passwordHash string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateAccount"); err != nil {
		return nil, err
	}
	if s.identifierTaken(role, identifier, 0) {
		return nil, store.ErrDBDuplicate
	}
	acc := &models.Account{ID: s.id(), Role: role, Identifier: identifier, PasswordHash: passwordHash}
	s.accounts[role][acc.ID] = acc
	cp := *acc
	return &cp, nil
}

func (s *Store) UpdateAccount(_ context.Context, role models.Role, id int64, identifier, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("UpdateAccount"); err != nil {
		return err
	}
	acc, ok := s.accounts[role][id]
	if !ok {
		return store.ErrDBNotFound
	}
	if s.identifierTaken(role, identifier, id) {
		return store.ErrDBDuplicate
	}
	acc.Identifier = identifier
	if passwordHash != "" {
		acc.PasswordHash = passwordHash
	}
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, role models.Role, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeleteAccount"); err != nil {
		return err
	}
	delete(s.accounts[role], id)
	if role == models.RoleUser {
		kept := s.cart[:0]
		for _, row := range s.cart {
			if row.userID != id {
				kept = append(kept, row)
			}
		}
		s.cart = kept
	}
	return nil
}

func (s *Store) sortedGames(keep func(models.Game) bool) []models.Game {
	games := []models.Game{}
	for _, g := range s.games {
		if keep(g) {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

func (s *Store) ListGames(_ context.Context, search string) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListGames"); err != nil {
		return nil, err
	}
	return s.sortedGames(func(g models.Game) bool {
		return strings.Contains(g.Title, search)
	}), nil
}

func (s *Store) ListGamesByPublisher(_ context.Context, publisherID int64) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListGamesByPublisher"); err != nil {
		return nil, err
	}
	return s.sortedGames(func(g models.Game) bool {
		return g.PublisherID == publisherID
	}), nil
}

func (s *Store) GetOwnedGame(_ context.Context, gameID, publisherID int64) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("GetOwnedGame"); err != nil {
		return nil, err
	}
	g, ok := s.games[gameID]
	if !ok || g.PublisherID != publisherID {
		return nil, store.ErrDBNotFound
	}
	return &g, nil
}

func (s *Store) CreateGame(_ context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateGame"); err != nil {
		return err
	}
	game.ID = s.id()
	s.games[game.ID] = *game
	return nil
}

func (s *Store) UpdateGame(_ context.Context, game *models.Game) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("UpdateGame"); err != nil {
		return false, err
	}
	g, ok := s.games[game.ID]
	if !ok || g.PublisherID != game.PublisherID {
		return false, nil
	}
	g.Title, g.Genre, g.Price = game.Title, game.Genre, game.Price
	s.games[game.ID] = g
	return true, nil
}

func (s *Store) DeleteGame(_ context.Context, gameID, publisherID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeleteGame"); err != nil {
		return false, err
	}
	g, ok := s.games[gameID]
	if !ok || g.PublisherID != publisherID {
		return false, nil
	}
	delete(s.games, gameID)
	return true, nil
}

func (s *Store) AddCartEntry(_ context.Context, userID, gameID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("AddCartEntry"); err != nil {
		return err
	}
	s.cart = append(s.cart, cartRow{id: s.id(), userID: userID, gameID: gameID})
	return nil
}

func (s *Store) ListCartEntries(_ context.Context, userID int64) ([]models.CartEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListCartEntries"); err != nil {
		return nil, err
	}
	entries := []models.CartEntry{}
	for _, row := range s.cart {
		if row.userID != userID {
			continue
		}
		entry := models.CartEntry{ID: row.id, UserID: row.userID, GameID: row.gameID}
		if g, ok := s.games[row.gameID]; ok {
			entry.Title, entry.Genre, entry.Price, entry.Available = g.Title, g.Genre, g.Price, true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) Checkout(_ context.Context, userID int64) ([]models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("Checkout"); err != nil {
		return nil, err
	}

	var created []models.Purchase
	kept := s.cart[:0]
	now := s.now()
	for _, row := range s.cart {
		if row.userID != userID {
			kept = append(kept, row)
			continue
		}
		p := models.Purchase{ID: s.id(), UserID: userID, GameID: row.gameID, PurchaseDate: now}
		s.purchases = append(s.purchases, p)
		created = append(created, p)
	}
	s.cart = kept
	return created, nil
}

func (s *Store) ListPurchases(_ context.Context, userID int64) ([]models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListPurchases"); err != nil {
		return nil, err
	}
	out := []models.Purchase{}
	for _, p := range s.purchases {
		if p.UserID != userID {
			continue
		}
		if g, ok := s.games[p.GameID]; ok {
			p.Title, p.Genre, p.Price, p.Available = g.Title, g.Genre, g.Price, true
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.After(out[j].PurchaseDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteOrphanedCartEntries(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeleteOrphanedCartEntries"); err != nil {
		return 0, err
	}
	var removed int64
	kept := s.cart[:0]
	for _, row := range s.cart {
		_, gameOK := s.games[row.gameID]
		_, userOK := s.accounts[models.RoleUser][row.userID]
		if gameOK && userOK {
			kept = append(kept, row)
			continue
		}
		removed++
	}
	s.cart = kept
	return removed, nil
}

// CartSize counts the cart rows of a user.
func (s *Store) CartSize(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.cart {
		if row.userID == userID {
			n++
		}
	}
	return n
}

// Session storage ignores the TTL.

func (s *Store) SaveSession(_ context.Context, sess *session.Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("SaveSession"); err != nil {
		return err
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("GetSession"); err != nil {
		return nil, err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// SessionCount reports how many sessions are stored.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
