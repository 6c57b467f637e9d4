package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamestore/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrDBDuplicate = errors.New("database: unique constraint violated")
	ErrDBNotFound  = errors.New("database: row not found")
)

const pgUniqueViolation = "23505"

type DBStore struct {
	DB *sqlx.DB
}

func NewDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{DB: db}
}

func ConnectDB(driver, dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (s *DBStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *DBStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

type accountTable struct {
	table      string
	idColumn   string
	identifier string
}

var accountTables = map[models.Role]accountTable{
	models.RoleUser:      {table: "users", idColumn: "user_id", identifier: "username"},
	models.RolePublisher: {table: "publishers", idColumn: "publisher_id", identifier: "name"},
}

func tableFor(role models.Role) (accountTable, error) {
	t, ok := accountTables[role]
	if !ok {
		return accountTable{}, fmt.Errorf("no account table for role %q", role)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func (s *DBStore) GetAccountByIdentifier(ctx context.Context, role models.Role, identifier string) (*models.Account, error) {
	t, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT %s AS id, %s AS identifier, password
        FROM %s
        WHERE %s = $1`, t.idColumn, t.identifier, t.table, t.identifier)

	account := &models.Account{}
	if err := s.DB.GetContext(ctx, account, query, identifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to get %s by identifier: %w", role, err)
	}
	account.Role = role
	return account, nil
}

func (s *DBStore) GetAccountByID(ctx context.Context, role models.Role, id int64) (*models.Account, error) {
	t, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT %s AS id, %s AS identifier, password
        FROM %s
        WHERE %s = $1`, t.idColumn, t.identifier, t.table, t.idColumn)

	account := &models.Account{}
	if err := s.DB.GetContext(ctx, account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to get %s by ID: %w", role, err)
	}
	account.Role = role
	return account, nil
}

func (s *DBStore) CreateAccount(ctx context.Context, role models.Role, identifier, passwordHash string) (*models.Account, error) {
	t, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (%s, password)
        VALUES ($1, $2)
        RETURNING %s`, t.table, t.identifier, t.idColumn)

	account := &models.Account{Role: role, Identifier: identifier, PasswordHash: passwordHash}
	if err := s.DB.QueryRowxContext(ctx, query, identifier, passwordHash).Scan(&account.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDBDuplicate
		}
		return nil, fmt.Errorf("failed to create %s: %w", role, err)
	}
	return account, nil
}

// UpdateAccount changes the identifier and, when passwordHash is non-empty,
// the password of an account.
func (s *DBStore) UpdateAccount(ctx context.Context, role models.Role, id int64, identifier, passwordHash string) error {
	t, err := tableFor(role)
	if err != nil {
		return err
	}

	var res sql.Result
	if passwordHash == "" {
		query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, t.table, t.identifier, t.idColumn)
		res, err = s.DB.ExecContext(ctx, query, identifier, id)
	} else {
		query := fmt.Sprintf(`UPDATE %s SET %s = $1, password = $2 WHERE %s = $3`, t.table, t.identifier, t.idColumn)
		res, err = s.DB.ExecContext(ctx, query, identifier, passwordHash, id)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDBDuplicate
		}
		return fmt.Errorf("failed to update %s: %w", role, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrDBNotFound
	}
	return nil
}

// DeleteAccount removes the identity row. A user's unpurchased cart rows go
// with it; purchases and a publisher's games are left in place.
func (s *DBStore) DeleteAccount(ctx context.Context, role models.Role, id int64) error {
	t, err := tableFor(role)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if role == models.RoleUser {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear cart of user %d: %w", id, err)
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.table, t.idColumn)
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", role, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const gameColumns = `game_id, title, genre, price, publisher_id`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListGames returns every game, or only those whose title contains search.
func (s *DBStore) ListGames(ctx context.Context, search string) ([]models.Game, error) {
	games := []models.Game{}
	var err error
	if search == "" {
		err = s.DB.SelectContext(ctx, &games, `SELECT `+gameColumns+` FROM games ORDER BY game_id`)
	} else {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		err = s.DB.SelectContext(ctx, &games,
			`SELECT `+gameColumns+` FROM games WHERE title LIKE $1 ESCAPE '\' ORDER BY game_id`, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (s *DBStore) ListGamesByPublisher(ctx context.Context, publisherID int64) ([]models.Game, error) {
	games := []models.Game{}
	err := s.DB.SelectContext(ctx, &games,
		`SELECT `+gameColumns+` FROM games WHERE publisher_id = $1 ORDER BY game_id`, publisherID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games of publisher %d: %w", publisherID, err)
	}
	return games, nil
}

func (s *DBStore) GetOwnedGame(ctx context.Context, gameID, publisherID int64) (*models.Game, error) {
	game := &models.Game{}
	err := s.DB.GetContext(ctx, game,
		`SELECT `+gameColumns+` FROM games WHERE game_id = $1 AND publisher_id = $2`, gameID, publisherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to get game %d: %w", gameID, err)
	}
	return game, nil
}

func (s *DBStore) CreateGame(ctx context.Context, game *models.Game) error {
	query := `
        INSERT INTO games (title, genre, price, publisher_id)
        VALUES ($1, $2, $3, $4)
        RETURNING game_id`

	err := s.DB.QueryRowxContext(ctx, query, game.Title, game.Genre, game.Price, game.PublisherID).Scan(&game.ID)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// UpdateGame rewrites a game owned by game.PublisherID. It reports whether a
// row was changed; a foreign or missing game is not an error.
func (s *DBStore) UpdateGame(ctx context.Context, game *models.Game) (bool, error) {
	query := `
        UPDATE games
        SET title = $1, genre = $2, price = $3
        WHERE game_id = $4 AND publisher_id = $5`

	res, err := s.DB.ExecContext(ctx, query, game.Title, game.Genre, game.Price, game.ID, game.PublisherID)
	if err != nil {
		return false, fmt.Errorf("failed to update game %d: %w", game.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *DBStore) DeleteGame(ctx context.Context, gameID, publisherID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM games WHERE game_id = $1 AND publisher_id = $2`, gameID, publisherID)
	if err != nil {
		return false, fmt.Errorf("failed to delete game %d: %w", gameID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *DBStore) AddCartEntry(ctx context.Context, userID, gameID int64) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO cart (user_id, game_id) VALUES ($1, $2)`, userID, gameID)
	if err != nil {
		return fmt.Errorf("failed to add game %d to cart: %w", gameID, err)
	}
	return nil
}

func (s *DBStore) ListCartEntries(ctx context.Context, userID int64) ([]models.CartEntry, error) {
	query := `
        SELECT c.cart_id, c.user_id, c.game_id,
               COALESCE(g.title, '') AS title,
               COALESCE(g.genre, '') AS genre,
               COALESCE(g.price, 0) AS price,
               g.game_id IS NOT NULL AS available
        FROM cart c
        LEFT JOIN games g ON g.game_id = c.game_id
        WHERE c.user_id = $1
        ORDER BY c.cart_id`

	entries := []models.CartEntry{}
	if err := s.DB.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list cart of user %d: %w", userID, err)
	}
	return entries, nil
}

// Checkout converts every cart row of the user into a purchase and removes
// exactly the converted rows, all inside one transaction. The cart rows are
// locked first so a concurrent checkout of the same user waits and then
// finds nothing left to convert.
func (s *DBStore) Checkout(ctx context.Context, userID int64) ([]models.Purchase, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cartIDs []int64
	err = tx.SelectContext(ctx, &cartIDs,
		`SELECT cart_id FROM cart WHERE user_id = $1 ORDER BY cart_id FOR UPDATE`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart rows: %w", err)
	}

	if len(cartIDs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, nil
	}

	purchases := []models.Purchase{}
	err = tx.SelectContext(ctx, &purchases, `
        INSERT INTO purchases (user_id, game_id, purchase_date)
        SELECT user_id, game_id, NOW() FROM cart WHERE cart_id = ANY($1) ORDER BY cart_id
        RETURNING purchase_id, user_id, game_id, purchase_date`, pq.Array(cartIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to record purchases: %w", err)
	}
	if len(purchases) != len(cartIDs) {
		return nil, fmt.Errorf("recorded %d purchases for %d cart rows", len(purchases), len(cartIDs))
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE cart_id = ANY($1)`, pq.Array(cartIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != int64(len(cartIDs)) {
		return nil, fmt.Errorf("removed %d cart rows, expected %d", n, len(cartIDs))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return purchases, nil
}

func (s *DBStore) ListPurchases(ctx context.Context, userID int64) ([]models.Purchase, error) {
	query := `
        SELECT p.purchase_id, p.user_id, p.game_id, p.purchase_date,
               COALESCE(g.title, '') AS title,
               COALESCE(g.genre, '') AS genre,
               COALESCE(g.price, 0) AS price,
               g.game_id IS NOT NULL AS available
        FROM purchases p
        LEFT JOIN games g ON g.game_id = p.game_id
        WHERE p.user_id = $1
        ORDER BY p.purchase_date DESC, p.purchase_id DESC`

	purchases := []models.Purchase{}
	if err := s.DB.SelectContext(ctx, &purchases, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list purchases of user %d: %w", userID, err)
	}
	return purchases, nil
}

// DeleteOrphanedCartEntries removes cart rows whose game or user is gone.
func (s *DBStore) DeleteOrphanedCartEntries(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
        DELETE FROM cart c
        WHERE NOT EXISTS (SELECT 1 FROM games g WHERE g.game_id = c.game_id)
           OR NOT EXISTS (SELECT 1 FROM users u WHERE u.user_id = c.user_id)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned cart rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
