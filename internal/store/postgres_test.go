package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"gamestore/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDBStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetAccountByIdentifier(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT publisher_id AS id, name AS identifier, password`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "identifier", "password"}).AddRow(7, "acme", "hash"))

	account, err := s.GetAccountByIdentifier(context.Background(), models.RolePublisher, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), account.ID)
	assert.Equal(t, "acme", account.Identifier)
	assert.Equal(t, "hash", account.PasswordHash)
	assert.Equal(t, models.RolePublisher, account.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountByIdentifier_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetAccountByIdentifier(context.Background(), models.RoleUser, "ghost")
	assert.ErrorIs(t, err, ErrDBNotFound)
}

func TestAccountUnknownRole(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.GetAccountByID(context.Background(), models.Role("admin"), 1)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (username, password)`)).
		WithArgs("alice", "hash").
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	_, err := s.CreateAccount(context.Background(), models.RoleUser, "alice", "hash")
	assert.ErrorIs(t, err, ErrDBDuplicate)
}

func TestCreateAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO publishers (name, password)`)).
		WithArgs("acme", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"publisher_id"}).AddRow(3))

	account, err := s.CreateAccount(context.Background(), models.RolePublisher, "acme", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(3), account.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccount(t *testing.T) {
	t.Run("keeps password when hash is empty", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET username = $1 WHERE user_id = $2`)).
			WithArgs("alice2", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateAccount(context.Background(), models.RoleUser, 1, "alice2", ""))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replaces password", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET username = $1, password = $2 WHERE user_id = $3`)).
			WithArgs("alice", "newhash", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateAccount(context.Background(), models.RoleUser, 1, "alice", "newhash"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE publishers`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.UpdateAccount(context.Background(), models.RolePublisher, 9, "acme", "")
		assert.ErrorIs(t, err, ErrDBNotFound)
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users`).WillReturnError(&pq.Error{Code: pgUniqueViolation})

		err := s.UpdateAccount(context.Background(), models.RoleUser, 1, "bob", "")
		assert.ErrorIs(t, err, ErrDBDuplicate)
	})
}

func TestDeleteAccount_UserClearsCart(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart WHERE user_id = $1`)).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE user_id = $1`)).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteAccount(context.Background(), models.RoleUser, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAccount_PublisherKeepsGames(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM publishers WHERE publisher_id = $1`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteAccount(context.Background(), models.RolePublisher, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListGames_EscapesSearch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE title LIKE $1`)).
		WithArgs(`%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows([]string{"game_id", "title", "genre", "price", "publisher_id"}).
			AddRow(42, "50%_off", "Arcade", 9.99, 1))

	games, err := s.ListGames(context.Background(), "50%_off")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, int64(42), games[0].ID)
	assert.InDelta(t, 9.99, games[0].Price, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListGames_EmptySearchListsAll(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT game_id, title, genre, price, publisher_id FROM games ORDER BY game_id`)).
		WithoutArgs().
		WillReturnRows(sqlmock.NewRows([]string{"game_id", "title", "genre", "price", "publisher_id"}))

	games, err := s.ListGames(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, games)
	assert.Empty(t, games)
}

func TestUpdateGame_ScopedByPublisher(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE game_id = $4 AND publisher_id = $5`)).
		WithArgs("New", "RPG", 5.0, int64(42), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := s.UpdateGame(context.Background(), &models.Game{ID: 42, Title: "New", Genre: "RPG", Price: 5, PublisherID: 2})
	require.NoError(t, err)
	assert.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteGame(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM games WHERE game_id = $1 AND publisher_id = $2`)).
		WithArgs(int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.DeleteGame(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestGetOwnedGame_NotOwned(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE game_id = $1 AND publisher_id = $2`)).
		WithArgs(int64(42), int64(2)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetOwnedGame(context.Background(), 42, 2)
	assert.ErrorIs(t, err, ErrDBNotFound)
}

func TestListCartEntries_MarksMissingGames(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN games g ON g.game_id = c.game_id`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id", "user_id", "game_id", "title", "genre", "price", "available"}).
			AddRow(10, 1, 42, "Space", "Shooter", 19.5, true).
			AddRow(11, 1, 99, "", "", 0, false))

	entries, err := s.ListCartEntries(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Available)
	assert.False(t, entries[1].Available)
	assert.InDelta(t, 19.5, models.CartTotal(entries), 0.0001)
}

func TestCheckout_ConvertsLockedRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cart_id FROM cart WHERE user_id = $1 ORDER BY cart_id FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}).AddRow(10).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO purchases (user_id, game_id, purchase_date)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"purchase_id", "user_id", "game_id", "purchase_date"}).
			AddRow(100, 1, 42, now).
			AddRow(101, 1, 42, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart WHERE cart_id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	purchases, err := s.Checkout(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	assert.Equal(t, int64(100), purchases[0].ID)
	assert.Equal(t, int64(42), purchases[1].GameID)
	assert.True(t, purchases[0].PurchaseDate.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckout_EmptyCart(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}))
	mock.ExpectCommit()

	purchases, err := s.Checkout(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, purchases)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckout_RollsBackWhenCartChanged(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}).AddRow(10).AddRow(11))
	mock.ExpectQuery(`INSERT INTO purchases`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"purchase_id", "user_id", "game_id", "purchase_date"}).
			AddRow(100, 1, 42, now).
			AddRow(101, 1, 43, now))
	mock.ExpectExec(`DELETE FROM cart`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := s.Checkout(context.Background(), 1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckout_InsertFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}).AddRow(10))
	mock.ExpectQuery(`INSERT INTO purchases`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.Checkout(context.Background(), 1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrphanedCartEntries(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM cart c`).WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := s.DeleteOrphanedCartEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
