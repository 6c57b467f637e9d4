package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RolePublisher Role = "publisher"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RolePublisher:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IdentifierLabel is the human name of the role's unique identifier column.
func (r Role) IdentifierLabel() string {
	if r == RolePublisher {
		return "Publisher name"
	}
	return "Username"
}

// Dashboard is the landing page of the role after login.
func (r Role) Dashboard() string {
	if r == RolePublisher {
		return "/publisher"
	}
	return "/user"
}

// Account is a row of either the users or the publishers table.
type Account struct {
	ID           int64  `json:"id" db:"id"`
	Role         Role   `json:"role" db:"-"`
	Identifier   string `json:"identifier" db:"identifier"`
	PasswordHash string `json:"-" db:"password"`
}

type Game struct {
	ID          int64   `json:"game_id" db:"game_id"`
	Title       string  `json:"title" db:"title"`
	Genre       string  `json:"genre" db:"genre"`
	Price       float64 `json:"price" db:"price"`
	PublisherID int64   `json:"publisher_id" db:"publisher_id"`
}

// CartEntry is a cart row joined with the current game data. Available is
// false when the referenced game no longer exists.
type CartEntry struct {
	ID        int64   `json:"cart_id" db:"cart_id"`
	UserID    int64   `json:"user_id" db:"user_id"`
	GameID    int64   `json:"game_id" db:"game_id"`
	Title     string  `json:"title" db:"title"`
	Genre     string  `json:"genre" db:"genre"`
	Price     float64 `json:"price" db:"price"`
	Available bool    `json:"available" db:"available"`
}

type Purchase struct {
	ID           int64     `json:"purchase_id" db:"purchase_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	GameID       int64     `json:"game_id" db:"game_id"`
	PurchaseDate time.Time `json:"purchase_date" db:"purchase_date"`
	Title        string    `json:"title,omitempty" db:"title"`
	Genre        string    `json:"genre,omitempty" db:"genre"`
	Price        float64   `json:"price,omitempty" db:"price"`
	Available    bool      `json:"available" db:"available"`
}

// CartTotal sums the prices of the available entries.
func CartTotal(entries []CartEntry) float64 {
	var total float64
	for _, e := range entries {
		if e.Available {
			total += e.Price
		}
	}
	return total
}
