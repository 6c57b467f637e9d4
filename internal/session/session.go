// Package session keeps per-browser Session State on the server and ties it
// to the browser with a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gamestore/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const CookieName = "gamestore_session"

type Session struct {
	ID          string      `json:"id"`
	Role        models.Role `json:"role"`
	UserID      int64       `json:"user_id,omitempty"`
	PublisherID int64       `json:"publisher_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IdentityFor returns the identity key stored for role, or 0 when absent.
func (s *Session) IdentityFor(role models.Role) int64 {
	if s == nil {
		return 0
	}
	switch role {
	case models.RoleUser:
		return s.UserID
	case models.RolePublisher:
		return s.PublisherID
	default:
		return 0
	}
}

// Store persists sessions. GetSession returns nil, nil for unknown ids.
type Store interface {
	SaveSession(ctx context.Context, sess *Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	logger zerolog.Logger
	now    func() time.Time
}

func NewManager(store Store, secret string, ttl time.Duration, secure bool, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
}

// Start replaces any current session of the browser with a fresh one holding
// role and its identity id.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, role models.Role, id int64) (*Session, error) {
	if prev, ok := m.sessionID(r); ok {
		if err := m.store.DeleteSession(r.Context(), prev); err != nil {
			m.logger.Warn().Err(err).Msg("failed to drop previous session")
		}
	}

	now := m.now()
	sess := &Session{ID: uuid.NewString(), Role: role, CreatedAt: now}
	switch role {
	case models.RoleUser:
		sess.UserID = id
	case models.RolePublisher:
		sess.PublisherID = id
	default:
		return nil, fmt.Errorf("cannot start session for role %q", role)
	}

	if err := m.store.SaveSession(r.Context(), sess, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := m.sign(sess.ID, now)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// Load returns the session bound to the request cookie, or nil when the
// browser has no valid session.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	if sess, ok := FromContext(r.Context()); ok {
		return sess, nil
	}
	id, ok := m.sessionID(r)
	if !ok {
		return nil, nil
	}
	sess, err := m.store.GetSession(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// Destroy removes the server-side state and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	id, ok := m.sessionID(r)
	if !ok {
		return nil
	}
	if err := m.store.DeleteSession(r.Context(), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Require is the access guard: the wrapped handler only runs when the session
// carries the identity key of role. Everything else, store failures
// included, is redirected to the login page.
func (m *Manager) Require(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := m.Load(r)
			if err != nil {
				m.logger.Error().Err(err).Str("path", r.URL.Path).Msg("session lookup failed")
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			if sess.IdentityFor(role) == 0 {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func (m *Manager) sign(sessionID string, now time.Time) (string, error) {
	c := &claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    "gamestore",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return token, nil
}

func (m *Manager) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	parsed := &claims{}
	_, err = jwt.ParseWithClaims(cookie.Value, parsed, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			m.logger.Debug().Err(err).Msg("rejected session cookie")
		}
		return "", false
	}
	if parsed.SessionID == "" {
		return "", false
	}
	return parsed.SessionID, true
}

type contextKey struct{}

func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
