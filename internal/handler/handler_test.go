package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gamestore/internal/events"
	"gamestore/internal/handler"
	"gamestore/internal/metrics"
	"gamestore/internal/models"
	"gamestore/internal/service"
	"gamestore/internal/session"
	"gamestore/internal/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	server *httptest.Server
	store  *memory.Store
}

func newTestApp(t *testing.T, limiter *handler.RateLimiter) *testApp {
	t.Helper()
	st := memory.New()
	logger := zerolog.Nop()
	m := metrics.New()
	hasher := service.NewPasswordHasher(bcrypt.MinCost)

	router, err := handler.NewRouter(handler.Deps{
		Logger:      logger,
		Auth:        service.NewAuthService(logger, st, hasher, m),
		Catalog:     service.NewCatalogService(logger, st),
		Cart:        service.NewCartService(logger, st, events.NopPublisher{}, m),
		Profiles:    service.NewProfileService(logger, st, hasher),
		Sessions:    session.NewManager(st, "handler-test-secret-0123456789", time.Hour, false, logger),
		Metrics:     m,
		RateLimiter: limiter,
		Health:      map[string]handler.Pinger{"memory": st},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, store: st}
}

// browser is a client with its own cookie jar that does not follow redirects.
type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:   t,
		app: a,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.app.server.URL+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.app.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func credentials(role models.Role, name, password string) url.Values {
	return url.Values{"role": {string(role)}, "username": {name}, "password": {password}}
}

func (b *browser) registerAndLogin(role models.Role, name, password string) {
	b.t.Helper()
	resp := b.post("/register", credentials(role, name, password))
	require.Equal(b.t, http.StatusSeeOther, resp.status)
	require.Equal(b.t, "/", resp.location)

	resp = b.post("/", credentials(role, name, password))
	require.Equal(b.t, http.StatusSeeOther, resp.status)
	require.Equal(b.t, role.Dashboard(), resp.location)
}

func (a *testApp) gameID(t *testing.T, title string) int64 {
	t.Helper()
	games, err := a.store.ListGames(context.Background(), title)
	require.NoError(t, err)
	require.Len(t, games, 1)
	return games[0].ID
}

func (a *testApp) accountID(t *testing.T, role models.Role, identifier string) int64 {
	t.Helper()
	acc, err := a.store.GetAccountByIdentifier(context.Background(), role, identifier)
	require.NoError(t, err)
	return acc.ID
}

func TestShopperScenario(t *testing.T) {
	app := newTestApp(t, nil)

	pub := app.browser(t)
	pub.registerAndLogin(models.RolePublisher, "acme", "pw")
	resp := pub.post("/add_game", url.Values{"title": {"Space Quest"}, "genre": {"Adventure"}, "price": {"19.99"}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/publisher", resp.location)
	gameID := app.gameID(t, "Space Quest")

	alice := app.browser(t)
	alice.registerAndLogin(models.RoleUser, "alice", "pw1")

	resp = alice.get("/user?search=Space")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Space Quest")

	for i := 0; i < 2; i++ {
		resp = alice.post(fmt.Sprintf("/add_to_cart/%d", gameID), nil)
		require.Equal(t, http.StatusSeeOther, resp.status)
		assert.Equal(t, "/user", resp.location)
	}

	resp = alice.get("/cart")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, 2, strings.Count(resp.body, `class="cart-item"`))
	assert.Contains(t, resp.body, "Total: 39.98")

	resp = alice.get("/checkout")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Confirm purchase")
	assert.Equal(t, 2, app.store.CartSize(app.accountID(t, models.RoleUser, "alice")), "confirmation page changes nothing")

	resp = alice.post("/checkout", nil)
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/purchases", resp.location)

	resp = alice.get("/purchases")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, 2, strings.Count(resp.body, `class="purchase"`))

	resp = alice.get("/cart")
	assert.Contains(t, resp.body, "Your cart is empty.")

	resp = alice.post("/checkout", nil)
	require.Equal(t, http.StatusSeeOther, resp.status, "checking out an empty cart is harmless")
	resp = alice.get("/purchases")
	assert.Equal(t, 2, strings.Count(resp.body, `class="purchase"`))
}

func TestNewPublisherSeesEmptyDashboard(t *testing.T) {
	app := newTestApp(t, nil)
	bob := app.browser(t)
	bob.registerAndLogin(models.RolePublisher, "bob", "pw")

	resp := bob.get("/publisher")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "You have not listed any games yet.")
}

func TestLoginErrors(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)
	require.Equal(t, http.StatusSeeOther, b.post("/register", credentials(models.RoleUser, "alice", "pw1")).status)

	resp := b.post("/", credentials(models.RoleUser, "alice", "wrong"))
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Invalid user credentials")

	resp = b.post("/", credentials(models.RolePublisher, "alice", "pw1"))
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Invalid publisher credentials")

	resp = b.post("/", url.Values{"role": {"admin"}, "username": {"alice"}, "password": {"pw1"}})
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestRegisterDuplicate(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)
	require.Equal(t, http.StatusSeeOther, b.post("/register", credentials(models.RolePublisher, "acme", "pw")).status)

	resp := b.post("/register", credentials(models.RolePublisher, "acme", "pw2"))
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Publisher name already exists")
}

func TestAccessGuards(t *testing.T) {
	app := newTestApp(t, nil)
	anon := app.browser(t)
	for _, path := range []string{"/publisher", "/user", "/cart", "/checkout", "/purchases", "/profile/user", "/profile/publisher", "/edit_game/1"} {
		resp := anon.get(path)
		assert.Equal(t, http.StatusSeeOther, resp.status, path)
		assert.Equal(t, "/", resp.location, path)
	}

	user := app.browser(t)
	user.registerAndLogin(models.RoleUser, "alice", "pw")
	resp := user.get("/publisher")
	assert.Equal(t, http.StatusSeeOther, resp.status)
	resp = user.post("/add_game", url.Values{"title": {"x"}, "price": {"1"}})
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, 0, len(mustListGames(t, app)))

	pub := app.browser(t)
	pub.registerAndLogin(models.RolePublisher, "acme", "pw")
	assert.Equal(t, http.StatusSeeOther, pub.get("/cart").status)
}

func mustListGames(t *testing.T, app *testApp) []models.Game {
	t.Helper()
	games, err := app.store.ListGames(context.Background(), "")
	require.NoError(t, err)
	return games
}

func TestPublisherCannotTouchForeignGames(t *testing.T) {
	app := newTestApp(t, nil)

	owner := app.browser(t)
	owner.registerAndLogin(models.RolePublisher, "acme", "pw")
	require.Equal(t, http.StatusSeeOther, owner.post("/add_game", url.Values{"title": {"Mine"}, "genre": {"RPG"}, "price": {"5"}}).status)
	gameID := app.gameID(t, "Mine")

	other := app.browser(t)
	other.registerAndLogin(models.RolePublisher, "globex", "pw")

	resp := other.get(fmt.Sprintf("/edit_game/%d", gameID))
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/publisher", resp.location)

	resp = other.post(fmt.Sprintf("/edit_game/%d", gameID), url.Values{"title": {"Stolen"}, "genre": {"RPG"}, "price": {"0"}})
	assert.Equal(t, http.StatusSeeOther, resp.status)
	resp = other.post(fmt.Sprintf("/delete_game/%d", gameID), nil)
	assert.Equal(t, http.StatusSeeOther, resp.status)

	games := mustListGames(t, app)
	require.Len(t, games, 1)
	assert.Equal(t, "Mine", games[0].Title)

	resp = owner.get(fmt.Sprintf("/delete_game/%d", gameID))
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Mine")
	assert.Len(t, mustListGames(t, app), 1, "confirmation page changes nothing")

	resp = owner.post(fmt.Sprintf("/edit_game/%d", gameID), url.Values{"title": {"Mine II"}, "genre": {"RPG"}, "price": {"7.5"}})
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "Mine II", mustListGames(t, app)[0].Title)

	resp = owner.post(fmt.Sprintf("/delete_game/%d", gameID), nil)
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Empty(t, mustListGames(t, app))
}

func TestAddGameRejectsBadPrice(t *testing.T) {
	app := newTestApp(t, nil)
	pub := app.browser(t)
	pub.registerAndLogin(models.RolePublisher, "acme", "pw")

	for _, price := range []string{"", "abc", "NaN"} {
		resp := pub.post("/add_game", url.Values{"title": {"x"}, "price": {price}})
		assert.Equal(t, http.StatusBadRequest, resp.status, price)
	}
	assert.Empty(t, mustListGames(t, app))
}

func TestRoutingRules(t *testing.T) {
	app := newTestApp(t, nil)
	user := app.browser(t)
	user.registerAndLogin(models.RoleUser, "alice", "pw")

	assert.Equal(t, http.StatusMethodNotAllowed, user.get("/add_to_cart/1").status)
	assert.Equal(t, http.StatusNotFound, user.post("/add_to_cart/abc", nil).status)
	assert.Equal(t, http.StatusNotFound, user.get("/profile/admin").status)
	assert.Equal(t, http.StatusNotFound, user.get("/no-such-page").status)
}

func TestCartShowsUnavailableGames(t *testing.T) {
	app := newTestApp(t, nil)
	user := app.browser(t)
	user.registerAndLogin(models.RoleUser, "alice", "pw")

	require.Equal(t, http.StatusSeeOther, user.post("/add_to_cart/999", nil).status)
	resp := user.get("/cart")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Unavailable game #999")
	assert.Contains(t, resp.body, "Total: 0.00")
}

func TestUserDashboardEmptySearch(t *testing.T) {
	app := newTestApp(t, nil)
	user := app.browser(t)
	user.registerAndLogin(models.RoleUser, "alice", "pw")

	resp := user.get("/user?search=Nothing")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "No games found.")
}

func TestProfileFlow(t *testing.T) {
	app := newTestApp(t, nil)
	require.Equal(t, http.StatusSeeOther, app.browser(t).post("/register", credentials(models.RoleUser, "bob", "pw")).status)

	alice := app.browser(t)
	alice.registerAndLogin(models.RoleUser, "alice", "pw1")

	resp := alice.get("/profile/user")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `value="alice"`)
	assert.Contains(t, resp.body, "Username")

	resp = alice.post("/profile/user", url.Values{"username": {"bob"}, "password": {""}})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Username already exists")

	resp = alice.post("/profile/user", url.Values{"username": {"alicia"}, "password": {""}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/profile/user", resp.location)

	assert.Equal(t, http.StatusSeeOther, alice.get("/profile/publisher").status, "no publisher key in this session")

	resp = alice.post("/delete_account/user", nil)
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/", resp.location)
	assert.Equal(t, http.StatusSeeOther, alice.get("/cart").status, "deleting the account logs out")

	again := app.browser(t)
	resp = again.post("/", credentials(models.RoleUser, "alicia", "pw1"))
	assert.Contains(t, resp.body, "Invalid user credentials")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)
	b.registerAndLogin(models.RoleUser, "alice", "pw")
	require.Equal(t, 1, app.store.SessionCount())

	resp := b.get("/logout")
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, 0, app.store.SessionCount())
	assert.Equal(t, http.StatusSeeOther, b.get("/user").status)
}

func TestServerErrorPage(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)
	b.registerAndLogin(models.RoleUser, "alice", "pw")

	app.store.FailNext("ListCartEntries", errors.New("pq: relation \"cart\" does not exist"))
	resp := b.get("/cart")
	assert.Equal(t, http.StatusInternalServerError, resp.status)
	assert.Contains(t, resp.body, "Something went wrong")
	assert.NotContains(t, resp.body, "relation")
}

func TestLongPassword(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)
	long := strings.Repeat("x", 100)
	b.registerAndLogin(models.RoleUser, "alice", long)

	resp := b.post("/profile/user", url.Values{"username": {"alice"}, "password": {strings.Repeat("y", 150)}})
	require.Equal(t, http.StatusSeeOther, resp.status)

	again := app.browser(t)
	resp = again.post("/", credentials(models.RoleUser, "alice", strings.Repeat("y", 150)))
	assert.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/user", resp.location)
}

func TestPublisherStoreFailures(t *testing.T) {
	app := newTestApp(t, nil)
	pub := app.browser(t)
	pub.registerAndLogin(models.RolePublisher, "acme", "pw")
	require.Equal(t, http.StatusSeeOther, pub.post("/add_game", url.Values{"title": {"Mine"}, "genre": {"RPG"}, "price": {"5"}}).status)
	gameID := app.gameID(t, "Mine")

	app.store.FailNext("GetOwnedGame", errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, pub.get(fmt.Sprintf("/edit_game/%d", gameID)).status)

	app.store.FailNext("UpdateGame", errors.New("db down"))
	resp := pub.post(fmt.Sprintf("/edit_game/%d", gameID), url.Values{"title": {"Mine II"}, "genre": {"RPG"}, "price": {"5"}})
	assert.Equal(t, http.StatusInternalServerError, resp.status)

	app.store.FailNext("DeleteGame", errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, pub.post(fmt.Sprintf("/delete_game/%d", gameID), nil).status)

	games := mustListGames(t, app)
	require.Len(t, games, 1)
	assert.Equal(t, "Mine", games[0].Title)
}

func TestLoginRateLimited(t *testing.T) {
	app := newTestApp(t, handler.NewRateLimiter(0.001, 2, zerolog.Nop()))
	b := app.browser(t)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, b.post("/", credentials(models.RoleUser, "x", "y")).status)
	}
	assert.Equal(t, http.StatusTooManyRequests, b.post("/", credentials(models.RoleUser, "x", "y")).status)
	assert.Equal(t, http.StatusOK, b.get("/").status, "the login form itself is not limited")
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.browser(t)

	resp := b.get("/healthz")
	require.Equal(t, http.StatusOK, resp.status)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.body), &body))
	assert.Equal(t, "ok", body["status"])

	resp = b.get("/metrics")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "gamestore_http_requests_total")
}
