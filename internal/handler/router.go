package handler

import (
	"net/http"

	"gamestore/internal/metrics"
	"gamestore/internal/models"
	"gamestore/internal/service"
	"gamestore/internal/session"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Deps is everything the router needs to build the handlers.
type Deps struct {
	Logger      zerolog.Logger
	Auth        *service.AuthService
	Catalog     *service.CatalogService
	Cart        *service.CartService
	Profiles    *service.ProfileService
	Sessions    *session.Manager
	Metrics     *metrics.Metrics
	RateLimiter *RateLimiter
	Health      map[string]Pinger
}

func NewRouter(deps Deps) (*mux.Router, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	auth := NewAuthHandler(deps.Auth, deps.Sessions, renderer)
	publisher := NewPublisherHandler(deps.Catalog, renderer)
	shop := NewShopHandler(deps.Catalog, deps.Cart, renderer)
	profile := NewProfileHandler(deps.Profiles, deps.Sessions, renderer)
	health := NewHealthHandler(deps.Health)

	r := mux.NewRouter()
	r.Use(RequestLogger(deps.Logger), Recoverer(renderer), MetricsMiddleware(deps.Metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		renderer.Error(w, http.StatusNotFound)
	})

	limited := func(h http.HandlerFunc) http.Handler {
		if deps.RateLimiter == nil {
			return h
		}
		return deps.RateLimiter.Handler(h)
	}

	r.HandleFunc("/", auth.LoginForm).Methods(http.MethodGet)
	r.Handle("/", limited(auth.Login)).Methods(http.MethodPost)
	r.HandleFunc("/register", auth.RegisterForm).Methods(http.MethodGet)
	r.Handle("/register", limited(auth.Register)).Methods(http.MethodPost)
	r.HandleFunc("/logout", auth.Logout).Methods(http.MethodGet)

	pub := r.NewRoute().Subrouter()
	pub.Use(deps.Sessions.Require(models.RolePublisher))
	pub.HandleFunc("/publisher", publisher.Dashboard).Methods(http.MethodGet)
	pub.HandleFunc("/add_game", publisher.AddGame).Methods(http.MethodPost)
	pub.HandleFunc("/edit_game/{id:[0-9]+}", publisher.EditGameForm).Methods(http.MethodGet)
	pub.HandleFunc("/edit_game/{id:[0-9]+}", publisher.EditGame).Methods(http.MethodPost)
	pub.HandleFunc("/delete_game/{id:[0-9]+}", publisher.ConfirmDelete).Methods(http.MethodGet)
	pub.HandleFunc("/delete_game/{id:[0-9]+}", publisher.DeleteGame).Methods(http.MethodPost)

	usr := r.NewRoute().Subrouter()
	usr.Use(deps.Sessions.Require(models.RoleUser))
	usr.HandleFunc("/user", shop.Dashboard).Methods(http.MethodGet)
	usr.HandleFunc("/add_to_cart/{id:[0-9]+}", shop.AddToCart).Methods(http.MethodPost)
	usr.HandleFunc("/cart", shop.Cart).Methods(http.MethodGet)
	usr.HandleFunc("/checkout", shop.ConfirmCheckout).Methods(http.MethodGet)
	usr.HandleFunc("/checkout", shop.Checkout).Methods(http.MethodPost)
	usr.HandleFunc("/purchases", shop.Purchases).Methods(http.MethodGet)

	for _, role := range []models.Role{models.RoleUser, models.RolePublisher} {
		guard := deps.Sessions.Require(role)
		who := "{who:" + string(role) + "}"
		r.Handle("/profile/"+who, guard(http.HandlerFunc(profile.Profile))).Methods(http.MethodGet)
		r.Handle("/profile/"+who, guard(http.HandlerFunc(profile.UpdateProfile))).Methods(http.MethodPost)
		r.Handle("/delete_account/"+who, guard(http.HandlerFunc(profile.DeleteAccount))).Methods(http.MethodPost)
	}

	r.HandleFunc("/healthz", health.Health).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	return r, nil
}
