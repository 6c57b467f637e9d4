package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"gamestore/internal/models"
	"gamestore/internal/service"
	"gamestore/internal/session"

	"github.com/gorilla/mux"
)

// PublisherHandler serves the game management pages. Every route is mounted
// behind the publisher access guard.
type PublisherHandler struct {
	catalog  *service.CatalogService
	renderer *Renderer
}

func NewPublisherHandler(catalog *service.CatalogService, renderer *Renderer) *PublisherHandler {
	return &PublisherHandler{catalog: catalog, renderer: renderer}
}

type gamesPage struct {
	Games  []models.Game
	Search string
}

type gamePage struct {
	Game *models.Game
}

func (h *PublisherHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	games, err := h.catalog.ListPublisherGames(r.Context(), publisherID(r))
	if err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "publisher_dashboard", gamesPage{Games: games})
}

func (h *PublisherHandler) AddGame(w http.ResponseWriter, r *http.Request) {
	title, genre, price, ok := gameForm(r)
	if !ok {
		h.renderer.Error(w, http.StatusBadRequest)
		return
	}
	if _, err := h.catalog.AddGame(r.Context(), publisherID(r), title, genre, price); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/publisher")
}

func (h *PublisherHandler) EditGameForm(w http.ResponseWriter, r *http.Request) {
	h.ownedGamePage(w, r, "edit_game")
}

func (h *PublisherHandler) EditGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(r)
	if !ok {
		h.renderer.Error(w, http.StatusNotFound)
		return
	}
	title, genre, price, ok := gameForm(r)
	if !ok {
		h.renderer.Error(w, http.StatusBadRequest)
		return
	}

	game := &models.Game{ID: gameID, Title: title, Genre: genre, Price: price, PublisherID: publisherID(r)}
	if _, err := h.catalog.EditGame(r.Context(), game); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/publisher")
}

func (h *PublisherHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	h.ownedGamePage(w, r, "confirm_delete")
}

func (h *PublisherHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(r)
	if !ok {
		h.renderer.Error(w, http.StatusNotFound)
		return
	}
	if _, err := h.catalog.DeleteGame(r.Context(), gameID, publisherID(r)); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/publisher")
}

// ownedGamePage renders a page about one of the caller's games, or sends the
// publisher back to the dashboard when the game is not theirs.
func (h *PublisherHandler) ownedGamePage(w http.ResponseWriter, r *http.Request, page string) {
	gameID, ok := pathID(r)
	if !ok {
		h.renderer.Error(w, http.StatusNotFound)
		return
	}
	game, err := h.catalog.GetOwnedGame(r.Context(), gameID, publisherID(r))
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			redirect(w, r, "/publisher")
			return
		}
		h.renderer.ServerError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, page, gamePage{Game: game})
}

func gameForm(r *http.Request) (title, genre string, price float64, ok bool) {
	price, err := strconv.ParseFloat(strings.TrimSpace(r.PostFormValue("price")), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return "", "", 0, false
	}
	return r.PostFormValue("title"), r.PostFormValue("genre"), price, true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func publisherID(r *http.Request) int64 {
	sess, _ := session.FromContext(r.Context())
	return sess.IdentityFor(models.RolePublisher)
}

func userID(r *http.Request) int64 {
	sess, _ := session.FromContext(r.Context())
	return sess.IdentityFor(models.RoleUser)
}
