package handler

import (
	"net/http"

	"gamestore/internal/models"
	"gamestore/internal/service"
)

// ShopHandler serves the shopper pages behind the user access guard.
type ShopHandler struct {
	catalog  *service.CatalogService
	cart     *service.CartService
	renderer *Renderer
}

func NewShopHandler(catalog *service.CatalogService, cart *service.CartService, renderer *Renderer) *ShopHandler {
	return &ShopHandler{catalog: catalog, cart: cart, renderer: renderer}
}

type cartPage struct {
	Items []models.CartEntry
	Total float64
}

type purchasesPage struct {
	Purchases []models.Purchase
}

func (h *ShopHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	games, err := h.catalog.ListGames(r.Context(), search)
	if err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "user_dashboard", gamesPage{Games: games, Search: search})
}

func (h *ShopHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(r)
	if !ok {
		h.renderer.Error(w, http.StatusNotFound)
		return
	}
	if err := h.cart.AddToCart(r.Context(), userID(r), gameID); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/user")
}

func (h *ShopHandler) Cart(w http.ResponseWriter, r *http.Request) {
	h.cartPage(w, r, "cart")
}

func (h *ShopHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	h.cartPage(w, r, "confirm_checkout")
}

func (h *ShopHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.Checkout(r.Context(), userID(r)); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/purchases")
}

func (h *ShopHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.cart.ViewPurchases(r.Context(), userID(r))
	if err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "purchases", purchasesPage{Purchases: purchases})
}

func (h *ShopHandler) cartPage(w http.ResponseWriter, r *http.Request, page string) {
	items, err := h.cart.ViewCart(r.Context(), userID(r))
	if err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, page, cartPage{Items: items, Total: models.CartTotal(items)})
}
