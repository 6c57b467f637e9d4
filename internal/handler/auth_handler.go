package handler

import (
	"errors"
	"fmt"
	"net/http"

	"gamestore/internal/models"
	"gamestore/internal/service"
	"gamestore/internal/session"

	"github.com/rs/zerolog/hlog"
)

type AuthHandler struct {
	auth     *service.AuthService
	sessions *session.Manager
	renderer *Renderer
}

func NewAuthHandler(auth *service.AuthService, sessions *session.Manager, renderer *Renderer) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		renderer: renderer,
	}
}

type formPage struct {
	Error string
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "login", formPage{})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(r.PostFormValue("role"))
	if err != nil {
		h.renderer.Error(w, http.StatusBadRequest)
		return
	}

	account, err := h.auth.Login(r.Context(), role, r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.renderer.Render(w, r, http.StatusOK, "login", formPage{Error: fmt.Sprintf("Invalid %s credentials", role)})
			return
		}
		h.renderer.ServerError(w, r, err)
		return
	}

	if _, err := h.sessions.Start(w, r, role, account.ID); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, role.Dashboard())
}

func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "register", formPage{})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(r.PostFormValue("role"))
	if err != nil {
		h.renderer.Error(w, http.StatusBadRequest)
		return
	}

	_, err = h.auth.Register(r.Context(), role, r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, service.ErrDuplicateIdentifier) {
			h.renderer.Render(w, r, http.StatusOK, "register", formPage{Error: role.IdentifierLabel() + " already exists"})
			return
		}
		h.renderer.ServerError(w, r, err)
		return
	}
	redirect(w, r, "/")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("logout could not remove session state")
	}
	redirect(w, r, "/")
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
