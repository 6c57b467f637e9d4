package handler

import (
	"errors"
	"net/http"

	"gamestore/internal/models"
	"gamestore/internal/service"
	"gamestore/internal/session"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
)

// ProfileHandler serves /profile/{who} and /delete_account/{who} for both
// roles. The router mounts one guarded route per role, so the session in the
// request context always carries the identity key of who.
type ProfileHandler struct {
	profiles *service.ProfileService
	sessions *session.Manager
	renderer *Renderer
}

func NewProfileHandler(profiles *service.ProfileService, sessions *session.Manager, renderer *Renderer) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, sessions: sessions, renderer: renderer}
}

type profilePage struct {
	Profile *models.Account
	Who     models.Role
	Label   string
	Error   string
}

func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	role, id, ok := h.identity(w, r)
	if !ok {
		return
	}

	account, err := h.profiles.ViewProfile(r.Context(), role, id)
	if err != nil {
		h.accountError(w, r, err)
		return
	}
	h.render(w, r, role, account, "")
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	role, id, ok := h.identity(w, r)
	if !ok {
		return
	}

	identifier := r.PostFormValue("username")
	err := h.profiles.UpdateProfile(r.Context(), role, id, identifier, r.PostFormValue("password"))
	if errors.Is(err, service.ErrDuplicateIdentifier) {
		account, viewErr := h.profiles.ViewProfile(r.Context(), role, id)
		if viewErr != nil {
			h.accountError(w, r, viewErr)
			return
		}
		h.render(w, r, role, account, role.IdentifierLabel()+" already exists")
		return
	}
	if err != nil {
		h.accountError(w, r, err)
		return
	}
	redirect(w, r, "/profile/"+string(role))
}

func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	role, id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.profiles.DeleteAccount(r.Context(), role, id); err != nil {
		h.renderer.ServerError(w, r, err)
		return
	}
	h.logout(w, r)
}

func (h *ProfileHandler) identity(w http.ResponseWriter, r *http.Request) (models.Role, int64, bool) {
	role, err := models.ParseRole(mux.Vars(r)["who"])
	if err != nil {
		h.renderer.Error(w, http.StatusNotFound)
		return "", 0, false
	}
	sess, _ := session.FromContext(r.Context())
	id := sess.IdentityFor(role)
	if id == 0 {
		redirect(w, r, "/")
		return "", 0, false
	}
	return role, id, true
}

// accountError handles an account that vanished under a live session by
// ending the session.
func (h *ProfileHandler) accountError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrAccountNotFound) {
		h.logout(w, r)
		return
	}
	h.renderer.ServerError(w, r, err)
}

func (h *ProfileHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to remove session state")
	}
	redirect(w, r, "/")
}

func (h *ProfileHandler) render(w http.ResponseWriter, r *http.Request, role models.Role, account *models.Account, msg string) {
	h.renderer.Render(w, r, http.StatusOK, "profile_"+string(role), profilePage{
		Profile: account,
		Who:     role,
		Label:   role.IdentifierLabel(),
		Error:   msg,
	})
}
