package api

import (
	"net/http"

	"tucomercio/internal/models"
	"tucomercio/internal/services"
)

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := h.decode(r, "user.register", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.Users.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := h.decode(r, "auth.login", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	tokens, err := h.svc.Users.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := h.decode(r, "auth.refresh", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	tokens, err := h.svc.Users.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Me(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DisplayName string `json:"displayName"`
		Phone       string `json:"phone"`
	}
	if err := h.decode(r, "user.profile", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.Users.UpdateProfile(r.Context(), principal(r), in.DisplayName, in.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	role := models.Role(r.URL.Query().Get("role"))
	users, err := h.svc.Users.List(r.Context(), principal(r), role, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) provisionUser(w http.ResponseWriter, r *http.Request) {
	var in services.ProvisionInput
	if err := h.decode(r, "user.provision", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.Users.Provision(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) setUserDisabled(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Disabled bool `json:"disabled"`
	}
	if err := h.decode(r, "user.disable", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Users.SetDisabled(r.Context(), principal(r), pathVar(r, "id"), in.Disabled); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Dashboard.AdminStats(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) businessStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Dashboard.BusinessStats(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
