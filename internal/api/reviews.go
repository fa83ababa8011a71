package api

import (
	"net/http"

	"tucomercio/internal/services"
)

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	reviews, err := h.svc.Reviews.ListForBusiness(r.Context(), principal(r), pathVar(r, "id"), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *handler) myReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.svc.Reviews.ListMine(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *handler) upsertReview(w http.ResponseWriter, r *http.Request) {
	var in services.ReviewInput
	if err := h.decode(r, "review.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.svc.Reviews.Upsert(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reviews.Delete(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) replyReview(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := h.decode(r, "review.reply", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	review, err := h.svc.Reviews.Reply(r.Context(), principal(r), pathVar(r, "id"), in.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *handler) setReviewHidden(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Hidden bool `json:"hidden"`
	}
	if err := h.decode(r, "review.hidden", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.svc.Reviews.SetHidden(r.Context(), principal(r), pathVar(r, "id"), in.Hidden)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *handler) myFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.svc.Favorites.List(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

func (h *handler) isFavorite(w http.ResponseWriter, r *http.Request) {
	fav, err := h.svc.Favorites.IsFavorite(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

func (h *handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Favorites.Toggle(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Favorites.Add(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Favorites.Remove(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
