package api

import (
	"net/http"

	"tucomercio/internal/models"
	"tucomercio/internal/services"
)

func businessFilter(r *http.Request) (models.BusinessFilter, error) {
	q := r.URL.Query()
	featured, err := queryBool(r, "featured")
	if err != nil {
		return models.BusinessFilter{}, err
	}
	page, size := pagination(r)
	return models.BusinessFilter{
		Category:   q.Get("category"),
		Department: q.Get("department"),
		City:       q.Get("city"),
		Featured:   featured,
		Text:       q.Get("q"),
		Status:     models.BusinessStatus(q.Get("status")),
		Page:       page,
		PageSize:   size,
	}, nil
}

func (h *handler) listBusinesses(w http.ResponseWriter, r *http.Request) {
	f, err := businessFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Businesses.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) adminListBusinesses(w http.ResponseWriter, r *http.Request) {
	f, err := businessFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Businesses.AdminList(r.Context(), principal(r), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) getBusiness(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Businesses.Get(r.Context(), principal(r), pathVar(r, "idOrSlug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) myBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Businesses.Mine(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) createBusiness(w http.ResponseWriter, r *http.Request) {
	var in services.BusinessInput
	if err := h.decode(r, "business.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Businesses.Create(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *handler) updateBusiness(w http.ResponseWriter, r *http.Request) {
	var in services.BusinessInput
	if err := h.decode(r, "business.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Businesses.Update(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) presignUpload(w http.ResponseWriter, r *http.Request) {
	var in services.UploadRequest
	if err := h.decode(r, "upload.presign", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	upload, err := h.svc.Businesses.PresignUpload(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (h *handler) setBusinessStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.BusinessStatus `json:"status"`
		Reason string                `json:"reason"`
	}
	if err := h.decode(r, "business.status", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Businesses.SetStatus(r.Context(), principal(r), pathVar(r, "id"), in.Status, in.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) assignPlan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlanID *string `json:"planId"`
	}
	if err := h.decode(r, "business.plan", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Businesses.AssignPlan(r.Context(), principal(r), pathVar(r, "id"), in.PlanID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setFeatured(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Featured bool `json:"featured"`
	}
	if err := h.decode(r, "business.featured", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Businesses.SetFeatured(r.Context(), principal(r), pathVar(r, "id"), in.Featured); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Businesses.Delete(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.svc.Promotions.ListForBusiness(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promos)
}

func (h *handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	in := services.PromotionInput{Active: true}
	if err := h.decode(r, "promotion.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	promo, err := h.svc.Promotions.Create(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, promo)
}

func (h *handler) updatePromotion(w http.ResponseWriter, r *http.Request) {
	in := services.PromotionInput{Active: true}
	if err := h.decode(r, "promotion.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	promo, err := h.svc.Promotions.Update(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promo)
}

func (h *handler) deletePromotion(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Promotions.Delete(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
