package api

import (
	"net/http"

	"tucomercio/internal/models"
	"tucomercio/internal/services"
)

func (h *handler) activeCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.svc.Campaigns.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (h *handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Campaigns.Get(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) adminListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := models.CampaignStatus(r.URL.Query().Get("status"))
	campaigns, err := h.svc.Campaigns.List(r.Context(), principal(r), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (h *handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	var in services.CampaignInput
	if err := h.decode(r, "campaign.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Campaigns.Create(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var in services.CampaignInput
	if err := h.decode(r, "campaign.upsert", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Campaigns.Update(r.Context(), principal(r), pathVar(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) publishCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Campaigns.Publish(r.Context(), principal(r), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) archiveCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Campaigns.Archive(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type participantBody struct {
	BusinessID string `json:"businessId"`
	Discount   int    `json:"discount"`
}

func (h *handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	var in participantBody
	if err := h.decode(r, "campaign.participant", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Campaigns.AddParticipant(r.Context(), principal(r), pathVar(r, "id"), in.BusinessID, in.Discount); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) requestJoinCampaign(w http.ResponseWriter, r *http.Request) {
	var in participantBody
	if err := h.decode(r, "campaign.participant", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Campaigns.RequestJoin(r.Context(), principal(r), pathVar(r, "id"), in.Discount); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) reviewParticipant(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Approve bool `json:"approve"`
	}
	if err := h.decode(r, "campaign.review", &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Campaigns.ReviewParticipant(r.Context(), principal(r), pathVar(r, "id"), pathVar(r, "businessId"), in.Approve); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Campaigns.RemoveParticipant(r.Context(), principal(r), pathVar(r, "id"), pathVar(r, "businessId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans.List(r.Context(), principal(r), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *handler) adminListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans.List(r.Context(), principal(r), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	plan := models.Plan{Active: true}
	if err := h.decode(r, "plan.upsert", &plan); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Plans.Create(r.Context(), principal(r), plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updatePlan(w http.ResponseWriter, r *http.Request) {
	plan := models.Plan{Active: true}
	if err := h.decode(r, "plan.upsert", &plan); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.svc.Plans.Update(r.Context(), principal(r), pathVar(r, "id"), plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deactivatePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Plans.Deactivate(r.Context(), principal(r), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
