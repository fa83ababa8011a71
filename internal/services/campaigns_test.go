package services

import (
	"context"
	"testing"
	"time"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaigns(t *testing.T, h *harness) *Campaigns {
	s := NewCampaigns(h.store, h.notify, logger.NewTestLogger(t))
	s.now = fixedClock
	return s
}

func hotSale() CampaignInput {
	return CampaignInput{
		Title:       "Hot Sale",
		Description: "Descuentos en todo Montevideo",
		StartsAt:    fixedNow.Add(-time.Hour),
		EndsAt:      fixedNow.Add(72 * time.Hour),
	}
}

func TestCampaigns_CreateValidation(t *testing.T) {
	h := newHarness(t)
	svc := newCampaigns(t, h)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, hotSale())
	requireCode(t, err, errors.ErrCodeForbidden)

	in := hotSale()
	in.Title = " "
	_, err = svc.Create(ctx, admin, in)
	requireCode(t, err, errors.ErrCodeValidationFailed)

	in = hotSale()
	in.EndsAt = in.StartsAt
	_, err = svc.Create(ctx, admin, in)
	requireCode(t, err, errors.ErrCodeValidationFailed)

	c, err := svc.Create(ctx, admin, CampaignInput{Title: "Sin fechas todavía"})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, c.Status)
}

func TestCampaigns_PublishFlow(t *testing.T) {
	h := newHarness(t)
	svc := newCampaigns(t, h)
	ctx := context.Background()
	h.store.addBusiness("b1", owner.UserID, models.BusinessApproved)
	h.store.addBusiness("b2", "owner-2", models.BusinessApproved)
	h.store.addBusiness("pending", "owner-3", models.BusinessPending)

	c, err := svc.Create(ctx, admin, hotSale())
	require.NoError(t, err)

	_, err = svc.Publish(ctx, admin, c.ID)
	requireCode(t, err, errors.ErrCodeValidationFailed)

	err = svc.AddParticipant(ctx, admin, c.ID, "pending", 10)
	requireCode(t, err, errors.ErrCodeValidationFailed)
	err = svc.AddParticipant(ctx, admin, c.ID, "b1", 101)
	requireCode(t, err, errors.ErrCodeValidationFailed)
	require.NoError(t, svc.AddParticipant(ctx, admin, c.ID, "b1", 20))

	// Not visible to the public while it is a draft.
	_, err = svc.Get(ctx, visitor, c.ID)
	requireCode(t, err, errors.ErrCodeNotFound)

	published, err := svc.Publish(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPublished, published.Status)
	assert.Equal(t, []string{owner.UserID}, h.store.recipientsOf(models.NotifyCampaign))

	_, err = svc.Publish(ctx, admin, c.ID)
	requireCode(t, err, errors.ErrCodeInvalidState)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, svc.Archive(ctx, admin, c.ID))
	require.NoError(t, svc.Archive(ctx, admin, c.ID), "archiving twice is a no-op")

	_, err = svc.Update(ctx, admin, c.ID, hotSale())
	requireCode(t, err, errors.ErrCodeInvalidState)
	err = svc.AddParticipant(ctx, admin, c.ID, "b2", 5)
	requireCode(t, err, errors.ErrCodeInvalidState)
}

func TestCampaigns_RequestJoinAndReview(t *testing.T) {
	h := newHarness(t)
	svc := newCampaigns(t, h)
	ctx := context.Background()
	h.store.addUser(admin.UserID, models.RoleSuperAdmin)
	h.store.addBusiness("b1", owner.UserID, models.BusinessApproved)
	h.store.addBusiness("b2", "owner-2", models.BusinessApproved)

	c, err := svc.Create(ctx, admin, hotSale())
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, admin, c.ID, "b2", 15))
	_, err = svc.Publish(ctx, admin, c.ID)
	require.NoError(t, err)

	err = svc.RequestJoin(ctx, visitor, c.ID, 10)
	requireCode(t, err, errors.ErrCodeNotFound)

	require.NoError(t, svc.RequestJoin(ctx, owner, c.ID, 10))
	assert.Equal(t, []string{admin.UserID}, h.store.recipientsOf(models.NotifyCampaignRequest))
	requireCode(t, svc.RequestJoin(ctx, owner, c.ID, 10), errors.ErrCodeConflict)

	// Pending requests stay hidden from the public page.
	public, err := svc.Get(ctx, visitor, c.ID)
	require.NoError(t, err)
	require.Len(t, public.Participants, 1)
	assert.Equal(t, "b2", public.Participants[0].BusinessID)

	requireCode(t, svc.ReviewParticipant(ctx, owner, c.ID, "b1", true), errors.ErrCodeForbidden)
	require.NoError(t, svc.ReviewParticipant(ctx, admin, c.ID, "b1", true))

	public, err = svc.Get(ctx, visitor, c.ID)
	require.NoError(t, err)
	assert.Len(t, public.Participants, 2)

	requireCode(t, svc.RemoveParticipant(ctx, owner, c.ID, "b2"), errors.ErrCodeForbidden)
	require.NoError(t, svc.RemoveParticipant(ctx, owner, c.ID, "b1"))
	requireCode(t, svc.RemoveParticipant(ctx, admin, c.ID, "b1"), errors.ErrCodeNotFound)

	_, err = svc.List(ctx, owner, "")
	requireCode(t, err, errors.ErrCodeForbidden)
	all, err := svc.List(ctx, admin, models.CampaignPublished)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCampaigns_EndedCampaignRejectsRequests(t *testing.T) {
	h := newHarness(t)
	svc := newCampaigns(t, h)
	ctx := context.Background()
	h.store.addBusiness("b1", owner.UserID, models.BusinessApproved)

	in := hotSale()
	in.StartsAt = fixedNow.Add(-48 * time.Hour)
	in.EndsAt = fixedNow
	c, err := svc.Create(ctx, admin, in)
	require.NoError(t, err)

	requireCode(t, svc.RequestJoin(ctx, owner, c.ID, 10), errors.ErrCodeInvalidState)
}

func TestCampaigns_GetHidesParticipantsOfUnlistedBusinesses(t *testing.T) {
	h := newHarness(t)
	svc := newCampaigns(t, h)
	ctx := context.Background()
	h.store.addBusiness("b1", owner.UserID, models.BusinessApproved)
	h.store.addBusiness("b2", "owner-2", models.BusinessApproved)

	c, err := svc.Create(ctx, admin, hotSale())
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, admin, c.ID, "b1", 10))
	require.NoError(t, svc.AddParticipant(ctx, admin, c.ID, "b2", 20))
	_, err = svc.Publish(ctx, admin, c.ID)
	require.NoError(t, err)

	h.store.businesses["b2"].Status = models.BusinessSuspended

	public, err := svc.Get(ctx, visitor, c.ID)
	require.NoError(t, err)
	require.Len(t, public.Participants, 1)
	assert.Equal(t, "b1", public.Participants[0].BusinessID)

	full, err := svc.Get(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.Len(t, full.Participants, 2)
}
