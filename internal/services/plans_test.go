package services

import (
	"context"
	"testing"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlans_Lifecycle(t *testing.T) {
	svc := NewPlans(newMemStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, models.Plan{Name: "premium"})
	requireCode(t, err, errors.ErrCodeForbidden)
	_, err = svc.Create(ctx, admin, models.Plan{Name: "  "})
	requireCode(t, err, errors.ErrCodeValidationFailed)
	_, err = svc.Create(ctx, admin, models.Plan{Name: "premium", MaxImages: -1})
	requireCode(t, err, errors.ErrCodeValidationFailed)

	premium, err := svc.Create(ctx, admin, models.Plan{Name: " premium ", PriceUYU: 990, MaxImages: 20, MaxPromotions: 5, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "premium", premium.Name)
	assert.NotEmpty(t, premium.ID)

	_, err = svc.Create(ctx, admin, models.Plan{Name: "premium", Active: true})
	requireCode(t, err, errors.ErrCodeConflict)

	updated, err := svc.Update(ctx, admin, premium.ID, models.Plan{Name: "premium", PriceUYU: 1290, MaxImages: 20, MaxPromotions: 5, Active: true})
	require.NoError(t, err)
	assert.Equal(t, premium.ID, updated.ID)

	_, err = svc.Update(ctx, admin, "missing", models.Plan{Name: "x"})
	requireCode(t, err, errors.ErrCodeNotFound)

	require.NoError(t, svc.Deactivate(ctx, admin, premium.ID))

	visible, err := svc.List(ctx, owner, true)
	require.NoError(t, err)
	assert.Empty(t, visible, "only superadmins see inactive plans")

	all, err := svc.List(ctx, admin, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	got, err := svc.Get(ctx, premium.ID)
	require.NoError(t, err)
	assert.Equal(t, 1290.0, got.PriceUYU)
}
