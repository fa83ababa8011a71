package services

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentity records calls; set the func fields to override a method.
type fakeIdentity struct {
	created  []*auth.User
	roles    map[string]string
	enabled  map[string]bool
	deleted  []string
	assignFn func(userID, role string) error
	loginFn  func(username, password string) (*auth.TokenResponse, error)
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{roles: map[string]string{}, enabled: map[string]bool{}}
}

func (f *fakeIdentity) CreateUser(_ context.Context, u *auth.User) (string, error) {
	for _, existing := range f.created {
		if existing.Email == u.Email {
			return "", errors.NewConflictError("a user with this email already exists")
		}
	}
	f.created = append(f.created, u)
	return "kc-" + u.Email, nil
}

func (f *fakeIdentity) AssignRealmRole(_ context.Context, userID, role string) error {
	if f.assignFn != nil {
		return f.assignFn(userID, role)
	}
	f.roles[userID] = role
	return nil
}

func (f *fakeIdentity) SetEnabled(_ context.Context, userID string, enabled bool) error {
	f.enabled[userID] = enabled
	return nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeIdentity) PasswordLogin(_ context.Context, username, password string) (*auth.TokenResponse, error) {
	if f.loginFn != nil {
		return f.loginFn(username, password)
	}
	return &auth.TokenResponse{AccessToken: "access-" + username, RefreshToken: "refresh"}, nil
}

func (f *fakeIdentity) Refresh(_ context.Context, refreshToken string) (*auth.TokenResponse, error) {
	return &auth.TokenResponse{AccessToken: "renewed", RefreshToken: refreshToken}, nil
}

func newUsers(t *testing.T, h *harness, idp IdentityProvider) *Users {
	s := NewUsers(h.store, idp, h.notify, h.cache, time.Minute, logger.NewTestLogger(t))
	s.now = fixedClock
	return s
}

func TestUsers_Register(t *testing.T) {
	h := newHarness(t)
	idp := newFakeIdentity()
	svc := newUsers(t, h, idp)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"bad email", RegisterInput{Email: "no-es-un-mail", Password: "secreto123", DisplayName: "Bruno"}},
		{"short password", RegisterInput{Email: "bruno@example.com", Password: "corta", DisplayName: "Bruno"}},
		{"missing name", RegisterInput{Email: "bruno@example.com", Password: "secreto123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			requireCode(t, err, errors.ErrCodeValidationFailed)
		})
	}

	u, err := svc.Register(ctx, RegisterInput{Email: " Bruno@Example.com ", Password: "secreto123", DisplayName: "Bruno"})
	require.NoError(t, err)
	assert.Equal(t, "bruno@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "user", idp.roles[u.ID])

	assert.Equal(t, []string{u.ID}, h.store.recipientsOf(models.NotifyWelcome))
	require.Len(t, h.starter.started, 1, "welcome is delivered by email")

	_, err = svc.Register(ctx, RegisterInput{Email: "bruno@example.com", Password: "secreto123", DisplayName: "Otro"})
	requireCode(t, err, errors.ErrCodeConflict)
}

func TestUsers_RegisterRollsBackIdentity(t *testing.T) {
	t.Run("role assignment fails", func(t *testing.T) {
		h := newHarness(t)
		idp := newFakeIdentity()
		idp.assignFn = func(string, string) error {
			return errors.NewIdentityProviderError(stderrors.New("keycloak down"))
		}
		svc := newUsers(t, h, idp)

		_, err := svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "secreto123", DisplayName: "Ana"})
		requireCode(t, err, errors.ErrCodeIdentityProviderFailed)
		assert.Equal(t, []string{"kc-ana@example.com"}, idp.deleted)
	})

	t.Run("profile insert fails", func(t *testing.T) {
		h := newHarness(t)
		h.store.failCreateUser = errors.NewQueryExecutionFailedError("insert user", stderrors.New("boom"))
		idp := newFakeIdentity()
		svc := newUsers(t, h, idp)

		_, err := svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "secreto123", DisplayName: "Ana"})
		requireCode(t, err, errors.ErrCodeQueryExecutionFailed)
		assert.Equal(t, []string{"kc-ana@example.com"}, idp.deleted)
		assert.Empty(t, h.store.recipientsOf(models.NotifyWelcome))
	})
}

func TestUsers_LoginAndRefresh(t *testing.T) {
	h := newHarness(t)
	idp := newFakeIdentity()
	svc := newUsers(t, h, idp)
	ctx := context.Background()

	_, err := svc.Login(ctx, "", "x")
	requireCode(t, err, errors.ErrCodeValidationFailed)

	tokens, err := svc.Login(ctx, " Ana@Example.com", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, "access-ana@example.com", tokens.AccessToken)

	idp.loginFn = func(string, string) (*auth.TokenResponse, error) {
		return nil, errors.NewUnauthenticatedError("invalid credentials")
	}
	_, err = svc.Login(ctx, "ana@example.com", "mala")
	requireCode(t, err, errors.ErrCodeUnauthenticated)

	_, err = svc.Refresh(ctx, "")
	requireCode(t, err, errors.ErrCodeValidationFailed)
	tokens, err = svc.Refresh(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "renewed", tokens.AccessToken)
}

func TestUsers_MeCreatesProfileLazily(t *testing.T) {
	h := newHarness(t)
	svc := newUsers(t, h, newFakeIdentity())
	ctx := context.Background()

	p := auth.Principal{UserID: "kc-9", Email: "nueva@example.com", Name: "Nueva", Role: models.RoleBusiness}
	u, err := svc.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBusiness, u.Role)

	stored, err := h.store.GetUser(ctx, "kc-9")
	require.NoError(t, err)
	assert.Equal(t, "nueva@example.com", stored.Email)

	var cached models.User
	assert.True(t, h.cache.GetJSON(ctx, cache.ProfileKey("kc-9"), &cached))

	updated, err := svc.UpdateProfile(ctx, p, " Nueva Nombre ", "099 123 456")
	require.NoError(t, err)
	assert.Equal(t, "Nueva Nombre", updated.DisplayName)
	assert.False(t, h.cache.GetJSON(ctx, cache.ProfileKey("kc-9"), &cached))

	_, err = svc.Me(ctx, anonymous)
	requireCode(t, err, errors.ErrCodeUnauthenticated)
}

func TestUsers_Provision(t *testing.T) {
	h := newHarness(t)
	idp := newFakeIdentity()
	svc := newUsers(t, h, idp)
	ctx := context.Background()
	h.store.addBusiness("b1", "", models.BusinessApproved)

	in := ProvisionInput{Email: "duena@example.com", Password: "secreto123", DisplayName: "Dueña", BusinessID: "b1"}
	_, err := svc.Provision(ctx, owner, in)
	requireCode(t, err, errors.ErrCodeForbidden)

	bad := in
	bad.Role = "root"
	_, err = svc.Provision(ctx, admin, bad)
	requireCode(t, err, errors.ErrCodeValidationFailed)

	u, err := svc.Provision(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBusiness, u.Role)
	require.NotNil(t, u.BusinessID)
	assert.Equal(t, "b1", *u.BusinessID)
	assert.Equal(t, "business", idp.roles[u.ID])
	assert.Equal(t, u.ID, h.store.businesses["b1"].OwnerID)

	missing := ProvisionInput{Email: "otro@example.com", Password: "secreto123", DisplayName: "Otro", BusinessID: "nope"}
	_, err = svc.Provision(ctx, admin, missing)
	requireCode(t, err, errors.ErrCodeNotFound)
	assert.Len(t, idp.created, 1, "no identity for a missing business")
}

func TestUsers_ProvisionUndoesAccountWhenAssignFails(t *testing.T) {
	h := newHarness(t)
	idp := newFakeIdentity()
	svc := newUsers(t, h, idp)
	ctx := context.Background()
	h.store.addBusiness("b1", "", models.BusinessApproved)
	h.store.failAssign = errors.NewDatabaseConnectionFailedError(stderrors.New("connection reset"))

	in := ProvisionInput{Email: "duena@example.com", Password: "secreto123", DisplayName: "Dueña", BusinessID: "b1"}
	_, err := svc.Provision(ctx, admin, in)
	require.Error(t, err)

	assert.Equal(t, []string{"kc-duena@example.com"}, idp.deleted)
	assert.NotContains(t, h.store.users, "kc-duena@example.com")
	assert.Empty(t, h.store.businesses["b1"].OwnerID)
	assert.Empty(t, h.store.recipientsOf(models.NotifyWelcome))

	h.store.failAssign = nil
	idp.created = nil
	u, err := svc.Provision(ctx, admin, in)
	require.NoError(t, err, "the same email can be provisioned again")
	assert.Equal(t, u.ID, h.store.businesses["b1"].OwnerID)
}

func TestUsers_SetDisabledAndList(t *testing.T) {
	h := newHarness(t)
	idp := newFakeIdentity()
	svc := newUsers(t, h, idp)
	ctx := context.Background()
	h.store.addUser(admin.UserID, models.RoleSuperAdmin)
	h.store.addUser(visitor.UserID, models.RoleUser)

	requireCode(t, svc.SetDisabled(ctx, admin, admin.UserID, true), errors.ErrCodeForbidden)
	requireCode(t, svc.SetDisabled(ctx, owner, visitor.UserID, true), errors.ErrCodeForbidden)

	require.NoError(t, svc.SetDisabled(ctx, admin, visitor.UserID, true))
	assert.False(t, idp.enabled[visitor.UserID])
	u, err := h.store.GetUser(ctx, visitor.UserID)
	require.NoError(t, err)
	assert.True(t, u.Disabled)

	require.NoError(t, svc.SetDisabled(ctx, admin, visitor.UserID, false))
	assert.True(t, idp.enabled[visitor.UserID])

	_, err = svc.List(ctx, visitor, "", 1, 20)
	requireCode(t, err, errors.ErrCodeForbidden)
	page, err := svc.List(ctx, admin, models.RoleUser, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
