package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"
)

const minPasswordLength = 8

// IdentityProvider is the subset of the Keycloak admin and token API used for accounts.
type IdentityProvider interface {
	CreateUser(ctx context.Context, user *auth.User) (string, error)
	AssignRealmRole(ctx context.Context, userID, roleName string) error
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	DeleteUser(ctx context.Context, userID string) error
	PasswordLogin(ctx context.Context, username, password string) (*auth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, displayName, phone string) (*models.User, error)
	SetUserDisabled(ctx context.Context, id string, disabled bool) error
	ListUsers(ctx context.Context, role models.Role, page, size int) (models.Page[models.User], error)
	AssignBusinessOwner(ctx context.Context, businessID, userID string) error
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Phone       string `json:"phone"`
}

type ProvisionInput struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	DisplayName string      `json:"displayName"`
	Phone       string      `json:"phone"`
	Role        models.Role `json:"role"`
	BusinessID  string      `json:"businessId"`
}

type Users struct {
	store      UserStore
	idp        IdentityProvider
	notify     *Notifications
	cache      *cache.Cache
	profileTTL time.Duration
	log        logger.Logger
	now        func() time.Time
}

func NewUsers(st UserStore, idp IdentityProvider, notify *Notifications, c *cache.Cache, profileTTL time.Duration, log logger.Logger) *Users {
	return &Users{
		store:      st,
		idp:        idp,
		notify:     notify,
		cache:      c,
		profileTTL: profileTTL,
		log:        log.WithFields(map[string]interface{}{"service": "users"}),
		now:        utcNow,
	}
}

func validateAccount(email, password, displayName string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.NewValidationFailedError("email is invalid")
	}
	if len(password) < minPasswordLength {
		return errors.NewValidationFailedError("password must have at least 8 characters")
	}
	return required("displayName", displayName)
}

// createAccount creates the identity, grants the role and stores the profile. The identity is
// removed again when a later step fails.
func (s *Users) createAccount(ctx context.Context, email, password, displayName, phone string, role models.Role) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id, err := s.idp.CreateUser(ctx, &auth.User{
		Email:     email,
		Username:  email,
		FirstName: displayName,
		Enabled:   true,
		Credentials: []auth.Credential{
			{Type: "password", Value: password},
		},
	})
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:          id,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Phone:       phone,
		Role:        role,
		CreatedAt:   s.now(),
	}
	if err := s.idp.AssignRealmRole(ctx, id, string(role)); err != nil {
		s.rollback(ctx, id)
		return nil, err
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		s.rollback(ctx, id)
		return nil, err
	}
	return u, nil
}

func (s *Users) rollback(ctx context.Context, id string) {
	if err := s.idp.DeleteUser(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error("failed to remove identity after aborted sign-up", map[string]interface{}{"userId": id, "error": err})
	}
}

// discard undoes createAccount: the profile first, then the identity.
func (s *Users) discard(ctx context.Context, id string) {
	if err := s.store.DeleteUser(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error("failed to remove profile after aborted provisioning", map[string]interface{}{"userId": id, "error": err})
	}
	s.rollback(ctx, id)
}

func (s *Users) welcome(ctx context.Context, u *models.User) {
	if _, err := s.notify.FanOut(ctx, Draft{
		Type:  models.NotifyWelcome,
		Title: "Bienvenido a TuComercio, " + u.DisplayName,
		Body:  "Tu cuenta está lista.",
		Link:  "/",
	}, []string{u.ID}); err != nil {
		s.log.Error("welcome notification failed", map[string]interface{}{"userId": u.ID, "error": err})
	}
}

// Register is public sign-up; new accounts always get the user role.
func (s *Users) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validateAccount(in.Email, in.Password, in.DisplayName); err != nil {
		return nil, err
	}
	u, err := s.createAccount(ctx, in.Email, in.Password, in.DisplayName, in.Phone, models.RoleUser)
	if err != nil {
		return nil, err
	}
	s.welcome(ctx, u)
	s.log.Info("user registered", map[string]interface{}{"userId": u.ID})
	return u, nil
}

func (s *Users) Login(ctx context.Context, email, password string) (*auth.TokenResponse, error) {
	if email == "" || password == "" {
		return nil, errors.NewValidationFailedError("email and password are required")
	}
	return s.idp.PasswordLogin(ctx, strings.ToLower(strings.TrimSpace(email)), password)
}

func (s *Users) Refresh(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.NewValidationFailedError("refreshToken is required")
	}
	return s.idp.Refresh(ctx, refreshToken)
}

// Me returns the caller's profile. Accounts created directly in the identity provider get a
// profile on first access.
func (s *Users) Me(ctx context.Context, p auth.Principal) (*models.User, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.cache, cache.ProfileKey(p.UserID), s.profileTTL, func(ctx context.Context) (*models.User, error) {
		u, err := s.store.GetUser(ctx, p.UserID)
		if err == nil || !errors.HasCode(err, errors.ErrCodeNotFound) {
			return u, err
		}
		u = &models.User{
			ID:          p.UserID,
			Email:       p.Email,
			DisplayName: p.Name,
			Role:        p.Role,
			CreatedAt:   s.now(),
		}
		if !u.Role.Valid() {
			u.Role = models.RoleUser
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	})
}

func (s *Users) UpdateProfile(ctx context.Context, p auth.Principal, displayName, phone string) (*models.User, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if err := required("displayName", displayName); err != nil {
		return nil, err
	}
	u, err := s.store.UpdateProfile(ctx, p.UserID, strings.TrimSpace(displayName), strings.TrimSpace(phone))
	if err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, cache.ProfileKey(p.UserID))
	return u, nil
}

// Provision creates an account on behalf of a superadmin, optionally handing it an existing business.
func (s *Users) Provision(ctx context.Context, p auth.Principal, in ProvisionInput) (*models.User, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, errors.NewValidationFailedError("role must be user, business or superadmin")
	}
	if err := validateAccount(in.Email, in.Password, in.DisplayName); err != nil {
		return nil, err
	}
	if in.BusinessID != "" {
		if _, err := s.store.GetBusiness(ctx, in.BusinessID); err != nil {
			return nil, err
		}
		if in.Role == models.RoleUser {
			in.Role = models.RoleBusiness
		}
	}

	u, err := s.createAccount(ctx, in.Email, in.Password, in.DisplayName, in.Phone, in.Role)
	if err != nil {
		return nil, err
	}
	if in.BusinessID != "" {
		if err := s.store.AssignBusinessOwner(ctx, in.BusinessID, u.ID); err != nil {
			s.discard(ctx, u.ID)
			return nil, err
		}
		businessID := in.BusinessID
		u.BusinessID = &businessID
	}
	s.welcome(ctx, u)

	s.log.Info("user provisioned", map[string]interface{}{
		"userId":     u.ID,
		"role":       u.Role,
		"businessId": in.BusinessID,
		"adminId":    p.UserID,
	})
	return u, nil
}

// SetDisabled blocks or restores login. Superadmins cannot disable themselves.
func (s *Users) SetDisabled(ctx context.Context, p auth.Principal, userID string, disabled bool) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	if userID == p.UserID {
		return errors.NewForbiddenError("cannot change your own account status")
	}
	if err := s.idp.SetEnabled(ctx, userID, !disabled); err != nil {
		return err
	}
	if err := s.store.SetUserDisabled(ctx, userID, disabled); err != nil {
		return err
	}
	s.cache.Delete(ctx, cache.ProfileKey(userID))
	return nil
}

func (s *Users) List(ctx context.Context, p auth.Principal, role models.Role, page, size int) (models.Page[models.User], error) {
	if err := requireSuperAdmin(p); err != nil {
		return models.Page[models.User]{}, err
	}
	return s.store.ListUsers(ctx, role, page, size)
}
