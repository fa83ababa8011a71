package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"tucomercio/internal/common/errors"
)

// KeycloakClient talks to the realm admin API and the token endpoint.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// User represents a user in Keycloak.
type User struct {
	ID            string       `json:"id,omitempty"`
	Email         string       `json:"email"`
	FirstName     string       `json:"firstName,omitempty"`
	LastName      string       `json:"lastName,omitempty"`
	Username      string       `json:"username"`
	Enabled       bool         `json:"enabled"`
	EmailVerified bool         `json:"emailVerified"`
	Credentials   []Credential `json:"credentials,omitempty"`
}

// Credential is a password credential attached at creation time.
type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// RoleRepresentation is a realm role as returned by the admin API.
type RoleRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (k *KeycloakClient) tokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)
}

func (k *KeycloakClient) adminURL(parts ...string) string {
	return fmt.Sprintf("%s/admin/realms/%s/%s", k.baseURL, k.realm, path.Join(parts...))
}

// serviceToken returns a cached client-credentials token.
func (k *KeycloakClient) serviceToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.accessToken != "" && time.Now().Before(k.tokenExpiry) {
		return k.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", k.clientID)
	form.Set("client_secret", k.clientSecret)

	tokens, err := k.postToken(ctx, form)
	if err != nil {
		return "", err
	}

	k.accessToken = tokens.AccessToken
	// Refresh a little early so in-flight calls never carry an expired token.
	k.tokenExpiry = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - 10*time.Second)
	return k.accessToken, nil
}

func (k *KeycloakClient) postToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewIdentityProviderError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewIdentityProviderError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return nil, errors.NewUnauthenticatedError("invalid credentials")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, k.statusError(resp)
	}

	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, errors.NewIdentityProviderError(fmt.Errorf("decode token response: %w", err))
	}
	return &tokens, nil
}

// PasswordLogin exchanges end-user credentials for tokens.
func (k *KeycloakClient) PasswordLogin(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", k.clientID)
	form.Set("client_secret", k.clientSecret)
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", "openid")
	return k.postToken(ctx, form)
}

// Refresh exchanges a refresh token for a new token pair.
func (k *KeycloakClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", k.clientID)
	form.Set("client_secret", k.clientSecret)
	form.Set("refresh_token", refreshToken)
	return k.postToken(ctx, form)
}

// CreateUser creates the user and returns its Keycloak ID.
func (k *KeycloakClient) CreateUser(ctx context.Context, user *User) (string, error) {
	if user.Username == "" {
		user.Username = user.Email
	}

	resp, err := k.adminDo(ctx, http.MethodPost, k.adminURL("users"), user)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return "", errors.NewConflictError("a user with this email already exists")
	default:
		return "", k.statusError(resp)
	}

	// The new ID is only reported through the Location header.
	location := resp.Header.Get("Location")
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", errors.NewIdentityProviderError(fmt.Errorf("missing Location header on user creation"))
	}
	return id, nil
}

// AssignRealmRole grants a realm role to the user.
func (k *KeycloakClient) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	resp, err := k.adminDo(ctx, http.MethodGet, k.adminURL("roles", url.PathEscape(roleName)), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return k.statusError(resp)
	}

	var role RoleRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&role); err != nil {
		return errors.NewIdentityProviderError(fmt.Errorf("decode role: %w", err))
	}

	mapResp, err := k.adminDo(ctx, http.MethodPost, k.adminURL("users", userID, "role-mappings", "realm"), []RoleRepresentation{role})
	if err != nil {
		return err
	}
	defer mapResp.Body.Close()
	if mapResp.StatusCode != http.StatusNoContent {
		return k.statusError(mapResp)
	}
	return nil
}

// SetEnabled enables or disables login for the user.
func (k *KeycloakClient) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	resp, err := k.adminDo(ctx, http.MethodPut, k.adminURL("users", userID), map[string]bool{"enabled": enabled})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("user", userID)
	}
	if resp.StatusCode != http.StatusNoContent {
		return k.statusError(resp)
	}
	return nil
}

// DeleteUser removes a user from the realm.
func (k *KeycloakClient) DeleteUser(ctx context.Context, userID string) error {
	resp, err := k.adminDo(ctx, http.MethodDelete, k.adminURL("users", userID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return k.statusError(resp)
	}
	return nil
}

func (k *KeycloakClient) adminDo(ctx context.Context, method, target string, body interface{}) (*http.Response, error) {
	token, err := k.serviceToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.NewInternalError(fmt.Errorf("encode keycloak request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.NewIdentityProviderError(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewIdentityProviderError(err)
	}
	return resp, nil
}

func (k *KeycloakClient) statusError(resp *http.Response) *errors.StandardError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	stdErr := errors.NewIdentityProviderError(fmt.Errorf("keycloak returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	stdErr.Retryable = isTransientHTTPError(resp.StatusCode)
	return stdErr.WithMetadata("status", resp.StatusCode)
}

func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
