package auth

import (
	"fmt"
	"strings"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the subset of a realm access token the service reads.
type Claims struct {
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// Role picks the most privileged application role present in the token.
func (c *Claims) Role() models.Role {
	role := models.RoleUser
	for _, r := range c.RealmAccess.Roles {
		switch models.Role(r) {
		case models.RoleSuperAdmin:
			return models.RoleSuperAdmin
		case models.RoleBusiness:
			role = models.RoleBusiness
		}
	}
	return role
}

// TokenVerifier validates bearer tokens issued by the identity provider.
type TokenVerifier struct {
	key      interface{}
	method   jwt.SigningMethod
	issuer   string
	audience string
}

// NewTokenVerifier prefers an RS256 public key and falls back to an HMAC secret.
func NewTokenVerifier(publicKeyPEM, hmacSecret, issuer, audience string) (*TokenVerifier, error) {
	v := &TokenVerifier{issuer: issuer, audience: audience}

	switch {
	case strings.TrimSpace(publicKeyPEM) != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.key = key
		v.method = jwt.SigningMethodRS256
	case hmacSecret != "":
		v.key = []byte(hmacSecret)
		v.method = jwt.SigningMethodHS256
	default:
		return nil, fmt.Errorf("no token verification key configured")
	}
	return v, nil
}

// Verify parses the token and returns the caller it identifies.
func (v *TokenVerifier) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, errors.NewUnauthenticatedError("invalid or expired token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.NewUnauthenticatedError("token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   name,
		Role:   claims.Role(),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
