package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// AccessTokenPayload is what MintAccessToken signs. ProviderRole overrides the
// provider-level role claim, which is "authenticated" for real users.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	Email        string
	Role         enums.UserRole
	ProviderRole string
	JTI          string
}

// AppMetadata is the provider-managed claim block; only the role is read.
type AppMetadata struct {
	Role enums.UserRole `json:"role,omitempty"`
}

// AccessTokenClaims mirrors the access tokens issued by the hosted auth provider.
// The subject carries the user id.
type AccessTokenClaims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}

// UserRole returns the platform role, defaulting to a regular user.
func (c *AccessTokenClaims) UserRole() enums.UserRole {
	if c.AppMetadata.Role.IsValid() {
		return c.AppMetadata.Role
	}
	return enums.UserRoleUser
}
