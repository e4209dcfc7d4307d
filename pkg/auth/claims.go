package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// AccessTokenPayload is what a caller supplies when minting.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims is the bearer token body.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user_id")
	}
	if !bearerRole(c.Role) {
		return fmt.Errorf("token role %q not accepted", c.Role)
	}
	return nil
}

// Only people carry bearer tokens; payment_handler and system act internally.
func bearerRole(role enums.ActorRole) bool {
	return role == enums.ActorRoleCustomer || role == enums.ActorRoleAdmin
}
