package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	OrgID  *uuid.UUID
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT the API accepts. OrgID is set
// for provider members and empty for admins.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	OrgID  *uuid.UUID       `json:"org_id,omitempty"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
