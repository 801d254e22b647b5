package auth

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin is the only role the admin surface accepts.
const RoleAdmin = "admin"

// AccessTokenClaims represents the typed JWT presented to the admin API.
// Subject carries the operator identity recorded as the audit actor.
type AccessTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the identity written to audit rows and outbox events.
func (c *AccessTokenClaims) Actor() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
