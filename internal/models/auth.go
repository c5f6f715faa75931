package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the authenticated author's identity. Tokens are issued by
// the wallet session service; this API only validates them.
type JWTClaims struct {
	Account     string `json:"account"`
	DisplayName string `json:"displayName,omitempty"`
	jwt.RegisteredClaims
}
