package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the body of a dashboard token. The registered subject is the
// user id; the token is only good for CompanyID.
type Claims struct {
	jwt.RegisteredClaims

	CompanyID string `json:"cid"`
	Role      string `json:"role"`
}

func (c Claims) identity() Identity {
	return Identity{UserID: c.Subject, CompanyID: c.CompanyID, Role: c.Role}
}
