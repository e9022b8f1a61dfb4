package jwttoken

import (
	authmw "sanctum/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts token claims into the middleware's view of a
// caller. The middleware re-parses the IDs; this stays a dumb field copy.
func ToMiddlewareClaims(claims *Claims) *authmw.TherapistClaims {
	return &authmw.TherapistClaims{
		TherapistID:     claims.TherapistID,
		Role:            claims.Role,
		AssignedClients: claims.AssignedClients,
		JTI:             claims.ID,
	}
}

// JWTServiceAdapter adapts JWTService to the auth middleware's validator port.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.TherapistClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
