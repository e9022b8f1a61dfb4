// Package jwttoken issues and validates the HS256 access tokens that carry a
// therapist's identity and client assignments across the trust boundary.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// Claims are the access-token claims. AssignedClients lists the client IDs
// the therapist may act for beyond the contexts they own directly.
type Claims struct {
	TherapistID     string   `json:"therapist_id"`
	Role            string   `json:"role"`
	AssignedClients []string `json:"assigned_clients,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken issues a token for a therapist. The token is the only
// identity input the gates trust; whatever is not in it does not exist.
func (s *JWTService) GenerateAccessToken(
	therapistID id.TherapistID,
	role string,
	assignedClients []id.ClientID,
	expiresIn time.Duration) (string, error) {
	assigned := make([]string, 0, len(assignedClients))
	for _, clientID := range assignedClients {
		assigned = append(assigned, clientID.String())
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TherapistID:     therapistID.String(),
		Role:            role,
		AssignedClients: assigned,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ExtractTherapistID validates the token and parses its subject identity.
func (s *JWTService) ExtractTherapistID(tokenString string) (id.TherapistID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.TherapistID{}, err
	}
	therapistID, err := id.ParseTherapistID(claims.TherapistID)
	if err != nil {
		return id.TherapistID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return therapistID, nil
}
