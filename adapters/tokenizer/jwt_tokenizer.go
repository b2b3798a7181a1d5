package tokenizer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

const AudienceMarker = "session:marker"

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// IssueMarker converts a marker to a signed JWT token
func (j *JWTTokenizer) IssueMarker(m ports.Marker) (string, error) {
	claims := MarkerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.Address.Hex(),
			ExpiresAt: jwt.NewNumericDate(m.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(m.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceMarker},
		},
		Username: m.Username,
		Role:     m.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign marker token: %w", err)
	}

	return signedToken, nil
}

// VerifyMarker parses a marker token and returns its verified content
func (j *JWTTokenizer) VerifyMarker(tokenStr string) (ports.Marker, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &MarkerClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceMarker))

	if err != nil {
		return ports.Marker{}, core.WrapError(core.KindSignatureInvalid, "failed to parse marker token", err)
	}

	if !token.Valid {
		return ports.Marker{}, core.NewError(core.KindSignatureInvalid, "invalid marker token")
	}

	claims, ok := token.Claims.(*MarkerClaims)
	if !ok {
		return ports.Marker{}, fmt.Errorf("invalid claims type")
	}

	if !common.IsHexAddress(claims.Subject) {
		return ports.Marker{}, core.NewError(core.KindSignatureInvalid, "marker subject is not an address")
	}
	if !claims.Role.Valid() {
		return ports.Marker{}, core.NewError(core.KindSignatureInvalid, "marker carries an unknown role")
	}

	return ports.Marker{
		Address:   common.HexToAddress(claims.Subject),
		Username:  claims.Username,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
