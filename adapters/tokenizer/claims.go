package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/hexlane/authgate/core"
)

// MarkerClaims combines standard claims with marker-specific ones
type MarkerClaims struct {
	jwt.RegisteredClaims
	Username string    `json:"usr"`
	Role     core.Role `json:"rol"`
}
