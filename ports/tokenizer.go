package ports

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hexlane/authgate/core"
)

// Marker is the verified content of a logged-in marker token.
type Marker struct {
	Address   common.Address
	Username  string
	Role      core.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokenizer converts markers to and from signed tokens. Marker tokens are
// issued on OTP confirmation and checked on session restoration and on
// session-gated HTTP routes.
type Tokenizer interface {
	IssueMarker(m Marker) (string, error)
	VerifyMarker(token string) (Marker, error)
}
