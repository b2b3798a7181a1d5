package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarkerStore persists the "logged-in" marker keyed by wallet address. The
// marker only drives auto-reconnect after a restart; it is not a security
// boundary.
type MarkerStore interface {
	SetMarker(ctx context.Context, addr common.Address, token string, ttl time.Duration) error

	// Marker returns the stored token and whether one exists.
	Marker(ctx context.Context, addr common.Address) (string, bool, error)

	DeleteMarker(ctx context.Context, addr common.Address) error
}
