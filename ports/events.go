package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hexlane/authgate/core"
)

// EventPublisher notifies other components about session lifecycle changes.
// Publish failures must never fail the operation that triggered them.
type EventPublisher interface {
	PublishRegistered(ctx context.Context, addr common.Address, username string, role core.Role) error
	PublishLoginAttempt(ctx context.Context, addr common.Address, success bool, message string) error
	PublishLoggedIn(ctx context.Context, addr common.Address) error
	PublishLogout(ctx context.Context, addr common.Address) error
}
