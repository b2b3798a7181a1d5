package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hexlane/authgate/core"
)

// AuditCache is an append-only local store of observed audit entries.
// Appending an entry that was already observed (same tx hash, kind and
// actor) is a no-op; rows are never mutated.
type AuditCache interface {
	Append(ctx context.Context, entries []core.AuditEntry) error

	// List returns cached entries for one address, or all when addr is
	// nil, ordered by block number ascending.
	List(ctx context.Context, addr *common.Address) ([]core.AuditEntry, error)
}
