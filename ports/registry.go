package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hexlane/authgate/core"
)

// LoginOutcome is the parsed LoginAttempt event of an attemptLogin receipt.
type LoginOutcome struct {
	Success bool
	Message string
}

// Receipt is the completion record of a mined write transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64

	// Login is set on attemptLogin receipts only.
	Login *LoginOutcome
}

// PendingTx is the handle returned by a submitted write. Submission and
// completion fail independently: a transaction that submitted fine may still
// revert or run out of gas while mining.
type PendingTx interface {
	Hash() common.Hash

	// Wait blocks until the transaction mines or ctx is done. Reverts
	// surface as core.ErrTransactionReverted with the reason passed
	// through when the node exposes it.
	Wait(ctx context.Context) (*Receipt, error)
}

// Registry wraps calls into the deployed registry contract, bound to one
// calling address (the msg.sender of every write).
type Registry interface {
	// GetUserDetails is read-only; it returns an empty username for
	// addresses that never registered.
	GetUserDetails(ctx context.Context, addr common.Address) (core.UserDetails, error)

	// RegisterUser submits a registration for the bound caller. Fails
	// with core.ErrAlreadyRegistered when the caller already holds a
	// non-empty username on-chain.
	RegisterUser(ctx context.Context, username string) (PendingTx, error)

	// AttemptLogin submits a challenge message and its wallet signature.
	// A mismatched signature does not revert; it mines with a
	// LoginAttempt event carrying success=false.
	AttemptLogin(ctx context.Context, message string, signature []byte) (PendingTx, error)

	UpdateUsername(ctx context.Context, newUsername string) (PendingTx, error)

	// ChangeUserRole and DeleteUser are administrative; the contract
	// reverts with an access-denied reason for callers below Admin.
	ChangeUserRole(ctx context.Context, addr common.Address, role core.Role) (PendingTx, error)
	DeleteUser(ctx context.Context, addr common.Address) (PendingTx, error)
}

// BlockRange bounds an audit query. A zero To means "latest".
type BlockRange struct {
	From uint64
	To   uint64
}

// AuditSource queries the contract's event streams over a bounded block
// range. A nil address queries all actors. Implementations are read-only and
// safe for concurrent use.
type AuditSource interface {
	LoginAttempts(ctx context.Context, addr *common.Address, r BlockRange) ([]core.AuditEntry, error)
	UserRegistrations(ctx context.Context, addr *common.Address, r BlockRange) ([]core.AuditEntry, error)
	RoleChanges(ctx context.Context, addr *common.Address, r BlockRange) ([]core.AuditEntry, error)
}
