package core

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuditKind names one of the three contract event streams.
type AuditKind string

const (
	AuditLoginAttempt   AuditKind = "login_attempt"
	AuditUserRegistered AuditKind = "user_registered"
	AuditRoleChanged    AuditKind = "role_changed"
)

// AuditEntry is one observed contract event. Entries are immutable once
// observed; consumers only ever append newly queried entries.
type AuditEntry struct {
	ID          string // ULID assigned at observation time
	Kind        AuditKind
	Actor       common.Address
	Username    string // user_registered only
	Role        Role   // user_registered: role at query time; role_changed: the new role
	Success     bool   // login_attempt only
	Message     string // login_attempt only
	Timestamp   time.Time
	BlockNumber uint64
	TxHash      common.Hash
}

// SortAuditEntries orders entries by block number ascending, with the
// timestamp as a tie-break inside a block.
func SortAuditEntries(entries []AuditEntry) {
	slices.SortStableFunc(entries, func(a, b AuditEntry) int {
		switch {
		case a.BlockNumber != b.BlockNumber:
			if a.BlockNumber < b.BlockNumber {
				return -1
			}
			return 1
		case a.Timestamp.Before(b.Timestamp):
			return -1
		case b.Timestamp.Before(a.Timestamp):
			return 1
		default:
			return 0
		}
	})
}
