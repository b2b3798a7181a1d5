// Package auditcache persists audit log entries fetched from the chain so
// repeat queries do not replay the full event history.
package auditcache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

// Store is an SQLite implementation of the AuditCache interface.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the cache database at dsn. Use ":memory:" for
// an ephemeral cache.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ ports.AuditCache = (*Store)(nil)

// Append stores entries, skipping any already observed. An entry is
// identified by its transaction hash, kind and actor.
func (s *Store) Append(ctx context.Context, entries []core.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insert = `
		INSERT INTO audit_entries
			(id, kind, actor, username, role, success, message, timestamp, block_number, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash, kind, actor) DO NOTHING;`

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, insert,
			e.ID,
			string(e.Kind),
			e.Actor.Hex(),
			e.Username,
			uint8(e.Role),
			e.Success,
			e.Message,
			e.Timestamp.UTC(),
			int64(e.BlockNumber),
			e.TxHash.Hex(),
		)
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}

	return tx.Commit()
}

// List returns cached entries for addr, or every entry when addr is nil,
// ordered by block number ascending.
func (s *Store) List(ctx context.Context, addr *common.Address) ([]core.AuditEntry, error) {
	const base = `
		SELECT id, kind, actor, username, role, success, message, timestamp, block_number, tx_hash
		FROM audit_entries`

	var (
		rows *sql.Rows
		err  error
	)
	if addr != nil {
		rows, err = s.db.QueryContext(ctx, base+` WHERE actor = ? ORDER BY block_number ASC, timestamp ASC;`, addr.Hex())
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY block_number ASC, timestamp ASC;`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var (
			e           core.AuditEntry
			kind        string
			actor       string
			role        uint8
			blockNumber int64
			txHash      string
		)
		if err := rows.Scan(&e.ID, &kind, &actor, &e.Username, &role, &e.Success, &e.Message, &e.Timestamp, &blockNumber, &txHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Kind = core.AuditKind(kind)
		e.Actor = common.HexToAddress(actor)
		e.Role = core.Role(role)
		e.BlockNumber = uint64(blockNumber)
		e.TxHash = common.HexToHash(txHash)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
