// Package registry provides the Auth registry contract clients: an
// ethclient-backed adapter for deployed contracts and an in-process
// simulation with the same semantics.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/internal/eth"
	"github.com/hexlane/authgate/ports"
)

// Revert reasons used by the contract. Kept verbatim so clients see the same
// messages against either backend.
const (
	reasonAlreadyRegistered = "User already registered"
	reasonNotRegistered     = "User not registered"
	reasonAdminsOnly        = "Access denied: Admins only"
	reasonOwnerProtected    = "Cannot change contract owner's role"
	reasonLoginOK           = "Login successful"
	reasonLoginBadSig       = "Invalid signature"
)

type userRecord struct {
	username  string
	role      core.Role
	lastLogin time.Time
	message   string
}

// MemoryRegistry simulates the deployed Auth contract in-process: the same
// storage layout, role checks, revert reasons and event log, minus the
// chain. Writes go through per-caller views so every transaction has a
// msg.sender, and the event log serves the ports.AuditSource interface.
type MemoryRegistry struct {
	mu     sync.RWMutex
	owner  common.Address
	users  map[common.Address]*userRecord
	events []core.AuditEntry
	block  uint64

	latency  time.Duration
	nextWait error
}

// NewMemoryRegistry deploys the simulated contract. The owner is seeded as a
// registered SuperAdmin, mirroring the deployment scripts seeding the
// deployer with the top role.
func NewMemoryRegistry(owner common.Address) *MemoryRegistry {
	r := &MemoryRegistry{
		owner: owner,
		users: make(map[common.Address]*userRecord),
		block: 1,
	}
	r.users[owner] = &userRecord{username: "owner", role: core.RoleSuperAdmin}
	return r
}

// SetLatency makes every Wait take at least d, to exercise pending states.
func (m *MemoryRegistry) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailNextWait makes the next submitted transaction fail at confirmation
// time instead of at submission, modeling out-of-gas style failures.
func (m *MemoryRegistry) FailNextWait(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextWait = err
}

// ForCaller binds a ports.Registry view to addr, the msg.sender of every
// write made through it.
func (m *MemoryRegistry) ForCaller(addr common.Address) ports.Registry {
	return &callerView{m: m, caller: addr}
}

type callerView struct {
	m      *MemoryRegistry
	caller common.Address
}

func (v *callerView) GetUserDetails(ctx context.Context, addr common.Address) (core.UserDetails, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()

	rec, ok := v.m.users[addr]
	if !ok {
		return core.UserDetails{Address: addr}, nil
	}
	return core.UserDetails{
		Username:  rec.username,
		Address:   addr,
		Role:      rec.role,
		LastLogin: rec.lastLogin,
		Message:   rec.message,
	}, nil
}

func (v *callerView) RegisterUser(ctx context.Context, username string) (ports.PendingTx, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	if len(username) < 3 {
		return nil, core.ErrUsernameTooShort
	}
	if rec, ok := v.m.users[v.caller]; ok && rec.username != "" {
		return nil, core.NewError(core.KindAlreadyRegistered, reasonAlreadyRegistered)
	}

	v.m.block++
	v.m.users[v.caller] = &userRecord{username: username, role: core.RoleUser}

	tx := v.m.newTx()
	v.m.appendEvent(core.AuditEntry{
		Kind:        core.AuditUserRegistered,
		Actor:       v.caller,
		Username:    username,
		Role:        core.RoleUser,
		Timestamp:   time.Now(),
		BlockNumber: v.m.block,
		TxHash:      tx.hash,
	})
	tx.receipt = &ports.Receipt{TxHash: tx.hash, BlockNumber: v.m.block}
	return tx, nil
}

func (v *callerView) AttemptLogin(ctx context.Context, message string, signature []byte) (ports.PendingTx, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	rec, ok := v.m.users[v.caller]
	if !ok || rec.username == "" {
		return nil, core.NewError(core.KindNotRegistered, reasonNotRegistered)
	}

	v.m.block++
	now := time.Now()

	outcome := ports.LoginOutcome{Success: false, Message: reasonLoginBadSig}
	if eth.VerifySignature([]byte(message), signature, v.caller) {
		outcome = ports.LoginOutcome{Success: true, Message: reasonLoginOK}
		rec.lastLogin = now
	}
	rec.message = outcome.Message

	tx := v.m.newTx()
	v.m.appendEvent(core.AuditEntry{
		Kind:        core.AuditLoginAttempt,
		Actor:       v.caller,
		Success:     outcome.Success,
		Message:     outcome.Message,
		Timestamp:   now,
		BlockNumber: v.m.block,
		TxHash:      tx.hash,
	})
	tx.receipt = &ports.Receipt{TxHash: tx.hash, BlockNumber: v.m.block, Login: &outcome}
	return tx, nil
}

func (v *callerView) UpdateUsername(ctx context.Context, newUsername string) (ports.PendingTx, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	if len(newUsername) < 3 {
		return nil, core.ErrUsernameTooShort
	}
	rec, ok := v.m.users[v.caller]
	if !ok || rec.username == "" {
		return nil, core.NewError(core.KindNotRegistered, reasonNotRegistered)
	}

	v.m.block++
	rec.username = newUsername

	tx := v.m.newTx()
	tx.receipt = &ports.Receipt{TxHash: tx.hash, BlockNumber: v.m.block}
	return tx, nil
}

func (v *callerView) ChangeUserRole(ctx context.Context, addr common.Address, role core.Role) (ports.PendingTx, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	caller, ok := v.m.users[v.caller]
	if !ok || !caller.role.AtLeast(core.RoleAdmin) {
		return nil, core.NewError(core.KindTransactionReverted, reasonAdminsOnly)
	}
	// Only a peer-or-higher role can be granted, so an Admin cannot mint
	// SuperAdmins.
	if role > caller.role {
		return nil, core.NewError(core.KindTransactionReverted, reasonAdminsOnly)
	}
	if addr == v.m.owner && v.caller != v.m.owner {
		return nil, core.NewError(core.KindTransactionReverted, reasonOwnerProtected)
	}
	target, ok := v.m.users[addr]
	if !ok || target.username == "" {
		return nil, core.NewError(core.KindNotRegistered, reasonNotRegistered)
	}

	v.m.block++
	target.role = role

	tx := v.m.newTx()
	v.m.appendEvent(core.AuditEntry{
		Kind:        core.AuditRoleChanged,
		Actor:       addr,
		Role:        role,
		Timestamp:   time.Now(),
		BlockNumber: v.m.block,
		TxHash:      tx.hash,
	})
	tx.receipt = &ports.Receipt{TxHash: tx.hash, BlockNumber: v.m.block}
	return tx, nil
}

func (v *callerView) DeleteUser(ctx context.Context, addr common.Address) (ports.PendingTx, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	caller, ok := v.m.users[v.caller]
	if !ok || !caller.role.AtLeast(core.RoleAdmin) {
		return nil, core.NewError(core.KindTransactionReverted, reasonAdminsOnly)
	}
	if addr == v.m.owner {
		return nil, core.NewError(core.KindTransactionReverted, reasonOwnerProtected)
	}
	if _, ok := v.m.users[addr]; !ok {
		return nil, core.NewError(core.KindNotRegistered, reasonNotRegistered)
	}

	v.m.block++
	delete(v.m.users, addr)

	tx := v.m.newTx()
	tx.receipt = &ports.Receipt{TxHash: tx.hash, BlockNumber: v.m.block}
	return tx, nil
}

// newTx mints a pending handle. Callers hold m.mu.
func (m *MemoryRegistry) newTx() *memPendingTx {
	tx := &memPendingTx{
		hash:    crypto.Keccak256Hash([]byte(uuid.NewString())),
		latency: m.latency,
		err:     m.nextWait,
	}
	m.nextWait = nil
	return tx
}

func (m *MemoryRegistry) appendEvent(entry core.AuditEntry) {
	entry.ID = ulid.Make().String()
	m.events = append(m.events, entry)
}

type memPendingTx struct {
	hash    common.Hash
	receipt *ports.Receipt
	err     error
	latency time.Duration
}

func (t *memPendingTx) Hash() common.Hash { return t.hash }

func (t *memPendingTx) Wait(ctx context.Context) (*ports.Receipt, error) {
	if t.latency > 0 {
		select {
		case <-time.After(t.latency):
		case <-ctx.Done():
			return nil, core.WrapError(core.KindNetworkError, "timed out awaiting confirmation", ctx.Err())
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.receipt, nil
}

// LoginAttempts implements ports.AuditSource.
func (m *MemoryRegistry) LoginAttempts(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return m.filter(core.AuditLoginAttempt, addr, r), nil
}

// UserRegistrations implements ports.AuditSource.
func (m *MemoryRegistry) UserRegistrations(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return m.filter(core.AuditUserRegistered, addr, r), nil
}

// RoleChanges implements ports.AuditSource.
func (m *MemoryRegistry) RoleChanges(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return m.filter(core.AuditRoleChanged, addr, r), nil
}

func (m *MemoryRegistry) filter(kind core.AuditKind, addr *common.Address, r ports.BlockRange) []core.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	to := r.To
	if to == 0 {
		to = m.block
	}

	var out []core.AuditEntry
	for _, ev := range m.events {
		if ev.Kind != kind || ev.BlockNumber < r.From || ev.BlockNumber > to {
			continue
		}
		if addr != nil && ev.Actor != *addr {
			continue
		}
		out = append(out, ev)
	}
	return out
}
