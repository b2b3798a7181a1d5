package registry

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oklog/ulid/v2"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

// Backend is the chain access the adapter needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type loginAttemptEvent struct {
	User      common.Address
	Success   bool
	Message   string
	Timestamp *big.Int
}

type userRegisteredEvent struct {
	User     common.Address
	Username string
	Role     uint8
}

type roleChangedEvent struct {
	User    common.Address
	NewRole uint8
}

// EthRegistry implements ports.Registry and ports.AuditSource against a
// deployed Auth contract. Writes are signed with the bound key, so the
// adapter's caller identity is the key's address.
type EthRegistry struct {
	backend  Backend
	address  common.Address
	contract *bind.BoundContract
	abi      abi.ABI
	auth     *bind.TransactOpts
	caller   common.Address
}

// NewEthRegistry binds the contract at contractAddr, signing transactions
// with key on the given chain.
func NewEthRegistry(backend Backend, contractAddr common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*EthRegistry, error) {
	parsed, err := parseAuthABI()
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	return &EthRegistry{
		backend:  backend,
		address:  contractAddr,
		contract: bind.NewBoundContract(contractAddr, parsed, backend, backend, backend),
		abi:      parsed,
		auth:     auth,
		caller:   crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Caller returns the address signing this adapter's writes.
func (e *EthRegistry) Caller() common.Address { return e.caller }

func (e *EthRegistry) GetUserDetails(ctx context.Context, addr common.Address) (core.UserDetails, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserDetails", addr); err != nil {
		return core.UserDetails{}, core.WrapError(core.KindNetworkError, "getUserDetails call failed", err)
	}

	details := core.UserDetails{
		Username: out[0].(string),
		Address:  out[1].(common.Address),
		Role:     core.Role(out[2].(uint8)),
		Message:  out[4].(string),
	}
	if last := out[3].(*big.Int); last.Sign() > 0 {
		details.LastLogin = time.Unix(last.Int64(), 0)
	}
	return details, nil
}

func (e *EthRegistry) RegisterUser(ctx context.Context, username string) (ports.PendingTx, error) {
	if len(username) < 3 {
		return nil, core.ErrUsernameTooShort
	}
	return e.transact(ctx, false, "registerUser", username)
}

func (e *EthRegistry) AttemptLogin(ctx context.Context, message string, signature []byte) (ports.PendingTx, error) {
	return e.transact(ctx, true, "attemptLogin", message, signature)
}

func (e *EthRegistry) UpdateUsername(ctx context.Context, newUsername string) (ports.PendingTx, error) {
	if len(newUsername) < 3 {
		return nil, core.ErrUsernameTooShort
	}
	return e.transact(ctx, false, "updateUsername", newUsername)
}

func (e *EthRegistry) ChangeUserRole(ctx context.Context, addr common.Address, role core.Role) (ports.PendingTx, error) {
	return e.transact(ctx, false, "changeUserRole", addr, uint8(role))
}

func (e *EthRegistry) DeleteUser(ctx context.Context, addr common.Address) (ports.PendingTx, error) {
	return e.transact(ctx, false, "deleteUser", addr)
}

func (e *EthRegistry) transact(ctx context.Context, wantLogin bool, method string, args ...interface{}) (ports.PendingTx, error) {
	opts := *e.auth
	opts.Context = ctx

	tx, err := e.contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, mapSubmitError(err)
	}
	return &ethPendingTx{reg: e, tx: tx, wantLogin: wantLogin}, nil
}

// mapSubmitError classifies a submission failure. Gas estimation runs the
// call, so contract reverts usually surface here with their reason.
func mapSubmitError(err error) error {
	msg := err.Error()
	reason := msg
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason = strings.TrimPrefix(msg[idx:], "execution reverted")
		reason = strings.TrimLeft(reason, ": ")
		if reason == "" {
			reason = "transaction reverted"
		}
	}

	switch {
	case strings.Contains(msg, reasonAlreadyRegistered):
		return core.WrapError(core.KindAlreadyRegistered, reasonAlreadyRegistered, err)
	case strings.Contains(msg, reasonNotRegistered):
		return core.WrapError(core.KindNotRegistered, reasonNotRegistered, err)
	case strings.Contains(msg, "execution reverted"):
		return core.WrapError(core.KindTransactionReverted, reason, err)
	default:
		return core.WrapError(core.KindNetworkError, "transaction submission failed", err)
	}
}

type ethPendingTx struct {
	reg       *EthRegistry
	tx        *types.Transaction
	wantLogin bool
}

func (t *ethPendingTx) Hash() common.Hash { return t.tx.Hash() }

func (t *ethPendingTx) Wait(ctx context.Context) (*ports.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.reg.backend, t.tx)
	if err != nil {
		return nil, core.WrapError(core.KindNetworkError, "timed out awaiting confirmation", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		// Receipts carry no revert reason; a generic message is all we
		// can surface here.
		return nil, core.ErrTransactionReverted
	}

	out := &ports.Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}
	if t.wantLogin {
		for _, lg := range receipt.Logs {
			if len(lg.Topics) == 0 || lg.Topics[0] != t.reg.abi.Events["LoginAttempt"].ID {
				continue
			}
			var ev loginAttemptEvent
			if err := t.reg.contract.UnpackLog(&ev, "LoginAttempt", *lg); err != nil {
				return nil, core.WrapError(core.KindNetworkError, "failed to decode login event", err)
			}
			out.Login = &ports.LoginOutcome{Success: ev.Success, Message: ev.Message}
			break
		}
	}
	return out, nil
}

// LoginAttempts implements ports.AuditSource.
func (e *EthRegistry) LoginAttempts(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	logs, err := e.filterLogs(ctx, "LoginAttempt", addr, r)
	if err != nil {
		return nil, err
	}

	entries := make([]core.AuditEntry, 0, len(logs))
	for _, lg := range logs {
		var ev loginAttemptEvent
		if err := e.contract.UnpackLog(&ev, "LoginAttempt", lg); err != nil {
			return nil, core.WrapError(core.KindNetworkError, "failed to decode login event", err)
		}
		entries = append(entries, core.AuditEntry{
			ID:          ulid.Make().String(),
			Kind:        core.AuditLoginAttempt,
			Actor:       ev.User,
			Success:     ev.Success,
			Message:     ev.Message,
			Timestamp:   time.Unix(ev.Timestamp.Int64(), 0),
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
		})
	}
	return entries, nil
}

// UserRegistrations implements ports.AuditSource. The UserRegistered event
// carries no timestamp, so it is resolved from the block header.
func (e *EthRegistry) UserRegistrations(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	logs, err := e.filterLogs(ctx, "UserRegistered", addr, r)
	if err != nil {
		return nil, err
	}

	entries := make([]core.AuditEntry, 0, len(logs))
	for _, lg := range logs {
		var ev userRegisteredEvent
		if err := e.contract.UnpackLog(&ev, "UserRegistered", lg); err != nil {
			return nil, core.WrapError(core.KindNetworkError, "failed to decode registration event", err)
		}
		ts, err := e.blockTime(ctx, lg.BlockNumber)
		if err != nil {
			return nil, err
		}
		entries = append(entries, core.AuditEntry{
			ID:          ulid.Make().String(),
			Kind:        core.AuditUserRegistered,
			Actor:       ev.User,
			Username:    ev.Username,
			Role:        core.Role(ev.Role),
			Timestamp:   ts,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
		})
	}
	return entries, nil
}

// RoleChanges implements ports.AuditSource.
func (e *EthRegistry) RoleChanges(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	logs, err := e.filterLogs(ctx, "RoleChanged", addr, r)
	if err != nil {
		return nil, err
	}

	entries := make([]core.AuditEntry, 0, len(logs))
	for _, lg := range logs {
		var ev roleChangedEvent
		if err := e.contract.UnpackLog(&ev, "RoleChanged", lg); err != nil {
			return nil, core.WrapError(core.KindNetworkError, "failed to decode role event", err)
		}
		ts, err := e.blockTime(ctx, lg.BlockNumber)
		if err != nil {
			return nil, err
		}
		entries = append(entries, core.AuditEntry{
			ID:          ulid.Make().String(),
			Kind:        core.AuditRoleChanged,
			Actor:       ev.User,
			Role:        core.Role(ev.NewRole),
			Timestamp:   ts,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
		})
	}
	return entries, nil
}

func (e *EthRegistry) filterLogs(ctx context.Context, event string, addr *common.Address, r ports.BlockRange) ([]types.Log, error) {
	topics := [][]common.Hash{{e.abi.Events[event].ID}}
	if addr != nil {
		topics = append(topics, []common.Hash{common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))})
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		Addresses: []common.Address{e.address},
		Topics:    topics,
	}
	if r.To != 0 {
		query.ToBlock = new(big.Int).SetUint64(r.To)
	}

	logs, err := e.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, core.WrapError(core.KindNetworkError, "log query failed", err)
	}
	return logs, nil
}

func (e *EthRegistry) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	header, err := e.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, core.WrapError(core.KindNetworkError, "failed to read block header", err)
	}
	return time.Unix(int64(header.Time), 0), nil
}
