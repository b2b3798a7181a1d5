package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// WalletEventKind discriminates wallet notifications.
type WalletEventKind string

const (
	// AccountsChanged fires when the wallet's exposed accounts change.
	// An empty Accounts slice means the wallet disconnected entirely.
	AccountsChanged WalletEventKind = "accounts_changed"

	// ChainChanged fires when the wallet switches chains. All cached
	// chain-derived state (balance, registration, role) is stale after it.
	ChainChanged WalletEventKind = "chain_changed"
)

// WalletEvent is a typed wallet notification payload.
type WalletEvent struct {
	Kind     WalletEventKind
	Accounts []common.Address // AccountsChanged only
	ChainID  *big.Int         // ChainChanged only
}

// WalletProvider is the boundary to the key-holding wallet. It is the sole
// source of identity and signatures; the session manager never sees keys.
type WalletProvider interface {
	// RequestAccounts asks the wallet for its accounts. It fails with
	// core.ErrWalletUnavailable when no wallet is present and with
	// core.ErrUserRejected when the owner declines the permission prompt.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Balance returns the account balance as a decimal ether amount.
	Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error)

	// SignMessage asks the wallet to sign an EIP-191 personal message.
	// Fails with core.ErrUserRejected when the owner declines to sign.
	SignMessage(ctx context.Context, addr common.Address, message []byte) ([]byte, error)

	// Subscribe returns a channel of wallet events and an unsubscribe
	// function. Events are delivered at most once per actual change.
	// Unsubscribing closes the channel.
	Subscribe() (<-chan WalletEvent, func())
}
