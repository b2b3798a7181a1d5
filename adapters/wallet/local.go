// Package wallet provides the key-holding side of the session boundary.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/internal/eth"
	"github.com/hexlane/authgate/ports"
)

// weiExponent converts wei balances to decimal ether amounts.
const weiExponent = int32(-18)

// BalanceSource reads on-chain balances. *ethclient.Client satisfies it.
type BalanceSource interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// LocalWallet implements ports.WalletProvider over in-memory secp256k1 keys.
// It stands in for the browser extension: accounts, personal-message
// signatures, and account/chain-change notifications pushed through Emit.
type LocalWallet struct {
	mu       sync.RWMutex
	keys     map[common.Address]*ecdsa.PrivateKey
	order    []common.Address
	balances BalanceSource

	subs    map[int]chan ports.WalletEvent
	nextSub int

	lastAccounts []common.Address
	lastChain    *big.Int
}

func NewLocalWallet() *LocalWallet {
	return &LocalWallet{
		keys: make(map[common.Address]*ecdsa.PrivateKey),
		subs: make(map[int]chan ports.WalletEvent),
	}
}

// WithBalanceSource attaches a chain backend for Balance lookups. Without
// one, balances read as zero.
func (w *LocalWallet) WithBalanceSource(src BalanceSource) *LocalWallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances = src
	return w
}

// AddKey imports a private key and returns its address.
func (w *LocalWallet) AddKey(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.keys[addr]; !ok {
		w.order = append(w.order, addr)
	}
	w.keys[addr] = key
	return addr
}

// GenerateAccount creates a fresh key and returns its address.
func (w *LocalWallet) GenerateAccount() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	return w.AddKey(key), nil
}

// RequestAccounts implements ports.WalletProvider. A wallet holding no keys
// behaves like a missing extension.
func (w *LocalWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.order) == 0 {
		return nil, core.ErrWalletUnavailable
	}
	return slices.Clone(w.order), nil
}

// Balance implements ports.WalletProvider.
func (w *LocalWallet) Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	w.mu.RLock()
	src := w.balances
	w.mu.RUnlock()

	if src == nil {
		return decimal.Zero, nil
	}
	wei, err := src.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, core.WrapError(core.KindNetworkError, "failed to read balance", err)
	}
	return decimal.NewFromBigInt(wei, weiExponent), nil
}

// SignMessage implements ports.WalletProvider with an EIP-191 personal
// signature.
func (w *LocalWallet) SignMessage(ctx context.Context, addr common.Address, message []byte) ([]byte, error) {
	w.mu.RLock()
	key, ok := w.keys[addr]
	w.mu.RUnlock()

	if !ok {
		return nil, core.Errorf(core.KindUserRejected, "wallet does not hold account %s", addr.Hex())
	}
	return eth.SignPersonal(key, message)
}

// Subscribe implements ports.WalletProvider. Unsubscribing closes the channel.
func (w *LocalWallet) Subscribe() (<-chan ports.WalletEvent, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSub
	w.nextSub++
	ch := make(chan ports.WalletEvent, 8)
	w.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// EmitAccountsChanged notifies subscribers about a new account list. Repeats
// of the current list are suppressed so each actual change is delivered at
// most once.
func (w *LocalWallet) EmitAccountsChanged(accounts []common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slices.Equal(accounts, w.lastAccounts) {
		return
	}
	w.lastAccounts = slices.Clone(accounts)
	w.broadcast(ports.WalletEvent{Kind: ports.AccountsChanged, Accounts: slices.Clone(accounts)})
}

// EmitChainChanged notifies subscribers that the wallet switched chains.
func (w *LocalWallet) EmitChainChanged(chainID *big.Int) {
	if chainID == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lastChain != nil && w.lastChain.Cmp(chainID) == 0 {
		return
	}
	w.lastChain = new(big.Int).Set(chainID)
	w.broadcast(ports.WalletEvent{Kind: ports.ChainChanged, ChainID: new(big.Int).Set(chainID)})
}

// broadcast fans out to subscribers without blocking; a subscriber that
// stopped draining loses events rather than stalling the wallet.
func (w *LocalWallet) broadcast(ev ports.WalletEvent) {
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
