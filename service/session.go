package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

// RegistryDialer binds a contract client to the connected account, which
// becomes the msg.sender of every write submitted through it.
type RegistryDialer func(addr common.Address) ports.Registry

// Config carries the optional collaborators and tunables of a
// SessionManager. The zero value is usable; defaults are filled in by
// NewSessionManager.
type Config struct {
	Markers   ports.MarkerStore
	Tokenizer ports.Tokenizer
	Events    ports.EventPublisher
	Logger    *slog.Logger
	OTP       OTPIssuer

	// ConfirmTimeout bounds every receipt wait. Elapsing surfaces a
	// network error and leaves the session in its pre-transition state.
	ConfirmTimeout time.Duration

	// MarkerTTL bounds how long a stored logged-in marker stays valid.
	MarkerTTL time.Duration

	// OTPRate enables the OTP attempt limiter when positive. Disabled by
	// default: a wrong code may be retried indefinitely.
	OTPRate  rate.Limit
	OTPBurst int
}

const (
	defaultConfirmTimeout = 90 * time.Second
	defaultMarkerTTL      = 24 * time.Hour
)

// SessionManager owns the client-side session state machine: wallet
// connectivity, registration, the signature login flow with its local OTP
// confirmation, logout and reconciliation with wallet account/chain changes.
//
// Mutating operations are serialized: a second mutation while one is in
// flight fails fast with OperationInProgress. Snapshot stays concurrent.
type SessionManager struct {
	wallet ports.WalletProvider
	dial   RegistryDialer

	markers   ports.MarkerStore
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	logger    *slog.Logger
	otp       OTPIssuer
	limiter   *rate.Limiter

	confirmTimeout time.Duration
	markerTTL      time.Duration

	mu       sync.Mutex
	session  core.Session
	registry ports.Registry
	busy     bool

	// gen increments on every disconnect and wallet event. In-flight
	// operations capture it at start and discard their completion when it
	// moved on.
	gen uint64

	unsubscribe func()
	watcherDone chan struct{}
}

// NewSessionManager wires a manager and starts watching wallet events.
// Call Close to stop the watcher.
func NewSessionManager(wallet ports.WalletProvider, dial RegistryDialer, cfg Config) *SessionManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OTP == nil {
		cfg.OTP = RandomOTPIssuer{}
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = defaultMarkerTTL
	}

	m := &SessionManager{
		wallet:         wallet,
		dial:           dial,
		markers:        cfg.Markers,
		tokenizer:      cfg.Tokenizer,
		events:         cfg.Events,
		logger:         cfg.Logger,
		otp:            cfg.OTP,
		confirmTimeout: cfg.ConfirmTimeout,
		markerTTL:      cfg.MarkerTTL,
		session:        core.Session{State: core.StateDisconnected},
		watcherDone:    make(chan struct{}),
	}
	if cfg.OTPRate > 0 {
		burst := cfg.OTPBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(cfg.OTPRate, burst)
	}

	events, unsubscribe := wallet.Subscribe()
	m.unsubscribe = unsubscribe
	go m.watch(events)

	return m
}

// Close stops the wallet event watcher.
func (m *SessionManager) Close() {
	m.unsubscribe()
	<-m.watcherDone
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *SessionManager) snapshotLocked() core.Session {
	s := m.session
	if s.Challenge != nil {
		c := *s.Challenge
		s.Challenge = &c
	}
	return s
}

// begin claims the single mutation slot and captures the current session
// generation. It fails fast when another mutation is in flight.
func (m *SessionManager) begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return 0, core.ErrOperationInProgress
	}
	m.busy = true
	return m.gen, nil
}

func (m *SessionManager) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// apply mutates the session under the lock unless the generation moved on,
// in which case the completion is stale and discarded.
func (m *SessionManager) apply(gen uint64, fn func(s *core.Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	fn(&m.session)
	return true
}

// Connect asks the wallet for its accounts and loads the first account's
// on-chain registration state and balance.
func (m *SessionManager) Connect(ctx context.Context) (core.Session, error) {
	gen, err := m.begin()
	if err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	m.apply(gen, func(s *core.Session) { s.State = core.StateConnecting })

	accounts, err := m.wallet.RequestAccounts(ctx)
	if err != nil {
		m.apply(gen, func(s *core.Session) { s.Reset() })
		return m.Snapshot(), err
	}
	if len(accounts) == 0 {
		m.apply(gen, func(s *core.Session) { s.Reset() })
		return m.Snapshot(), core.NewError(core.KindWalletUnavailable, "wallet returned no accounts")
	}
	addr := accounts[0]

	registry := m.dial(addr)
	details, err := registry.GetUserDetails(ctx, addr)
	if err != nil {
		m.apply(gen, func(s *core.Session) { s.Reset() })
		return m.Snapshot(), core.WrapError(core.KindNetworkError, "failed to read registration state", err)
	}

	balance, err := m.wallet.Balance(ctx, addr)
	if err != nil {
		m.logger.Warn("balance unavailable", "address", addr.Hex(), "error", err)
	}

	m.apply(gen, func(s *core.Session) {
		s.Reset()
		s.Address = addr
		s.Registered = details.Registered()
		s.Username = details.Username
		s.Role = details.Role
		s.Balance = balance
		if s.Registered {
			s.State = core.StateRegistered
		} else {
			s.State = core.StateUnregistered
		}
		m.registry = registry
	})
	return m.Snapshot(), nil
}

// Register submits an on-chain registration for the connected account.
// Usernames shorter than three characters are rejected locally, without a
// chain call.
func (m *SessionManager) Register(ctx context.Context, username string) (core.Session, error) {
	gen, err := m.begin()
	if err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	snap := m.Snapshot()
	if !snap.State.Connected() {
		return snap, core.NewError(core.KindWalletUnavailable, "no wallet connected")
	}
	if len(username) < 3 {
		return snap, core.ErrUsernameTooShort
	}
	if snap.Registered {
		return snap, core.ErrAlreadyRegistered
	}

	registry := m.boundRegistry()
	tx, err := registry.RegisterUser(ctx, username)
	if err != nil {
		return m.Snapshot(), err
	}

	receipt, err := m.await(ctx, tx)
	if err != nil {
		return m.Snapshot(), err
	}

	details, err := registry.GetUserDetails(ctx, snap.Address)
	if err != nil {
		return m.Snapshot(), core.WrapError(core.KindNetworkError, "registered but failed to read back details", err)
	}

	if m.apply(gen, func(s *core.Session) {
		s.Registered = true
		s.Username = details.Username
		s.Role = details.Role
		s.State = core.StateRegistered
	}) {
		m.publish(func(p ports.EventPublisher) error {
			return p.PublishRegistered(ctx, snap.Address, details.Username, details.Role)
		})
	} else {
		m.logger.Info("discarding stale registration completion", "tx", receipt.TxHash.Hex())
	}
	return m.Snapshot(), nil
}

// Login runs the signature challenge. On a successful on-chain attempt the
// session moves to AwaitingOTP with a freshly issued confirmation code; a
// failed attempt surfaces the contract's message and leaves the session
// connected.
func (m *SessionManager) Login(ctx context.Context) (core.Session, error) {
	gen, err := m.begin()
	if err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	snap := m.Snapshot()
	switch {
	case !snap.State.Connected():
		return snap, core.NewError(core.KindWalletUnavailable, "no wallet connected")
	case !snap.Registered:
		return snap, core.ErrNotRegistered
	case snap.State == core.StateLoggedIn:
		return snap, core.NewError(core.KindOperationInProgress, "already logged in")
	case snap.State != core.StateRegistered:
		return snap, core.NewError(core.KindOperationInProgress, "login already in progress")
	}

	m.apply(gen, func(s *core.Session) { s.State = core.StateLoginPending })
	revert := func() {
		m.apply(gen, func(s *core.Session) { s.State = core.StateRegistered })
	}

	issuedAt := time.Now()
	message := fmt.Sprintf("Sign this message to log in: %d", issuedAt.UnixMilli())

	signature, err := m.wallet.SignMessage(ctx, snap.Address, []byte(message))
	if err != nil {
		revert()
		return m.Snapshot(), err
	}

	tx, err := m.boundRegistry().AttemptLogin(ctx, message, signature)
	if err != nil {
		revert()
		return m.Snapshot(), err
	}

	receipt, err := m.await(ctx, tx)
	if err != nil {
		revert()
		return m.Snapshot(), err
	}
	if receipt.Login == nil {
		revert()
		return m.Snapshot(), core.NewError(core.KindNetworkError, "login receipt carried no attempt outcome")
	}

	m.publish(func(p ports.EventPublisher) error {
		return p.PublishLoginAttempt(ctx, snap.Address, receipt.Login.Success, receipt.Login.Message)
	})

	if !receipt.Login.Success {
		revert()
		return m.Snapshot(), core.NewError(core.KindSignatureInvalid, receipt.Login.Message)
	}

	code, err := m.otp.Issue(issuedAt)
	if err != nil {
		revert()
		return m.Snapshot(), err
	}

	if !m.apply(gen, func(s *core.Session) {
		s.Challenge = &core.Challenge{Message: message, IssuedAt: issuedAt}
		s.OTP = code
		s.State = core.StateAwaitingOTP
	}) {
		m.logger.Info("discarding stale login completion", "tx", receipt.TxHash.Hex())
	}
	return m.Snapshot(), nil
}

// SubmitOTP checks the confirmation code. A wrong code keeps the session in
// AwaitingOTP; the right one completes the login and persists the logged-in
// marker.
func (m *SessionManager) SubmitOTP(ctx context.Context, code string) (core.Session, error) {
	gen, err := m.begin()
	if err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	snap := m.Snapshot()
	if snap.State != core.StateAwaitingOTP {
		return snap, core.NewError(core.KindInvalidOTP, "no OTP confirmation pending")
	}

	if m.limiter != nil && !m.limiter.Allow() {
		return snap, core.ErrTooManyAttempts
	}

	if !m.otp.Verify(snap.OTP, code, time.Now()) {
		return snap, core.ErrInvalidOTP
	}

	m.storeMarker(ctx, snap)

	if m.apply(gen, func(s *core.Session) {
		s.Challenge = nil
		s.OTP = ""
		s.State = core.StateLoggedIn
	}) {
		m.publish(func(p ports.EventPublisher) error {
			return p.PublishLoggedIn(ctx, snap.Address)
		})
	}
	return m.Snapshot(), nil
}

// CancelOTP abandons a pending confirmation and returns the session to its
// connected state. Cancelling when nothing is pending is a no-op.
func (m *SessionManager) CancelOTP(ctx context.Context) (core.Session, error) {
	gen, err := m.begin()
	if err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	m.apply(gen, func(s *core.Session) {
		if s.State != core.StateAwaitingOTP {
			return
		}
		s.Challenge = nil
		s.OTP = ""
		s.State = core.StateRegistered
	})
	return m.Snapshot(), nil
}

// Disconnect clears the session, deletes the persisted marker and abandons
// any in-flight completions.
func (m *SessionManager) Disconnect(ctx context.Context) (core.Session, error) {
	if _, err := m.begin(); err != nil {
		return m.Snapshot(), err
	}
	defer m.end()

	snap := m.Snapshot()
	if snap.State.Connected() {
		if m.markers != nil {
			if err := m.markers.DeleteMarker(ctx, snap.Address); err != nil {
				m.logger.Warn("failed to delete logged-in marker", "error", err)
			}
		}
		m.publish(func(p ports.EventPublisher) error {
			return p.PublishLogout(ctx, snap.Address)
		})
	}

	m.mu.Lock()
	m.gen++
	m.session.Reset()
	m.registry = nil
	m.mu.Unlock()

	return m.Snapshot(), nil
}

// Restore reconnects a previously logged-in wallet using the persisted
// marker. It restores to the connected registered state, never straight to
// logged in; the OTP flow still gates the session surfaces. The boolean
// reports whether a valid marker was found.
func (m *SessionManager) Restore(ctx context.Context) (core.Session, bool, error) {
	if m.markers == nil || m.tokenizer == nil {
		return m.Snapshot(), false, nil
	}

	snap := m.Snapshot()
	if snap.State != core.StateDisconnected {
		return snap, false, nil
	}

	accounts, err := m.wallet.RequestAccounts(ctx)
	if err != nil {
		return m.Snapshot(), false, err
	}
	if len(accounts) == 0 {
		return m.Snapshot(), false, core.NewError(core.KindWalletUnavailable, "wallet returned no accounts")
	}
	addr := accounts[0]

	token, ok, err := m.markers.Marker(ctx, addr)
	if err != nil {
		return m.Snapshot(), false, core.WrapError(core.KindNetworkError, "failed to read logged-in marker", err)
	}
	if !ok {
		return m.Snapshot(), false, nil
	}

	marker, err := m.tokenizer.VerifyMarker(token)
	if err != nil || marker.Address != addr {
		m.logger.Warn("dropping invalid logged-in marker", "address", addr.Hex())
		if err := m.markers.DeleteMarker(ctx, addr); err != nil {
			m.logger.Warn("failed to delete logged-in marker", "error", err)
		}
		return m.Snapshot(), false, nil
	}

	restored, err := m.Connect(ctx)
	if err != nil {
		return restored, false, err
	}
	if !restored.Registered {
		// The marker outlived the on-chain registration.
		if err := m.markers.DeleteMarker(ctx, addr); err != nil {
			m.logger.Warn("failed to delete logged-in marker", "error", err)
		}
		return restored, false, nil
	}
	return restored, true, nil
}

func (m *SessionManager) boundRegistry() ports.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry
}

// await waits for a receipt under the confirmation timeout.
func (m *SessionManager) await(ctx context.Context, tx ports.PendingTx) (*ports.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()

	receipt, err := tx.Wait(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, core.WrapError(core.KindNetworkError, "timed out awaiting confirmation", err)
		}
		return nil, err
	}
	return receipt, nil
}

func (m *SessionManager) storeMarker(ctx context.Context, snap core.Session) {
	if m.markers == nil || m.tokenizer == nil {
		return
	}
	now := time.Now()
	token, err := m.tokenizer.IssueMarker(ports.Marker{
		Address:   snap.Address,
		Username:  snap.Username,
		Role:      snap.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.markerTTL),
	})
	if err != nil {
		m.logger.Warn("failed to issue logged-in marker", "error", err)
		return
	}
	if err := m.markers.SetMarker(ctx, snap.Address, token, m.markerTTL); err != nil {
		m.logger.Warn("failed to store logged-in marker", "error", err)
	}
}

// publish fires a lifecycle event. Publish failures are logged, never
// surfaced: the triggering operation already succeeded.
func (m *SessionManager) publish(fn func(p ports.EventPublisher) error) {
	if m.events == nil {
		return
	}
	if err := fn(m.events); err != nil {
		m.logger.Warn("failed to publish session event", "error", err)
	}
}

// watch reconciles the session with wallet account and chain changes. Any
// change abandons in-flight flows of the previous account.
func (m *SessionManager) watch(events <-chan ports.WalletEvent) {
	defer close(m.watcherDone)
	for ev := range events {
		switch ev.Kind {
		case ports.AccountsChanged:
			m.onAccountsChanged(ev.Accounts)
		case ports.ChainChanged:
			m.onChainChanged()
		}
	}
}

func (m *SessionManager) onAccountsChanged(accounts []common.Address) {
	m.mu.Lock()
	if !m.session.State.Connected() {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen

	if len(accounts) == 0 {
		m.session.Reset()
		m.registry = nil
		m.mu.Unlock()
		return
	}

	addr := accounts[0]
	if addr == m.session.Address {
		m.mu.Unlock()
		return
	}

	m.session.Reset()
	m.session.State = core.StateConnecting
	m.session.Address = addr
	m.registry = m.dial(addr)
	m.mu.Unlock()

	m.reconcile(addr, gen)
}

func (m *SessionManager) onChainChanged() {
	m.mu.Lock()
	if !m.session.State.Connected() {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	addr := m.session.Address

	m.session.Reset()
	m.session.State = core.StateConnecting
	m.session.Address = addr
	m.registry = m.dial(addr)
	m.mu.Unlock()

	m.reconcile(addr, gen)
}

// reconcile refetches chain-derived state after a wallet event.
func (m *SessionManager) reconcile(addr common.Address, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.confirmTimeout)
	defer cancel()

	registry := m.dial(addr)
	details, err := registry.GetUserDetails(ctx, addr)
	if err != nil {
		m.logger.Warn("reconciliation failed, dropping session", "address", addr.Hex(), "error", err)
		m.apply(gen, func(s *core.Session) { s.Reset() })
		return
	}

	balance, err := m.wallet.Balance(ctx, addr)
	if err != nil {
		m.logger.Warn("balance unavailable", "address", addr.Hex(), "error", err)
	}

	m.apply(gen, func(s *core.Session) {
		s.Registered = details.Registered()
		s.Username = details.Username
		s.Role = details.Role
		s.Balance = balance
		if s.Registered {
			s.State = core.StateRegistered
		} else {
			s.State = core.StateUnregistered
		}
	})
}
