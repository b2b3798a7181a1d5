package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// State names a position in the session lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateUnregistered State = "connected_unregistered"
	StateRegistered   State = "connected_registered"
	StateLoginPending State = "login_pending"
	StateAwaitingOTP  State = "awaiting_otp"
	StateLoggedIn     State = "logged_in"
)

// Connected reports whether a wallet account is attached in this state.
func (s State) Connected() bool {
	return s != StateDisconnected && s != StateConnecting
}

// Authenticated reports whether session-gated surfaces may treat the session
// as logged in. Only StateLoggedIn qualifies; StateRegistered is the same
// on-chain state without the local OTP confirmation.
func (s State) Authenticated() bool { return s == StateLoggedIn }

// Challenge is an in-flight login challenge. It exists only between login
// submission and OTP confirmation or cancellation.
type Challenge struct {
	Message  string
	IssuedAt time.Time
}

// Session is the central entity owned by the session manager. Zero value is
// a disconnected session.
type Session struct {
	State      State
	Address    common.Address
	Registered bool
	Username   string
	Role       Role
	Balance    decimal.Decimal // ether amount of the connected account

	// Challenge and OTP are both set or both unset.
	Challenge *Challenge
	OTP       string
}

// ChallengePaired reports the paired challenge/OTP invariant.
func (s Session) ChallengePaired() bool {
	return (s.Challenge == nil) == (s.OTP == "")
}

// Reset returns the session to its empty disconnected form.
func (s *Session) Reset() {
	*s = Session{State: StateDisconnected}
}
