package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChallengePaired(t *testing.T) {
	t.Parallel()

	var s Session
	require.True(t, s.ChallengePaired())

	s.Challenge = &Challenge{Message: "m", IssuedAt: time.Now()}
	require.False(t, s.ChallengePaired())

	s.OTP = "123456"
	require.True(t, s.ChallengePaired())

	s.Challenge = nil
	require.False(t, s.ChallengePaired())
}

func TestStatePredicates(t *testing.T) {
	t.Parallel()

	require.False(t, StateDisconnected.Connected())
	require.False(t, StateConnecting.Connected())
	for _, s := range []State{StateUnregistered, StateRegistered, StateLoginPending, StateAwaitingOTP, StateLoggedIn} {
		require.True(t, s.Connected(), string(s))
	}

	for _, s := range []State{StateDisconnected, StateConnecting, StateUnregistered, StateRegistered, StateLoginPending, StateAwaitingOTP} {
		require.False(t, s.Authenticated(), string(s))
	}
	require.True(t, StateLoggedIn.Authenticated())
}

func TestRoleParsing(t *testing.T) {
	t.Parallel()

	role, err := ParseRole("Admin")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)
	require.True(t, role.AtLeast(RoleUser))
	require.False(t, role.AtLeast(RoleSuperAdmin))

	_, err = ParseRole("Overlord")
	require.Error(t, err)
	require.False(t, Role(7).Valid())
}
