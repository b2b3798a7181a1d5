package registry

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/internal/eth"
	"github.com/hexlane/authgate/ports"
)

func newAccount(t *testing.T) (common.Address, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey), key
}

func mustWait(t *testing.T, tx ports.PendingTx) *ports.Receipt {
	t.Helper()
	receipt, err := tx.Wait(context.Background())
	require.NoError(t, err)
	return receipt
}

func TestMemoryRegistryRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, _ := newAccount(t)
	reg := NewMemoryRegistry(owner)
	client := reg.ForCaller(user)

	t.Run("short username rejected without state change", func(t *testing.T) {
		_, err := client.RegisterUser(ctx, "ab")
		require.ErrorIs(t, err, core.ErrUsernameTooShort)

		details, err := client.GetUserDetails(ctx, user)
		require.NoError(t, err)
		require.False(t, details.Registered())
	})

	t.Run("fresh registration assigns the base role", func(t *testing.T) {
		tx, err := client.RegisterUser(ctx, "alice")
		require.NoError(t, err)
		mustWait(t, tx)

		details, err := client.GetUserDetails(ctx, user)
		require.NoError(t, err)
		require.True(t, details.Registered())
		require.Equal(t, "alice", details.Username)
		require.Equal(t, core.RoleUser, details.Role)
		require.True(t, details.LastLogin.IsZero())
	})

	t.Run("second registration reverts verbatim", func(t *testing.T) {
		_, err := client.RegisterUser(ctx, "alice")
		require.ErrorIs(t, err, core.ErrAlreadyRegistered)
		require.EqualError(t, err, "User already registered")
	})
}

func TestMemoryRegistryAttemptLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, key := newAccount(t)
	reg := NewMemoryRegistry(owner)
	client := reg.ForCaller(user)

	t.Run("unregistered caller reverts", func(t *testing.T) {
		_, err := client.AttemptLogin(ctx, "msg", nil)
		require.ErrorIs(t, err, core.ErrNotRegistered)
	})

	tx, err := client.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	mustWait(t, tx)

	t.Run("valid signature succeeds and stamps last login", func(t *testing.T) {
		message := "Sign this message to log in: 1"
		sig, err := eth.SignPersonal(key, []byte(message))
		require.NoError(t, err)

		tx, err := client.AttemptLogin(ctx, message, sig)
		require.NoError(t, err)
		receipt := mustWait(t, tx)

		require.NotNil(t, receipt.Login)
		require.True(t, receipt.Login.Success)
		require.Equal(t, "Login successful", receipt.Login.Message)

		details, err := client.GetUserDetails(ctx, user)
		require.NoError(t, err)
		require.False(t, details.LastLogin.IsZero())
	})

	t.Run("foreign signature mines with a failed event", func(t *testing.T) {
		_, otherKey := newAccount(t)
		message := "Sign this message to log in: 2"
		sig, err := eth.SignPersonal(otherKey, []byte(message))
		require.NoError(t, err)

		tx, err := client.AttemptLogin(ctx, message, sig)
		require.NoError(t, err)
		receipt := mustWait(t, tx)

		require.NotNil(t, receipt.Login)
		require.False(t, receipt.Login.Success)
		require.Equal(t, "Invalid signature", receipt.Login.Message)
	})
}

func TestMemoryRegistryRoleAdministration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, _ := newAccount(t)
	reg := NewMemoryRegistry(owner)

	tx, err := reg.ForCaller(user).RegisterUser(ctx, "alice")
	require.NoError(t, err)
	mustWait(t, tx)

	t.Run("plain users cannot change roles", func(t *testing.T) {
		_, err := reg.ForCaller(user).ChangeUserRole(ctx, user, core.RoleAdmin)
		require.ErrorIs(t, err, core.ErrTransactionReverted)
		require.EqualError(t, err, "Access denied: Admins only")
	})

	t.Run("owner promotes and demotes", func(t *testing.T) {
		tx, err := reg.ForCaller(owner).ChangeUserRole(ctx, user, core.RoleAdmin)
		require.NoError(t, err)
		mustWait(t, tx)

		details, err := reg.ForCaller(owner).GetUserDetails(ctx, user)
		require.NoError(t, err)
		require.Equal(t, core.RoleAdmin, details.Role)

		tx, err = reg.ForCaller(owner).ChangeUserRole(ctx, user, core.RoleUser)
		require.NoError(t, err)
		mustWait(t, tx)

		details, err = reg.ForCaller(owner).GetUserDetails(ctx, user)
		require.NoError(t, err)
		require.Equal(t, core.RoleUser, details.Role)
	})

	t.Run("admins cannot mint super admins", func(t *testing.T) {
		tx, err := reg.ForCaller(owner).ChangeUserRole(ctx, user, core.RoleAdmin)
		require.NoError(t, err)
		mustWait(t, tx)

		other, _ := newAccount(t)
		tx, err = reg.ForCaller(other).RegisterUser(ctx, "bob")
		require.NoError(t, err)
		mustWait(t, tx)

		_, err = reg.ForCaller(user).ChangeUserRole(ctx, other, core.RoleSuperAdmin)
		require.ErrorIs(t, err, core.ErrTransactionReverted)
	})

	t.Run("owner role is protected from admins", func(t *testing.T) {
		_, err := reg.ForCaller(user).ChangeUserRole(ctx, owner, core.RoleUser)
		require.ErrorIs(t, err, core.ErrTransactionReverted)
	})
}

func TestMemoryRegistryDeleteUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, _ := newAccount(t)
	reg := NewMemoryRegistry(owner)

	tx, err := reg.ForCaller(user).RegisterUser(ctx, "alice")
	require.NoError(t, err)
	mustWait(t, tx)

	_, err = reg.ForCaller(user).DeleteUser(ctx, user)
	require.ErrorIs(t, err, core.ErrTransactionReverted)

	_, err = reg.ForCaller(owner).DeleteUser(ctx, owner)
	require.ErrorIs(t, err, core.ErrTransactionReverted)

	tx, err = reg.ForCaller(owner).DeleteUser(ctx, user)
	require.NoError(t, err)
	mustWait(t, tx)

	details, err := reg.ForCaller(owner).GetUserDetails(ctx, user)
	require.NoError(t, err)
	require.False(t, details.Registered())
}

func TestMemoryRegistryAuditSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, key := newAccount(t)
	reg := NewMemoryRegistry(owner)
	client := reg.ForCaller(user)

	tx, err := client.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	mustWait(t, tx)

	sig, err := eth.SignPersonal(key, []byte("login"))
	require.NoError(t, err)
	tx, err = client.AttemptLogin(ctx, "login", sig)
	require.NoError(t, err)
	mustWait(t, tx)

	tx, err = reg.ForCaller(owner).ChangeUserRole(ctx, user, core.RoleAdmin)
	require.NoError(t, err)
	mustWait(t, tx)

	all := ports.BlockRange{}

	logins, err := reg.LoginAttempts(ctx, &user, all)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	require.True(t, logins[0].Success)
	require.NotEmpty(t, logins[0].ID)

	regs, err := reg.UserRegistrations(ctx, nil, all)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, "alice", regs[0].Username)

	roles, err := reg.RoleChanges(ctx, &user, all)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, core.RoleAdmin, roles[0].Role)

	t.Run("unused address yields an empty sequence", func(t *testing.T) {
		unused := common.HexToAddress("0x00000000000000000000000000000000000000aa")
		entries, err := reg.LoginAttempts(ctx, &unused, all)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("block range bounds the query", func(t *testing.T) {
		entries, err := reg.LoginAttempts(ctx, &user, ports.BlockRange{From: logins[0].BlockNumber + 1})
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func TestMemoryRegistryConfirmationFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner, _ := newAccount(t)
	user, _ := newAccount(t)
	reg := NewMemoryRegistry(owner)

	t.Run("injected confirmation failure", func(t *testing.T) {
		reg.FailNextWait(core.ErrTransactionReverted)
		tx, err := reg.ForCaller(user).RegisterUser(ctx, "alice")
		require.NoError(t, err)

		_, err = tx.Wait(ctx)
		require.ErrorIs(t, err, core.ErrTransactionReverted)
	})

	t.Run("latency respects context deadline", func(t *testing.T) {
		reg.SetLatency(200 * time.Millisecond)
		defer reg.SetLatency(0)

		other, _ := newAccount(t)
		tx, err := reg.ForCaller(other).RegisterUser(ctx, "carol")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = tx.Wait(waitCtx)
		require.ErrorIs(t, err, core.ErrNetworkError)
	})
}
