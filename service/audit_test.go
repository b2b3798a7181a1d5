package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/authgate/adapters/auditcache"
	"github.com/hexlane/authgate/adapters/registry"
	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/internal/eth"
	"github.com/hexlane/authgate/ports"
)

type recordingCache struct {
	appended [][]core.AuditEntry
}

func (c *recordingCache) Append(ctx context.Context, entries []core.AuditEntry) error {
	c.appended = append(c.appended, entries)
	return nil
}

func (c *recordingCache) List(ctx context.Context, addr *common.Address) ([]core.AuditEntry, error) {
	return nil, nil
}

func seedHistory(t *testing.T) (*registry.MemoryRegistry, common.Address, common.Address) {
	t.Helper()
	ctx := context.Background()

	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)

	userKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := crypto.PubkeyToAddress(userKey.PublicKey)

	reg := registry.NewMemoryRegistry(owner)
	client := reg.ForCaller(user)

	tx, err := client.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	_, err = tx.Wait(ctx)
	require.NoError(t, err)

	sig, err := eth.SignPersonal(userKey, []byte("login"))
	require.NoError(t, err)
	tx, err = client.AttemptLogin(ctx, "login", sig)
	require.NoError(t, err)
	_, err = tx.Wait(ctx)
	require.NoError(t, err)

	tx, err = reg.ForCaller(owner).ChangeUserRole(ctx, user, core.RoleAdmin)
	require.NoError(t, err)
	_, err = tx.Wait(ctx)
	require.NoError(t, err)

	return reg, owner, user
}

// unreachableSource fails every stream read, like a dropped RPC connection.
type unreachableSource struct{}

func (unreachableSource) LoginAttempts(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return nil, errors.New("connection refused")
}

func (unreachableSource) UserRegistrations(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return nil, errors.New("connection refused")
}

func (unreachableSource) RoleChanges(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	return nil, errors.New("connection refused")
}

func TestQueryMergesInBlockOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg, owner, user := seedHistory(t)
	cache := &recordingCache{}
	svc := NewAuditService(reg, reg.ForCaller(owner), cache, nil)

	entries, err := svc.Query(ctx, &user, ports.BlockRange{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].BlockNumber, entries[i].BlockNumber)
	}
	require.Equal(t, core.AuditUserRegistered, entries[0].Kind)
	require.Equal(t, core.AuditLoginAttempt, entries[1].Kind)
	require.True(t, entries[1].Success)
	require.Equal(t, core.AuditRoleChanged, entries[2].Kind)
	require.Equal(t, core.RoleAdmin, entries[2].Role)

	require.Len(t, cache.appended, 1)
	require.Len(t, cache.appended[0], 3)
}

func TestQueryJoinsCurrentRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg, owner, user := seedHistory(t)
	svc := NewAuditService(reg, reg.ForCaller(owner), nil, nil)

	// The user registered as a plain user and was promoted afterwards; the
	// registration entry reports the role as it stands now.
	entries, err := svc.Query(ctx, &user, ports.BlockRange{})
	require.NoError(t, err)

	var registration *core.AuditEntry
	for i := range entries {
		if entries[i].Kind == core.AuditUserRegistered {
			registration = &entries[i]
		}
	}
	require.NotNil(t, registration)
	require.Equal(t, core.RoleAdmin, registration.Role)
}

func TestQueryUnusedAddressIsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg, owner, _ := seedHistory(t)
	svc := NewAuditService(reg, reg.ForCaller(owner), nil, nil)

	unused := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	entries, err := svc.Query(ctx, &unused, ports.BlockRange{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestQueryServedFromCacheWhenSourceDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg, owner, user := seedHistory(t)

	cache, err := auditcache.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	require.NoError(t, cache.ApplyMigrations())

	warm := NewAuditService(reg, reg.ForCaller(owner), cache, nil)
	entries, err := warm.Query(ctx, &user, ports.BlockRange{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	cold := NewAuditService(unreachableSource{}, reg.ForCaller(owner), cache, nil)
	cached, err := cold.Query(ctx, &user, ports.BlockRange{})
	require.NoError(t, err)
	require.Len(t, cached, 3)
	for i := 1; i < len(cached); i++ {
		require.LessOrEqual(t, cached[i-1].BlockNumber, cached[i].BlockNumber)
	}

	bounded, err := cold.Query(ctx, &user, ports.BlockRange{From: entries[0].BlockNumber, To: entries[0].BlockNumber})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	require.Equal(t, core.AuditUserRegistered, bounded[0].Kind)

	// No cache leaves nothing to fall back to.
	bare := NewAuditService(unreachableSource{}, reg.ForCaller(owner), nil, nil)
	_, err = bare.Query(ctx, &user, ports.BlockRange{})
	require.ErrorIs(t, err, core.ErrNetworkError)
}

func TestQueryBoundedRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg, owner, user := seedHistory(t)
	svc := NewAuditService(reg, reg.ForCaller(owner), nil, nil)

	all, err := svc.Query(ctx, &user, ports.BlockRange{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	first := all[0].BlockNumber
	bounded, err := svc.Query(ctx, &user, ports.BlockRange{From: first, To: first})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	require.Equal(t, core.AuditUserRegistered, bounded[0].Kind)
}
