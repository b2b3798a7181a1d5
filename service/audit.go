package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/ports"
)

// AuditService joins the contract's three event streams into one ordered
// audit trail. Queries are read-only and safe to re-run concurrently.
type AuditService struct {
	source   ports.AuditSource
	registry ports.Registry
	cache    ports.AuditCache
	logger   *slog.Logger
}

// NewAuditService wires an audit query service. The registry is used for the
// role join on registration entries; cache is optional.
func NewAuditService(source ports.AuditSource, registry ports.Registry, cache ports.AuditCache, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{source: source, registry: registry, cache: cache, logger: logger}
}

// Query fetches login attempts, registrations and role changes over r for
// one address, or all actors when addr is nil, merged in block order.
// Registration entries carry the actor's role at query time, looked up
// fresh, not the role at the moment of the event. An address with no
// history yields an empty trail, not an error.
//
// Successful queries feed the cache; when the chain source is unreachable
// the trail is served from previously cached entries instead.
func (a *AuditService) Query(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	entries, err := a.fetch(ctx, addr, r)
	if err != nil {
		if a.cache == nil {
			return nil, err
		}
		cached, listErr := a.cache.List(ctx, addr)
		if listErr != nil {
			a.logger.Warn("audit cache unavailable", "error", listErr)
			return nil, err
		}
		a.logger.Warn("serving audit trail from cache", "error", err)
		return filterBlockRange(cached, r), nil
	}

	if a.cache != nil {
		if err := a.cache.Append(ctx, entries); err != nil {
			a.logger.Warn("failed to cache audit entries", "error", err)
		}
	}
	return entries, nil
}

// fetch reads the three event streams, joins roles and merges the result
// in block order.
func (a *AuditService) fetch(ctx context.Context, addr *common.Address, r ports.BlockRange) ([]core.AuditEntry, error) {
	logins, err := a.source.LoginAttempts(ctx, addr, r)
	if err != nil {
		return nil, core.WrapError(core.KindNetworkError, "failed to query login attempts", err)
	}
	registrations, err := a.source.UserRegistrations(ctx, addr, r)
	if err != nil {
		return nil, core.WrapError(core.KindNetworkError, "failed to query registrations", err)
	}
	roleChanges, err := a.source.RoleChanges(ctx, addr, r)
	if err != nil {
		return nil, core.WrapError(core.KindNetworkError, "failed to query role changes", err)
	}

	if err := a.joinCurrentRoles(ctx, registrations); err != nil {
		return nil, err
	}

	entries := make([]core.AuditEntry, 0, len(logins)+len(registrations)+len(roleChanges))
	entries = append(entries, logins...)
	entries = append(entries, registrations...)
	entries = append(entries, roleChanges...)
	core.SortAuditEntries(entries)
	return entries, nil
}

// filterBlockRange keeps entries inside r. A zero To means no upper bound.
func filterBlockRange(entries []core.AuditEntry, r ports.BlockRange) []core.AuditEntry {
	kept := make([]core.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if e.BlockNumber < r.From {
			continue
		}
		if r.To != 0 && e.BlockNumber > r.To {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// joinCurrentRoles resolves each registration entry's role with a fresh
// details read per distinct actor.
func (a *AuditService) joinCurrentRoles(ctx context.Context, registrations []core.AuditEntry) error {
	if len(registrations) == 0 {
		return nil
	}

	roles := make(map[common.Address]core.Role)
	for i := range registrations {
		actor := registrations[i].Actor
		role, seen := roles[actor]
		if !seen {
			details, err := a.registry.GetUserDetails(ctx, actor)
			if err != nil {
				return core.WrapError(core.KindNetworkError, "failed to resolve registrant role", err)
			}
			role = details.Role
			roles[actor] = role
		}
		registrations[i].Role = role
	}
	return nil
}
