package remote

import (
	"fmt"
)

// PoolInfo describes a destination pool on a remote domain: the settlement
// asset it pays out in, its address there, and the conversion rate — the
// smallest local amount representable as one destination unit. Immutable
// after first resolution.
type PoolInfo struct {
	Asset          string
	PoolAddress    string
	ConversionRate int64
}

// PoolRegistry is the remote factory that resolves opaque pool ids.
type PoolRegistry interface {
	ResolvePool(poolID string) (PoolInfo, error)
}

// PoolCache resolves each pool id at most once and serves the cached result
// forever after. Not safe for concurrent use — the engine serializes access.
type PoolCache struct {
	registry PoolRegistry
	pools    map[string]PoolInfo
}

func NewPoolCache(registry PoolRegistry) *PoolCache {
	return &PoolCache{
		registry: registry,
		pools:    make(map[string]PoolInfo),
	}
}

// Pool returns the cached info, resolving through the registry on first use.
func (pc *PoolCache) Pool(poolID string) (PoolInfo, error) {
	if info, ok := pc.pools[poolID]; ok {
		return info, nil
	}
	info, err := pc.registry.ResolvePool(poolID)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("resolve pool %q: %w", poolID, err)
	}
	if info.ConversionRate <= 0 {
		return PoolInfo{}, fmt.Errorf("pool %q: invalid conversion rate %d", poolID, info.ConversionRate)
	}
	pc.pools[poolID] = info
	return info, nil
}

// Snapshot returns a copy of the resolved pools.
func (pc *PoolCache) Snapshot() map[string]PoolInfo {
	cp := make(map[string]PoolInfo, len(pc.pools))
	for k, v := range pc.pools {
		cp[k] = v
	}
	return cp
}

// Restore replaces the cache contents from a snapshot.
func (pc *PoolCache) Restore(pools map[string]PoolInfo) {
	pc.pools = make(map[string]PoolInfo, len(pools))
	for k, v := range pools {
		pc.pools[k] = v
	}
}

// StaticRegistry is a PoolRegistry backed by a fixed table, for tests and
// deployments whose pool set is known at boot.
type StaticRegistry struct {
	Pools map[string]PoolInfo
}

func (s *StaticRegistry) ResolvePool(poolID string) (PoolInfo, error) {
	info, ok := s.Pools[poolID]
	if !ok {
		return PoolInfo{}, fmt.Errorf("unknown pool %q", poolID)
	}
	return info, nil
}
