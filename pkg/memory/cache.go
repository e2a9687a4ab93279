package memory

import "github.com/aretw0/canopy/pkg/domain"

// CacheKey identifies a memoized value: the declaring owner, the member
// name and the controller instance it was computed for.
type CacheKey struct {
	Owner    string
	Member   string
	Instance string
}

// CacheEntry is a memoized value together with the predicate that decides
// whether it still applies to the session's position.
type CacheEntry struct {
	Value    any
	Strategy domain.CacheStrategy

	// Applicable is evaluated after every event; a false result drops the
	// entry. A nil predicate always applies.
	Applicable func(*Memory) bool
}

// CacheGet returns the entry for key when it is still applicable.
func (m *Memory) CacheGet(key CacheKey) (*CacheEntry, bool) {
	e, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	if e.Applicable != nil && !e.Applicable(m) {
		delete(m.cache, key)
		return nil, false
	}
	return e, true
}

func (m *Memory) CachePut(key CacheKey, entry *CacheEntry) {
	m.cache[key] = entry
}

// CacheLen is the number of entries in the cache table.
func (m *Memory) CacheLen() int {
	return len(m.cache)
}

// ClearCache drops every entry memoized for owner.member and returns the
// previous value. When several instances hold a value, the one computed
// for instance is preferred.
func (m *Memory) ClearCache(owner, member, instance string) (any, bool) {
	var (
		prev  any
		found bool
	)
	for k, e := range m.cache {
		if k.Owner != owner || k.Member != member {
			continue
		}
		if !found || k.Instance == instance {
			prev, found = e.Value, true
		}
		delete(m.cache, k)
	}
	return prev, found
}

// PruneCache drops the entries whose applicability predicate is false
// and returns how many were removed.
func (m *Memory) PruneCache() int {
	n := 0
	for k, e := range m.cache {
		if e.Applicable != nil && !e.Applicable(m) {
			delete(m.cache, k)
			n++
		}
	}
	return n
}
