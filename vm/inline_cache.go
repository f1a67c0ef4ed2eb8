package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/echo/meta"
)

// Inline caching for callvirt.
//
// Most virtual call sites see a single receiver type, a few see a handful
// and rare ones see many. Each call site, identified by its method and IL
// offset, gets its own cache that moves from empty to monomorphic to
// polymorphic and finally to megamorphic, after which it always misses and
// the vtable is consulted directly.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CachePolymorphic
	CacheMegamorphic
)

var cacheStateNames = [...]string{
	CacheEmpty:       "empty",
	CacheMonomorphic: "mono",
	CachePolymorphic: "poly",
	CacheMegamorphic: "mega",
}

func (s CacheState) String() string {
	if int(s) < len(cacheStateNames) {
		return cacheStateNames[s]
	}
	return fmt.Sprintf("CacheState(%d)", uint8(s))
}

// MaxPICEntries is the maximum number of entries in a polymorphic cache.
const MaxPICEntries = 6

// InlineCacheEntry holds a single cached resolution.
type InlineCacheEntry struct {
	Type   meta.TypeID
	Method *meta.MethodDef
}

// InlineCache is the cache of one call site.
type InlineCache struct {
	State   CacheState
	Entries [MaxPICEntries]InlineCacheEntry
	Count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached target for receiver type t, or nil on a miss.
func (ic *InlineCache) Lookup(t meta.TypeID) *meta.MethodDef {
	switch ic.State {
	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Type == t {
				ic.Hits++
				return ic.Entries[i].Method
			}
		}
	}
	ic.Misses++
	return nil
}

// Update records a resolution, upgrading the cache state as needed.
func (ic *InlineCache) Update(t meta.TypeID, method *meta.MethodDef) {
	if method == nil {
		return
	}
	switch ic.State {
	case CacheEmpty:
		ic.State = CacheMonomorphic
		ic.Entries[0] = InlineCacheEntry{Type: t, Method: method}
		ic.Count = 1

	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Type == t {
				return
			}
		}
		if ic.Count < MaxPICEntries {
			ic.State = CachePolymorphic
			ic.Entries[ic.Count] = InlineCacheEntry{Type: t, Method: method}
			ic.Count++
			return
		}
		ic.State = CacheMegamorphic
		ic.Entries = [MaxPICEntries]InlineCacheEntry{}
		ic.Count = 0
	}
}

// HitRate returns the hit rate as a percentage.
func (ic *InlineCache) HitRate() float64 {
	total := ic.Hits + ic.Misses
	if total == 0 {
		return 0
	}
	return float64(ic.Hits) * 100 / float64(total)
}

type callSite struct {
	method meta.MethodID
	offset int
}

// InlineCacheTable holds the caches of every virtual call site executed by
// a machine.
type InlineCacheTable struct {
	caches map[callSite]*InlineCache
}

// NewInlineCacheTable creates an empty table.
func NewInlineCacheTable() *InlineCacheTable {
	return &InlineCacheTable{caches: make(map[callSite]*InlineCache)}
}

// GetOrCreate returns the cache for the call at offset in method.
func (t *InlineCacheTable) GetOrCreate(method *meta.MethodDef, offset int) *InlineCache {
	key := callSite{method: method.ID, offset: offset}
	if ic := t.caches[key]; ic != nil {
		return ic
	}
	ic := &InlineCache{}
	t.caches[key] = ic
	return ic
}

// CallSite is the cache of one call site, as listed by Sites.
type CallSite struct {
	Method meta.MethodID
	Offset int
	Cache  *InlineCache
}

// Sites returns every call site cache ordered by method and offset.
func (t *InlineCacheTable) Sites() []CallSite {
	sites := make([]CallSite, 0, len(t.caches))
	for key, ic := range t.caches {
		sites = append(sites, CallSite{Method: key.method, Offset: key.offset, Cache: ic})
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Method != sites[j].Method {
			return sites[i].Method < sites[j].Method
		}
		return sites[i].Offset < sites[j].Offset
	})
	return sites
}

// Stats returns the number of caches in each state and the aggregate hit
// and miss counts.
func (t *InlineCacheTable) Stats() (mono, poly, mega int, hits, misses uint64) {
	for _, ic := range t.caches {
		switch ic.State {
		case CacheMonomorphic:
			mono++
		case CachePolymorphic:
			poly++
		case CacheMegamorphic:
			mega++
		}
		hits += ic.Hits
		misses += ic.Misses
	}
	return
}
