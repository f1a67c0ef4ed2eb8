package vm

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/echo/meta"
)

func TestInlineCacheEmpty(t *testing.T) {
	ic := &InlineCache{}

	if method := ic.Lookup(1); method != nil {
		t.Error("Expected nil from empty cache")
	}
	if ic.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", ic.Misses)
	}
}

func TestInlineCacheMonomorphic(t *testing.T) {
	ic := &InlineCache{}
	method := &meta.MethodDef{Name: "Area"}

	ic.Update(7, method)
	if ic.State != CacheMonomorphic {
		t.Errorf("Expected monomorphic state, got %v", ic.State)
	}
	if got := ic.Lookup(7); got != method {
		t.Error("Expected cache hit")
	}
	if got := ic.Lookup(8); got != nil {
		t.Error("Expected cache miss for a different type")
	}
	if ic.Hits != 1 || ic.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", ic.Hits, ic.Misses)
	}
	if rate := ic.HitRate(); rate != 50 {
		t.Errorf("hit rate = %v, want 50", rate)
	}
}

func TestInlineCacheUpdateSameTypeIsIgnored(t *testing.T) {
	ic := &InlineCache{}
	first := &meta.MethodDef{Name: "first"}
	ic.Update(3, first)
	ic.Update(3, &meta.MethodDef{Name: "second"})

	if ic.State != CacheMonomorphic || ic.Count != 1 {
		t.Errorf("state %v with %d entries, want monomorphic with 1", ic.State, ic.Count)
	}
	if got := ic.Lookup(3); got != first {
		t.Errorf("Lookup = %v, want the first resolution", got)
	}
}

func TestInlineCachePolymorphicGrowth(t *testing.T) {
	ic := &InlineCache{}
	methods := make([]*meta.MethodDef, MaxPICEntries)
	for i := range methods {
		methods[i] = &meta.MethodDef{Name: "Area"}
		ic.Update(meta.TypeID(i+1), methods[i])
	}

	if ic.State != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", ic.State)
	}
	if ic.Count != MaxPICEntries {
		t.Errorf("Expected count %d, got %d", MaxPICEntries, ic.Count)
	}
	for i, want := range methods {
		if got := ic.Lookup(meta.TypeID(i + 1)); got != want {
			t.Errorf("Expected hit for type %d", i+1)
		}
	}
}

func TestInlineCacheUpgradeToMegamorphic(t *testing.T) {
	ic := &InlineCache{}
	for i := 0; i <= MaxPICEntries; i++ {
		ic.Update(meta.TypeID(i+1), &meta.MethodDef{Name: "Area"})
	}

	if ic.State != CacheMegamorphic {
		t.Errorf("Expected megamorphic, got %v", ic.State)
	}
	if got := ic.Lookup(1); got != nil {
		t.Error("Expected miss from megamorphic cache")
	}

	// Further updates leave it megamorphic.
	ic.Update(99, &meta.MethodDef{Name: "Area"})
	if ic.State != CacheMegamorphic || ic.Count != 0 {
		t.Errorf("state %v with %d entries, want megamorphic with 0", ic.State, ic.Count)
	}
}

func TestInlineCacheTable(t *testing.T) {
	table := NewInlineCacheTable()
	caller := &meta.MethodDef{ID: 4, Name: "Main"}

	a := table.GetOrCreate(caller, 10)
	if b := table.GetOrCreate(caller, 10); a != b {
		t.Error("GetOrCreate returned different caches for the same call site")
	}
	if c := table.GetOrCreate(caller, 20); a == c {
		t.Error("GetOrCreate shared a cache between call sites")
	}

	a.Update(1, &meta.MethodDef{Name: "Area"})
	a.Lookup(1)
	mono, poly, mega, hits, misses := table.Stats()
	if mono != 1 || poly != 0 || mega != 0 || hits != 1 || misses != 0 {
		t.Errorf("Stats = %d/%d/%d %d/%d, want 1/0/0 1/0", mono, poly, mega, hits, misses)
	}
}

func TestInlineCacheTableSites(t *testing.T) {
	table := NewInlineCacheTable()
	main := &meta.MethodDef{ID: 4, Name: "Main"}
	helper := &meta.MethodDef{ID: 2, Name: "Helper"}
	table.GetOrCreate(main, 20)
	table.GetOrCreate(main, 6)
	table.GetOrCreate(helper, 9).Update(3, helper)

	var got []string
	for _, site := range table.Sites() {
		got = append(got, fmt.Sprintf("%d@%d %s", site.Method, site.Offset, site.Cache.State))
	}
	want := []string{"2@9 mono", "4@6 empty", "4@20 empty"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sites mismatch (-want +got):\n%s", diff)
	}
}
