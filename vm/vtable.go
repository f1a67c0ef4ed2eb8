package vm

import "github.com/chazu/echo/meta"

// VTable caches virtual method resolution for one runtime type.
//
// Slots are keyed by the declaring method's ID and filled lazily: the first
// lookup of a declaration walks the type hierarchy through the module, later
// lookups hit the slot. Each table links to the table of its base type.
type VTable struct {
	typ     meta.TypeID
	parent  *VTable
	methods map[meta.MethodID]*meta.MethodDef
	module  *meta.Module
}

// Lookup returns the implementation of decl for this table's type. It
// returns false when the type has no concrete implementation.
func (vt *VTable) Lookup(decl *meta.MethodDef) (*meta.MethodDef, bool) {
	if m, ok := vt.methods[decl.ID]; ok {
		return m, m != nil
	}
	m, ok := vt.module.ResolveVirtual(vt.typ, decl)
	if !ok {
		m = nil
	}
	vt.methods[decl.ID] = m
	return m, ok
}

// LookupLocal returns a cached slot without resolving.
func (vt *VTable) LookupLocal(decl *meta.MethodDef) *meta.MethodDef {
	return vt.methods[decl.ID]
}

// Parent returns the table of the base type, or nil for System.Object.
func (vt *VTable) Parent() *VTable {
	return vt.parent
}

// Type returns the type this table belongs to.
func (vt *VTable) Type() meta.TypeID {
	return vt.typ
}

// MethodCount returns the number of cached slots.
func (vt *VTable) MethodCount() int {
	return len(vt.methods)
}

// VTableCache owns the tables of every type seen at a virtual call.
type VTableCache struct {
	module *meta.Module
	tables map[meta.TypeID]*VTable
}

// NewVTableCache creates an empty cache for module.
func NewVTableCache(module *meta.Module) *VTableCache {
	return &VTableCache{module: module, tables: make(map[meta.TypeID]*VTable)}
}

// For returns the table of t, creating it and its ancestors on first use.
func (c *VTableCache) For(t meta.TypeID) *VTable {
	if vt, ok := c.tables[t]; ok {
		return vt
	}
	vt := &VTable{
		typ:     t,
		methods: make(map[meta.MethodID]*meta.MethodDef),
		module:  c.module,
	}
	if base := c.module.Type(t).BaseType; base != meta.NoType {
		vt.parent = c.For(base)
	}
	c.tables[t] = vt
	return vt
}
