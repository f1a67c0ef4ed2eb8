package meta

import "fmt"

// ---------------------------------------------------------------------------
// Module: the type graph
// ---------------------------------------------------------------------------

// CorLib holds the identifiers of the well-known runtime types every module
// defines.
type CorLib struct {
	Object                     TypeID
	ValueType                  TypeID
	String                     TypeID
	Array                      TypeID
	Exception                  TypeID
	SystemException            TypeID
	ArithmeticException        TypeID
	DivideByZeroException      TypeID
	OverflowException          TypeID
	NullReferenceException     TypeID
	IndexOutOfRangeException   TypeID
	InvalidCastException       TypeID
	ArrayTypeMismatchException TypeID

	// ExceptionMessage is System.Exception::_message.
	ExceptionMessage *FieldDef

	primitives map[ElementType]TypeID
}

// Module is a closed world of types, fields and methods addressed by index.
type Module struct {
	Name    string
	Types   []*TypeDef
	Methods []*MethodDef
	Fields  []*FieldDef
	CorLib  CorLib

	byName map[string]TypeID
	arrays map[string]TypeID
}

// NewModule creates a module pre-populated with the runtime library types.
func NewModule(name string) *Module {
	m := &Module{
		Name:   name,
		byName: make(map[string]TypeID),
		arrays: make(map[string]TypeID),
	}
	m.defineCorLib()
	return m
}

func (m *Module) defineCorLib() {
	c := &m.CorLib
	c.Object = m.DefineType("System", "Object", NoType).ID
	c.ValueType = m.DefineType("System", "ValueType", c.Object).ID
	m.Type(c.ValueType).IsAbstract = true
	c.String = m.DefineType("System", "String", c.Object).ID
	c.Array = m.DefineType("System", "Array", c.Object).ID
	m.Type(c.Array).IsAbstract = true

	exc := m.DefineType("System", "Exception", c.Object)
	c.Exception = exc.ID
	c.ExceptionMessage = m.DefineField(exc, "_message", String, false)
	c.SystemException = m.DefineType("System", "SystemException", c.Exception).ID
	c.ArithmeticException = m.DefineType("System", "ArithmeticException", c.SystemException).ID
	c.DivideByZeroException = m.DefineType("System", "DivideByZeroException", c.ArithmeticException).ID
	c.OverflowException = m.DefineType("System", "OverflowException", c.ArithmeticException).ID
	c.NullReferenceException = m.DefineType("System", "NullReferenceException", c.SystemException).ID
	c.IndexOutOfRangeException = m.DefineType("System", "IndexOutOfRangeException", c.SystemException).ID
	c.InvalidCastException = m.DefineType("System", "InvalidCastException", c.SystemException).ID
	c.ArrayTypeMismatchException = m.DefineType("System", "ArrayTypeMismatchException", c.SystemException).ID

	c.primitives = make(map[ElementType]TypeID)
	for _, p := range []struct {
		name string
		elem ElementType
	}{
		{"Boolean", ElemBoolean}, {"Char", ElemChar},
		{"SByte", ElemI1}, {"Byte", ElemU1},
		{"Int16", ElemI2}, {"UInt16", ElemU2},
		{"Int32", ElemI4}, {"UInt32", ElemU4},
		{"Int64", ElemI8}, {"UInt64", ElemU8},
		{"Single", ElemR4}, {"Double", ElemR8},
		{"IntPtr", ElemI}, {"UIntPtr", ElemU},
	} {
		t := m.DefineValueType("System", p.name)
		t.Primitive = p.elem
		m.DefineField(t, "m_value", TypeSig{Elem: p.elem, Type: NoType}, false)
		c.primitives[p.elem] = t.ID
	}
}

// Primitive returns the boxed representation of a primitive element type.
func (c *CorLib) Primitive(e ElementType) (TypeID, bool) {
	id, ok := c.primitives[e]
	return id, ok
}

// DefineType adds a reference type deriving from base.
func (m *Module) DefineType(namespace, name string, base TypeID) *TypeDef {
	t := &TypeDef{
		ID:        TypeID(len(m.Types)),
		Namespace: namespace,
		Name:      name,
		BaseType:  base,
	}
	m.Types = append(m.Types, t)
	m.byName[t.FullName()] = t.ID
	return t
}

// DefineValueType adds a value type deriving from System.ValueType.
func (m *Module) DefineValueType(namespace, name string) *TypeDef {
	t := m.DefineType(namespace, name, m.CorLib.ValueType)
	t.IsValueType = true
	return t
}

// DefineInterface adds an interface type.
func (m *Module) DefineInterface(namespace, name string) *TypeDef {
	t := m.DefineType(namespace, name, NoType)
	t.IsInterface = true
	t.IsAbstract = true
	return t
}

// DefineField adds a field to t.
func (m *Module) DefineField(t *TypeDef, name string, sig TypeSig, static bool) *FieldDef {
	f := &FieldDef{
		ID:            FieldID(len(m.Fields)),
		DeclaringType: t.ID,
		Name:          name,
		Signature:     sig,
		IsStatic:      static,
	}
	m.Fields = append(m.Fields, f)
	t.Fields = append(t.Fields, f)
	return f
}

// DefineMethod adds a method to t.
func (m *Module) DefineMethod(t *TypeDef, name string, sig MethodSig, attrs MethodAttributes) *MethodDef {
	md := &MethodDef{
		ID:            MethodID(len(m.Methods)),
		DeclaringType: t.ID,
		Name:          name,
		Signature:     sig,
		Attributes:    attrs,
	}
	m.Methods = append(m.Methods, md)
	t.Methods = append(t.Methods, md)
	return md
}

// AddMethodImpl records that body explicitly implements decl on t.
func (m *Module) AddMethodImpl(t *TypeDef, decl, body *MethodDef) {
	t.MethodImpls = append(t.MethodImpls, MethodImpl{Declaration: decl.ID, Body: body.ID})
}

// Type returns the definition for id. It panics on an invalid id.
func (m *Module) Type(id TypeID) *TypeDef {
	if id < 0 || int(id) >= len(m.Types) {
		panic(fmt.Sprintf("meta: invalid type id %d", id))
	}
	return m.Types[id]
}

// Method returns the definition for id.
func (m *Module) Method(id MethodID) *MethodDef {
	return m.Methods[id]
}

// TypeByName looks up a type by its full name.
func (m *Module) TypeByName(fullName string) (*TypeDef, bool) {
	id, ok := m.byName[fullName]
	if !ok {
		return nil, false
	}
	return m.Types[id], true
}

// FindMethod looks up a method by declaring type and name.
func (m *Module) FindMethod(typeName, methodName string) (*MethodDef, bool) {
	t, ok := m.TypeByName(typeName)
	if !ok {
		return nil, false
	}
	for _, md := range t.Methods {
		if md.Name == methodName {
			return md, true
		}
	}
	return nil, false
}

// FindField looks up a field by declaring type and name.
func (m *Module) FindField(typeName, fieldName string) (*FieldDef, bool) {
	t, ok := m.TypeByName(typeName)
	if !ok {
		return nil, false
	}
	for _, f := range t.Fields {
		if f.Name == fieldName {
			return f, true
		}
	}
	return nil, false
}

// ArrayType interns the array type with the given element signature.
func (m *Module) ArrayType(elem TypeSig) TypeID {
	key := m.SigName(elem)
	if id, ok := m.arrays[key]; ok {
		return id
	}
	e := elem
	t := m.DefineType("", key+"[]", m.CorLib.Array)
	t.ArrayElement = &e
	m.arrays[key] = t.ID
	return t.ID
}

// TypeOfSig returns the type a signature denotes, or NoType for void and
// pointers.
func (m *Module) TypeOfSig(sig TypeSig) TypeID {
	switch sig.Elem {
	case ElemClass, ElemValueType:
		return sig.Type
	case ElemString:
		return m.CorLib.String
	case ElemObject:
		return m.CorLib.Object
	case ElemSZArray:
		return m.ArrayType(*sig.Inner)
	case ElemVoid, ElemPtr, ElemByRef:
		return NoType
	}
	if id, ok := m.CorLib.primitives[sig.Elem]; ok {
		return id
	}
	return NoType
}

// SigName renders a signature using type names.
func (m *Module) SigName(sig TypeSig) string {
	switch sig.Elem {
	case ElemClass, ElemValueType:
		if sig.Type >= 0 && int(sig.Type) < len(m.Types) {
			return m.Types[sig.Type].FullName()
		}
	case ElemSZArray:
		return m.SigName(*sig.Inner) + "[]"
	case ElemPtr:
		return m.SigName(*sig.Inner) + "*"
	case ElemByRef:
		return m.SigName(*sig.Inner) + "&"
	}
	return sig.String()
}

// IsValueType returns true for signatures that are stored inline: primitives
// and user value types.
func (m *Module) IsValueType(sig TypeSig) bool {
	switch sig.Elem {
	case ElemValueType:
		return true
	case ElemClass:
		return m.Type(sig.Type).IsValueType
	}
	return !sig.IsReference() && !sig.IsPointer() && sig.Elem != ElemVoid
}

// AllInstanceFields returns the instance fields of id and its base types,
// base-most first.
func (m *Module) AllInstanceFields(id TypeID) []*FieldDef {
	var chain []TypeID
	for t := id; t != NoType; t = m.Type(t).BaseType {
		chain = append(chain, t)
	}
	var out []*FieldDef
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, m.Type(chain[i]).InstanceFields()...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Type hierarchy queries
// ---------------------------------------------------------------------------

// IsAssignableTo reports whether a value whose runtime type is from can be
// stored in a location of type to.
func (m *Module) IsAssignableTo(from, to TypeID) bool {
	if from == to {
		return true
	}
	if from == NoType || to == NoType {
		return false
	}
	fromDef, toDef := m.Type(from), m.Type(to)

	if fromDef.ArrayElement != nil && toDef.ArrayElement != nil {
		fe, te := *fromDef.ArrayElement, *toDef.ArrayElement
		if fe.IsReference() && te.IsReference() {
			return m.IsAssignableTo(m.TypeOfSig(fe), m.TypeOfSig(te))
		}
		return false
	}

	if fromDef.IsInterface {
		return m.implements(from, to) || to == m.CorLib.Object
	}

	for t := from; t != NoType; t = m.Type(t).BaseType {
		if t == to {
			return true
		}
		if toDef.IsInterface && m.implements(t, to) {
			return true
		}
	}
	return false
}

// implements walks the interface lists of t (and the interfaces those
// extend) with an explicit work list.
func (m *Module) implements(t, iface TypeID) bool {
	work := append([]TypeID(nil), m.Type(t).Interfaces...)
	seen := make(map[TypeID]bool)
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		if i == iface {
			return true
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		work = append(work, m.Type(i).Interfaces...)
	}
	return false
}

// ResolveVirtual finds the implementation of decl for an object whose
// runtime type is runtimeType. Explicit implementations (MethodImpls) take
// precedence over name and signature matches on the same type; the walk
// proceeds from the runtime type towards System.Object. A newslot method
// opens a slot of its own, so it and the overrides below it do not
// implement decl.
func (m *Module) ResolveVirtual(runtimeType TypeID, decl *MethodDef) (*MethodDef, bool) {
	if !decl.IsVirtual() {
		return decl, !decl.IsAbstract()
	}
	declIsInterface := m.Type(decl.DeclaringType).IsInterface

	// found is the most derived override in decl's slot seen so far.
	var found *MethodDef
	for t := runtimeType; t != NoType; t = m.Type(t).BaseType {
		td := m.Type(t)
		for _, impl := range td.MethodImpls {
			if impl.Declaration == decl.ID {
				if found == nil {
					found = m.Method(impl.Body)
				}
				return implementation(found)
			}
		}
		for _, candidate := range td.Methods {
			if candidate == decl {
				if found == nil {
					found = decl
				}
				return implementation(found)
			}
			if !candidate.IsVirtual() || candidate.Name != decl.Name || !candidate.Signature.Equal(decl.Signature) {
				continue
			}
			if declIsInterface {
				return implementation(candidate)
			}
			if candidate.IsNewSlot() {
				found = nil
				continue
			}
			if found == nil {
				found = candidate
			}
		}
	}
	if found == nil {
		return nil, false
	}
	return implementation(found)
}

func implementation(md *MethodDef) (*MethodDef, bool) {
	if md.IsAbstract() {
		return nil, false
	}
	return md, true
}
