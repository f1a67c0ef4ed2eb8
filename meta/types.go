package meta

import "fmt"

// ---------------------------------------------------------------------------
// Type signatures
// ---------------------------------------------------------------------------

// TypeID indexes Module.Types.
type TypeID int

// NoType marks the absence of a type (for example the base of System.Object).
const NoType TypeID = -1

// ElementType classifies a type signature.
type ElementType byte

const (
	ElemVoid ElementType = iota
	ElemBoolean
	ElemChar
	ElemI1
	ElemU1
	ElemI2
	ElemU2
	ElemI4
	ElemU4
	ElemI8
	ElemU8
	ElemR4
	ElemR8
	ElemI
	ElemU
	ElemString
	ElemObject
	ElemClass
	ElemValueType
	ElemSZArray
	ElemPtr
	ElemByRef
)

var elementNames = [...]string{
	ElemVoid:      "void",
	ElemBoolean:   "bool",
	ElemChar:      "char",
	ElemI1:        "int8",
	ElemU1:        "uint8",
	ElemI2:        "int16",
	ElemU2:        "uint16",
	ElemI4:        "int32",
	ElemU4:        "uint32",
	ElemI8:        "int64",
	ElemU8:        "uint64",
	ElemR4:        "float32",
	ElemR8:        "float64",
	ElemI:         "native int",
	ElemU:         "native uint",
	ElemString:    "string",
	ElemObject:    "object",
	ElemClass:     "class",
	ElemValueType: "valuetype",
	ElemSZArray:   "szarray",
	ElemPtr:       "ptr",
	ElemByRef:     "byref",
}

func (e ElementType) String() string {
	if int(e) < len(elementNames) {
		return elementNames[e]
	}
	return fmt.Sprintf("elem_%d", byte(e))
}

// TypeSig is a type as it appears in signatures, locals and operands.
type TypeSig struct {
	Elem  ElementType
	Type  TypeID   // for ElemClass and ElemValueType
	Inner *TypeSig // for ElemSZArray, ElemPtr and ElemByRef
}

// Primitive signatures.
var (
	Void    = TypeSig{Elem: ElemVoid, Type: NoType}
	Boolean = TypeSig{Elem: ElemBoolean, Type: NoType}
	Char    = TypeSig{Elem: ElemChar, Type: NoType}
	Int8    = TypeSig{Elem: ElemI1, Type: NoType}
	UInt8   = TypeSig{Elem: ElemU1, Type: NoType}
	Int16   = TypeSig{Elem: ElemI2, Type: NoType}
	UInt16  = TypeSig{Elem: ElemU2, Type: NoType}
	Int32   = TypeSig{Elem: ElemI4, Type: NoType}
	UInt32  = TypeSig{Elem: ElemU4, Type: NoType}
	Int64   = TypeSig{Elem: ElemI8, Type: NoType}
	UInt64  = TypeSig{Elem: ElemU8, Type: NoType}
	Float32 = TypeSig{Elem: ElemR4, Type: NoType}
	Float64 = TypeSig{Elem: ElemR8, Type: NoType}
	IntPtr  = TypeSig{Elem: ElemI, Type: NoType}
	UIntPtr = TypeSig{Elem: ElemU, Type: NoType}
	String  = TypeSig{Elem: ElemString, Type: NoType}
	Object  = TypeSig{Elem: ElemObject, Type: NoType}
)

// ClassSig returns the signature of a reference type.
func ClassSig(id TypeID) TypeSig {
	return TypeSig{Elem: ElemClass, Type: id}
}

// ValueTypeSig returns the signature of a value type.
func ValueTypeSig(id TypeID) TypeSig {
	return TypeSig{Elem: ElemValueType, Type: id}
}

// ArrayOf returns the signature of a single-dimensional zero-based array.
func ArrayOf(elem TypeSig) TypeSig {
	return TypeSig{Elem: ElemSZArray, Type: NoType, Inner: &elem}
}

// PointerTo returns an unmanaged pointer signature.
func PointerTo(elem TypeSig) TypeSig {
	return TypeSig{Elem: ElemPtr, Type: NoType, Inner: &elem}
}

// ByRefTo returns a managed pointer signature.
func ByRefTo(elem TypeSig) TypeSig {
	return TypeSig{Elem: ElemByRef, Type: NoType, Inner: &elem}
}

// IsReference returns true for signatures stored as object references.
func (s TypeSig) IsReference() bool {
	switch s.Elem {
	case ElemString, ElemObject, ElemClass, ElemSZArray:
		return true
	}
	return false
}

// IsPointer returns true for managed and unmanaged pointers.
func (s TypeSig) IsPointer() bool {
	return s.Elem == ElemPtr || s.Elem == ElemByRef
}

// IsFloat returns true for float32 and float64.
func (s TypeSig) IsFloat() bool {
	return s.Elem == ElemR4 || s.Elem == ElemR8
}

// IsSigned returns true for signed integer element types.
func (s TypeSig) IsSigned() bool {
	switch s.Elem {
	case ElemI1, ElemI2, ElemI4, ElemI8, ElemI:
		return true
	}
	return false
}

// Equal compares two signatures structurally.
func (s TypeSig) Equal(o TypeSig) bool {
	if s.Elem != o.Elem {
		return false
	}
	switch s.Elem {
	case ElemClass, ElemValueType:
		return s.Type == o.Type
	case ElemSZArray, ElemPtr, ElemByRef:
		return s.Inner.Equal(*o.Inner)
	}
	return true
}

func (s TypeSig) String() string {
	switch s.Elem {
	case ElemClass, ElemValueType:
		return fmt.Sprintf("%s#%d", s.Elem, s.Type)
	case ElemSZArray:
		return s.Inner.String() + "[]"
	case ElemPtr:
		return s.Inner.String() + "*"
	case ElemByRef:
		return s.Inner.String() + "&"
	}
	return s.Elem.String()
}

// ---------------------------------------------------------------------------
// Type and field definitions
// ---------------------------------------------------------------------------

// MethodImpl maps an overridden declaration onto the body that implements
// it, as in an explicit interface implementation.
type MethodImpl struct {
	Declaration MethodID
	Body        MethodID
}

// TypeDef describes a type. The hierarchy is expressed with indices into
// the owning Module rather than pointers.
type TypeDef struct {
	ID          TypeID
	Namespace   string
	Name        string
	BaseType    TypeID
	Interfaces  []TypeID
	Fields      []*FieldDef
	Methods     []*MethodDef
	MethodImpls []MethodImpl

	IsValueType bool
	IsInterface bool
	IsAbstract  bool

	// Primitive is set for the corlib boxes of primitive values
	// (System.Int32 and friends).
	Primitive ElementType
	// ArrayElement is set for interned array types.
	ArrayElement *TypeSig
}

// FullName returns Namespace.Name.
func (t *TypeDef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Sig returns the signature referring to this type.
func (t *TypeDef) Sig() TypeSig {
	switch {
	case t.ArrayElement != nil:
		return ArrayOf(*t.ArrayElement)
	case t.Primitive != ElemVoid:
		return TypeSig{Elem: t.Primitive, Type: NoType}
	case t.IsValueType:
		return ValueTypeSig(t.ID)
	}
	return ClassSig(t.ID)
}

// InstanceFields returns the non-static fields declared on this type only.
func (t *TypeDef) InstanceFields() []*FieldDef {
	var out []*FieldDef
	for _, f := range t.Fields {
		if !f.IsStatic {
			out = append(out, f)
		}
	}
	return out
}

// FieldID indexes Module.Fields.
type FieldID int

// FieldDef describes a field.
type FieldDef struct {
	ID            FieldID
	DeclaringType TypeID
	Name          string
	Signature     TypeSig
	IsStatic      bool
}

func (f *FieldDef) String() string {
	return fmt.Sprintf("%s #%d::%s", f.Signature, f.DeclaringType, f.Name)
}
