package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/echo/asm"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Program descriptions
// ---------------------------------------------------------------------------

// ProgramFile is the TOML shape of a program description.
type ProgramFile struct {
	Name    string     `toml:"name"`
	Entries []string   `toml:"entries"`
	Types   []TypeSpec `toml:"types"`
}

// TypeSpec describes one type.
type TypeSpec struct {
	Namespace  string       `toml:"namespace"`
	Name       string       `toml:"name"`
	Kind       string       `toml:"kind"` // class (default), valuetype, interface
	Base       string       `toml:"base"`
	Abstract   bool         `toml:"abstract"`
	Interfaces []string     `toml:"interfaces"`
	Fields     []FieldSpec  `toml:"fields"`
	Methods    []MethodSpec `toml:"methods"`
}

// FieldSpec describes one field.
type FieldSpec struct {
	Name   string `toml:"name"`
	Type   string `toml:"type"`
	Static bool   `toml:"static"`
}

// MethodSpec describes one method. Body is an assembler listing.
type MethodSpec struct {
	Name      string   `toml:"name"`
	Static    bool     `toml:"static"`
	Params    []string `toml:"params"`
	Returns   string   `toml:"returns"`
	Virtual   bool     `toml:"virtual"`
	Abstract  bool     `toml:"abstract"`
	NewSlot   bool     `toml:"newslot"`
	Ctor      bool     `toml:"ctor"`
	Overrides string   `toml:"overrides"` // Type::Method, explicit implementation
	Body      string   `toml:"body"`
}

// Program is a loaded program: a populated module and its entry points.
type Program struct {
	Name    string
	Module  *meta.Module
	Entries []*meta.MethodDef
}

// LoadProgram reads and builds a program description.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProgram builds a program from TOML source.
func ParseProgram(data []byte) (*Program, error) {
	var pf ProgramFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return pf.Build()
}

// Build defines every type, field and method in a fresh module, then
// assembles the bodies. Types are defined before anything refers to them so
// declaration order in the file does not matter.
func (pf *ProgramFile) Build() (*Program, error) {
	m := meta.NewModule(pf.Name)

	defs := make([]*meta.TypeDef, len(pf.Types))
	for i, ts := range pf.Types {
		if ts.Name == "" {
			return nil, fmt.Errorf("type %d has no name", i)
		}
		ns := ts.Namespace
		if ns == "" {
			ns = DefaultNamespace(pf.Name)
		}
		if IsReservedNamespace(ns) {
			return nil, fmt.Errorf("type %s.%s: namespace %s is reserved for the core library", ns, ts.Name, ns)
		}
		switch ts.Kind {
		case "", "class":
			defs[i] = m.DefineType(ns, ts.Name, m.CorLib.Object)
		case "valuetype":
			defs[i] = m.DefineValueType(ns, ts.Name)
		case "interface":
			defs[i] = m.DefineInterface(ns, ts.Name)
		default:
			return nil, fmt.Errorf("type %s: unknown kind %q", ts.Name, ts.Kind)
		}
		if ts.Abstract {
			defs[i].IsAbstract = true
		}
	}

	for i, ts := range pf.Types {
		td := defs[i]
		if ts.Base != "" {
			base, ok := m.TypeByName(ts.Base)
			if !ok {
				return nil, fmt.Errorf("type %s: unknown base %q", td.FullName(), ts.Base)
			}
			td.BaseType = base.ID
		}
		for _, name := range ts.Interfaces {
			iface, ok := m.TypeByName(name)
			if !ok || !iface.IsInterface {
				return nil, fmt.Errorf("type %s: %q is not an interface", td.FullName(), name)
			}
			td.Interfaces = append(td.Interfaces, iface.ID)
		}
		for _, fs := range ts.Fields {
			sig, err := asm.ParseType(m, fs.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s::%s: %w", td.FullName(), fs.Name, err)
			}
			m.DefineField(td, fs.Name, sig, fs.Static)
		}
	}

	methods := make([][]*meta.MethodDef, len(pf.Types))
	for i, ts := range pf.Types {
		for _, ms := range ts.Methods {
			md, err := defineMethod(m, defs[i], ms)
			if err != nil {
				return nil, err
			}
			methods[i] = append(methods[i], md)
		}
	}

	for i, ts := range pf.Types {
		for j, ms := range ts.Methods {
			md := methods[i][j]
			if ms.Overrides != "" {
				decl, err := lookupMethod(m, ms.Overrides)
				if err != nil {
					return nil, fmt.Errorf("method %s::%s: %w", defs[i].FullName(), md.Name, err)
				}
				m.AddMethodImpl(defs[i], decl, md)
			}
			if strings.TrimSpace(ms.Body) == "" {
				continue
			}
			if err := asm.AssembleMethod(m, md, ms.Body); err != nil {
				return nil, fmt.Errorf("method %s: %w", defs[i].FullName(), err)
			}
		}
	}

	p := &Program{Name: pf.Name, Module: m}
	for _, e := range pf.Entries {
		md, err := lookupMethod(m, e)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e, err)
		}
		p.Entries = append(p.Entries, md)
	}
	return p, nil
}

func defineMethod(m *meta.Module, td *meta.TypeDef, ms MethodSpec) (*meta.MethodDef, error) {
	sig := meta.MethodSig{HasThis: !ms.Static, Return: meta.Void}
	for _, p := range ms.Params {
		ps, err := asm.ParseType(m, p)
		if err != nil {
			return nil, fmt.Errorf("method %s::%s: %w", td.FullName(), ms.Name, err)
		}
		sig.Params = append(sig.Params, ps)
	}
	if ms.Returns != "" {
		rs, err := asm.ParseType(m, ms.Returns)
		if err != nil {
			return nil, fmt.Errorf("method %s::%s: %w", td.FullName(), ms.Name, err)
		}
		sig.Return = rs
	}

	var attrs meta.MethodAttributes
	if ms.Virtual || ms.Abstract || td.IsInterface {
		attrs |= meta.MethodVirtual
	}
	if ms.Abstract || (td.IsInterface && ms.Body == "") {
		attrs |= meta.MethodAbstract
	}
	if ms.NewSlot {
		attrs |= meta.MethodNewSlot
	}
	if ms.Ctor {
		attrs |= meta.MethodConstructor
	}
	name := ms.Name
	if ms.Ctor && name == "" {
		name = ".ctor"
	}
	return m.DefineMethod(td, name, sig, attrs), nil
}

// lookupMethod resolves "Namespace.Type::Method".
func lookupMethod(m *meta.Module, ref string) (*meta.MethodDef, error) {
	typeName, methodName, ok := strings.Cut(ref, "::")
	if !ok {
		return nil, fmt.Errorf("method reference %q is not Type::Method", ref)
	}
	md, found := m.FindMethod(typeName, methodName)
	if !found {
		return nil, fmt.Errorf("no method %q", ref)
	}
	return md, nil
}
