package meta

import "fmt"

// ---------------------------------------------------------------------------
// BodyBuilder: helper for constructing method bodies
// ---------------------------------------------------------------------------

// BodyBuilder appends instructions and computes their offsets. Branch
// operands are stored as absolute target offsets.
type BodyBuilder struct {
	instrs   []Instruction
	offset   int
	handlers []pendingHandler
	labels   []*Label
}

// NewBodyBuilder creates an empty builder.
func NewBodyBuilder() *BodyBuilder {
	return &BodyBuilder{instrs: make([]Instruction, 0, 16)}
}

// Offset returns the offset the next instruction will have.
func (b *BodyBuilder) Offset() int {
	return b.offset
}

// Emit appends an instruction. The operand must match the opcode's operand
// type (see Instruction).
func (b *BodyBuilder) Emit(op Opcode, operand any) *BodyBuilder {
	size := EncodedSize(op, operand)
	b.instrs = append(b.instrs, Instruction{
		Offset:  b.offset,
		Opcode:  op,
		Operand: operand,
		Size:    size,
	})
	b.offset += size
	return b
}

// Op appends an instruction without an operand.
func (b *BodyBuilder) Op(ops ...Opcode) *BodyBuilder {
	for _, op := range ops {
		b.Emit(op, nil)
	}
	return b
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a named position in the body that may be referenced before it is
// marked.
type Label struct {
	Name     string
	resolved bool
	position int
	refs     []labelRef
}

// labelRef locates an operand awaiting a label: an instruction index and,
// for switch tables, the slot in the target list (-1 otherwise).
type labelRef struct {
	instr int
	slot  int
}

// NewLabel creates an unresolved label.
func (b *BodyBuilder) NewLabel(name string) *Label {
	l := &Label{Name: name}
	b.labels = append(b.labels, l)
	return l
}

// Mark resolves a label to the current offset.
func (b *BodyBuilder) Mark(label *Label) *BodyBuilder {
	if label.resolved {
		panic(fmt.Sprintf("label %q already resolved", label.Name))
	}
	label.resolved = true
	label.position = b.offset

	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
	return b
}

func (b *BodyBuilder) patch(ref labelRef, target int) {
	in := &b.instrs[ref.instr]
	if ref.slot < 0 {
		in.Operand = target
		return
	}
	in.Operand.([]int)[ref.slot] = target
}

// EmitBranch appends a branch to label.
func (b *BodyBuilder) EmitBranch(op Opcode, label *Label) *BodyBuilder {
	b.Emit(op, 0)
	b.reference(label, labelRef{instr: len(b.instrs) - 1, slot: -1})
	return b
}

// EmitSwitch appends a switch over the given labels.
func (b *BodyBuilder) EmitSwitch(labels ...*Label) *BodyBuilder {
	b.Emit(OpSwitch, make([]int, len(labels)))
	idx := len(b.instrs) - 1
	for i, l := range labels {
		b.reference(l, labelRef{instr: idx, slot: i})
	}
	return b
}

func (b *BodyBuilder) reference(label *Label, ref labelRef) {
	if label.resolved {
		b.patch(ref, label.position)
		return
	}
	label.refs = append(label.refs, ref)
}

// ---------------------------------------------------------------------------
// Exception clauses
// ---------------------------------------------------------------------------

// HandlerLabels names the boundaries of one exception clause. FilterStart is
// only used by filter clauses; the filter block ends where the handler
// begins.
type HandlerLabels struct {
	TryStart, TryEnd         *Label
	HandlerStart, HandlerEnd *Label
	FilterStart              *Label
}

type pendingHandler struct {
	kind      HandlerKind
	labels    HandlerLabels
	catchType TypeID
}

// AddHandler registers an exception clause. Clauses must be added innermost
// first.
func (b *BodyBuilder) AddHandler(kind HandlerKind, labels HandlerLabels, catchType TypeID) *BodyBuilder {
	b.handlers = append(b.handlers, pendingHandler{kind: kind, labels: labels, catchType: catchType})
	return b
}

// Build resolves handler labels and returns the body. It fails if a label
// was referenced but never marked.
func (b *BodyBuilder) Build() (*MethodBody, error) {
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("label %q referenced but never marked", l.Name)
		}
	}

	pos := func(l *Label) (int, error) {
		if l == nil {
			return 0, nil
		}
		if !l.resolved {
			return 0, fmt.Errorf("handler label %q never marked", l.Name)
		}
		return l.position, nil
	}

	handlers := make([]ExceptionHandlerInfo, 0, len(b.handlers))
	for _, h := range b.handlers {
		var vals [5]int
		for i, l := range []*Label{h.labels.TryStart, h.labels.TryEnd, h.labels.HandlerStart, h.labels.HandlerEnd, h.labels.FilterStart} {
			v, err := pos(l)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		info := ExceptionHandlerInfo{
			Kind:      h.kind,
			Try:       Range{vals[0], vals[1]},
			Handler:   Range{vals[2], vals[3]},
			CatchType: h.catchType,
		}
		if h.kind == HandlerFilter {
			if h.labels.FilterStart == nil {
				return nil, fmt.Errorf("filter clause without filter start")
			}
			info.Filter = Range{vals[4], vals[2]}
		}
		if h.kind == HandlerFinally || h.kind == HandlerFault {
			info.CatchType = NoType
		}
		handlers = append(handlers, info)
	}

	instrs := make([]Instruction, len(b.instrs))
	copy(instrs, b.instrs)
	return NewMethodBody(instrs, handlers), nil
}

// MustBuild is like Build but panics on error.
func (b *BodyBuilder) MustBuild() *MethodBody {
	body, err := b.Build()
	if err != nil {
		panic(err)
	}
	return body
}
