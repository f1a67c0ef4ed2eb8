package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/echo/meta"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("echo.asm")

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is an assembly error at a source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// Listing is the result of assembling one method body.
type Listing struct {
	Body   *meta.MethodBody
	Locals []meta.TypeSig
}

// Assembler turns listing source into a method body, resolving type and
// member names against a module.
type Assembler struct {
	module *meta.Module
	lex    *Lexer
	cur    Token
	peek   Token

	builder *meta.BodyBuilder
	labels  map[string]*meta.Label
	marked  map[string]bool
	locals  []meta.TypeSig
	hasLoc  bool
	max     int
}

// NewAssembler creates an assembler for src.
func NewAssembler(m *meta.Module, src string) *Assembler {
	a := &Assembler{
		module:  m,
		lex:     NewLexer(src),
		builder: meta.NewBodyBuilder(),
		labels:  make(map[string]*meta.Label),
		marked:  make(map[string]bool),
	}
	a.next()
	a.next()
	return a
}

// Assemble assembles src against m.
func Assemble(m *meta.Module, src string) (*Listing, error) {
	return NewAssembler(m, src).Assemble()
}

// AssembleMethod assembles src and installs the body (and any .locals) on md.
func AssembleMethod(m *meta.Module, md *meta.MethodDef, src string) error {
	listing, err := Assemble(m, src)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", md.Name, err)
	}
	md.Body = listing.Body
	if listing.Locals != nil {
		md.Locals = listing.Locals
	}
	return nil
}

func (a *Assembler) next() {
	a.cur = a.peek
	a.peek = a.lex.NextToken()
}

func (a *Assembler) errorf(pos Position, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (a *Assembler) expect(t TokenType) (Token, error) {
	tok := a.cur
	if tok.Type != t {
		return tok, a.errorf(tok.Pos, "expected %s, got %s", t, tok)
	}
	a.next()
	return tok, nil
}

func (a *Assembler) label(name string) *meta.Label {
	l, ok := a.labels[name]
	if !ok {
		l = a.builder.NewLabel(name)
		a.labels[name] = l
	}
	return l
}

// Assemble runs the assembler to completion.
func (a *Assembler) Assemble() (*Listing, error) {
	for a.cur.Type != TokenEOF {
		if err := a.statement(); err != nil {
			return nil, err
		}
	}
	body, err := a.builder.Build()
	if err != nil {
		return nil, err
	}
	if a.max > 0 {
		body.MaxStack = a.max
	}
	log.Debugf("assembled %d instructions, %d handlers", len(body.Instructions), len(body.Handlers))

	listing := &Listing{Body: body}
	if a.hasLoc {
		listing.Locals = a.locals
	}
	return listing, nil
}

func (a *Assembler) statement() error {
	tok := a.cur
	switch tok.Type {
	case TokenError:
		return a.errorf(tok.Pos, "%s", tok.Literal)
	case TokenIdentifier:
	default:
		return a.errorf(tok.Pos, "unexpected %s", tok)
	}

	if a.peek.Type == TokenColon {
		a.next()
		a.next()
		if a.marked[tok.Literal] {
			return a.errorf(tok.Pos, "label %q defined twice", tok.Literal)
		}
		a.marked[tok.Literal] = true
		a.builder.Mark(a.label(tok.Literal))
		return nil
	}

	switch tok.Literal {
	case ".locals":
		return a.localsDirective()
	case ".maxstack":
		a.next()
		n, err := a.integer(32)
		if err != nil {
			return err
		}
		a.max = int(n)
		return nil
	case ".try":
		return a.tryDirective()
	}

	op, ok := meta.LookupOpcode(tok.Literal)
	if !ok {
		return a.errorf(tok.Pos, "unknown opcode %q", tok.Literal)
	}
	a.next()
	return a.instruction(op, tok.Pos)
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

func (a *Assembler) localsDirective() error {
	a.next()
	if _, err := a.expect(TokenLParen); err != nil {
		return err
	}
	a.hasLoc = true
	for a.cur.Type != TokenRParen {
		sig, err := a.typeSig()
		if err != nil {
			return err
		}
		a.locals = append(a.locals, sig)
		if a.cur.Type == TokenComma {
			a.next()
		}
	}
	a.next()
	return nil
}

// tryDirective parses
//
//	.try <start> <end> catch <type> <handler> <handlerEnd>
//	.try <start> <end> filter <filter> <handler> <handlerEnd>
//	.try <start> <end> finally|fault <handler> <handlerEnd>
func (a *Assembler) tryDirective() error {
	pos := a.cur.Pos
	a.next()
	names, err := a.identifiers(2)
	if err != nil {
		return err
	}
	labels := meta.HandlerLabels{TryStart: a.label(names[0]), TryEnd: a.label(names[1])}

	kindTok, err := a.expect(TokenIdentifier)
	if err != nil {
		return err
	}
	catchType := meta.NoType
	var kind meta.HandlerKind
	switch kindTok.Literal {
	case "catch":
		kind = meta.HandlerCatch
		sig, err := a.typeSig()
		if err != nil {
			return err
		}
		catchType = a.module.TypeOfSig(sig)
	case "filter":
		kind = meta.HandlerFilter
		f, err := a.identifiers(1)
		if err != nil {
			return err
		}
		labels.FilterStart = a.label(f[0])
	case "finally":
		kind = meta.HandlerFinally
	case "fault":
		kind = meta.HandlerFault
	default:
		return a.errorf(kindTok.Pos, "unknown handler kind %q", kindTok.Literal)
	}

	h, err := a.identifiers(2)
	if err != nil {
		return err
	}
	labels.HandlerStart, labels.HandlerEnd = a.label(h[0]), a.label(h[1])
	if kind == meta.HandlerCatch && catchType == meta.NoType {
		return a.errorf(pos, "catch clause needs a class type")
	}
	a.builder.AddHandler(kind, labels, catchType)
	return nil
}

func (a *Assembler) identifiers(n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		tok, err := a.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		out = append(out, tok.Literal)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Instructions and operands
// ---------------------------------------------------------------------------

func (a *Assembler) instruction(op meta.Opcode, pos Position) error {
	switch op.OperandType() {
	case meta.InlineNone:
		a.builder.Emit(op, nil)

	case meta.ShortInlineI:
		n, err := a.integer(8)
		if err != nil {
			return err
		}
		a.builder.Emit(op, int32(int8(n)))

	case meta.InlineI:
		n, err := a.integer(32)
		if err != nil {
			return err
		}
		a.builder.Emit(op, int32(n))

	case meta.InlineI8:
		n, err := a.integer(64)
		if err != nil {
			return err
		}
		a.builder.Emit(op, n)

	case meta.ShortInlineR:
		f, err := a.float()
		if err != nil {
			return err
		}
		a.builder.Emit(op, float32(f))

	case meta.InlineR:
		f, err := a.float()
		if err != nil {
			return err
		}
		a.builder.Emit(op, f)

	case meta.ShortInlineBrTarget, meta.InlineBrTarget:
		tok, err := a.expect(TokenIdentifier)
		if err != nil {
			return err
		}
		a.builder.EmitBranch(op, a.label(tok.Literal))

	case meta.InlineSwitch:
		if _, err := a.expect(TokenLParen); err != nil {
			return err
		}
		var targets []*meta.Label
		for a.cur.Type != TokenRParen {
			tok, err := a.expect(TokenIdentifier)
			if err != nil {
				return err
			}
			targets = append(targets, a.label(tok.Literal))
			if a.cur.Type == TokenComma {
				a.next()
			}
		}
		a.next()
		a.builder.EmitSwitch(targets...)

	case meta.ShortInlineVar, meta.ShortInlineArg:
		n, err := a.index(8)
		if err != nil {
			return err
		}
		a.builder.Emit(op, n)

	case meta.InlineVar, meta.InlineArg:
		n, err := a.index(16)
		if err != nil {
			return err
		}
		a.builder.Emit(op, n)

	case meta.InlineString:
		tok, err := a.expect(TokenString)
		if err != nil {
			return err
		}
		a.builder.Emit(op, tok.Literal)

	case meta.InlineType, meta.InlineTok:
		sig, err := a.typeSig()
		if err != nil {
			return err
		}
		a.builder.Emit(op, sig)

	case meta.InlineMethod:
		md, err := a.methodRef()
		if err != nil {
			return err
		}
		a.builder.Emit(op, md)

	case meta.InlineField:
		f, err := a.fieldRef()
		if err != nil {
			return err
		}
		a.builder.Emit(op, f)

	default:
		return a.errorf(pos, "%s: operand type not supported by the assembler", op)
	}
	return nil
}

// integer parses an integer operand that must fit in bits (signed or
// unsigned).
func (a *Assembler) integer(bits int) (int64, error) {
	tok, err := a.expect(TokenInteger)
	if err != nil {
		return 0, err
	}
	lit := tok.Literal
	neg := strings.HasPrefix(lit, "-")
	lit = strings.TrimPrefix(lit, "-")

	u, err := strconv.ParseUint(lit, 0, 64)
	if err != nil {
		return 0, a.errorf(tok.Pos, "invalid integer %q", tok.Literal)
	}
	n := int64(u)
	if neg {
		n = -n
	}
	if bits < 64 {
		lo, hi := -(int64(1) << (bits - 1)), (int64(1)<<bits)-1
		if n < lo || n > hi {
			return 0, a.errorf(tok.Pos, "integer %s does not fit in %d bits", tok.Literal, bits)
		}
	}
	return n, nil
}

// index reads an argument or local number.
func (a *Assembler) index(bits int) (int, error) {
	pos := a.cur.Pos
	n, err := a.integer(bits)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, a.errorf(pos, "negative index %d", n)
	}
	return int(n), nil
}

func (a *Assembler) float() (float64, error) {
	tok := a.cur
	switch tok.Type {
	case TokenInteger, TokenFloat:
		a.next()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return 0, a.errorf(tok.Pos, "invalid float %q", tok.Literal)
		}
		return f, nil
	case TokenIdentifier:
		switch tok.Literal {
		case "nan":
			a.next()
			return math.NaN(), nil
		case "inf":
			a.next()
			return math.Inf(1), nil
		}
	}
	return 0, a.errorf(tok.Pos, "expected float, got %s", tok)
}

var primitiveNames = map[string]meta.TypeSig{
	"void":    meta.Void,
	"bool":    meta.Boolean,
	"char":    meta.Char,
	"int8":    meta.Int8,
	"uint8":   meta.UInt8,
	"int16":   meta.Int16,
	"uint16":  meta.UInt16,
	"int32":   meta.Int32,
	"uint32":  meta.UInt32,
	"int64":   meta.Int64,
	"uint64":  meta.UInt64,
	"float32": meta.Float32,
	"float64": meta.Float64,
	"nint":    meta.IntPtr,
	"nuint":   meta.UIntPtr,
	"string":  meta.String,
	"object":  meta.Object,
}

// ParseType resolves a type name (with optional [] * & suffixes) against m.
func ParseType(m *meta.Module, src string) (meta.TypeSig, error) {
	a := NewAssembler(m, src)
	sig, err := a.typeSig()
	if err != nil {
		return meta.TypeSig{}, err
	}
	if a.cur.Type != TokenEOF {
		return meta.TypeSig{}, a.errorf(a.cur.Pos, "unexpected %s after type", a.cur)
	}
	return sig, nil
}

func (a *Assembler) typeSig() (meta.TypeSig, error) {
	tok, err := a.expect(TokenIdentifier)
	if err != nil {
		return meta.TypeSig{}, err
	}
	sig, ok := primitiveNames[tok.Literal]
	if !ok {
		td, found := a.module.TypeByName(tok.Literal)
		if !found {
			return meta.TypeSig{}, a.errorf(tok.Pos, "unknown type %q", tok.Literal)
		}
		sig = td.Sig()
	}
	for {
		switch a.cur.Type {
		case TokenLBracket:
			a.next()
			if _, err := a.expect(TokenRBracket); err != nil {
				return meta.TypeSig{}, err
			}
			sig = meta.ArrayOf(sig)
		case TokenStar:
			a.next()
			sig = meta.PointerTo(sig)
		case TokenAmpersand:
			a.next()
			sig = meta.ByRefTo(sig)
		default:
			return sig, nil
		}
	}
}

func (a *Assembler) memberRef() (*meta.TypeDef, Token, error) {
	typeTok, err := a.expect(TokenIdentifier)
	if err != nil {
		return nil, typeTok, err
	}
	if _, err := a.expect(TokenDoubleColon); err != nil {
		return nil, typeTok, err
	}
	nameTok, err := a.expect(TokenIdentifier)
	if err != nil {
		return nil, nameTok, err
	}
	td, ok := a.module.TypeByName(typeTok.Literal)
	if !ok {
		return nil, typeTok, a.errorf(typeTok.Pos, "unknown type %q", typeTok.Literal)
	}
	return td, nameTok, nil
}

func (a *Assembler) methodRef() (*meta.MethodDef, error) {
	td, name, err := a.memberRef()
	if err != nil {
		return nil, err
	}
	for _, md := range td.Methods {
		if md.Name == name.Literal {
			return md, nil
		}
	}
	return nil, a.errorf(name.Pos, "type %s has no method %q", td.FullName(), name.Literal)
}

func (a *Assembler) fieldRef() (*meta.FieldDef, error) {
	td, name, err := a.memberRef()
	if err != nil {
		return nil, err
	}
	for _, f := range td.Fields {
		if f.Name == name.Literal {
			return f, nil
		}
	}
	return nil, a.errorf(name.Pos, "type %s has no field %q", td.FullName(), name.Literal)
}
