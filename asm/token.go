// Package asm assembles textual CIL listings into method bodies.
//
// A listing is a sequence of labels, instructions and directives:
//
//	.locals (int32, Geo.Point)
//	.try start tryEnd catch System.Exception handler done
//	start:
//	    ldarg.0
//	    ldc.i4.s 5
//	    call Geo.Math::Twice
//	    leave.s done
//	tryEnd:
//	handler:
//	    pop
//	    leave.s done
//	done:
//	    ret
//
// Operands follow the opcode's operand type: integers, floats, quoted
// strings, labels, switch tables "(a, b)", type names, and member references
// written Type::member.
package asm

import "fmt"

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenIdentifier // ldc.i4.s, System.Int32, .ctor, loop
	TokenInteger    // 42, -1, 0xFF
	TokenFloat      // 1.5, 2e10
	TokenString     // "hello"

	TokenColon       // :
	TokenDoubleColon // ::
	TokenComma       // ,
	TokenLParen      // (
	TokenRParen      // )
	TokenLBracket    // [
	TokenRBracket    // ]
	TokenStar        // *
	TokenAmpersand   // &
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenIdentifier:  "IDENTIFIER",
	TokenInteger:     "INTEGER",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenColon:       ":",
	TokenDoubleColon: "::",
	TokenComma:       ",",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenStar:        "*",
	TokenAmpersand:   "&",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
