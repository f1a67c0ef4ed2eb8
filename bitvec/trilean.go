// Package bitvec implements fixed-width vectors of tri-state bits.
//
// Every bit of a BitVector is either known to be 0, known to be 1, or
// unknown. Bitwise operators follow three-valued logic, arithmetic propagates
// unknown bits through carries, and comparisons answer with a Trilean that is
// only True or False when the known bits decide the outcome.
package bitvec

// Trilean is a three-valued boolean.
type Trilean byte

const (
	False Trilean = iota
	True
	Unknown
)

// TrileanOf converts a Go boolean to a known Trilean.
func TrileanOf(b bool) Trilean {
	if b {
		return True
	}
	return False
}

// IsKnown returns true if the value is True or False.
func (t Trilean) IsKnown() bool {
	return t != Unknown
}

// ToBool returns the boolean value of a known Trilean. Unknown maps to false.
func (t Trilean) ToBool() bool {
	return t == True
}

// Not negates a Trilean. The negation of Unknown is Unknown.
func (t Trilean) Not() Trilean {
	switch t {
	case False:
		return True
	case True:
		return False
	}
	return Unknown
}

// And is False if either side is False, True if both are True.
func (t Trilean) And(o Trilean) Trilean {
	if t == False || o == False {
		return False
	}
	if t == True && o == True {
		return True
	}
	return Unknown
}

// Or is True if either side is True, False if both are False.
func (t Trilean) Or(o Trilean) Trilean {
	if t == True || o == True {
		return True
	}
	if t == False && o == False {
		return False
	}
	return Unknown
}

// Xor is known only when both sides are known.
func (t Trilean) Xor(o Trilean) Trilean {
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return TrileanOf(t != o)
}

func (t Trilean) String() string {
	switch t {
	case False:
		return "0"
	case True:
		return "1"
	}
	return "?"
}
