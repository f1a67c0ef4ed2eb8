package bitvec

import (
	"math"
	"math/bits"
)

// ---------------------------------------------------------------------------
// Bitwise operators
// ---------------------------------------------------------------------------

// Not inverts every known bit in place.
func (v *BitVector) Not() {
	for i := range v.bits {
		v.bits[i] = ^v.bits[i] & v.known[i]
	}
}

// And computes v &= o. A bit is known when either side is a known zero or
// both sides are known.
func (v *BitVector) And(o *BitVector) {
	v.checkWidth(o, "And")
	for i := range v.bits {
		a, ka := v.bits[i], v.known[i]
		b, kb := o.bits[i], o.known[i]
		k := (ka &^ a) | (kb &^ b) | (ka & kb)
		v.bits[i] = a & b & k
		v.known[i] = k
	}
}

// Or computes v |= o. A bit is known when either side is a known one or
// both sides are known.
func (v *BitVector) Or(o *BitVector) {
	v.checkWidth(o, "Or")
	for i := range v.bits {
		a, ka := v.bits[i], v.known[i]
		b, kb := o.bits[i], o.known[i]
		k := (ka & a) | (kb & b) | (ka & kb)
		v.bits[i] = (a | b) & k
		v.known[i] = k
	}
}

// Xor computes v ^= o. A bit is known only when both sides are known.
func (v *BitVector) Xor(o *BitVector) {
	v.checkWidth(o, "Xor")
	for i := range v.bits {
		k := v.known[i] & o.known[i]
		v.bits[i] = (v.bits[i] ^ o.bits[i]) & k
		v.known[i] = k
	}
}

// ---------------------------------------------------------------------------
// Addition and subtraction
// ---------------------------------------------------------------------------

// rippleAdd adds o (optionally inverted) and an incoming carry to v one bit
// at a time. It returns the carry out of the most significant bit and the
// carry into it.
func (v *BitVector) rippleAdd(o *BitVector, carry Trilean, invert bool) (out, intoMSB Trilean) {
	n := v.Count()
	for i := 0; i < n; i++ {
		if i == n-1 {
			intoMSB = carry
		}
		a := v.Get(i)
		b := o.Get(i)
		if invert {
			b = b.Not()
		}
		sum := a.Xor(b).Xor(carry)
		carry = a.And(b).Or(a.And(carry)).Or(b.And(carry))
		v.Set(i, sum)
	}
	return carry, intoMSB
}

// Add computes v += o and returns the unsigned carry out.
func (v *BitVector) Add(o *BitVector) Trilean {
	v.checkWidth(o, "Add")
	carry, _ := v.rippleAdd(o, False, false)
	return carry
}

// AddOverflow computes v += o and reports whether the addition overflowed
// under the given signedness.
func (v *BitVector) AddOverflow(o *BitVector, signed bool) Trilean {
	v.checkWidth(o, "AddOverflow")
	carry, intoMSB := v.rippleAdd(o, False, false)
	if signed {
		return carry.Xor(intoMSB)
	}
	return carry
}

// Sub computes v -= o and returns the unsigned borrow.
func (v *BitVector) Sub(o *BitVector) Trilean {
	v.checkWidth(o, "Sub")
	carry, _ := v.rippleAdd(o, True, true)
	return carry.Not()
}

// SubOverflow computes v -= o and reports whether the subtraction overflowed
// under the given signedness.
func (v *BitVector) SubOverflow(o *BitVector, signed bool) Trilean {
	v.checkWidth(o, "SubOverflow")
	carry, intoMSB := v.rippleAdd(o, True, true)
	if signed {
		return carry.Xor(intoMSB)
	}
	return carry.Not()
}

// Negate computes the two's complement of v in place.
func (v *BitVector) Negate() {
	v.Not()
	one := New(v.Count(), true)
	one.Set(0, True)
	v.rippleAdd(one, False, false)
}

// Increment adds one in place.
func (v *BitVector) Increment() {
	one := New(v.Count(), true)
	one.Set(0, True)
	v.rippleAdd(one, False, false)
}

// ---------------------------------------------------------------------------
// Multiplication
// ---------------------------------------------------------------------------

// Mul computes v *= o. Fully known operands of at most 64 bits take the
// native path; everything else uses a tri-state shift-and-add.
func (v *BitVector) Mul(o *BitVector) {
	v.checkWidth(o, "Mul")
	if v.Count() <= 64 && v.IsFullyKnown() && o.IsFullyKnown() {
		v.WriteUint64(v.Uint64() * o.Uint64())
		return
	}

	n := v.Count()
	result := New(n, true)
	partial := New(n, true)
	for i := 0; i < n; i++ {
		bi := o.Get(i)
		if bi == False {
			continue
		}
		for j := 0; j < n; j++ {
			if j < i {
				partial.Set(j, False)
				continue
			}
			a := v.Get(j - i)
			if bi == Unknown && a != False {
				a = Unknown
			}
			partial.Set(j, a)
		}
		result.rippleAdd(partial, False, false)
	}
	v.CopyFrom(result)
}

// MulOverflow reports whether v * o overflows the vector width. It does not
// modify v. The answer is Unknown unless both operands are fully known or one
// of them is a known zero.
func (v *BitVector) MulOverflow(o *BitVector, signed bool) Trilean {
	v.checkWidth(o, "MulOverflow")
	if v.IsZero() == True || o.IsZero() == True {
		return False
	}
	if !v.IsFullyKnown() || !o.IsFullyKnown() || v.Count() > 64 {
		return Unknown
	}

	switch v.Count() {
	case 64:
		if signed {
			a, b := v.Int64(), o.Int64()
			if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return True
			}
			r := a * b
			return TrileanOf(r/b != a)
		}
		hi, _ := bits.Mul64(v.Uint64(), o.Uint64())
		return TrileanOf(hi != 0)
	default:
		n := uint(v.Count())
		if signed {
			r := v.Int64() * o.Int64()
			lo, hi := -(int64(1) << (n - 1)), int64(1)<<(n-1)-1
			return TrileanOf(r < lo || r > hi)
		}
		r := v.Uint64() * o.Uint64()
		return TrileanOf(r>>n != 0)
	}
}

// ---------------------------------------------------------------------------
// Division
// ---------------------------------------------------------------------------

// Div computes v /= o. Both operands must be fully known and o must be
// non-zero for a known result; otherwise v becomes fully unknown.
func (v *BitVector) Div(o *BitVector, signed bool) {
	v.divRem(o, signed, false)
}

// Rem computes v %= o with the same knownness rules as Div.
func (v *BitVector) Rem(o *BitVector, signed bool) {
	v.divRem(o, signed, true)
}

func (v *BitVector) divRem(o *BitVector, signed, rem bool) {
	v.checkWidth(o, "Div")
	if v.Count() > 64 || !v.IsFullyKnown() || !o.IsFullyKnown() || o.IsZero() == True {
		v.MarkFullyUnknown()
		return
	}
	if signed {
		a, b := v.Int64(), o.Int64()
		if b == -1 {
			// Avoid the host trap on MinInt64 / -1; the wrapped result is
			// what the width truncation would produce anyway.
			if rem {
				v.WriteUint64(0)
			} else {
				v.WriteUint64(uint64(-a))
			}
			return
		}
		if rem {
			v.WriteUint64(uint64(a % b))
		} else {
			v.WriteUint64(uint64(a / b))
		}
		return
	}
	a, b := v.Uint64(), o.Uint64()
	if rem {
		v.WriteUint64(a % b)
	} else {
		v.WriteUint64(a / b)
	}
}

// ---------------------------------------------------------------------------
// Shifts
// ---------------------------------------------------------------------------

// ShiftLeft shifts every bit towards the most significant end, filling with
// known zeros.
func (v *BitVector) ShiftLeft(n int) {
	count := v.Count()
	for i := count - 1; i >= 0; i-- {
		if i-n >= 0 {
			v.Set(i, v.Get(i-n))
		} else {
			v.Set(i, False)
		}
	}
}

// ShiftRight shifts every bit towards the least significant end. Arithmetic
// shifts replicate the (possibly unknown) sign bit.
func (v *BitVector) ShiftRight(n int, arithmetic bool) {
	count := v.Count()
	fill := False
	if arithmetic {
		fill = v.MSB()
	}
	for i := 0; i < count; i++ {
		if i+n < count {
			v.Set(i, v.Get(i+n))
		} else {
			v.Set(i, fill)
		}
	}
}

// ---------------------------------------------------------------------------
// Resizing
// ---------------------------------------------------------------------------

// ResizeInto copies v into dst, truncating or extending to dst's width.
// Extension fills with the sign bit when signExtend is set, else with known
// zeros.
func (v *BitVector) ResizeInto(dst *BitVector, signExtend bool) {
	n := copy(dst.bits, v.bits)
	copy(dst.known, v.known)
	if n == len(dst.bits) {
		return
	}
	fill := False
	if signExtend {
		fill = v.MSB()
	}
	for i := n; i < len(dst.bits); i++ {
		switch fill {
		case False:
			dst.bits[i], dst.known[i] = 0x00, 0xFF
		case True:
			dst.bits[i], dst.known[i] = 0xFF, 0xFF
		default:
			dst.bits[i], dst.known[i] = 0x00, 0x00
		}
	}
}

// Resized returns a new vector of bitCount bits holding v truncated or
// extended.
func (v *BitVector) Resized(bitCount int, signExtend bool) *BitVector {
	dst := New(bitCount, true)
	v.ResizeInto(dst, signExtend)
	return dst
}

// SignExtendFrom treats the low fromBits bits of v as a signed value and
// extends it over the full width in place.
func (v *BitVector) SignExtendFrom(fromBits int) {
	sign := v.Get(fromBits - 1)
	for i := fromBits; i < v.Count(); i++ {
		v.Set(i, sign)
	}
}

// ZeroExtendFrom clears every bit at or above fromBits in place.
func (v *BitVector) ZeroExtendFrom(fromBits int) {
	for i := fromBits; i < v.Count(); i++ {
		v.Set(i, False)
	}
}
