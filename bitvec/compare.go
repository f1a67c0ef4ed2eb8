package bitvec

import "math"

// Equals is False when a known bit differs, True when both vectors are
// fully known and identical, and Unknown otherwise.
func (v *BitVector) Equals(o *BitVector) Trilean {
	v.checkWidth(o, "Equals")
	allKnown := true
	for i := range v.bits {
		k := v.known[i] & o.known[i]
		if (v.bits[i]^o.bits[i])&k != 0 {
			return False
		}
		if k != 0xFF {
			allKnown = false
		}
	}
	if allKnown {
		return True
	}
	return Unknown
}

// unsignedBounds returns the smallest and largest unsigned values the
// vector can represent given its known bits.
func (v *BitVector) unsignedBounds() (lo, hi uint64) {
	width := uint(v.Count())
	mask := ^uint64(0)
	if width < 64 {
		mask = uint64(1)<<width - 1
	}
	lo = v.Uint64()
	hi = lo | (^v.KnownUint64() & mask)
	return lo, hi
}

// signedBounds returns the smallest and largest signed values the vector can
// represent given its known bits. An unknown sign bit is taken as negative
// for the lower bound and positive for the upper bound.
func (v *BitVector) signedBounds() (lo, hi int64) {
	width := uint(v.Count())
	ulo, uhi := v.unsignedBounds()
	signBit := uint64(1) << (width - 1)
	if v.MSB() == Unknown {
		ulo |= signBit
		uhi &^= signBit
	}
	shift := 64 - width
	return int64(ulo<<shift) >> shift, int64(uhi<<shift) >> shift
}

// LessThan compares v < o under the given signedness. Vectors wider than 64
// bits always compare Unknown.
func (v *BitVector) LessThan(o *BitVector, signed bool) Trilean {
	v.checkWidth(o, "LessThan")
	if v.Count() > 64 {
		return Unknown
	}
	if signed {
		alo, ahi := v.signedBounds()
		blo, bhi := o.signedBounds()
		if ahi < blo {
			return True
		}
		if alo >= bhi {
			return False
		}
		return Unknown
	}
	alo, ahi := v.unsignedBounds()
	blo, bhi := o.unsignedBounds()
	if ahi < blo {
		return True
	}
	if alo >= bhi {
		return False
	}
	return Unknown
}

// GreaterThan compares v > o under the given signedness.
func (v *BitVector) GreaterThan(o *BitVector, signed bool) Trilean {
	return o.LessThan(v, signed)
}

// ---------------------------------------------------------------------------
// Floating point comparisons
// ---------------------------------------------------------------------------

// FloatEquals compares two IEEE values. NaN is never equal to anything.
func (v *BitVector) FloatEquals(o *BitVector) Trilean {
	if !v.IsFullyKnown() || !o.IsFullyKnown() {
		return Unknown
	}
	return TrileanOf(v.Float64() == o.Float64())
}

// FloatLessThan compares v < o. When unordered is set a NaN operand makes
// the comparison true, otherwise false.
func (v *BitVector) FloatLessThan(o *BitVector, unordered bool) Trilean {
	if !v.IsFullyKnown() || !o.IsFullyKnown() {
		return Unknown
	}
	a, b := v.Float64(), o.Float64()
	if math.IsNaN(a) || math.IsNaN(b) {
		return TrileanOf(unordered)
	}
	return TrileanOf(a < b)
}

// FloatGreaterThan compares v > o with the same NaN rules as FloatLessThan.
func (v *BitVector) FloatGreaterThan(o *BitVector, unordered bool) Trilean {
	return o.FloatLessThan(v, unordered)
}
