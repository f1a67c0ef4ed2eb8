package bitvec

import "math"

func (v *BitVector) floatOp(o *BitVector, op func(a, b float64) float64) {
	if !v.IsFullyKnown() || !o.IsFullyKnown() {
		v.MarkFullyUnknown()
		return
	}
	v.WriteFloat64(op(v.Float64(), o.Float64()))
}

// FloatAdd computes v += o on IEEE values of the vector width.
func (v *BitVector) FloatAdd(o *BitVector) {
	v.floatOp(o, func(a, b float64) float64 { return a + b })
}

// FloatSub computes v -= o.
func (v *BitVector) FloatSub(o *BitVector) {
	v.floatOp(o, func(a, b float64) float64 { return a - b })
}

// FloatMul computes v *= o.
func (v *BitVector) FloatMul(o *BitVector) {
	v.floatOp(o, func(a, b float64) float64 { return a * b })
}

// FloatDiv computes v /= o. Division by zero yields an infinity or NaN.
func (v *BitVector) FloatDiv(o *BitVector) {
	v.floatOp(o, func(a, b float64) float64 { return a / b })
}

// FloatRem computes the truncated remainder of v / o.
func (v *BitVector) FloatRem(o *BitVector) {
	v.floatOp(o, math.Mod)
}

// FloatNegate flips the sign bit, which is correct even for unknown
// magnitudes.
func (v *BitVector) FloatNegate() {
	i := v.Count() - 1
	v.Set(i, v.Get(i).Not())
}

// IsFinite is True when the vector is a known finite IEEE value.
func (v *BitVector) IsFinite() Trilean {
	if !v.IsFullyKnown() {
		return Unknown
	}
	f := v.Float64()
	return TrileanOf(!math.IsNaN(f) && !math.IsInf(f, 0))
}
