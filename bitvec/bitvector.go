package bitvec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// BitVector: fixed-width tri-state bits
// ---------------------------------------------------------------------------

// BitVector is a little-endian sequence of tri-state bits. A bit is known
// when the corresponding bit of the mask is set. Unknown bits are always
// stored as zero in the value bytes.
//
// The width of a vector is fixed at construction; every in-place operation
// preserves it.
type BitVector struct {
	bits  []byte
	known []byte
}

// New creates a vector of bitCount bits. When initialize is true the vector
// is zero and fully known, otherwise every bit is unknown.
func New(bitCount int, initialize bool) *BitVector {
	if bitCount <= 0 || bitCount%8 != 0 {
		panic(fmt.Sprintf("bitvec.New: invalid bit count %d", bitCount))
	}
	v := &BitVector{
		bits:  make([]byte, bitCount/8),
		known: make([]byte, bitCount/8),
	}
	if initialize {
		v.Clear()
	}
	return v
}

// FromBytes creates a vector from value and mask bytes. The slices are copied.
func FromBytes(bits, known []byte) *BitVector {
	if len(bits) != len(known) || len(bits) == 0 {
		panic("bitvec.FromBytes: value and mask lengths differ")
	}
	v := &BitVector{
		bits:  append([]byte(nil), bits...),
		known: append([]byte(nil), known...),
	}
	v.normalize()
	return v
}

// FromUint32 creates a fully known 32-bit vector.
func FromUint32(x uint32) *BitVector {
	v := New(32, true)
	v.WriteUint64(uint64(x))
	return v
}

// FromInt32 creates a fully known 32-bit vector.
func FromInt32(x int32) *BitVector {
	return FromUint32(uint32(x))
}

// FromUint64 creates a fully known 64-bit vector.
func FromUint64(x uint64) *BitVector {
	v := New(64, true)
	v.WriteUint64(x)
	return v
}

// FromInt64 creates a fully known 64-bit vector.
func FromInt64(x int64) *BitVector {
	return FromUint64(uint64(x))
}

// FromFloat64 creates a fully known 64-bit vector holding an IEEE double.
func FromFloat64(f float64) *BitVector {
	return FromUint64(math.Float64bits(f))
}

// FromFloat32 creates a fully known 32-bit vector holding an IEEE single.
func FromFloat32(f float32) *BitVector {
	return FromUint32(math.Float32bits(f))
}

// Parse creates a vector from a string of '0', '1' and '?' characters,
// most significant bit first. Underscores are ignored.
func Parse(s string) (*BitVector, error) {
	s = strings.ReplaceAll(s, "_", "")
	if len(s) == 0 || len(s)%8 != 0 {
		return nil, fmt.Errorf("bitvec.Parse: length %d is not a positive multiple of 8", len(s))
	}
	v := New(len(s), true)
	for i := 0; i < len(s); i++ {
		bit := len(s) - 1 - i
		switch s[i] {
		case '0':
			v.Set(bit, False)
		case '1':
			v.Set(bit, True)
		case '?':
			v.Set(bit, Unknown)
		default:
			return nil, fmt.Errorf("bitvec.Parse: invalid character %q", s[i])
		}
	}
	return v, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) *BitVector {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Count returns the width of the vector in bits.
func (v *BitVector) Count() int {
	return len(v.bits) * 8
}

// ByteCount returns the width of the vector in bytes.
func (v *BitVector) ByteCount() int {
	return len(v.bits)
}

// Bits exposes the value bytes. Unknown bits are zero.
func (v *BitVector) Bits() []byte {
	return v.bits
}

// KnownMask exposes the mask bytes. A set bit marks a known value bit.
func (v *BitVector) KnownMask() []byte {
	return v.known
}

func (v *BitVector) normalize() {
	for i := range v.bits {
		v.bits[i] &= v.known[i]
	}
}

func (v *BitVector) checkWidth(o *BitVector, op string) {
	if len(v.bits) != len(o.bits) {
		panic(fmt.Sprintf("bitvec.%s: width mismatch (%d vs %d bits)", op, v.Count(), o.Count()))
	}
}

// Get returns the tri-state value of one bit.
func (v *BitVector) Get(i int) Trilean {
	b, m := byte(1)<<(i%8), i/8
	if v.known[m]&b == 0 {
		return Unknown
	}
	return TrileanOf(v.bits[m]&b != 0)
}

// Set assigns the tri-state value of one bit.
func (v *BitVector) Set(i int, t Trilean) {
	b, m := byte(1)<<(i%8), i/8
	switch t {
	case False:
		v.bits[m] &^= b
		v.known[m] |= b
	case True:
		v.bits[m] |= b
		v.known[m] |= b
	default:
		v.bits[m] &^= b
		v.known[m] &^= b
	}
}

// MSB returns the most significant (sign) bit.
func (v *BitVector) MSB() Trilean {
	return v.Get(v.Count() - 1)
}

// IsFullyKnown returns true if every bit is known.
func (v *BitVector) IsFullyKnown() bool {
	for _, m := range v.known {
		if m != 0xFF {
			return false
		}
	}
	return true
}

// Clear sets every bit to a known zero.
func (v *BitVector) Clear() {
	for i := range v.bits {
		v.bits[i] = 0
		v.known[i] = 0xFF
	}
}

// MarkFullyUnknown discards every bit.
func (v *BitVector) MarkFullyUnknown() {
	for i := range v.bits {
		v.bits[i] = 0
		v.known[i] = 0
	}
}

// MarkFullyKnown turns unknown bits into known zeros.
func (v *BitVector) MarkFullyKnown() {
	for i := range v.known {
		v.known[i] = 0xFF
	}
}

// CopyFrom overwrites v with the contents of src. Widths must match.
func (v *BitVector) CopyFrom(src *BitVector) {
	v.checkWidth(src, "CopyFrom")
	copy(v.bits, src.bits)
	copy(v.known, src.known)
}

// Clone returns an independent copy that is not owned by any pool.
func (v *BitVector) Clone() *BitVector {
	return FromBytes(v.bits, v.known)
}

// ReadAt copies dst.ByteCount() bytes starting at byte offset into dst.
func (v *BitVector) ReadAt(offset int, dst *BitVector) {
	if offset < 0 || offset+dst.ByteCount() > v.ByteCount() {
		panic(fmt.Sprintf("bitvec.ReadAt: range [%d, %d) outside %d bytes", offset, offset+dst.ByteCount(), v.ByteCount()))
	}
	copy(dst.bits, v.bits[offset:])
	copy(dst.known, v.known[offset:])
}

// WriteAt copies src into v starting at byte offset.
func (v *BitVector) WriteAt(offset int, src *BitVector) {
	if offset < 0 || offset+src.ByteCount() > v.ByteCount() {
		panic(fmt.Sprintf("bitvec.WriteAt: range [%d, %d) outside %d bytes", offset, offset+src.ByteCount(), v.ByteCount()))
	}
	copy(v.bits[offset:], src.bits)
	copy(v.known[offset:], src.known)
}

// ---------------------------------------------------------------------------
// Concrete views
// ---------------------------------------------------------------------------

// Uint64 returns the low 64 bits with unknown bits read as zero.
func (v *BitVector) Uint64() uint64 {
	var buf [8]byte
	copy(buf[:], v.bits)
	return binary.LittleEndian.Uint64(buf[:])
}

// KnownUint64 returns the low 64 bits of the mask.
func (v *BitVector) KnownUint64() uint64 {
	var buf [8]byte
	copy(buf[:], v.known)
	return binary.LittleEndian.Uint64(buf[:])
}

// Int64 returns the value sign-extended from the vector width (at most 64 bits).
func (v *BitVector) Int64() int64 {
	n := v.Count()
	x := v.Uint64()
	if n >= 64 {
		return int64(x)
	}
	shift := 64 - uint(n)
	return int64(x<<shift) >> shift
}

// Uint32 returns the low 32 bits.
func (v *BitVector) Uint32() uint32 {
	return uint32(v.Uint64())
}

// Int32 returns the low 32 bits as a signed integer.
func (v *BitVector) Int32() int32 {
	return int32(v.Uint64())
}

// Float64 interprets the vector as an IEEE value of its width (32 or 64 bits).
func (v *BitVector) Float64() float64 {
	if v.Count() == 32 {
		return float64(math.Float32frombits(v.Uint32()))
	}
	return math.Float64frombits(v.Uint64())
}

// WriteUint64 stores x into the low bytes and marks the whole vector known.
// Bytes beyond the eighth are zeroed.
func (v *BitVector) WriteUint64(x uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	for i := range v.bits {
		if i < 8 {
			v.bits[i] = buf[i]
		} else {
			v.bits[i] = 0
		}
		v.known[i] = 0xFF
	}
}

// WriteFloat64 stores f using the vector width (32 or 64 bits).
func (v *BitVector) WriteFloat64(f float64) {
	if v.Count() == 32 {
		v.WriteUint64(uint64(math.Float32bits(float32(f))))
		return
	}
	v.WriteUint64(math.Float64bits(f))
}

// WriteBool stores 1 or 0.
func (v *BitVector) WriteBool(b bool) {
	if b {
		v.WriteUint64(1)
	} else {
		v.WriteUint64(0)
	}
}

// WriteTrilean stores 1, 0, or a vector whose low bit is unknown and whose
// remaining bits are known zeros.
func (v *BitVector) WriteTrilean(t Trilean) {
	v.Clear()
	v.Set(0, t)
}

// ---------------------------------------------------------------------------
// Zero tests
// ---------------------------------------------------------------------------

// IsZero is True when every bit is a known zero, False when any known bit is
// set, and Unknown otherwise.
func (v *BitVector) IsZero() Trilean {
	allKnown := true
	for i := range v.bits {
		if v.bits[i] != 0 {
			return False
		}
		if v.known[i] != 0xFF {
			allKnown = false
		}
	}
	if allKnown {
		return True
	}
	return Unknown
}

// IsNonZero is the negation of IsZero.
func (v *BitVector) IsNonZero() Trilean {
	return v.IsZero().Not()
}

// String renders the vector most significant bit first using 0, 1 and ?.
func (v *BitVector) String() string {
	var sb strings.Builder
	for i := v.Count() - 1; i >= 0; i-- {
		sb.WriteString(v.Get(i).String())
	}
	return sb.String()
}

// Hex renders fully known vectors as hexadecimal and falls back to String.
func (v *BitVector) Hex() string {
	if !v.IsFullyKnown() {
		return v.String()
	}
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(v.bits) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", v.bits[i])
	}
	return sb.String()
}
