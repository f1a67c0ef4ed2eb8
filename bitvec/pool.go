package bitvec

// ---------------------------------------------------------------------------
// Pool: rent/return reuse of vectors keyed by byte width
// ---------------------------------------------------------------------------

// Pool keeps free lists of vectors per byte width. It is not safe for
// concurrent use; every machine owns its own pool.
type Pool struct {
	free        map[int][]*BitVector
	outstanding int
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{free: make(map[int][]*BitVector)}
}

// Rent returns a vector of bitCount bits. When initialize is true the
// vector is zero and fully known; otherwise its contents are unspecified and
// the caller must overwrite it.
func (p *Pool) Rent(bitCount int, initialize bool) *BitVector {
	p.outstanding++
	size := bitCount / 8
	list := p.free[size]
	if n := len(list); n > 0 && bitCount%8 == 0 {
		v := list[n-1]
		list[n-1] = nil
		p.free[size] = list[:n-1]
		if initialize {
			v.Clear()
		}
		return v
	}
	return New(bitCount, initialize)
}

// Return hands a vector back to the pool. The caller must not use v again.
// Returning nil is a no-op.
func (p *Pool) Return(v *BitVector) {
	if v == nil {
		return
	}
	p.outstanding--
	p.free[v.ByteCount()] = append(p.free[v.ByteCount()], v)
}

// Outstanding returns the number of rented vectors not yet returned.
func (p *Pool) Outstanding() int {
	return p.outstanding
}

// ---------------------------------------------------------------------------
// Scope: release every vector rented through it
// ---------------------------------------------------------------------------

// Scope tracks vectors rented for the duration of one operation so that a
// single deferred Release returns all of them on every exit path.
type Scope struct {
	pool   *Pool
	rented []*BitVector
}

// Scope opens a new rental scope on the pool.
func (p *Pool) Scope() *Scope {
	return &Scope{pool: p}
}

// Rent rents a vector that will be returned by Release.
func (s *Scope) Rent(bitCount int, initialize bool) *BitVector {
	v := s.pool.Rent(bitCount, initialize)
	s.rented = append(s.rented, v)
	return v
}

// Adopt places an already rented vector under the scope.
func (s *Scope) Adopt(v *BitVector) *BitVector {
	if v != nil {
		s.rented = append(s.rented, v)
	}
	return v
}

// Keep removes v from the scope so Release will not return it. Used when
// ownership moves elsewhere, for example onto an evaluation stack.
func (s *Scope) Keep(v *BitVector) *BitVector {
	for i, r := range s.rented {
		if r == v {
			s.rented = append(s.rented[:i], s.rented[i+1:]...)
			break
		}
	}
	return v
}

// Release returns every vector still owned by the scope.
func (s *Scope) Release() {
	for _, v := range s.rented {
		s.pool.Return(v)
	}
	s.rented = s.rented[:0]
}
