package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/echo/meta"
)

// Profiler counts method invocations and executed opcodes. A method whose
// count reaches MethodHotThreshold is flagged hot, which the CLI reports
// after a run.

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	Method          *meta.MethodDef
	InvocationCount uint64 // atomic
	IsHot           bool
}

// Profiler manages the profiles of one machine.
type Profiler struct {
	methodProfiles sync.Map // *meta.MethodDef -> *MethodProfile
	opcodeCounts   sync.Map // meta.Opcode -> *uint64

	// MethodHotThreshold is the invocation count at which a method is hot.
	MethodHotThreshold uint64

	// OnHot is called once per method when it becomes hot.
	OnHot func(profile *MethodProfile)

	instructions uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{MethodHotThreshold: 100}
}

// RecordCall increments the invocation count of method. It returns true if
// this call made the method hot.
func (p *Profiler) RecordCall(method *meta.MethodDef) bool {
	if method == nil {
		return false
	}
	val, _ := p.methodProfiles.LoadOrStore(method, &MethodProfile{Method: method})
	profile := val.(*MethodProfile)

	count := atomic.AddUint64(&profile.InvocationCount, 1)
	if !profile.IsHot && count >= p.MethodHotThreshold {
		profile.IsHot = true
		if p.OnHot != nil {
			p.OnHot(profile)
		}
		return true
	}
	return false
}

// RecordInstruction counts one executed instruction.
func (p *Profiler) RecordInstruction(op meta.Opcode) {
	atomic.AddUint64(&p.instructions, 1)
	val, ok := p.opcodeCounts.Load(op)
	if !ok {
		val, _ = p.opcodeCounts.LoadOrStore(op, new(uint64))
	}
	atomic.AddUint64(val.(*uint64), 1)
}

// GetMethodProfile returns the profile for a method, or nil if it was never
// called.
func (p *Profiler) GetMethodProfile(method *meta.MethodDef) *MethodProfile {
	if val, ok := p.methodProfiles.Load(method); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// IsMethodHot returns true if the method has reached the hot threshold.
func (p *Profiler) IsMethodHot(method *meta.MethodDef) bool {
	profile := p.GetMethodProfile(method)
	return profile != nil && profile.IsHot
}

// OpcodeCount returns how often op was executed.
func (p *Profiler) OpcodeCount(op meta.Opcode) uint64 {
	if val, ok := p.opcodeCounts.Load(op); ok {
		return atomic.LoadUint64(val.(*uint64))
	}
	return 0
}

// TopOpcodes returns up to n executed opcodes, most frequent first.
func (p *Profiler) TopOpcodes(n int) []meta.Opcode {
	type counted struct {
		op    meta.Opcode
		count uint64
	}
	var all []counted
	p.opcodeCounts.Range(func(key, value any) bool {
		all = append(all, counted{key.(meta.Opcode), atomic.LoadUint64(value.(*uint64))})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].op < all[j].op
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	ops := make([]meta.Opcode, len(all))
	for i, c := range all {
		ops[i] = c.op
	}
	return ops
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalMethods      int    // Number of methods called
	HotMethods        int    // Number of hot methods
	MethodInvocations uint64 // Total calls
	Instructions      uint64 // Total executed instructions
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methodProfiles.Range(func(_, value any) bool {
		profile := value.(*MethodProfile)
		stats.TotalMethods++
		stats.MethodInvocations += atomic.LoadUint64(&profile.InvocationCount)
		if profile.IsHot {
			stats.HotMethods++
		}
		return true
	})
	stats.Instructions = atomic.LoadUint64(&p.instructions)
	return stats
}

// TopMethods returns up to n profiles, most called first.
func (p *Profiler) TopMethods(n int) []*MethodProfile {
	var all []*MethodProfile
	p.methodProfiles.Range(func(_, value any) bool {
		all = append(all, value.(*MethodProfile))
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		ci, cj := atomic.LoadUint64(&all[i].InvocationCount), atomic.LoadUint64(&all[j].InvocationCount)
		if ci != cj {
			return ci > cj
		}
		return all[i].Method.ID < all[j].Method.ID
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}
