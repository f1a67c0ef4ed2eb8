package vm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Machine: the emulated address space and its services
// ---------------------------------------------------------------------------

// Address space layout. Every region is mapped into the machine's virtual
// memory; address 0 is never mapped so null dereferences always fault.
const (
	StaticsBase uint64 = 0x0100_0000
	StaticsSize        = 64 << 10
	HeapBase    uint64 = 0x1000_0000
	StackBase   uint64 = 0x7000_0000
)

// Config sizes a machine.
type Config struct {
	PointerSize     int  // 4 or 8
	StackSize       int  // bytes per thread
	HeapSize        int  // bytes
	MaxInstructions int  // per Run; 0 means unbounded
	Trace           bool // log every dispatched instruction
}

// DefaultConfig returns a 64-bit machine with a 1 MiB stack per thread and
// a 64 MiB heap.
func DefaultConfig() Config {
	return Config{
		PointerSize:     8,
		StackSize:       1 << 20,
		HeapSize:        64 << 20,
		MaxInstructions: 1_000_000,
	}
}

// Machine hosts one module: its heap, statics and threads. A machine is not
// safe for concurrent use; run separate machines on separate goroutines.
type Machine struct {
	ID     uuid.UUID
	Module *meta.Module
	Config Config

	Pool       *bitvec.Pool
	Factory    *ValueFactory
	Memory     *VirtualMemory
	Heap       *Heap
	Statics    *StaticStorage
	Dispatcher *Dispatcher

	// Resolver decides what to do with values that are not fully known.
	Resolver UnknownResolver
	// Invoker decides how calls are carried out.
	Invoker MethodInvoker

	VTables      *VTableCache
	InlineCaches *InlineCacheTable
	Profiler     *Profiler

	threads []*Thread
}

// NewMachine creates a machine for module. The resolver leaves unknown
// values unresolved and the invoker steps into every method with a body.
func NewMachine(module *meta.Module, cfg Config) (*Machine, error) {
	if cfg.PointerSize != 4 && cfg.PointerSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", cfg.PointerSize)
	}
	if cfg.StackSize <= 0 || cfg.HeapSize <= 0 {
		return nil, fmt.Errorf("stack and heap sizes must be positive")
	}
	if HeapBase+uint64(cfg.HeapSize) > StackBase {
		return nil, fmt.Errorf("heap of %d bytes overlaps the stack region", cfg.HeapSize)
	}

	pool := bitvec.NewPool()
	factory := NewValueFactory(module, cfg.PointerSize, pool)
	m := &Machine{
		ID:           uuid.New(),
		Module:       module,
		Config:       cfg,
		Pool:         pool,
		Factory:      factory,
		Memory:       NewVirtualMemory(),
		Heap:         NewHeap(cfg.HeapSize, factory),
		Statics:      NewStaticStorage(StaticsSize, factory),
		Dispatcher:   NewDispatcher(),
		Resolver:     DefaultResolver{},
		Invoker:      StepInInvoker{},
		VTables:      NewVTableCache(module),
		InlineCaches: NewInlineCacheTable(),
		Profiler:     NewProfiler(),
	}
	if err := m.Memory.Map("statics", StaticsBase, m.Statics); err != nil {
		return nil, err
	}
	if err := m.Memory.Map("heap", HeapBase, m.Heap); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateThread creates a thread with its own call stack window.
func (m *Machine) CreateThread() (*Thread, error) {
	id := len(m.threads)
	base := StackBase + uint64(id)*uint64(m.Config.StackSize)
	if m.Config.PointerSize == 4 && base+uint64(m.Config.StackSize) > 1<<32 {
		return nil, fmt.Errorf("no room for thread %d in a 32-bit address space", id)
	}
	cs := NewCallStack(m.Config.StackSize, m.Factory)
	if err := m.Memory.Map(fmt.Sprintf("stack %d", id), base, cs); err != nil {
		return nil, err
	}
	t := &Thread{ID: id, Machine: m, CallStack: cs}
	m.threads = append(m.threads, t)
	return t, nil
}

// Threads returns the threads created so far.
func (m *Machine) Threads() []*Thread {
	return m.threads
}

// NewException allocates an exception of type t with its message set.
func (m *Machine) NewException(t meta.TypeID, message string) (ObjectHandle, error) {
	if !m.Module.IsAssignableTo(t, m.Module.CorLib.Exception) {
		return ObjectHandle{}, fmt.Errorf("%s is not an exception type", m.Module.Type(t).FullName())
	}
	addr, err := m.Heap.AllocateObject(t)
	if err != nil {
		return ObjectHandle{}, err
	}
	exc := ObjectHandle{Address: addr, Machine: m}
	if message == "" {
		return exc, nil
	}
	str, err := m.Heap.AllocateString(message)
	if err != nil {
		return ObjectHandle{}, err
	}
	w := m.Factory.RentKnown(m.Factory.PointerBits())
	defer m.Pool.Return(w)
	w.WriteUint64(str)
	if err := exc.WriteField(m.Module.CorLib.ExceptionMessage, w); err != nil {
		return ObjectHandle{}, err
	}
	return exc, nil
}

// ExceptionMessage reads System.Exception::_message of exc.
func (m *Machine) ExceptionMessage(exc ObjectHandle) (string, bool) {
	t := exc.Type()
	if t == meta.NoType || !m.Module.IsAssignableTo(t, m.Module.CorLib.Exception) {
		return "", false
	}
	w := m.Factory.RentKnown(m.Factory.PointerBits())
	defer m.Pool.Return(w)
	if err := exc.ReadField(m.Module.CorLib.ExceptionMessage, w); err != nil || !w.IsFullyKnown() || w.Uint64() == 0 {
		return "", false
	}
	return ObjectHandle{Address: w.Uint64(), Machine: m}.ReadString()
}

// Handle wraps an address as an object handle of this machine.
func (m *Machine) Handle(addr uint64) ObjectHandle {
	return ObjectHandle{Address: addr, Machine: m}
}

// NewString allocates a string and returns a slot referring to it.
func (m *Machine) NewString(s string) (StackSlot, error) {
	addr, err := m.Heap.AllocateString(s)
	if err != nil {
		return StackSlot{}, err
	}
	return m.Factory.NativeInt(addr), nil
}
