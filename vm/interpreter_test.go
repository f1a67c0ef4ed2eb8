package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/echo/asm"
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

func TestCallKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		params []meta.TypeSig
		args   []int32
		body   string
		want   int32
	}{
		{"add", nil, nil, `
			ldc.i4.5
			ldc.i4.3
			add
			ret`, 8},
		{"arguments", []meta.TypeSig{meta.Int32, meta.Int32}, []int32{10, 3}, `
			ldarg.0
			ldarg.1
			sub
			ret`, 7},
		{"loop", nil, nil, `
			.locals (int32, int32)
			ldc.i4.0
			stloc.0
			ldc.i4.1
			stloc.1
		loop:
			ldloc.0
			ldloc.1
			add
			stloc.0
			ldloc.1
			ldc.i4.1
			add
			dup
			stloc.1
			ldc.i4.s 11
			blt.s loop
			ldloc.0
			ret`, 55},
		{"switch", []meta.TypeSig{meta.Int32}, []int32{1}, `
			ldarg.0
			switch (first, second)
			ldc.i4.m1
			ret
		first:
			ldc.i4.s 10
			ret
		second:
			ldc.i4.s 20
			ret`, 20},
		{"switch fallthrough", []meta.TypeSig{meta.Int32}, []int32{5}, `
			ldarg.0
			switch (first)
			ldc.i4.m1
			ret
		first:
			ldc.i4.s 10
			ret`, -1},
		{"truncation", nil, nil, `
			ldc.i4 300
			conv.u1
			ret`, 44},
		{"compare", nil, nil, `
			ldc.i4.m1
			ldc.i4.1
			clt
			ldc.i4.m1
			ldc.i4.1
			clt.un
			add
			ret`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meta.NewModule("test")
			method := staticMethod(t, m, tt.params, meta.Int32, tt.body)
			machine, thread := newTestThread(t, m)

			var args []StackSlot
			for _, a := range tt.args {
				args = append(args, machine.Factory.Int32(a))
			}
			defer machine.Factory.Release(args...)

			if got := callInt32(t, thread, method, args...); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNativeIntMixing(t *testing.T) {
	tests := []struct {
		name string
		body string
		want uint64
	}{
		{"div sign extends", `
			ldc.i4.m1
			ldc.i4.2
			conv.i
			div
			ret`, 0},
		{"div.un zero extends", `
			ldc.i4.m1
			ldc.i4.2
			conv.i
			div.un
			ret`, 0x7FFFFFFF},
		{"rem.un zero extends", `
			ldc.i4.m1
			ldc.i4.7
			conv.i
			rem.un
			ret`, 3},
		{"add sign extends", `
			ldc.i4.m1
			ldc.i4.1
			conv.i
			add
			ret`, 0},
		{"clt.un zero extends", `
			ldc.i4.m1
			ldc.i4.m1
			conv.i
			clt.un
			conv.i
			ret`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meta.NewModule("test")
			method := staticMethod(t, m, nil, meta.IntPtr, tt.body)
			machine, thread := newTestThread(t, m)
			got, err := thread.Call(context.Background(), method, nil)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			defer machine.Factory.Release(got)
			if !got.Contents.IsFullyKnown() || got.Contents.Uint64() != tt.want {
				t.Errorf("got %s, want %#x", got, tt.want)
			}
		})
	}
}

func TestCallPartiallyKnownValues(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		body string
		want string
	}{
		{
			"carry into unknown bit",
			"00000000_00000000_00000000_0000000?",
			"ldarg.0\nldc.i4.1\nadd\nret",
			"00000000_00000000_00000000_000000??",
		},
		{
			"mask to known zero",
			"????????_????????_????????_????????",
			"ldarg.0\nldc.i4.0\nand\nret",
			"00000000_00000000_00000000_00000000",
		},
		{
			"mask low byte",
			"????????_????????_????????_????????",
			"ldarg.0\nldc.i4 255\nand\nret",
			"00000000_00000000_00000000_????????",
		},
		{
			"or with ones",
			"????????_????????_????????_????????",
			"ldarg.0\nldc.i4.m1\nor\nret",
			"11111111_11111111_11111111_11111111",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meta.NewModule("test")
			method := staticMethod(t, m, []meta.TypeSig{meta.Int32}, meta.Int32, tt.body)
			_, thread := newTestThread(t, m)

			arg := StackSlot{Contents: bitvec.MustParse(tt.arg), Type: HintInteger}
			got, err := thread.Call(context.Background(), method, []StackSlot{arg})
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if want := bitvec.MustParse(tt.want); got.Contents.String() != want.String() {
				t.Errorf("got %s, want %s", got.Contents, want)
			}
		})
	}
}

func TestUndeterminedBranch(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, []meta.TypeSig{meta.Int32}, meta.Int32, `
		ldarg.0
		brtrue.s yes
		ldc.i4.0
		ret
	yes:
		ldc.i4.1
		ret`)
	machine, thread := newTestThread(t, m)
	unknown := machine.Factory.CreateUnknown(meta.Int32)
	defer machine.Factory.Release(unknown)

	_, err := thread.Call(context.Background(), method, []StackSlot{unknown})
	if !errors.Is(err, ErrUndeterminedBranch) {
		t.Fatalf("Call error = %v, want ErrUndeterminedBranch", err)
	}
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("Call error %T is not a *FatalError", err)
	}
	if fe.Kind != ResultUndetermined || fe.Offset != 1 {
		t.Errorf("fatal error kind %s at %d, want undetermined at 1", fe.Kind, fe.Offset)
	}
	if thread.CallStack.Count() != 1 {
		t.Errorf("call stack holds %d frames after a fatal error, want 1", thread.CallStack.Count())
	}

	// A resolver that concretizes unknown bits to zero lets execution go on.
	machine.Resolver = ConcreteResolver{}
	if got := callInt32(t, thread, method, unknown); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestUnhandledException(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, nil, meta.Int32, `
		ldc.i4.1
		ldc.i4.0
		div
		ret`)
	_, thread := newTestThread(t, m)

	_, err := thread.Call(context.Background(), method, nil)
	var exc *EmulatedException
	if !errors.As(err, &exc) {
		t.Fatalf("Call error = %v, want *EmulatedException", err)
	}
	if exc.TypeName != "System.DivideByZeroException" {
		t.Errorf("exception type = %s, want System.DivideByZeroException", exc.TypeName)
	}
	if exc.Message != "Attempted to divide by zero." {
		t.Errorf("exception message = %q", exc.Message)
	}
}

func TestExceptionHandlers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int32
	}{
		{"catch", `
			.locals (int32)
			.try a b catch System.DivideByZeroException h hend
		a:
			ldc.i4.1
			ldc.i4.0
			div
			stloc.0
			leave.s done
		b:
		h:
			pop
			ldc.i4.s 99
			stloc.0
			leave.s done
		hend:
		done:
			ldloc.0
			ret`, 99},
		{"catch base type", `
			.locals (int32)
			.try a b catch System.ArithmeticException h hend
		a:
			ldc.i4.1
			ldc.i4.0
			rem
			stloc.0
			leave.s done
		b:
		h:
			pop
			ldc.i4.s 98
			stloc.0
			leave.s done
		hend:
		done:
			ldloc.0
			ret`, 98},
		{"first matching catch", `
			.locals (int32)
			.try a b catch System.NullReferenceException h1 h1end
			.try a b catch System.Exception h2 h2end
		a:
			ldc.i4.1
			ldc.i4.0
			div
			stloc.0
			leave.s done
		b:
		h1:
			pop
			ldc.i4.1
			stloc.0
			leave.s done
		h1end:
		h2:
			pop
			ldc.i4.2
			stloc.0
			leave.s done
		h2end:
		done:
			ldloc.0
			ret`, 2},
		{"finally on leave", `
			.locals (int32)
			.try a b finally f fend
		a:
			ldc.i4.1
			stloc.0
			leave.s done
		b:
		f:
			ldloc.0
			ldc.i4.s 10
			mul
			stloc.0
			endfinally
		fend:
		done:
			ldloc.0
			ret`, 10},
		{"filter accepts", `
			.locals (int32)
			.try a b filter flt h hend
		a:
			ldc.i4.1
			ldc.i4.0
			div
			stloc.0
			leave.s done
		b:
		flt:
			isinst System.DivideByZeroException
			ldnull
			cgt.un
			endfilter
		h:
			pop
			ldc.i4.7
			stloc.0
			leave.s done
		hend:
		done:
			ldloc.0
			ret`, 7},
		{"filter declines", `
			.locals (int32)
			.try a b filter flt h1 h1end
			.try a b catch System.Exception h2 h2end
		a:
			ldc.i4.1
			ldc.i4.0
			div
			stloc.0
			leave.s done
		b:
		flt:
			pop
			ldc.i4.0
			endfilter
		h1:
			pop
			ldc.i4.7
			stloc.0
			leave.s done
		h1end:
		h2:
			pop
			ldc.i4.8
			stloc.0
			leave.s done
		h2end:
		done:
			ldloc.0
			ret`, 8},
		{"null reference", `
			.locals (int32)
			.try a b catch System.NullReferenceException h hend
		a:
			ldnull
			ldlen
			conv.i4
			stloc.0
			leave.s done
		b:
		h:
			pop
			ldc.i4.3
			stloc.0
			leave.s done
		hend:
		done:
			ldloc.0
			ret`, 3},
		{"rethrow to outer region", `
			.locals (int32)
			.try a b catch System.DivideByZeroException h1 h1end
			.try a h1end catch System.Exception h2 h2end
		a:
			ldc.i4.1
			ldc.i4.0
			div
			stloc.0
			leave.s done
		b:
		h1:
			pop
			rethrow
		h1end:
		h2:
			pop
			ldc.i4.4
			stloc.0
			leave.s done
		h2end:
		done:
			ldloc.0
			ret`, 4},
		{"catch and retry", `
			.locals (int32)
			.try a b catch System.DivideByZeroException h hend
		a:
			ldloc.0
			ldc.i4.3
			bge.s out
			ldc.i4.1
			ldc.i4.0
			div
			pop
		out:
			leave.s done
		b:
		h:
			pop
			ldloc.0
			ldc.i4.1
			add
			stloc.0
			leave.s a
		hend:
		done:
			ldloc.0
			ret`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meta.NewModule("test")
			method := staticMethod(t, m, nil, meta.Int32, tt.body)
			_, thread := newTestThread(t, m)
			if got := callInt32(t, thread, method); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

const zooProgram = `
name = "zoo"

[[types]]
namespace = "Zoo"
name = "Animal"

  [[types.fields]]
  name = "legs"
  type = "int32"

  [[types.methods]]
  ctor = true
  params = ["int32"]
  body = """
    ldarg.0
    ldarg.1
    stfld Zoo.Animal::legs
    ret
  """

  [[types.methods]]
  name = "Legs"
  virtual = true
  returns = "int32"
  body = """
    ldarg.0
    ldfld Zoo.Animal::legs
    ret
  """

  [[types.methods]]
  name = "Sound"
  virtual = true
  returns = "int32"
  body = """
    ldc.i4.0
    ret
  """

[[types]]
namespace = "Zoo"
name = "Dog"
base = "Zoo.Animal"

  [[types.methods]]
  ctor = true
  body = """
    ldarg.0
    ldc.i4.4
    call Zoo.Animal::.ctor
    ret
  """

  [[types.methods]]
  name = "Sound"
  virtual = true
  returns = "int32"
  body = """
    ldc.i4.s 42
    ret
  """

[[types]]
namespace = "Zoo"
name = "Bird"
base = "Zoo.Animal"

  [[types.methods]]
  ctor = true
  body = """
    ldarg.0
    ldc.i4.2
    call Zoo.Animal::.ctor
    ret
  """

[[types]]
namespace = "Zoo"
name = "Cage"

  [[types.methods]]
  ctor = true
  body = """
    ret
  """

[[types]]
namespace = "Zoo"
name = "Program"

  [[types.fields]]
  name = "visits"
  type = "int32"
  static = true

  [[types.methods]]
  name = "Main"
  static = true
  returns = "int32"
  body = """
    .locals (Zoo.Animal)
    newobj Zoo.Dog::.ctor
    stloc.0
    ldloc.0
    callvirt Zoo.Animal::Sound
    ldloc.0
    callvirt Zoo.Animal::Legs
    add
    ret
  """

  [[types.methods]]
  name = "Total"
  static = true
  returns = "int32"
  body = """
    .locals (Zoo.Animal[], int32, int32)
    ldc.i4.2
    newarr Zoo.Animal
    stloc.0
    ldloc.0
    ldc.i4.0
    newobj Zoo.Dog::.ctor
    stelem.ref
    ldloc.0
    ldc.i4.1
    newobj Zoo.Bird::.ctor
    stelem.ref
  loop:
    ldloc.2
    ldloc.0
    ldloc.1
    ldelem.ref
    callvirt Zoo.Animal::Legs
    add
    stloc.2
    ldloc.1
    ldc.i4.1
    add
    dup
    stloc.1
    ldloc.0
    ldlen
    conv.i4
    blt.s loop
    ldloc.2
    ret
  """

  [[types.methods]]
  name = "Visit"
  static = true
  returns = "int32"
  body = """
    ldsfld Zoo.Program::visits
    ldc.i4.1
    add
    stsfld Zoo.Program::visits
    ldsfld Zoo.Program::visits
    ret
  """

  [[types.methods]]
  name = "BadCast"
  static = true
  returns = "int32"
  body = """
    newobj Zoo.Cage::.ctor
    castclass Zoo.Animal
    pop
    ldc.i4.0
    ret
  """

  [[types.methods]]
  name = "IsAnimal"
  static = true
  returns = "int32"
  body = """
    newobj Zoo.Cage::.ctor
    isinst Zoo.Animal
    ldnull
    cgt.un
    newobj Zoo.Bird::.ctor
    isinst Zoo.Animal
    ldnull
    cgt.un
    ldc.i4.1
    shl
    or
    ret
  """

  [[types.methods]]
  name = "Mismatch"
  static = true
  returns = "int32"
  body = """
    ldc.i4.1
    newarr Zoo.Dog
    ldc.i4.0
    newobj Zoo.Bird::.ctor
    stelem.ref
    ldc.i4.0
    ret
  """

  [[types.methods]]
  name = "Fail"
  static = true
  returns = "int32"
  body = """
    .try a b fault f fend
  a:
    ldc.i4.0
    ldc.i4.0
    div
    ret
  b:
  f:
    ldc.i4.5
    stsfld Zoo.Program::visits
    endfinally
  fend:
  """

  [[types.methods]]
  name = "CatchFail"
  static = true
  returns = "int32"
  body = """
    .locals (int32)
    .try a b catch System.ArithmeticException h hend
  a:
    call Zoo.Program::Fail
    stloc.0
    leave.s done
  b:
  h:
    pop
    ldsfld Zoo.Program::visits
    neg
    stloc.0
    leave.s done
  hend:
  done:
    ldloc.0
    ret
  """
`

func TestObjectModel(t *testing.T) {
	tests := []struct {
		method string
		want   int32
	}{
		{"Main", 46},
		{"Total", 6},
		{"IsAnimal", 2},
		{"CatchFail", -5},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p := loadProgram(t, zooProgram)
			_, thread := newTestThread(t, p.Module)
			if got := callInt32(t, thread, mustFind(t, p.Module, "Zoo.Program", tt.method)); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestObjectModelExceptions(t *testing.T) {
	tests := []struct {
		method  string
		excType string
		message string
	}{
		{"BadCast", "System.InvalidCastException", "Unable to cast object of type 'Zoo.Cage' to type 'Zoo.Animal'."},
		{"Mismatch", "System.ArrayTypeMismatchException", "Attempted to access an element as a type incompatible with the array."},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p := loadProgram(t, zooProgram)
			_, thread := newTestThread(t, p.Module)
			_, err := thread.Call(context.Background(), mustFind(t, p.Module, "Zoo.Program", tt.method), nil)
			var exc *EmulatedException
			if !errors.As(err, &exc) {
				t.Fatalf("Call error = %v, want *EmulatedException", err)
			}
			if exc.TypeName != tt.excType || exc.Message != tt.message {
				t.Errorf("got %s %q, want %s %q", exc.TypeName, exc.Message, tt.excType, tt.message)
			}
		})
	}
}

func TestVirtualCallSitesAreCached(t *testing.T) {
	p := loadProgram(t, zooProgram)
	machine, thread := newTestThread(t, p.Module)
	main := mustFind(t, p.Module, "Zoo.Program", "Main")

	for i := 0; i < 3; i++ {
		if got := callInt32(t, thread, main); got != 46 {
			t.Fatalf("call %d: got %d, want 46", i, got)
		}
	}
	mono, poly, mega, hits, misses := machine.InlineCaches.Stats()
	if mono != 2 || poly != 0 || mega != 0 {
		t.Errorf("cache states = %d/%d/%d, want 2 monomorphic", mono, poly, mega)
	}
	if hits != 4 || misses != 2 {
		t.Errorf("hits/misses = %d/%d, want 4/2", hits, misses)
	}

	total := mustFind(t, p.Module, "Zoo.Program", "Total")
	callInt32(t, thread, total)
	_, poly, _, _, _ = machine.InlineCaches.Stats()
	if poly != 1 {
		t.Errorf("polymorphic caches = %d, want 1", poly)
	}
}

func TestStaticsPersistAcrossCalls(t *testing.T) {
	p := loadProgram(t, zooProgram)
	_, thread := newTestThread(t, p.Module)
	visit := mustFind(t, p.Module, "Zoo.Program", "Visit")
	for want := int32(1); want <= 3; want++ {
		if got := callInt32(t, thread, visit); got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

const geometryProgram = `
name = "geometry"

[[types]]
namespace = "Geo"
name = "Point"
kind = "valuetype"

  [[types.fields]]
  name = "x"
  type = "int32"

  [[types.fields]]
  name = "y"
  type = "int32"

  [[types.methods]]
  ctor = true
  params = ["int32", "int32"]
  body = """
    ldarg.0
    ldarg.1
    stfld Geo.Point::x
    ldarg.0
    ldarg.2
    stfld Geo.Point::y
    ret
  """

  [[types.methods]]
  name = "Sum"
  returns = "int32"
  body = """
    ldarg.0
    ldfld Geo.Point::x
    ldarg.0
    ldfld Geo.Point::y
    add
    ret
  """

[[types]]
namespace = "Geo"
name = "Program"

  [[types.methods]]
  name = "Area"
  static = true
  returns = "int32"
  body = """
    .locals (Geo.Point)
    ldc.i4.3
    ldc.i4.4
    newobj Geo.Point::.ctor
    stloc.0
    ldloca.s 0
    ldfld Geo.Point::x
    ldloc.0
    ldfld Geo.Point::y
    mul
    ret
  """

  [[types.methods]]
  name = "Boxed"
  static = true
  returns = "int32"
  body = """
    ldc.i4.5
    ldc.i4.6
    newobj Geo.Point::.ctor
    box Geo.Point
    unbox.any Geo.Point
    ldfld Geo.Point::y
    ret
  """

  [[types.methods]]
  name = "Instance"
  static = true
  returns = "int32"
  body = """
    .locals (Geo.Point)
    ldloca.s 0
    initobj Geo.Point
    ldloca.s 0
    ldc.i4.s 20
    stfld Geo.Point::x
    ldloca.s 0
    ldc.i4.1
    stfld Geo.Point::y
    ldloca.s 0
    call Geo.Point::Sum
    ret
  """

  [[types.methods]]
  name = "Constructed"
  static = true
  returns = "int32"
  body = """
    .locals (Geo.Point, int32)
  loop:
    ldloc.1
    ldc.i4.1
    newobj Geo.Point::.ctor
    stloc.0
    ldloca.s 0
    call Geo.Point::Sum
    stloc.1
    ldloc.1
    ldc.i4.s 100
    blt.s loop
    ldloc.1
    ret
  """
`

func TestValueTypes(t *testing.T) {
	tests := []struct {
		method string
		want   int32
	}{
		{"Area", 12},
		{"Boxed", 6},
		{"Instance", 21},
		{"Constructed", 100},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p := loadProgram(t, geometryProgram)
			_, thread := newTestThread(t, p.Module)
			if got := callInt32(t, thread, mustFind(t, p.Module, "Geo.Program", tt.method)); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArrays(t *testing.T) {
	m := meta.NewModule("test")
	sum := staticMethod(t, m, nil, meta.Int32, `
		.locals (int32[])
		ldc.i4.3
		newarr int32
		stloc.0
		ldloc.0
		ldc.i4.1
		ldc.i4.s 21
		stelem.i4
		ldloc.0
		ldc.i4.1
		ldelem.i4
		ldloc.0
		ldlen
		conv.i4
		add
		ret`)
	outOfRange := staticMethod(t, m, nil, meta.Int32, `
		ldc.i4.3
		newarr int32
		ldc.i4.3
		ldelem.i4
		ret`)
	byIndex := staticMethod(t, m, []meta.TypeSig{meta.Int32}, meta.Int32, `
		ldc.i4.3
		newarr int32
		ldarg.0
		ldelem.i4
		ret`)
	machine, thread := newTestThread(t, m)

	if got := callInt32(t, thread, sum); got != 24 {
		t.Errorf("sum: got %d, want 24", got)
	}

	_, err := thread.Call(context.Background(), outOfRange, nil)
	var exc *EmulatedException
	if !errors.As(err, &exc) || exc.TypeName != "System.IndexOutOfRangeException" {
		t.Errorf("out of range: got %v, want IndexOutOfRangeException", err)
	}

	negative := machine.Factory.Int32(-1)
	defer machine.Factory.Release(negative)
	_, err = thread.Call(context.Background(), byIndex, []StackSlot{negative})
	if !errors.As(err, &exc) || exc.TypeName != "System.IndexOutOfRangeException" {
		t.Errorf("negative index: got %v, want IndexOutOfRangeException", err)
	}

	unknown := machine.Factory.CreateUnknown(meta.Int32)
	defer machine.Factory.Release(unknown)
	got, err := thread.Call(context.Background(), byIndex, []StackSlot{unknown})
	if err != nil {
		t.Fatalf("unknown index: %v", err)
	}
	if got.Contents.Count() != 32 || got.Contents.IsFullyKnown() {
		t.Errorf("unknown index: got %s, want an unknown int32", got)
	}
}

func TestStrings(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, nil, meta.String, `
		ldstr "héllo, world"
		ret`)
	machine, thread := newTestThread(t, m)

	got, err := thread.Call(context.Background(), method, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	s, ok := machine.Handle(got.Contents.Uint64()).ReadString()
	if !ok || s != "héllo, world" {
		t.Errorf("got %q, want %q", s, "héllo, world")
	}
}

func TestInvokers(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Math", m.CorLib.Object)
	m.DefineMethod(td, "Twice", meta.MethodSig{Params: []meta.TypeSig{meta.Int32}, Return: meta.Int32}, 0)
	caller := staticMethod(t, m, nil, meta.Int32, `
		ldc.i4.s 21
		call Test.Math::Twice
		ret`)

	t.Run("hook", func(t *testing.T) {
		machine, thread := newTestThread(t, m)
		hooks := NewHookInvoker()
		hooks.Register("Test.Math::Twice", func(ctx *ExecutionContext, _ *meta.MethodDef, args []StackSlot) InvocationResult {
			return StepOver(ctx.Factory().Int32(args[0].Contents.Int32() * 2))
		})
		machine.Invoker = ChainInvoker{hooks, StepInInvoker{}}
		if got := callInt32(t, thread, caller); got != 42 {
			t.Errorf("got %d, want 42", got)
		}
	})

	t.Run("no body", func(t *testing.T) {
		_, thread := newTestThread(t, m)
		got, err := thread.Call(context.Background(), caller, nil)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got.Contents.IsFullyKnown() {
			t.Errorf("got %s, want an unknown value", got)
		}
	})

	t.Run("return default", func(t *testing.T) {
		machine, thread := newTestThread(t, m)
		machine.Invoker = ReturnDefaultInvoker{}
		if got := callInt32(t, thread, caller); got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})

	t.Run("throw", func(t *testing.T) {
		machine, thread := newTestThread(t, m)
		hooks := NewHookInvoker()
		hooks.Register("Test.Math::Twice", func(ctx *ExecutionContext, _ *meta.MethodDef, _ []StackSlot) InvocationResult {
			exc, err := ctx.Machine.NewException(ctx.Machine.Module.CorLib.OverflowException, "too big")
			if err != nil {
				t.Fatalf("NewException: %v", err)
			}
			return Throw(exc)
		})
		machine.Invoker = hooks
		_, err := thread.Call(context.Background(), caller, nil)
		var exc *EmulatedException
		if !errors.As(err, &exc) || exc.Message != "too big" {
			t.Errorf("got %v, want an OverflowException", err)
		}
	})
}

func TestStackOverflow(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Recursion", m.CorLib.Object)
	md := m.DefineMethod(td, "Forever", meta.MethodSig{Params: []meta.TypeSig{meta.Int32}, Return: meta.Int32}, 0)
	if err := asm.AssembleMethod(m, md, `
		ldarg.0
		ldc.i4.1
		add
		call Test.Recursion::Forever
		ret`); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.StackSize = 1024
	machine, thread := newTestThreadWith(t, m, cfg)

	zero := machine.Factory.Int32(0)
	defer machine.Factory.Release(zero)
	_, err := thread.Call(context.Background(), md, []StackSlot{zero})
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("Call error = %v, want ErrStackOverflow", err)
	}
	var fe *FatalError
	if errors.As(err, &fe) && fe.Kind != ResultStackOverflow {
		t.Errorf("fatal error kind = %s, want stack overflow", fe.Kind)
	}
}

func TestInstructionLimit(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, nil, meta.Void, `
	spin:
		br.s spin`)
	cfg := DefaultConfig()
	cfg.MaxInstructions = 100
	_, thread := newTestThreadWith(t, m, cfg)

	_, err := thread.Call(context.Background(), method, nil)
	if !errors.Is(err, ErrInstructionLimit) {
		t.Fatalf("Call error = %v, want ErrInstructionLimit", err)
	}
	if thread.Executed() != 100 {
		t.Errorf("executed %d instructions, want 100", thread.Executed())
	}
	if thread.CallStack.Count() != 1 {
		t.Errorf("call stack holds %d frames, want 1", thread.CallStack.Count())
	}
}

func TestCallCanceled(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, nil, meta.Void, `
	spin:
		br.s spin`)
	_, thread := newTestThread(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := thread.Call(ctx, method, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Call error = %v, want context.Canceled", err)
	}
}

func TestCallValidation(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Empty", m.CorLib.Object)
	noBody := m.DefineMethod(td, "Extern", meta.MethodSig{Return: meta.Void}, 0)
	takesOne := staticMethod(t, m, []meta.TypeSig{meta.Int32}, meta.Void, "ret")
	_, thread := newTestThread(t, m)

	if _, err := thread.Call(context.Background(), noBody, nil); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("no body: error = %v, want ErrInvalidProgram", err)
	}
	if _, err := thread.Call(context.Background(), takesOne, nil); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("argument count: error = %v, want ErrInvalidProgram", err)
	}
	takesFloat := staticMethod(t, m, []meta.TypeSig{meta.Float64}, meta.Void, "ret")
	narrow := thread.Machine.Pool.Rent(32, true)
	defer thread.Machine.Pool.Return(narrow)
	if _, err := thread.Call(context.Background(), takesFloat, []StackSlot{{Contents: narrow, Type: HintFloat}}); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("32-bit float argument: error = %v, want ErrInvalidProgram", err)
	}
	if err := thread.Step(context.Background()); !errors.Is(err, ErrThreadFinished) {
		t.Errorf("Step on an idle thread = %v, want ErrThreadFinished", err)
	}
}

func TestProfilerCountsExecution(t *testing.T) {
	m := meta.NewModule("test")
	method := staticMethod(t, m, nil, meta.Int32, `
		ldc.i4.5
		ldc.i4.3
		add
		ret`)
	machine, thread := newTestThread(t, m)
	callInt32(t, thread, method)

	stats := machine.Profiler.Stats()
	if stats.Instructions != thread.Executed() || stats.Instructions != 4 {
		t.Errorf("profiled %d instructions, thread executed %d, want 4", stats.Instructions, thread.Executed())
	}
	if n := machine.Profiler.OpcodeCount(meta.OpAdd); n != 1 {
		t.Errorf("add executed %d times, want 1", n)
	}
}
