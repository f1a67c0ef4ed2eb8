package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/vm"
	"github.com/chazu/echo/vm/snapshot"
)

const demoProgram = `
name = "demo"
entries = ["Demo.Program::Ten", "Demo.Program::Greeting"]

[[types]]
namespace = "Demo"
name = "Program"

  [[types.methods]]
  name = "Ten"
  static = true
  returns = "int32"
  body = """
    ldc.i4.7
    ldc.i4.3
    add
    ret
  """

  [[types.methods]]
  name = "Greeting"
  static = true
  returns = "string"
  body = """
    ldstr "hi"
    ret
  """

  [[types.methods]]
  name = "Twice"
  static = true
  params = ["int32"]
  returns = "int32"
  body = """
    ldarg.0
    ldc.i4.1
    shl
    ret
  """

  [[types.methods]]
  name = "Boom"
  static = true
  returns = "int32"
  body = """
    .try start end finally fin finend
  start:
    ldc.i4.1
    ldc.i4.0
    div
    pop
    leave.s done
  end:
  fin:
    endfinally
  finend:
  done:
    ldc.i4.0
    ret
  """

  [[types.methods]]
  name = "Spin"
  static = true
  returns = "int32"
  body = """
    .locals (Demo.Square, int32, int32)
    newobj Demo.Square::.ctor
    stloc.0
  loop:
    ldloc.1
    ldloc.0
    callvirt Demo.Square::Sides
    add
    stloc.1
    ldloc.2
    ldc.i4.1
    add
    dup
    stloc.2
    ldc.i4.3
    blt.s loop
    ldloc.1
    ret
  """

[[types]]
namespace = "Demo"
name = "Square"

  [[types.methods]]
  ctor = true
  body = """
    ret
  """

  [[types.methods]]
  name = "Sides"
  virtual = true
  returns = "int32"
  body = """
    ldc.i4.4
    ret
  """
`

// writeDemo writes the demo program and an echo.toml into a temp dir.
func writeDemo(t *testing.T, config string) (dir, program string) {
	t.Helper()
	dir = t.TempDir()
	program = filepath.Join(dir, "demo.toml")
	if err := os.WriteFile(program, []byte(demoProgram), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, program
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	runEntries, runDefaults, runProfile, runHotThreshold = nil, false, false, 100
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunDeclaredEntries(t *testing.T) {
	dir, program := writeDemo(t, "")
	got, err := execute(t, "run", program, "-c", dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "Demo.Program::Ten: int 0x0000000A\nDemo.Program::Greeting: \"hi\"\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunArguments(t *testing.T) {
	dir, program := writeDemo(t, "")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown argument", nil, "Demo.Program::Twice: int ???????????????????????????????0\n"},
		{"default argument", []string{"--defaults"}, "Demo.Program::Twice: int 0x00000000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", program, "-c", dir, "-e", "Demo.Program::Twice"}, tt.args...)
			got, err := execute(t, args...)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunReportsExceptions(t *testing.T) {
	dir, program := writeDemo(t, "")
	got, err := execute(t, "run", program, "-c", dir, "-e", "Demo.Program::Boom")
	if err == nil {
		t.Fatal("run succeeded, want an error for the thrown exception")
	}
	if !strings.Contains(got, "System.DivideByZeroException") {
		t.Errorf("output %q does not name the exception", got)
	}
}

func TestRunProfile(t *testing.T) {
	dir, program := writeDemo(t, "")
	got, err := execute(t, "run", program, "-c", dir, "-e", "Demo.Program::Spin", "--profile", "--hot-threshold", "3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{
		"Demo.Program::Spin: int 0x0000000C",
		"profile Demo.Program::Spin: 4 calls to 2 methods (1 hot)",
		"       3 * Demo.Square::Sides",
		"       1   Demo.Square::.ctor",
		"       6   add",
		"call sites: 1 mono, 0 poly, 0 mega (2 hits, 1 misses)",
		"in Demo.Program::Spin: mono, 67% hits",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestRunRejectsBadEntries(t *testing.T) {
	dir, program := writeDemo(t, "")
	for _, entry := range []string{"Ten", "Demo.Program::Missing"} {
		if _, err := execute(t, "run", program, "-c", dir, "-e", entry); err == nil {
			t.Errorf("entry %q was accepted", entry)
		}
	}
}

func TestConfigSelectsPolicies(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		wantResolver vm.UnknownResolver
		wantInvoker  vm.MethodInvoker
	}{
		{"defaults", "", vm.DefaultResolver{}, vm.StepInInvoker{}},
		{"zero and return-default", "[resolver]\nmode = \"zero\"\n[invoker]\nmode = \"return-default\"\n", vm.ConcreteResolver{}, vm.ReturnDefaultInvoker{}},
		{"return-unknown", "[invoker]\nmode = \"return-unknown\"\n", vm.DefaultResolver{}, vm.ReturnUnknownInvoker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, program := writeDemo(t, tt.config)
			cfg, err := manifest.FindAndLoad(dir)
			if err != nil {
				t.Fatalf("FindAndLoad: %v", err)
			}
			prog, err := manifest.LoadProgram(program)
			if err != nil {
				t.Fatal(err)
			}
			m, err := newMachine(cfg, prog.Module)
			if err != nil {
				t.Fatalf("newMachine: %v", err)
			}
			if m.Resolver != tt.wantResolver {
				t.Errorf("Resolver = %T, want %T", m.Resolver, tt.wantResolver)
			}
			if m.Invoker != tt.wantInvoker {
				t.Errorf("Invoker = %T, want %T", m.Invoker, tt.wantInvoker)
			}
		})
	}
}

func TestDisasm(t *testing.T) {
	dir, program := writeDemo(t, "")
	got, err := execute(t, "disasm", program, "Demo.Program::Ten", "-c", dir)
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	for _, want := range []string{
		".method static int32 Demo.Program::Ten()",
		"IL_0000: ldc.i4.7",
		"IL_0002: add",
		"IL_0003: ret",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}

	got, err = execute(t, "disasm", program, "Demo.Program::Boom", "-c", dir)
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	if !strings.Contains(got, ".try IL_0000 to IL_0006 finally handler IL_0006 to IL_0007") {
		t.Errorf("output lacks the finally clause:\n%s", got)
	}
}

func TestSnapshotSaveAndShow(t *testing.T) {
	dir, program := writeDemo(t, "")
	out := filepath.Join(dir, "greeting.snap")
	got, err := execute(t, "snapshot", "save", program, "Demo.Program::Greeting", "-c", dir, "-o", out)
	if err != nil {
		t.Fatalf("snapshot save: %v", err)
	}
	if !strings.Contains(got, "wrote "+out) {
		t.Errorf("output %q does not report the file", got)
	}

	s, err := snapshot.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Module != "demo" || len(s.Objects) != 1 || s.Objects[0].Type != "System.String" {
		t.Errorf("snapshot of %s has objects %+v, want one string", s.Module, s.Objects)
	}

	got, err = execute(t, "snapshot", "show", out, "-c", dir)
	if err != nil {
		t.Fatalf("snapshot show: %v", err)
	}
	if !strings.Contains(got, "object System.String @0x10000000") {
		t.Errorf("show output lacks the string object:\n%s", got)
	}
}
