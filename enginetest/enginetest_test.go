package enginetest

import (
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/wippyai/dss-runtime/engine"
)

func buildScript(t *testing.T, e *Engine, c *contextState, lines ...string) {
	t.Helper()
	for _, line := range lines {
		e.exec(c, line)
		if flag, _ := e.mem.readI32(c.errFlag); flag != 0 {
			t.Fatalf("exec(%q) raised engine error %d: %s", line, flag, c.errDesc)
		}
	}
}

func demoLines() []string {
	return []string{
		"clear",
		"new circuit.demo basekv=115",
		"new transformer.sub windings=2 buses=(sourcebus, mid) kva=5000 xhl=8 wdg=1 kv=115 wdg=2 kv=4.16",
		"new line.trunk bus1=mid bus2=end phases=3 length=1.2",
		"new load.l1 bus1=end.1.2.3 phases=3 kv=4.16 kw=900 kvar=280",
		"new load.l2 bus1=end.1 phases=1 kv=2.4 kw=120 kvar=40",
		"new fuse.f1 monitoredobj=line.trunk monitoredterm=1 phases=3",
		"new energymeter.m1 element=line.trunk terminal=1",
		"new monitor.mon1 element=load.l1 terminal=1 mode=0",
		"set voltagebases=(115, 4.16)",
		"calcvoltagebases",
		"solve",
	}
}

func TestCommandBuildsCircuit(t *testing.T) {
	e := New()
	c := e.contexts[e.prime]
	buildScript(t, e, c, demoLines()...)

	ckt := c.circuit
	if ckt == nil {
		t.Fatal("no circuit after script")
	}
	if ckt.name != "demo" {
		t.Errorf("circuit name = %q, want demo", ckt.name)
	}
	// sourcebus, mid, end
	if len(ckt.buses) != 3 {
		t.Fatalf("got %d buses, want 3", len(ckt.buses))
	}
	if got := ckt.numNodes(); got != 9 {
		t.Errorf("numNodes = %d, want 9", got)
	}
	// vsource + transformer + line + 2 loads + fuse + meter + monitor
	if len(ckt.elements) != 8 {
		t.Errorf("got %d elements, want 8", len(ckt.elements))
	}
	if !ckt.solved || !ckt.converged {
		t.Error("circuit should be solved and converged")
	}

	end := ckt.busIndex["end"]
	if end == nil {
		t.Fatal("bus end missing")
	}
	if !reflect.DeepEqual(end.nodes, []int32{1, 2, 3}) {
		t.Errorf("end nodes = %v, want [1 2 3]", end.nodes)
	}
	wantKV := 4.16 / math.Sqrt(3)
	if math.Abs(end.kvBase-wantKV) > 1e-9 {
		t.Errorf("end kvBase = %v, want %v", end.kvBase, wantKV)
	}
}

func TestUnknownCommandRaisesEngineError(t *testing.T) {
	e := New()
	c := e.contexts[e.prime]
	e.exec(c, "frobnicate everything")
	flag, err := e.mem.readI32(c.errFlag)
	if err != nil {
		t.Fatal(err)
	}
	if flag != CodeUnknownCommand {
		t.Fatalf("flag = %d, want %d", flag, CodeUnknownCommand)
	}
	if c.errDesc == "" {
		t.Error("error description should not be empty")
	}
}

func TestObjectsNeedCircuitFirst(t *testing.T) {
	e := New()
	c := e.contexts[e.prime]
	e.exec(c, "new load.l1 kw=10")
	if flag, _ := e.mem.readI32(c.errFlag); flag != CodeNoCircuit {
		t.Fatalf("flag = %d, want %d", flag, CodeNoCircuit)
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	mags := func() []float64 {
		e := New()
		c := e.contexts[e.prime]
		buildScript(t, e, c, demoLines()...)
		var out []float64
		for _, b := range c.circuit.buses {
			for _, v := range b.vpu {
				out = append(out, real(v), imag(v))
			}
		}
		return out
	}
	first, second := mags(), mags()
	if !reflect.DeepEqual(first, second) {
		t.Error("identical scripts should produce identical solutions")
	}
}

func TestLoadMultShiftsVoltages(t *testing.T) {
	solveAt := func(mult string) float64 {
		e := New()
		c := e.contexts[e.prime]
		buildScript(t, e, c, demoLines()...)
		buildScript(t, e, c, "set loadmult="+mult, "solve")
		end := c.circuit.busIndex["end"]
		var sum float64
		for _, v := range end.vpu {
			sum += real(v)*real(v) + imag(v)*imag(v)
		}
		return sum
	}
	low, high := solveAt("0.5"), solveAt("1.5")
	if low <= high {
		t.Errorf("heavier load should sag voltage: |v|^2 %.6f at 0.5 vs %.6f at 1.5", low, high)
	}
}

func TestContextsAreIsolated(t *testing.T) {
	e := New()
	a := e.contexts[e.prime]
	tokB := e.newContext()
	b := e.contexts[tokB]

	buildScript(t, e, a, "new circuit.only_a")
	if b.circuit != nil {
		t.Fatal("circuit leaked into the second context")
	}
	buildScript(t, e, b, "new circuit.only_b", "new load.lb kw=5")
	if got := len(a.circuit.elements); got != 1 {
		t.Errorf("context a has %d elements, want just its source", got)
	}
	if a.circuit.name != "only_a" || b.circuit.name != "only_b" {
		t.Errorf("names = %q / %q", a.circuit.name, b.circuit.name)
	}
}

func TestFuseStateDefaults(t *testing.T) {
	e := New()
	c := e.contexts[e.prime]
	buildScript(t, e, c,
		"new circuit.x",
		"new fuse.f1 phases=2",
	)
	el := c.circuit.find("fuse", "f1")
	want := []string{"closed", "closed"}
	if !reflect.DeepEqual(el.state, want) {
		t.Errorf("state = %v, want %v", el.state, want)
	}
	if !reflect.DeepEqual(el.normalState, want) {
		t.Errorf("normalState = %v, want %v", el.normalState, want)
	}
}

func TestMonitorByteStreamLayout(t *testing.T) {
	e := New()
	c := e.contexts[e.prime]
	buildScript(t, e, c, demoLines()...)
	buildScript(t, e, c, "solve", "solve")

	el := c.circuit.find("monitor", "mon1")
	if el.samples != 3 {
		t.Fatalf("samples = %d, want 3 after three solves", el.samples)
	}
	raw := el.byteStream()
	if len(raw) != 16+3*(2+monitorChannels)*4 {
		t.Fatalf("stream length = %d", len(raw))
	}
	if sig := binary.LittleEndian.Uint32(raw); sig != monitorSignature {
		t.Errorf("signature = %d, want %d", sig, monitorSignature)
	}
	if n := binary.LittleEndian.Uint32(raw[12:]); n != 3 {
		t.Errorf("sample count in header = %d, want 3", n)
	}
}

func TestSplitLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"solve", []string{"solve"}},
		{"new load.l1 kw=10 kvar=3", []string{"new", "load.l1", "kw=10", "kvar=3"}},
		{"set voltagebases=(115, 4.16)", []string{"set", "voltagebases=(115, 4.16)"}},
		{"new fuse.f1 state=[open, closed]", []string{"new", "fuse.f1", "state=[open, closed]"}},
		{`edit line.t name="a b"`, []string{"edit", "line.t", `name="a b"`}},
		{"  ", nil},
	}
	for _, tc := range cases {
		if got := splitLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitLine(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFloats(t *testing.T) {
	got := parseFloats("(0.7, 0.2, 0.1)")
	want := []float64{0.7, 0.2, 0.1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseFloats = %v, want %v", got, want)
	}
}

func TestResolveUnknownSymbolFails(t *testing.T) {
	e := New()
	if _, err := e.Func("ctx_Does_Not_Exist", engine.Sig(engine.KindVoid)); err == nil {
		t.Fatal("resolving an unknown symbol should fail")
	}
}

func TestRegisterMakesSymbolResolvable(t *testing.T) {
	e := New()
	e.Register("test_Custom", func(ctl *Ctl, args []uint64) (uint64, error) {
		return engine.EncodeI32(41 + 1), nil
	})
	fn, err := e.Func("test_Custom", engine.Sig(engine.KindI32))
	if err != nil {
		t.Fatal(err)
	}
	slot, err := fn()
	if err != nil {
		t.Fatal(err)
	}
	if got := engine.DecodeI32(slot); got != 42 {
		t.Errorf("custom symbol returned %d, want 42", got)
	}
}

func TestCallArityIsChecked(t *testing.T) {
	e := New()
	fn, err := e.Func("ctx_DSS_Get_Version", engine.Sig(engine.KindAddr, engine.KindAddr))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(); err == nil {
		t.Fatal("call with too few slots should fail")
	}
}

func TestAllocatorTracksOutstanding(t *testing.T) {
	e := New()
	al := e.Allocator()
	a, err := al.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	b, err := al.Alloc(0) // zero-size requests still get a distinct block
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("allocations should be distinct")
	}
	if got := e.OutstandingAllocs(); got != 2 {
		t.Fatalf("outstanding = %d, want 2", got)
	}
	al.Free(a)
	al.Free(b)
	if got := e.OutstandingAllocs(); got != 0 {
		t.Fatalf("outstanding = %d, want 0", got)
	}
}

func TestMemoryRoundTrips(t *testing.T) {
	e := New()
	mem := e.Memory()
	al := e.Allocator()

	addr, err := al.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteFloat64s(addr, []float64{1.5, -2.25, 1e9}); err != nil {
		t.Fatal(err)
	}
	got, err := mem.ReadFloat64s(addr, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []float64{1.5, -2.25, 1e9}) {
		t.Errorf("floats = %v", got)
	}

	if err := mem.WriteI32(addr, -7); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ReadI32(addr); v != -7 {
		t.Errorf("i32 = %d, want -7", v)
	}

	if _, err := mem.ReadBytes(addr, 1<<20); err == nil {
		t.Error("read past the arena should fail")
	}
}
