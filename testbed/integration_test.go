package testbed

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/errors"
	"github.com/wippyai/dss-runtime/opendss"
	"github.com/wippyai/dss-runtime/runtime"
)

// feeder is the shared scenario: a 115 kV source stepped down to a 4.16 kV
// line with two loads, metered and monitored.
var feeder = []string{
	"clear",
	"new circuit.demo basekv=115",
	"new transformer.sub windings=2 buses=(sourcebus, mid) kva=5000 xhl=8 wdg=1 kv=115 wdg=2 kv=4.16",
	"new line.trunk bus1=mid bus2=end phases=3 length=1.2",
	"new load.l1 bus1=end.1.2.3 phases=3 kv=4.16 kw=900 kvar=280",
	"new load.l2 bus1=end.1 phases=1 kv=2.4 kw=120 kvar=40",
	"new energymeter.m1 element=line.trunk terminal=1",
	"new monitor.mon1 element=load.l1 terminal=1 mode=0",
	"set voltagebases=(115, 4.16)",
	"calcvoltagebases",
}

func openRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{API: enginetest.New()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func build(t *testing.T, eng *runtime.Engine, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := eng.Text.Command(line); err != nil {
			t.Fatalf("command %q: %v", line, err)
		}
	}
}

func TestIsolation_TwoActors(t *testing.T) {
	rt := openRuntime(t)

	a, err := rt.NewEngine()
	if err != nil {
		t.Fatalf("new engine a: %v", err)
	}
	defer a.Close()
	b, err := rt.NewEngine()
	if err != nil {
		t.Fatalf("new engine b: %v", err)
	}
	defer b.Close()

	build(t, a, feeder...)
	build(t, a, "solve")

	// b sees none of a's work until it builds its own circuit.
	if _, err := b.Circuit.Name(); !errors.IsEngineReported(err) {
		t.Fatalf("b should have no circuit yet, got %v", err)
	}
	build(t, b, "new circuit.other basekv=13.8")

	nameA, err := a.Circuit.Name()
	if err != nil || nameA != "demo" {
		t.Fatalf("a circuit = %q, %v", nameA, err)
	}
	nameB, err := b.Circuit.Name()
	if err != nil || nameB != "other" {
		t.Fatalf("b circuit = %q, %v", nameB, err)
	}

	countA, err := a.Loads.Count()
	if err != nil || countA != 2 {
		t.Fatalf("a loads = %d, %v", countA, err)
	}
	countB, err := b.Loads.Count()
	if err != nil || countB != 0 {
		t.Fatalf("b loads = %d, %v", countB, err)
	}

	// Closing b leaves a fully usable.
	if err := b.Close(); err != nil {
		t.Fatalf("close b: %v", err)
	}
	power, err := a.Circuit.TotalPower()
	if err != nil {
		t.Fatalf("a power after closing b: %v", err)
	}
	if real(power) != -1020 {
		t.Fatalf("a power = %v, want -1020 kW", real(power))
	}
}

func TestSweep_ParallelActors(t *testing.T) {
	rt := openRuntime(t)

	mults := []float64{0.5, 0.75, 1.0, 1.25, 1.5}
	delivered := make([]float64, len(mults))
	errs := make([]error, len(mults))

	var wg sync.WaitGroup
	for i, mult := range mults {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delivered[i], errs[i] = solveAt(rt, mult)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("sweep %.2f: %v", mults[i], err)
		}
	}
	for i, mult := range mults {
		want := 1020 * mult
		if math.Abs(delivered[i]-want) > 1e-9 {
			t.Errorf("delivered at %.2f = %v, want %v", mult, delivered[i], want)
		}
	}
	if n := rt.LiveEngines(); n != 0 {
		t.Fatalf("live engines after sweep = %d", n)
	}
}

// solveAt runs the feeder at one load multiplier on its own actor.
func solveAt(rt *runtime.Runtime, mult float64) (float64, error) {
	eng, err := rt.NewEngine()
	if err != nil {
		return 0, err
	}
	defer eng.Close()

	for _, line := range feeder {
		if err := eng.Text.Command(line); err != nil {
			return 0, err
		}
	}
	if err := eng.Solution.SetLoadMult(mult); err != nil {
		return 0, err
	}
	if err := eng.Solution.Solve(); err != nil {
		return 0, err
	}
	power, err := eng.Circuit.TotalPower()
	if err != nil {
		return 0, err
	}
	return -real(power), nil
}

func TestLifecycle_Misuse(t *testing.T) {
	rt := openRuntime(t)

	// The prime engine belongs to the session and refuses to close.
	if err := rt.Prime().Close(); !errors.IsLifecycle(err) {
		t.Fatalf("prime close = %v, want lifecycle error", err)
	}
	if _, err := rt.Prime().Version(); err != nil {
		t.Fatalf("prime unusable after refused close: %v", err)
	}

	eng, err := rt.NewEngine()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := eng.Close(); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDoubleDispose}) {
		t.Fatalf("second close = %v, want double dispose", err)
	}
	if _, err := eng.Version(); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDisposed}) {
		t.Fatalf("call after close = %v, want disposed", err)
	}
}

func TestStrings_RoundTrip(t *testing.T) {
	rt := openRuntime(t)
	eng := rt.Prime()

	build(t, eng, feeder...)

	// The engine lowercases object names, so a lowercase unicode name
	// survives both directions of the string marshaling unchanged.
	name := "løad_ω"
	build(t, eng, fmt.Sprintf("new load.%s bus1=end.2 phases=1 kv=2.4 kw=10 kvar=2", name))

	names, err := eng.Loads.AllNames()
	if err != nil {
		t.Fatalf("all names: %v", err)
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("AllNames = %v, want %q present", names, name)
	}

	if err := eng.Loads.SetName(name); err != nil {
		t.Fatalf("set name: %v", err)
	}
	got, err := eng.Loads.Name()
	if err != nil || got != name {
		t.Fatalf("Name = %q, %v", got, err)
	}
}

func TestErrors_ClearOnce(t *testing.T) {
	rt := openRuntime(t)
	eng := rt.Prime()

	err := eng.Text.Command("definitely not a command")
	var ee *errors.Error
	if !stderrors.As(err, &ee) {
		t.Fatalf("err = %T, want *errors.Error", err)
	}
	if ee.Code != 212 {
		t.Fatalf("engine code = %d, want 212", ee.Code)
	}

	// Reading the failure cleared it; the next call starts clean.
	if _, err := eng.Version(); err != nil {
		t.Fatalf("call after engine error: %v", err)
	}
}

func TestMonitors_ByteStream(t *testing.T) {
	rt := openRuntime(t)
	eng := rt.Prime()

	build(t, eng, feeder...)
	if err := eng.Solution.SetMode(opendss.SolveDaily); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := eng.Solution.SetNumber(4); err != nil {
		t.Fatalf("set number: %v", err)
	}
	if err := eng.Solution.SetStepsizeMin(60); err != nil {
		t.Fatalf("set stepsize: %v", err)
	}
	if err := eng.Solution.Solve(); err != nil {
		t.Fatalf("solve: %v", err)
	}

	if _, err := eng.Monitors.First(); err != nil {
		t.Fatalf("monitors first: %v", err)
	}
	stream, err := eng.Monitors.ByteStream()
	if err != nil {
		t.Fatalf("byte stream: %v", err)
	}

	// Header: signature, version, mode, sample count as LE uint32, then
	// one (hour, sec, ch1, ch2) float32 record per sample.
	if len(stream) != 16+4*16 {
		t.Fatalf("stream length = %d, want %d", len(stream), 16+4*16)
	}
	if sig := binary.LittleEndian.Uint32(stream[0:4]); sig != 43756 {
		t.Fatalf("signature = %d, want 43756", sig)
	}
	if ver := binary.LittleEndian.Uint32(stream[4:8]); ver != 1 {
		t.Fatalf("version = %d, want 1", ver)
	}
	if samples := binary.LittleEndian.Uint32(stream[12:16]); samples != 4 {
		t.Fatalf("samples = %d, want 4", samples)
	}

	for s := 0; s < 4; s++ {
		rec := stream[16+s*16:]
		hour := math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4]))
		ch1 := math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))
		ch2 := math.Float32frombits(binary.LittleEndian.Uint32(rec[12:16]))
		if hour != float32(s) {
			t.Errorf("record %d hour = %v, want %d", s, hour, s)
		}
		if want := float32(104 + 0.25*float64(s)); ch1 != want {
			t.Errorf("record %d ch1 = %v, want %v", s, ch1, want)
		}
		if want := float32(204 + 0.25*float64(s)); ch2 != want {
			t.Errorf("record %d ch2 = %v, want %v", s, ch2, want)
		}
	}

	// The channel decoder sees the same values the stream carries.
	ch1, err := eng.Monitors.Channel(1)
	if err != nil {
		t.Fatalf("channel 1: %v", err)
	}
	if len(ch1) != 4 || ch1[0] != 104 {
		t.Fatalf("channel 1 = %v, want 4 samples starting at 104", ch1)
	}
}
