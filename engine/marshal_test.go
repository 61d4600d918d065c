package engine_test

import (
	"encoding/binary"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/errors"
)

func TestScalarPrimitives(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	version, err := ctx.CallString(opVersion)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(version, "Simulated Engine") {
		t.Errorf("version = %q", version)
	}

	name, err := ctx.CallString(opCircuitName)
	if err != nil {
		t.Fatal(err)
	}
	if name != "demo" {
		t.Errorf("circuit name = %q, want demo", name)
	}

	n, err := ctx.CallI32(opNumCircuits)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("NumCircuits = %d, want 1", n)
	}

	converged, err := ctx.CallBool(opConverged)
	if err != nil {
		t.Fatal(err)
	}
	if !converged {
		t.Error("solved circuit should report converged")
	}

	mult, err := ctx.CallF64(opGetLoadMult)
	if err != nil {
		t.Fatal(err)
	}
	if mult != 1.0 {
		t.Errorf("loadmult = %v, want 1.0", mult)
	}
}

func TestFloatBufferSnapshot(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	mags, err := ctx.CallFloats(opVmagPu)
	if err != nil {
		t.Fatal(err)
	}
	if len(mags) != 9 {
		t.Fatalf("got %d magnitudes, want one per node (9)", len(mags))
	}
	for i, m := range mags {
		if m <= 0 || m > 1.2 {
			t.Errorf("mag[%d] = %v outside plausible per-unit range", i, m)
		}
	}

	// The returned slice is a copy: later calls on the same context must not
	// rewrite it.
	saved := append([]float64(nil), mags...)
	build(t, ctx, "set loadmult=1.5", "solve")
	again, err := ctx.CallFloats(opVmagPu)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(mags, saved) {
		t.Error("earlier snapshot mutated by a later call")
	}
	if reflect.DeepEqual(again, saved) {
		t.Error("heavier load should change the solution")
	}
}

func TestFloatBufferEmpty(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	if _, err := ctx.CallI32(opLoadsFirst); err != nil {
		t.Fatal(err)
	}
	vals, err := ctx.CallFloats(opZIPVGet)
	if err != nil {
		t.Fatal(err)
	}
	if vals != nil {
		t.Errorf("load without zipv should yield nil, got %v", vals)
	}
}

func TestFloatsRoundTrip(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	if _, err := ctx.CallI32(opLoadsFirst); err != nil {
		t.Fatal(err)
	}
	want := []float64{0.7, 0.2, 0.1, 0.8, 0.15, 0.05, 0.95}
	if err := ctx.CallVoid(opZIPVSet, engine.Floats(want)); err != nil {
		t.Fatal(err)
	}
	got, err := ctx.CallFloats(opZIPVGet)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("zipv round trip = %v, want %v", got, want)
	}
}

func TestIntBuffer(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	idx, err := ctx.CallI32(opActiveBus, engine.Str("end"))
	if err != nil {
		t.Fatal(err)
	}
	if idx < 0 {
		t.Fatalf("bus end not found, index %d", idx)
	}
	nodes, err := ctx.CallInts(opBusNodes)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(nodes, []int32{1, 2, 3}) {
		t.Errorf("nodes = %v, want [1 2 3]", nodes)
	}
}

func TestComplexScalar(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	p, err := ctx.CallComplex(opTotalPower)
	if err != nil {
		t.Fatal(err)
	}
	// Source convention: delivered power is negative.
	if real(p) >= 0 {
		t.Errorf("total power = %v, want negative real part", p)
	}
}

func TestComplexPairs(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	volts, err := ctx.CallComplexes(opAllBusVolts)
	if err != nil {
		t.Fatal(err)
	}
	if len(volts) != 9 {
		t.Fatalf("got %d voltages, want 9", len(volts))
	}
	for i, v := range volts {
		if v == 0 {
			t.Errorf("volts[%d] is zero after solve", i)
		}
	}
}

func TestComplexEmptyMarker(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, false) // not solved: winding voltages are empty

	n, err := ctx.CallI32(opXfmrFirst)
	if err != nil || n != 1 {
		t.Fatalf("Transformers.First = %d, %v", n, err)
	}
	vals, err := ctx.CallComplexes(opWdgVoltages)
	if err != nil {
		t.Fatalf("the count==1 empty marker must decode cleanly, got %v", err)
	}
	if vals != nil {
		t.Errorf("want no values, got %v", vals)
	}
}

func TestComplexOddCountRejected(t *testing.T) {
	ctx, eng := open(t)
	eng.Register("test_Complexes_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		ctl.SetFloats(args[0], []float64{1, 2, 3})
		return 0, nil
	})
	op := engine.Op{Name: "test.Complexes", Symbol: "test_Complexes_GR"}

	_, err := ctx.CallComplexes(op)
	if err == nil {
		t.Fatal("odd float count (other than 1) must fail complex decode")
	}
	if !errors.IsMarshaling(err) {
		t.Errorf("want marshaling error, got %v", err)
	}
	want := &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindBadCount}
	if !stderrors.Is(err, want) {
		t.Errorf("want bad_count, got %v", err)
	}
}

func TestComplexScalarRejectsWrongCount(t *testing.T) {
	ctx, eng := open(t)
	eng.Register("test_Scalar_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		// The empty marker: valid for arrays, not for a scalar complex.
		ctl.SetFloats(args[0], []float64{0})
		return 0, nil
	})
	op := engine.Op{Name: "test.Scalar", Symbol: "test_Scalar_GR"}

	_, err := ctx.CallComplex(op)
	if err == nil {
		t.Fatal("scalar complex needs exactly two floats")
	}
	want := &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindBadCount}
	if !stderrors.Is(err, want) {
		t.Errorf("want bad_count, got %v", err)
	}
}

func TestNegativeCountRejected(t *testing.T) {
	ctx, eng := open(t)
	eng.Register("test_Negative_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		ctl.SetRawFloatBuffer(args[0], -3, 0x2000)
		return 0, nil
	})
	op := engine.Op{Name: "test.Negative", Symbol: "test_Negative_GR"}

	_, err := ctx.CallFloats(op)
	if err == nil {
		t.Fatal("negative count must fail decode")
	}
	if !errors.IsMarshaling(err) {
		t.Errorf("want marshaling error, got %v", err)
	}
}

func TestNullDataWithCountRejected(t *testing.T) {
	ctx, eng := open(t)
	eng.Register("test_NullData_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		ctl.SetRawFloatBuffer(args[0], 4, 0)
		return 0, nil
	})
	op := engine.Op{Name: "test.NullData", Symbol: "test_NullData_GR"}

	_, err := ctx.CallFloats(op)
	if err == nil {
		t.Fatal("null data with a positive count must fail decode")
	}
	want := &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindNilPointer}
	if !stderrors.Is(err, want) {
		t.Errorf("want nil_pointer, got %v", err)
	}
}

func TestByteBuffer(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)
	build(t, ctx, "solve")

	n, err := ctx.CallI32(opMonFirst)
	if err != nil || n != 1 {
		t.Fatalf("Monitors.First = %d, %v", n, err)
	}
	raw, err := ctx.CallBytes(opMonStream)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 16 {
		t.Fatalf("stream too short: %d bytes", len(raw))
	}
	if sig := binary.LittleEndian.Uint32(raw); sig != 43756 {
		t.Errorf("stream signature = %d", sig)
	}
	if samples := binary.LittleEndian.Uint32(raw[12:]); samples != 2 {
		t.Errorf("stream reports %d samples, want 2", samples)
	}
}

func TestStringArrayOut(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	names, err := ctx.CallStrings(opNodeNames)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 9 {
		t.Fatalf("got %d node names, want 9", len(names))
	}
	if names[0] != "sourcebus.1" {
		t.Errorf("first node = %q, want sourcebus.1", names[0])
	}

	regs, err := ctx.CallStrings(opRegNames)
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 12 || regs[0] != "kWh" {
		t.Errorf("register names = %v", regs)
	}
}

func TestStringArrayEmpty(t *testing.T) {
	ctx, _ := open(t)
	build(t, ctx, "clear", "new circuit.empty")

	names, err := ctx.CallStrings(opLoadsNames)
	if err != nil {
		t.Fatal(err)
	}
	if names != nil {
		t.Errorf("no loads should yield nil, got %v", names)
	}
}

func TestStringArrayRoundTrip(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, true)

	if n, err := ctx.CallI32(opFusesFirst); err != nil || n != 1 {
		t.Fatalf("Fuses.First = %d, %v", n, err)
	}
	want := []string{"open", "closed", "open"}
	if err := ctx.CallVoid(opFuseStateS, engine.Strs(want)); err != nil {
		t.Fatal(err)
	}
	got, err := ctx.CallStrings(opFuseStateG)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("state round trip = %v, want %v", got, want)
	}
}

func TestEnumArrayDecode(t *testing.T) {
	type coreKind int32
	decode := func(v int32) (coreKind, error) {
		switch v {
		case 0, 1, 3, 4, 5, 9:
			return coreKind(v), nil
		}
		return 0, errors.InvalidEnum("test.Enums", v, "coreKind")
	}

	ctx, eng := open(t)
	eng.Register("test_Enums_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		ctl.SetInts(args[0], []int32{0, 3, 9})
		return 0, nil
	})
	op := engine.Op{Name: "test.Enums", Symbol: "test_Enums_GR"}

	got, err := engine.Enums(ctx, op, decode)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []coreKind{0, 3, 9}) {
		t.Errorf("enums = %v", got)
	}

	eng.Register("test_Enums_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		ctl.SetInts(args[0], []int32{0, 7})
		return 0, nil
	})
	_, err = engine.Enums(ctx, op, decode)
	if err == nil {
		t.Fatal("unknown discriminant must fail the whole decode")
	}
	want := &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidEnum}
	if !stderrors.Is(err, want) {
		t.Errorf("want invalid_enum, got %v", err)
	}
}

func TestUnknownSymbolSurfacesAtCall(t *testing.T) {
	ctx, _ := open(t)
	op := engine.Op{Name: "test.Missing", Symbol: "ctx_No_Such_Symbol"}
	_, err := ctx.CallI32(op)
	if err == nil {
		t.Fatal("unresolvable symbol must fail")
	}
	if !strings.Contains(err.Error(), "ctx_No_Such_Symbol") {
		t.Errorf("error should name the symbol: %v", err)
	}
}

func TestScratchReleasedAfterCalls(t *testing.T) {
	ctx, eng := open(t)
	buildDemo(t, ctx, true)

	// Text in, float array in, text array in, and a failing command: every
	// path must release its engine-side scratch.
	_ = ctx.CallVoid(opCommand, engine.Str("frobnicate"))
	if _, err := ctx.CallI32(opLoadsFirst); err != nil {
		t.Fatal(err)
	}
	if err := ctx.CallVoid(opZIPVSet, engine.Floats([]float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	if n, err := ctx.CallI32(opFusesFirst); err != nil || n != 1 {
		t.Fatal(err)
	}
	if err := ctx.CallVoid(opFuseStateS, engine.Strs([]string{"open", "open", "open"})); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.CallStrings(opNodeNames); err != nil {
		t.Fatal(err)
	}

	if got := eng.OutstandingAllocs(); got != 0 {
		t.Errorf("%d scratch allocations outstanding, want 0", got)
	}
}
