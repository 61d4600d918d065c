package engine_test

import (
	stderrors "errors"
	"math"
	"sync"
	"testing"

	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/errors"
)

// Operations used by the tests, bound to the simulated engine's symbols.
var (
	opCommand     = engine.Op{Name: "Text.Command", Symbol: "ctx_Text_Set_Command"}
	opNumCircuits = engine.Op{Name: "DSS.NumCircuits", Symbol: "ctx_DSS_Get_NumCircuits"}
	opVersion     = engine.Op{Name: "DSS.Version", Symbol: "ctx_DSS_Get_Version"}
	opCircuitName = engine.Op{Name: "Circuit.Name", Symbol: "ctx_Circuit_Get_Name"}
	opConverged   = engine.Op{Name: "Solution.Converged", Symbol: "ctx_Solution_Get_Converged"}
	opGetLoadMult = engine.Op{Name: "Solution.LoadMult", Symbol: "ctx_Solution_Get_LoadMult"}
	opSetLoadMult = engine.Op{Name: "Solution.LoadMult", Symbol: "ctx_Solution_Set_LoadMult"}
	opVmagPu      = engine.Op{Name: "Circuit.AllBusVmagPu", Symbol: "ctx_Circuit_Get_AllBusVmagPu_GR"}
	opAllBusVolts = engine.Op{Name: "Circuit.AllBusVolts", Symbol: "ctx_Circuit_Get_AllBusVolts_GR"}
	opTotalPower  = engine.Op{Name: "Circuit.TotalPower", Symbol: "ctx_Circuit_Get_TotalPower_GR"}
	opNodeNames   = engine.Op{Name: "Circuit.AllNodeNames", Symbol: "ctx_Circuit_Get_AllNodeNames"}
	opActiveBus   = engine.Op{Name: "Circuit.SetActiveBus", Symbol: "ctx_Circuit_SetActiveBus"}
	opBusNodes    = engine.Op{Name: "Bus.Nodes", Symbol: "ctx_Bus_Get_Nodes_GR"}
	opLoadsFirst  = engine.Op{Name: "Loads.First", Symbol: "ctx_Loads_Get_First"}
	opLoadsNames  = engine.Op{Name: "Loads.AllNames", Symbol: "ctx_Loads_Get_AllNames"}
	opZIPVGet     = engine.Op{Name: "Loads.ZIPV", Symbol: "ctx_Loads_Get_ZIPV_GR"}
	opZIPVSet     = engine.Op{Name: "Loads.ZIPV", Symbol: "ctx_Loads_Set_ZIPV"}
	opXfmrFirst   = engine.Op{Name: "Transformers.First", Symbol: "ctx_Transformers_Get_First"}
	opWdgVoltages = engine.Op{Name: "Transformers.WdgVoltages", Symbol: "ctx_Transformers_Get_WdgVoltages_GR"}
	opFusesFirst  = engine.Op{Name: "Fuses.First", Symbol: "ctx_Fuses_Get_First"}
	opFuseStateG  = engine.Op{Name: "Fuses.State", Symbol: "ctx_Fuses_Get_State"}
	opFuseStateS  = engine.Op{Name: "Fuses.State", Symbol: "ctx_Fuses_Set_State"}
	opMonFirst    = engine.Op{Name: "Monitors.First", Symbol: "ctx_Monitors_Get_First"}
	opMonStream   = engine.Op{Name: "Monitors.ByteStream", Symbol: "ctx_Monitors_Get_ByteStream_GR"}
	opRegNames    = engine.Op{Name: "Meters.RegisterNames", Symbol: "ctx_Meters_Get_RegisterNames"}
)

var demoScript = []string{
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
}

// open loads a fresh simulated engine and wraps its prime context.
func open(t *testing.T) (*engine.Context, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	t.Cleanup(func() { _ = eng.Close() })
	ctx, err := engine.Prime(eng)
	if err != nil {
		t.Fatalf("Prime: %v", err)
	}
	return ctx, eng
}

func build(t *testing.T, ctx *engine.Context, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := ctx.CallVoid(opCommand, engine.Str(line)); err != nil {
			t.Fatalf("command %q: %v", line, err)
		}
	}
}

func buildDemo(t *testing.T, ctx *engine.Context, solve bool) {
	t.Helper()
	build(t, ctx, demoScript...)
	if solve {
		build(t, ctx, "solve")
	}
}

func TestPrimeContext(t *testing.T) {
	ctx, eng := open(t)
	if !ctx.IsPrime() {
		t.Error("prime context should report IsPrime")
	}
	if !ctx.Active() {
		t.Error("prime context should be active")
	}
	if got := ctx.Token(); got != engine.Token(eng.PrimeToken()) {
		t.Errorf("token = %#x, want engine prime %#x", got, eng.PrimeToken())
	}
}

func TestPrimeDisposeRejected(t *testing.T) {
	ctx, _ := open(t)
	err := ctx.Dispose()
	if err == nil {
		t.Fatal("disposing the prime context must fail")
	}
	if !errors.IsLifecycle(err) {
		t.Errorf("want lifecycle error, got %v", err)
	}
	want := &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindPrimeDispose}
	if !stderrors.Is(err, want) {
		t.Errorf("want prime_dispose, got %v", err)
	}
	// The rejection must leave the context fully usable.
	if !ctx.Active() {
		t.Error("prime context should stay active")
	}
	if _, err := ctx.CallString(opVersion); err != nil {
		t.Errorf("prime context unusable after rejected dispose: %v", err)
	}
}

func TestChildContextsAreIsolated(t *testing.T) {
	prime, _ := open(t)
	buildDemo(t, prime, true)

	child, err := prime.NewChild()
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	defer func() { _ = child.Dispose() }()

	if child.IsPrime() {
		t.Error("child must not report IsPrime")
	}
	if child.Token() == prime.Token() {
		t.Error("child should have its own token")
	}
	n, err := child.CallI32(opNumCircuits)
	if err != nil {
		t.Fatalf("child NumCircuits: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh child sees %d circuits, want 0", n)
	}
	n, err = prime.CallI32(opNumCircuits)
	if err != nil {
		t.Fatalf("prime NumCircuits: %v", err)
	}
	if n != 1 {
		t.Errorf("prime sees %d circuits, want 1", n)
	}

	// The child builds its own circuit without touching the prime's.
	build(t, child, "new circuit.childckt")
	name, err := prime.CallString(opCircuitName)
	if err != nil {
		t.Fatal(err)
	}
	if name != "demo" {
		t.Errorf("prime circuit renamed to %q", name)
	}
}

func TestDisposeExactlyOnce(t *testing.T) {
	prime, _ := open(t)
	child, err := prime.NewChild()
	if err != nil {
		t.Fatal(err)
	}

	if err := child.Dispose(); err != nil {
		t.Fatalf("first dispose: %v", err)
	}
	if child.Active() {
		t.Error("disposed context still reports active")
	}

	err = child.Dispose()
	if err == nil {
		t.Fatal("second dispose must fail")
	}
	want := &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDoubleDispose}
	if !stderrors.Is(err, want) {
		t.Errorf("want double_dispose, got %v", err)
	}
}

func TestDisposedContextRejectsOperations(t *testing.T) {
	prime, _ := open(t)
	child, err := prime.NewChild()
	if err != nil {
		t.Fatal(err)
	}
	if err := child.Dispose(); err != nil {
		t.Fatal(err)
	}

	_, err = child.CallString(opVersion)
	if err == nil {
		t.Fatal("operation on a disposed context must fail")
	}
	want := &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDisposed}
	if !stderrors.Is(err, want) {
		t.Errorf("want disposed, got %v", err)
	}

	if _, err := child.NewChild(); err == nil {
		t.Error("NewChild through a disposed context must fail")
	}
}

func TestEngineErrorObservableExactlyOnce(t *testing.T) {
	ctx, _ := open(t)

	err := ctx.CallVoid(opCommand, engine.Str("frobnicate everything"))
	if err == nil {
		t.Fatal("unknown command should surface an engine error")
	}
	if !errors.IsEngineReported(err) {
		t.Fatalf("want engine-reported error, got %v", err)
	}
	var ee *errors.Error
	if !stderrors.As(err, &ee) {
		t.Fatal("expected a structured error")
	}
	if ee.Code != enginetest.CodeUnknownCommand {
		t.Errorf("code = %d, want %d", ee.Code, enginetest.CodeUnknownCommand)
	}
	if ee.Detail == "" {
		t.Error("engine description should be captured before the flag clears")
	}

	// Consumed once: the next operation and a manual check are both clean.
	if _, err := ctx.CallI32(opNumCircuits); err != nil {
		t.Errorf("flag should be clear after one observation, got %v", err)
	}
	if err := ctx.Check(); err != nil {
		t.Errorf("manual check after consumption: %v", err)
	}
}

func TestContextCreationStartRejected(t *testing.T) {
	eng := enginetest.New()
	eng.Register("ctx_DSS_Start", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		return engine.EncodeBool(false), nil
	})
	_, err := engine.Prime(eng)
	if err == nil {
		t.Fatal("rejected start call must fail context creation")
	}
	if !errors.IsContextCreation(err) {
		t.Errorf("want context creation error, got %v", err)
	}
}

func TestContextCreationNullRegistrationSlot(t *testing.T) {
	eng := enginetest.New()
	// A registration that never fills its out-parameters leaves every slot
	// null, which must be rejected rather than dereferenced later.
	eng.Register("ctx_DSS_GetGRPointers", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
		return 0, nil
	})
	_, err := engine.Prime(eng)
	if err == nil {
		t.Fatal("null registration slots must fail context creation")
	}
	if !errors.IsContextCreation(err) {
		t.Errorf("want context creation error, got %v", err)
	}
}

func TestSynchronizedSerializesAccess(t *testing.T) {
	ctx, _ := open(t)
	buildDemo(t, ctx, false)

	shared := engine.NewSynchronized(ctx)
	const workers, rounds = 16, 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				err := shared.Do(func(c *engine.Context) error {
					v, err := c.CallF64(opGetLoadMult)
					if err != nil {
						return err
					}
					return c.CallVoid(opSetLoadMult, engine.F64(v+0.01))
				})
				if err != nil {
					t.Errorf("Do: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := ctx.CallF64(opGetLoadMult)
	if err != nil {
		t.Fatal(err)
	}
	want := 1.0 + float64(workers*rounds)*0.01
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("loadmult = %v, want %v: read-modify-write interleaved", got, want)
	}
}
