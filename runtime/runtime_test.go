package runtime_test

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/errors"
	"github.com/wippyai/dss-runtime/runtime"
)

func openRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{API: enginetest.New()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenNeedsExactlyOneSource(t *testing.T) {
	if _, err := runtime.Open(runtime.Options{}); err == nil {
		t.Error("Open with no source must fail")
	}
	_, err := runtime.Open(runtime.Options{
		LibPath: "libdss_capi.so",
		API:     enginetest.New(),
	})
	if err == nil {
		t.Error("Open with two sources must fail")
	}
	var ee *errors.Error
	if !stderrors.As(err, &ee) || ee.Kind != errors.KindInvalidInput {
		t.Errorf("want invalid_input, got %v", err)
	}
}

func TestPrimeEngineWorksAndRefusesClose(t *testing.T) {
	rt := openRuntime(t)
	dss := rt.Prime()

	ver, err := dss.Version()
	if err != nil || ver == "" {
		t.Fatalf("Version = %q, %v", ver, err)
	}
	if err := dss.Text.Command("new circuit.prime"); err != nil {
		t.Fatalf("command: %v", err)
	}

	err = dss.Close()
	if err == nil {
		t.Fatal("closing the prime engine must fail")
	}
	if !errors.IsLifecycle(err) {
		t.Errorf("want lifecycle error, got %v", err)
	}
	// Still usable afterwards.
	if n, _ := dss.NumCircuits(); n != 1 {
		t.Errorf("NumCircuits = %d, want 1", n)
	}
}

func TestActorsAreIsolated(t *testing.T) {
	rt := openRuntime(t)

	a, err := rt.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	b, err := rt.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if a.Token() == b.Token() {
		t.Fatal("actors must have distinct tokens")
	}

	if err := a.Text.Command("new circuit.alpha"); err != nil {
		t.Fatal(err)
	}
	if n, _ := b.NumCircuits(); n != 0 {
		t.Errorf("actor b sees %d circuits, want 0", n)
	}
	if name, _ := a.Circuit.Name(); name != "alpha" {
		t.Errorf("actor a circuit = %q, want alpha", name)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close b: %v", err)
	}
}

func TestEngineCloseIsOnce(t *testing.T) {
	rt := openRuntime(t)
	eng, err := rt.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	err = eng.Close()
	if err == nil {
		t.Fatal("second close must fail")
	}
	want := &errors.Error{Phase: errors.PhaseLifecycle, Kind: errors.KindDoubleDispose}
	if !stderrors.Is(err, want) {
		t.Errorf("want double_dispose, got %v", err)
	}
	// A closed engine rejects operations.
	if _, err := eng.Version(); err == nil {
		t.Error("operation on closed engine must fail")
	}
}

func TestRegistryCountsLiveEngines(t *testing.T) {
	rt := openRuntime(t)
	if n := rt.LiveEngines(); n != 0 {
		t.Fatalf("LiveEngines = %d, want 0", n)
	}
	a, _ := rt.NewEngine()
	b, _ := rt.NewEngine()
	if n := rt.LiveEngines(); n != 2 {
		t.Errorf("LiveEngines = %d, want 2", n)
	}
	_ = a.Close()
	if n := rt.LiveEngines(); n != 1 {
		t.Errorf("LiveEngines = %d, want 1", n)
	}
	_ = b.Close()
	if n := rt.LiveEngines(); n != 0 {
		t.Errorf("LiveEngines = %d, want 0", n)
	}
}

func TestCloseReportsLeakedEngines(t *testing.T) {
	rt, err := runtime.Open(runtime.Options{API: enginetest.New()})
	if err != nil {
		t.Fatal(err)
	}
	leaked, err := rt.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	_ = leaked
	// Close drains the registry; the leak is logged, not disposed.
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := rt.LiveEngines(); n != 0 {
		t.Errorf("LiveEngines after close = %d, want 0", n)
	}
	if _, err := rt.NewEngine(); err == nil {
		t.Error("NewEngine after close must fail")
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestConcurrentActorCreation(t *testing.T) {
	rt := openRuntime(t)
	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eng, err := rt.NewEngine()
			if err != nil {
				errs[i] = err
				return
			}
			if err := eng.Text.Command("new circuit.w"); err != nil {
				errs[i] = err
			}
			errs[i] = eng.Close()
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if n := rt.LiveEngines(); n != 0 {
		t.Errorf("LiveEngines = %d, want 0", n)
	}
}
