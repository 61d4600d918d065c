package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/runtime"
)

func TestBackendOptionsPrecedence(t *testing.T) {
	t.Setenv("DSS_LIB_PATH", "")
	t.Setenv("DSS_WASM_PATH", "")

	if _, err := backendOptions("", "", false); err == nil {
		t.Fatal("want an error when no source is selected")
	}

	opts, err := backendOptions("", "", true)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	if opts.API == nil {
		t.Fatal("demo should inject a simulated engine")
	}

	t.Setenv("DSS_LIB_PATH", "/opt/dss/libdss_capi.so")
	opts, err = backendOptions("", "", false)
	if err != nil {
		t.Fatalf("env lib: %v", err)
	}
	if opts.LibPath != "/opt/dss/libdss_capi.so" {
		t.Fatalf("LibPath = %q, want the environment default", opts.LibPath)
	}

	opts, err = backendOptions("/explicit/libdss.so", "", false)
	if err != nil {
		t.Fatalf("flag lib: %v", err)
	}
	if opts.LibPath != "/explicit/libdss.so" {
		t.Fatalf("LibPath = %q, want the flag to win over the environment", opts.LibPath)
	}

	opts, err = backendOptions("", "", true)
	if err != nil {
		t.Fatalf("demo with env set: %v", err)
	}
	if opts.API == nil {
		t.Fatal("-demo should win over environment defaults")
	}
}

func TestBackendOptionsReadsWASM(t *testing.T) {
	t.Setenv("DSS_LIB_PATH", "")
	t.Setenv("DSS_WASM_PATH", "")

	path := filepath.Join(t.TempDir(), "engine.wasm")
	if err := os.WriteFile(path, []byte("\x00asm"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := backendOptions("", path, false)
	if err != nil {
		t.Fatalf("wasm flag: %v", err)
	}
	if string(opts.WASM) != "\x00asm" {
		t.Fatalf("WASM = %q, want the file contents", opts.WASM)
	}

	t.Setenv("DSS_WASM_PATH", path)
	opts, err = backendOptions("", "", false)
	if err != nil {
		t.Fatalf("wasm env: %v", err)
	}
	if len(opts.WASM) == 0 {
		t.Fatal("environment wasm path should be read")
	}

	if _, err := backendOptions("", filepath.Join(t.TempDir(), "missing.wasm"), false); err == nil {
		t.Fatal("a missing wasm file should fail")
	}
}

func TestPlotVoltageProfile(t *testing.T) {
	rt, err := runtime.Open(runtime.Options{API: enginetest.New()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	dss := rt.Prime().DSS

	path := filepath.Join(t.TempDir(), "profile.png")
	if err := plotVoltageProfile(dss, path); err == nil {
		t.Fatal("plotting without a circuit should fail")
	}

	for _, line := range append(demoScript, "solve") {
		if err := dss.Text.Command(line); err != nil {
			t.Fatalf("command %q: %v", line, err)
		}
	}
	if err := plotVoltageProfile(dss, path); err != nil {
		t.Fatalf("plot: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("plot wrote an empty file")
	}
}
