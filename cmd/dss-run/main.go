package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/enginetest"
	"github.com/wippyai/dss-runtime/runtime"
)

// envConfig supplies backend defaults when no flag selects one.
type envConfig struct {
	LibPath  string `env:"DSS_LIB_PATH"`
	WASMPath string `env:"DSS_WASM_PATH"`
}

func main() {
	var (
		libPath     = flag.String("lib", "", "Path to a native engine shared library")
		wasmFile    = flag.String("wasm", "", "Path to a wasm build of the engine")
		demo        = flag.Bool("demo", false, "Run against the in-memory simulated engine")
		scriptFile  = flag.String("script", "", "Script file to execute")
		command     = flag.String("c", "", "Command to execute after the script")
		show        = flag.String("show", "", "Report to print: voltages or summary")
		plotFile    = flag.String("plot", "", "Write a per-node voltage profile PNG")
		interactive = flag.Bool("i", false, "Interactive console")
		verbose     = flag.Bool("v", false, "Development logging")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engine.SetLogger(logger.Named("engine"))
		runtime.SetLogger(logger.Named("runtime"))
	}

	opts, err := backendOptions(*libPath, *wasmFile, *demo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: dss-run -demo [-script file.dss] [-c command] [-show voltages|summary] [-plot out.png]")
		fmt.Fprintln(os.Stderr, "       dss-run -lib <libdss_capi.so> ...")
		fmt.Fprintln(os.Stderr, "       dss-run -wasm <engine.wasm> ...")
		fmt.Fprintln(os.Stderr, "       dss-run -demo -i  (interactive console)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *scriptFile, *command, *show, *plotFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// backendOptions resolves the engine source. Explicit flags win over the
// DSS_LIB_PATH and DSS_WASM_PATH environment defaults.
func backendOptions(libPath, wasmFile string, demo bool) (runtime.Options, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return runtime.Options{}, fmt.Errorf("parse environment: %w", err)
	}
	if libPath == "" {
		libPath = cfg.LibPath
	}
	if wasmFile == "" {
		wasmFile = cfg.WASMPath
	}

	switch {
	case demo:
		return runtime.Options{API: enginetest.New()}, nil
	case libPath != "":
		return runtime.Options{LibPath: libPath}, nil
	case wasmFile != "":
		data, err := os.ReadFile(wasmFile)
		if err != nil {
			return runtime.Options{}, fmt.Errorf("read wasm: %w", err)
		}
		return runtime.Options{WASM: data}, nil
	default:
		return runtime.Options{}, fmt.Errorf("no engine selected (use -demo, -lib, or -wasm)")
	}
}

func run(opts runtime.Options, scriptFile, command, show, plotFile string) error {
	rt, err := runtime.Open(opts)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer rt.Close()

	eng := rt.Prime()
	version, err := eng.Version()
	if err != nil {
		return err
	}
	fmt.Printf("Engine: %s\n", version)

	if scriptFile != "" {
		data, err := os.ReadFile(scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		if err := eng.Text.CommandBlock(string(data)); err != nil {
			return fmt.Errorf("script %s: %w", scriptFile, err)
		}
		fmt.Printf("Compiled %s\n", scriptFile)
	}

	if command != "" {
		if err := eng.Text.Command(command); err != nil {
			return err
		}
		result, err := eng.Text.Result()
		if err != nil {
			return err
		}
		if result != "" {
			fmt.Println(result)
		}
	}

	switch show {
	case "":
	case "voltages":
		report, err := voltageReport(eng.DSS)
		if err != nil {
			return err
		}
		fmt.Print(report)
	case "summary":
		report, err := summaryReport(eng.DSS)
		if err != nil {
			return err
		}
		fmt.Print(report)
	default:
		return fmt.Errorf("unknown report %q (want voltages or summary)", show)
	}

	if plotFile != "" {
		if err := plotVoltageProfile(eng.DSS, plotFile); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
		fmt.Printf("Wrote %s\n", plotFile)
	}

	return nil
}
