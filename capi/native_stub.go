//go:build !(linux || darwin || freebsd)

package capi

import (
	dssruntime "github.com/wippyai/dss-runtime"
	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/errors"
)

// Library is unavailable on this platform; use the WASM backend instead.
type Library struct{}

var _ engine.API = (*Library)(nil)

// DefaultLibName returns the conventional engine library file name.
func DefaultLibName() string { return "libdss_capi.so" }

// Open fails: native loading needs dlopen.
func Open(path string) (*Library, error) {
	return nil, errors.Unsupported("native engine loading requires linux, darwin, or freebsd")
}

func (*Library) Func(string, engine.Shape) (engine.NativeFunc, error) {
	return nil, errors.Unsupported("native engine loading is unavailable on this platform")
}

func (*Library) Memory() dssruntime.Memory       { return nil }
func (*Library) Allocator() dssruntime.Allocator { return nil }
func (*Library) Close() error                    { return nil }
