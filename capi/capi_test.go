//go:build linux || darwin || freebsd

package capi

import (
	"strings"
	"testing"

	"github.com/wippyai/dss-runtime/engine"
)

func TestShapeKey(t *testing.T) {
	cases := []struct {
		shape engine.Shape
		want  string
	}{
		{engine.Sig(engine.KindAddr), "a;"},
		{engine.Sig(engine.KindVoid, engine.KindAddr), "v;a"},
		{engine.Sig(engine.KindVoid, engine.KindAddr, engine.KindI32), "v;ai"},
		{engine.Sig(engine.KindVoid, engine.KindAddr, engine.KindF64), "v;af"},
		{engine.Sig(engine.KindBool, engine.KindAddr, engine.KindI32), "b;ai"},
		{engine.Sig(engine.KindF64, engine.KindAddr), "f;a"},
		{engine.Sig(engine.KindI32, engine.KindAddr, engine.KindAddr), "i;aa"},
		{engine.Sig(engine.KindVoid,
			engine.KindAddr, engine.KindAddr, engine.KindAddr), "v;aaa"},
	}
	for _, tc := range cases {
		if got := shapeKey(tc.shape); got != tc.want {
			t.Errorf("shapeKey(%s) = %q, want %q", tc.shape, got, tc.want)
		}
	}
}

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open("/nonexistent/libdss_capi_missing.so")
	if err == nil {
		t.Fatal("opening a missing library must fail")
	}
	if !strings.Contains(err.Error(), "libdss_capi_missing") {
		t.Errorf("error should name the library: %v", err)
	}
}

func TestDefaultLibName(t *testing.T) {
	name := DefaultLibName()
	if !strings.HasPrefix(name, "libdss_capi") {
		t.Errorf("unexpected default name %q", name)
	}
}
