package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/opendss"
)

// Engine is one engine context under runtime management, with the typed
// operation surface embedded: eng.Text, eng.Circuit, eng.Solution and the
// rest of the families are used directly.
//
// An Engine follows the context threading rule: one goroutine at a time.
// Wrap Context() in engine.NewSynchronized to share one across goroutines.
type Engine struct {
	rt  *Runtime
	ctx *engine.Context
	*opendss.DSS
}

// Context exposes the underlying engine context.
func (e *Engine) Context() *engine.Context { return e.ctx }

// Token identifies the engine's context inside the native engine.
func (e *Engine) Token() engine.Token { return e.ctx.Token() }

// Close disposes the engine's context and removes it from the runtime's
// registry. Closing twice or closing the prime engine fails without
// touching the native side.
func (e *Engine) Close() error {
	if err := e.ctx.Dispose(); err != nil {
		return err
	}
	e.rt.actors.remove(e.ctx.Token())
	Logger().Debug("engine closed", zap.Uint64("token", uint64(e.ctx.Token())))
	return nil
}
