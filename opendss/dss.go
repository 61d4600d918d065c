package opendss

import (
	"github.com/wippyai/dss-runtime/engine"
)

// DSS is the typed operation surface over one engine context. Each field
// groups the operations of one engine family; all of them route through the
// same context, so the usual context rules apply: one goroutine at a time,
// results copied out, engine errors surfaced per call.
type DSS struct {
	ctx *engine.Context

	Text         Text
	Circuit      Circuit
	Solution     Solution
	Bus          Bus
	CktElement   CktElement
	Loads        Loads
	Meters       Meters
	Monitors     Monitors
	Transformers Transformers
	Fuses        Fuses
	Settings     Settings
}

// New wraps an engine context in the typed surface.
func New(ctx *engine.Context) *DSS {
	return &DSS{
		ctx:          ctx,
		Text:         Text{ctx},
		Circuit:      Circuit{ctx},
		Solution:     Solution{ctx},
		Bus:          Bus{ctx},
		CktElement:   CktElement{ctx},
		Loads:        Loads{ctx},
		Meters:       Meters{ctx},
		Monitors:     Monitors{ctx},
		Transformers: Transformers{ctx},
		Fuses:        Fuses{ctx},
		Settings:     Settings{ctx},
	}
}

// Context exposes the underlying engine context, for lifecycle calls and for
// wrapping in Synchronized.
func (d *DSS) Context() *engine.Context { return d.ctx }

var (
	opVersion        = engine.Op{Name: "DSS.Version", Symbol: "ctx_DSS_Get_Version"}
	opNumCircuits    = engine.Op{Name: "DSS.NumCircuits", Symbol: "ctx_DSS_Get_NumCircuits"}
	opClearAll       = engine.Op{Name: "DSS.ClearAll", Symbol: "ctx_DSS_ClearAll"}
	opAllowChangeDir = engine.Op{Name: "DSS.AllowChangeDir", Symbol: "ctx_DSS_Get_AllowChangeDir"}
	opSetChangeDir   = engine.Op{Name: "DSS.AllowChangeDir", Symbol: "ctx_DSS_Set_AllowChangeDir"}
)

// Version reports the engine build string.
func (d *DSS) Version() (string, error) {
	return d.ctx.CallString(opVersion)
}

// NumCircuits reports how many circuits the context holds.
func (d *DSS) NumCircuits() (int32, error) {
	return d.ctx.CallI32(opNumCircuits)
}

// ClearAll removes every circuit from the context.
func (d *DSS) ClearAll() error {
	return d.ctx.CallVoid(opClearAll)
}

// AllowChangeDir reports whether script commands may change the working
// directory.
func (d *DSS) AllowChangeDir() (bool, error) {
	return d.ctx.CallBool(opAllowChangeDir)
}

// SetAllowChangeDir controls whether script commands may change the working
// directory.
func (d *DSS) SetAllowChangeDir(allow bool) error {
	return d.ctx.CallVoid(opSetChangeDir, engine.Bool(allow))
}

// Text runs command-language scripts.
type Text struct {
	ctx *engine.Context
}

var (
	opTextCommand  = engine.Op{Name: "Text.Command", Symbol: "ctx_Text_Set_Command"}
	opTextResult   = engine.Op{Name: "Text.Result", Symbol: "ctx_Text_Get_Result"}
	opTextBlock    = engine.Op{Name: "Text.CommandBlock", Symbol: "ctx_Text_CommandBlock"}
	opTextCommands = engine.Op{Name: "Text.CommandArray", Symbol: "ctx_Text_CommandArray"}
)

// Command runs one command line.
func (t Text) Command(cmd string) error {
	return t.ctx.CallVoid(opTextCommand, engine.Str(cmd))
}

// Result returns the text output of the most recent command.
func (t Text) Result() (string, error) {
	return t.ctx.CallString(opTextResult)
}

// CommandBlock runs a newline-separated script, stopping at the first
// failing line.
func (t Text) CommandBlock(script string) error {
	return t.ctx.CallVoid(opTextBlock, engine.Str(script))
}

// Commands runs each line in order, stopping at the first failing line.
func (t Text) Commands(lines []string) error {
	return t.ctx.CallVoid(opTextCommands, engine.Strs(lines))
}
