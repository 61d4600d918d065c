package opendss

import (
	"github.com/wippyai/dss-runtime/engine"
)

// Circuit reads whole-circuit quantities and drives element activation.
type Circuit struct {
	ctx *engine.Context
}

var (
	opCktName       = engine.Op{Name: "Circuit.Name", Symbol: "ctx_Circuit_Get_Name"}
	opCktNumBuses   = engine.Op{Name: "Circuit.NumBuses", Symbol: "ctx_Circuit_Get_NumBuses"}
	opCktNumNodes   = engine.Op{Name: "Circuit.NumNodes", Symbol: "ctx_Circuit_Get_NumNodes"}
	opCktNumElems   = engine.Op{Name: "Circuit.NumCktElements", Symbol: "ctx_Circuit_Get_NumCktElements"}
	opCktNodeNames  = engine.Op{Name: "Circuit.AllNodeNames", Symbol: "ctx_Circuit_Get_AllNodeNames"}
	opCktVmagPu     = engine.Op{Name: "Circuit.AllBusVmagPu", Symbol: "ctx_Circuit_Get_AllBusVmagPu_GR"}
	opCktBusVolts   = engine.Op{Name: "Circuit.AllBusVolts", Symbol: "ctx_Circuit_Get_AllBusVolts_GR"}
	opCktTotalPower = engine.Op{Name: "Circuit.TotalPower", Symbol: "ctx_Circuit_Get_TotalPower_GR"}
	opCktLosses     = engine.Op{Name: "Circuit.Losses", Symbol: "ctx_Circuit_Get_Losses_GR"}
	opCktActiveElem = engine.Op{Name: "Circuit.SetActiveElement", Symbol: "ctx_Circuit_SetActiveElement"}
	opCktActiveBus  = engine.Op{Name: "Circuit.SetActiveBus", Symbol: "ctx_Circuit_SetActiveBus"}
)

// Name returns the active circuit's name.
func (c Circuit) Name() (string, error) {
	return c.ctx.CallString(opCktName)
}

// NumBuses counts the circuit's buses.
func (c Circuit) NumBuses() (int32, error) {
	return c.ctx.CallI32(opCktNumBuses)
}

// NumNodes counts connected nodes across all buses.
func (c Circuit) NumNodes() (int32, error) {
	return c.ctx.CallI32(opCktNumNodes)
}

// NumCktElements counts the circuit's elements.
func (c Circuit) NumCktElements() (int32, error) {
	return c.ctx.CallI32(opCktNumElems)
}

// AllNodeNames lists every node as "bus.node", in bus definition order.
func (c Circuit) AllNodeNames() ([]string, error) {
	return c.ctx.CallStrings(opCktNodeNames)
}

// AllBusVmagPu returns per-unit voltage magnitudes, one per node, in
// AllNodeNames order.
func (c Circuit) AllBusVmagPu() ([]float64, error) {
	return c.ctx.CallFloats(opCktVmagPu)
}

// AllBusVolts returns complex node voltages in volts, in AllNodeNames order.
func (c Circuit) AllBusVolts() ([]complex128, error) {
	return c.ctx.CallComplexes(opCktBusVolts)
}

// TotalPower returns the circuit's total power as kW + j*kvar, negative for
// delivery.
func (c Circuit) TotalPower() (complex128, error) {
	return c.ctx.CallComplex(opCktTotalPower)
}

// Losses returns total circuit losses in watts as a complex value.
func (c Circuit) Losses() (complex128, error) {
	return c.ctx.CallComplex(opCktLosses)
}

// SetActiveElement activates the element with the given full name and
// returns its index, or a negative value when no element matches.
func (c Circuit) SetActiveElement(name string) (int32, error) {
	return c.ctx.CallI32(opCktActiveElem, engine.Str(name))
}

// SetActiveBus activates the named bus and returns its index, or a negative
// value when no bus matches.
func (c Circuit) SetActiveBus(name string) (int32, error) {
	return c.ctx.CallI32(opCktActiveBus, engine.Str(name))
}

// Solution drives and inspects the solver.
type Solution struct {
	ctx *engine.Context
}

var (
	opSolSolve       = engine.Op{Name: "Solution.Solve", Symbol: "ctx_Solution_Solve"}
	opSolConverged   = engine.Op{Name: "Solution.Converged", Symbol: "ctx_Solution_Get_Converged"}
	opSolIterations  = engine.Op{Name: "Solution.Iterations", Symbol: "ctx_Solution_Get_Iterations"}
	opSolMode        = engine.Op{Name: "Solution.Mode", Symbol: "ctx_Solution_Get_Mode"}
	opSolSetMode     = engine.Op{Name: "Solution.Mode", Symbol: "ctx_Solution_Set_Mode"}
	opSolControl     = engine.Op{Name: "Solution.ControlMode", Symbol: "ctx_Solution_Get_ControlMode"}
	opSolSetControl  = engine.Op{Name: "Solution.ControlMode", Symbol: "ctx_Solution_Set_ControlMode"}
	opSolLoadMult    = engine.Op{Name: "Solution.LoadMult", Symbol: "ctx_Solution_Get_LoadMult"}
	opSolSetLoadMult = engine.Op{Name: "Solution.LoadMult", Symbol: "ctx_Solution_Set_LoadMult"}
	opSolNumber      = engine.Op{Name: "Solution.Number", Symbol: "ctx_Solution_Get_Number"}
	opSolSetNumber   = engine.Op{Name: "Solution.Number", Symbol: "ctx_Solution_Set_Number"}
	opSolStepsize    = engine.Op{Name: "Solution.StepsizeMin", Symbol: "ctx_Solution_Get_StepsizeMin"}
	opSolSetStepsize = engine.Op{Name: "Solution.StepsizeMin", Symbol: "ctx_Solution_Set_StepsizeMin"}
	opSolHour        = engine.Op{Name: "Solution.dblHour", Symbol: "ctx_Solution_Get_dblHour"}
	opSolSetHour     = engine.Op{Name: "Solution.dblHour", Symbol: "ctx_Solution_Set_dblHour"}
)

// Solve runs the solver in the current mode.
func (s Solution) Solve() error {
	return s.ctx.CallVoid(opSolSolve)
}

// Converged reports whether the last solution converged.
func (s Solution) Converged() (bool, error) {
	return s.ctx.CallBool(opSolConverged)
}

// Iterations reports the iteration count of the last solution.
func (s Solution) Iterations() (int32, error) {
	return s.ctx.CallI32(opSolIterations)
}

// Mode returns the validated solution mode.
func (s Solution) Mode() (SolveMode, error) {
	raw, err := s.ctx.CallI32(opSolMode)
	if err != nil {
		return 0, err
	}
	return SolveModeFromInt32(raw)
}

// SetMode selects the solution mode.
func (s Solution) SetMode(m SolveMode) error {
	return s.ctx.CallVoid(opSolSetMode, engine.I32(int32(m)))
}

// ControlMode returns the validated control mode.
func (s Solution) ControlMode() (ControlMode, error) {
	raw, err := s.ctx.CallI32(opSolControl)
	if err != nil {
		return 0, err
	}
	return ControlModeFromInt32(raw)
}

// SetControlMode selects the control mode.
func (s Solution) SetControlMode(m ControlMode) error {
	return s.ctx.CallVoid(opSolSetControl, engine.I32(int32(m)))
}

// LoadMult returns the global load multiplier.
func (s Solution) LoadMult() (float64, error) {
	return s.ctx.CallF64(opSolLoadMult)
}

// SetLoadMult scales every load by the multiplier.
func (s Solution) SetLoadMult(m float64) error {
	return s.ctx.CallVoid(opSolSetLoadMult, engine.F64(m))
}

// Number returns the step count per Solve in time-driven modes.
func (s Solution) Number() (int32, error) {
	return s.ctx.CallI32(opSolNumber)
}

// SetNumber sets the step count per Solve in time-driven modes.
func (s Solution) SetNumber(n int32) error {
	return s.ctx.CallVoid(opSolSetNumber, engine.I32(n))
}

// StepsizeMin returns the step size in minutes.
func (s Solution) StepsizeMin() (float64, error) {
	return s.ctx.CallF64(opSolStepsize)
}

// SetStepsizeMin sets the step size in minutes.
func (s Solution) SetStepsizeMin(m float64) error {
	return s.ctx.CallVoid(opSolSetStepsize, engine.F64(m))
}

// Hour returns simulation time as a fractional hour.
func (s Solution) Hour() (float64, error) {
	return s.ctx.CallF64(opSolHour)
}

// SetHour sets simulation time as a fractional hour.
func (s Solution) SetHour(h float64) error {
	return s.ctx.CallVoid(opSolSetHour, engine.F64(h))
}

// Bus reads the active bus, selected with Circuit.SetActiveBus.
type Bus struct {
	ctx *engine.Context
}

var (
	opBusName      = engine.Op{Name: "Bus.Name", Symbol: "ctx_Bus_Get_Name"}
	opBusNumNodes  = engine.Op{Name: "Bus.NumNodes", Symbol: "ctx_Bus_Get_NumNodes"}
	opBusNodes     = engine.Op{Name: "Bus.Nodes", Symbol: "ctx_Bus_Get_Nodes_GR"}
	opBusKVBase    = engine.Op{Name: "Bus.kVBase", Symbol: "ctx_Bus_Get_kVBase"}
	opBusPuVolts   = engine.Op{Name: "Bus.puVoltages", Symbol: "ctx_Bus_Get_puVoltages_GR"}
	opBusVMagAngle = engine.Op{Name: "Bus.VMagAngle", Symbol: "ctx_Bus_Get_VMagAngle_GR"}
)

// Name returns the active bus name.
func (b Bus) Name() (string, error) {
	return b.ctx.CallString(opBusName)
}

// NumNodes counts the active bus's connected nodes.
func (b Bus) NumNodes() (int32, error) {
	return b.ctx.CallI32(opBusNumNodes)
}

// Nodes lists the active bus's connected node numbers.
func (b Bus) Nodes() ([]int32, error) {
	return b.ctx.CallInts(opBusNodes)
}

// KVBase returns the active bus's line-to-neutral base voltage in kV.
func (b Bus) KVBase() (float64, error) {
	return b.ctx.CallF64(opBusKVBase)
}

// PuVoltages returns per-node complex voltages in per unit.
func (b Bus) PuVoltages() ([]complex128, error) {
	return b.ctx.CallComplexes(opBusPuVolts)
}

// VMagAngle returns per-node (magnitude, angle-degrees) pairs.
func (b Bus) VMagAngle() ([]float64, error) {
	return b.ctx.CallFloats(opBusVMagAngle)
}

// Settings adjusts solution-independent circuit options.
type Settings struct {
	ctx *engine.Context
}

var (
	opSetVBases    = engine.Op{Name: "Settings.VoltageBases", Symbol: "ctx_Settings_Get_VoltageBases_GR"}
	opSetSetVBases = engine.Op{Name: "Settings.VoltageBases", Symbol: "ctx_Settings_Set_VoltageBases"}
)

// VoltageBases returns the configured line-to-line base voltages in kV.
func (s Settings) VoltageBases() ([]float64, error) {
	return s.ctx.CallFloats(opSetVBases)
}

// SetVoltageBases replaces the configured base voltages.
func (s Settings) SetVoltageBases(bases []float64) error {
	return s.ctx.CallVoid(opSetSetVBases, engine.Floats(bases))
}
