package opendss

import (
	"github.com/wippyai/dss-runtime/engine"
)

// CktElement reads the active circuit element, selected either through
// Circuit.SetActiveElement or as a side effect of class iteration.
type CktElement struct {
	ctx *engine.Context
}

var (
	opElemName     = engine.Op{Name: "CktElement.Name", Symbol: "ctx_CktElement_Get_Name"}
	opElemPhases   = engine.Op{Name: "CktElement.NumPhases", Symbol: "ctx_CktElement_Get_NumPhases"}
	opElemEnabled  = engine.Op{Name: "CktElement.Enabled", Symbol: "ctx_CktElement_Get_Enabled"}
	opElemEnable   = engine.Op{Name: "CktElement.Enabled", Symbol: "ctx_CktElement_Set_Enabled"}
	opElemProps    = engine.Op{Name: "CktElement.AllPropertyNames", Symbol: "ctx_CktElement_Get_AllPropertyNames"}
	opElemPowers   = engine.Op{Name: "CktElement.Powers", Symbol: "ctx_CktElement_Get_Powers_GR"}
	opElemCurrents = engine.Op{Name: "CktElement.Currents", Symbol: "ctx_CktElement_Get_Currents_GR"}
)

// Name returns the element's full "class.name" identifier.
func (e CktElement) Name() (string, error) {
	return e.ctx.CallString(opElemName)
}

// NumPhases counts the element's phases.
func (e CktElement) NumPhases() (int32, error) {
	return e.ctx.CallI32(opElemPhases)
}

// Enabled reports whether the element participates in the solution.
func (e CktElement) Enabled() (bool, error) {
	return e.ctx.CallBool(opElemEnabled)
}

// SetEnabled switches the element in or out of the solution.
func (e CktElement) SetEnabled(on bool) error {
	return e.ctx.CallVoid(opElemEnable, engine.Bool(on))
}

// AllPropertyNames lists the element's property names in definition order.
func (e CktElement) AllPropertyNames() ([]string, error) {
	return e.ctx.CallStrings(opElemProps)
}

// Powers returns per-conductor complex powers in kW + j*kvar.
func (e CktElement) Powers() ([]complex128, error) {
	return e.ctx.CallComplexes(opElemPowers)
}

// Currents returns per-conductor complex currents in amps.
func (e CktElement) Currents() ([]complex128, error) {
	return e.ctx.CallComplexes(opElemCurrents)
}

// Loads iterates and edits load elements.
type Loads struct {
	ctx *engine.Context
}

var (
	opLoadsFirst    = engine.Op{Name: "Loads.First", Symbol: "ctx_Loads_Get_First"}
	opLoadsNext     = engine.Op{Name: "Loads.Next", Symbol: "ctx_Loads_Get_Next"}
	opLoadsCount    = engine.Op{Name: "Loads.Count", Symbol: "ctx_Loads_Get_Count"}
	opLoadsAllNames = engine.Op{Name: "Loads.AllNames", Symbol: "ctx_Loads_Get_AllNames"}
	opLoadsName     = engine.Op{Name: "Loads.Name", Symbol: "ctx_Loads_Get_Name"}
	opLoadsSetName  = engine.Op{Name: "Loads.Name", Symbol: "ctx_Loads_Set_Name"}
	opLoadsKW       = engine.Op{Name: "Loads.kW", Symbol: "ctx_Loads_Get_kW"}
	opLoadsSetKW    = engine.Op{Name: "Loads.kW", Symbol: "ctx_Loads_Set_kW"}
	opLoadsKvar     = engine.Op{Name: "Loads.kvar", Symbol: "ctx_Loads_Get_kvar"}
	opLoadsSetKvar  = engine.Op{Name: "Loads.kvar", Symbol: "ctx_Loads_Set_kvar"}
	opLoadsModel    = engine.Op{Name: "Loads.Model", Symbol: "ctx_Loads_Get_Model"}
	opLoadsSetModel = engine.Op{Name: "Loads.Model", Symbol: "ctx_Loads_Set_Model"}
	opLoadsZIPV     = engine.Op{Name: "Loads.ZIPV", Symbol: "ctx_Loads_Get_ZIPV_GR"}
	opLoadsSetZIPV  = engine.Op{Name: "Loads.ZIPV", Symbol: "ctx_Loads_Set_ZIPV"}
)

// First activates the first load. It returns 0 when the circuit has none,
// otherwise the 1-based position of the activated load.
func (l Loads) First() (int32, error) {
	return l.ctx.CallI32(opLoadsFirst)
}

// Next advances to the following load, returning 0 past the end.
func (l Loads) Next() (int32, error) {
	return l.ctx.CallI32(opLoadsNext)
}

// Count returns the number of loads in the circuit.
func (l Loads) Count() (int32, error) {
	return l.ctx.CallI32(opLoadsCount)
}

// AllNames lists every load name in definition order.
func (l Loads) AllNames() ([]string, error) {
	return l.ctx.CallStrings(opLoadsAllNames)
}

// Name returns the active load's name.
func (l Loads) Name() (string, error) {
	return l.ctx.CallString(opLoadsName)
}

// SetName activates the load with the given name.
func (l Loads) SetName(name string) error {
	return l.ctx.CallVoid(opLoadsSetName, engine.Str(name))
}

// KW returns the active load's real power in kW.
func (l Loads) KW() (float64, error) {
	return l.ctx.CallF64(opLoadsKW)
}

// SetKW sets the active load's real power in kW.
func (l Loads) SetKW(kw float64) error {
	return l.ctx.CallVoid(opLoadsSetKW, engine.F64(kw))
}

// Kvar returns the active load's reactive power in kvar.
func (l Loads) Kvar() (float64, error) {
	return l.ctx.CallF64(opLoadsKvar)
}

// SetKvar sets the active load's reactive power in kvar.
func (l Loads) SetKvar(kvar float64) error {
	return l.ctx.CallVoid(opLoadsSetKvar, engine.F64(kvar))
}

// Model returns the active load's validated model.
func (l Loads) Model() (LoadModel, error) {
	raw, err := l.ctx.CallI32(opLoadsModel)
	if err != nil {
		return 0, err
	}
	return LoadModelFromInt32(raw)
}

// SetModel selects the active load's model.
func (l Loads) SetModel(m LoadModel) error {
	return l.ctx.CallVoid(opLoadsSetModel, engine.I32(int32(m)))
}

// ZIPV returns the active load's ZIPV coefficients, nil when unset.
func (l Loads) ZIPV() ([]float64, error) {
	return l.ctx.CallFloats(opLoadsZIPV)
}

// SetZIPV replaces the active load's ZIPV coefficients.
func (l Loads) SetZIPV(coeffs []float64) error {
	return l.ctx.CallVoid(opLoadsSetZIPV, engine.Floats(coeffs))
}

// Meters iterates energy meters and reads their accumulated registers.
type Meters struct {
	ctx *engine.Context
}

var (
	opMetersReset     = engine.Op{Name: "Meters.ResetAll", Symbol: "ctx_Meters_ResetAll"}
	opMetersFirst     = engine.Op{Name: "Meters.First", Symbol: "ctx_Meters_Get_First"}
	opMetersNext      = engine.Op{Name: "Meters.Next", Symbol: "ctx_Meters_Get_Next"}
	opMetersName      = engine.Op{Name: "Meters.Name", Symbol: "ctx_Meters_Get_Name"}
	opMetersRegNames  = engine.Op{Name: "Meters.RegisterNames", Symbol: "ctx_Meters_Get_RegisterNames"}
	opMetersRegValues = engine.Op{Name: "Meters.RegisterValues", Symbol: "ctx_Meters_Get_RegisterValues_GR"}
	opMetersTotals    = engine.Op{Name: "Meters.Totals", Symbol: "ctx_Meters_Get_Totals_GR"}
)

// ResetAll zeroes every meter's registers.
func (m Meters) ResetAll() error {
	return m.ctx.CallVoid(opMetersReset)
}

// First activates the first meter, returning 0 when there are none.
func (m Meters) First() (int32, error) {
	return m.ctx.CallI32(opMetersFirst)
}

// Next advances to the following meter, returning 0 past the end.
func (m Meters) Next() (int32, error) {
	return m.ctx.CallI32(opMetersNext)
}

// Name returns the active meter's name.
func (m Meters) Name() (string, error) {
	return m.ctx.CallString(opMetersName)
}

// RegisterNames lists the register labels, aligned with RegisterValues.
func (m Meters) RegisterNames() ([]string, error) {
	return m.ctx.CallStrings(opMetersRegNames)
}

// RegisterValues returns the active meter's register values.
func (m Meters) RegisterValues() ([]float64, error) {
	return m.ctx.CallFloats(opMetersRegValues)
}

// Totals returns register values summed across all meters.
func (m Meters) Totals() ([]float64, error) {
	return m.ctx.CallFloats(opMetersTotals)
}

// Monitors iterates monitors and reads their recorded samples.
type Monitors struct {
	ctx *engine.Context
}

var (
	opMonFirst   = engine.Op{Name: "Monitors.First", Symbol: "ctx_Monitors_Get_First"}
	opMonNext    = engine.Op{Name: "Monitors.Next", Symbol: "ctx_Monitors_Get_Next"}
	opMonName    = engine.Op{Name: "Monitors.Name", Symbol: "ctx_Monitors_Get_Name"}
	opMonReset   = engine.Op{Name: "Monitors.ResetAll", Symbol: "ctx_Monitors_ResetAll"}
	opMonSamples = engine.Op{Name: "Monitors.SampleCount", Symbol: "ctx_Monitors_Get_SampleCount"}
	opMonMode    = engine.Op{Name: "Monitors.Mode", Symbol: "ctx_Monitors_Get_Mode"}
	opMonSetMode = engine.Op{Name: "Monitors.Mode", Symbol: "ctx_Monitors_Set_Mode"}
	opMonStream  = engine.Op{Name: "Monitors.ByteStream", Symbol: "ctx_Monitors_Get_ByteStream_GR"}
	opMonChannel = engine.Op{Name: "Monitors.Channel", Symbol: "ctx_Monitors_Get_Channel_GR"}
)

// First activates the first monitor, returning 0 when there are none.
func (m Monitors) First() (int32, error) {
	return m.ctx.CallI32(opMonFirst)
}

// Next advances to the following monitor, returning 0 past the end.
func (m Monitors) Next() (int32, error) {
	return m.ctx.CallI32(opMonNext)
}

// Name returns the active monitor's name.
func (m Monitors) Name() (string, error) {
	return m.ctx.CallString(opMonName)
}

// ResetAll discards every monitor's recorded samples.
func (m Monitors) ResetAll() error {
	return m.ctx.CallVoid(opMonReset)
}

// SampleCount returns the number of recorded samples.
func (m Monitors) SampleCount() (int32, error) {
	return m.ctx.CallI32(opMonSamples)
}

// Mode returns the active monitor's validated mode.
func (m Monitors) Mode() (MonitorMode, error) {
	raw, err := m.ctx.CallI32(opMonMode)
	if err != nil {
		return 0, err
	}
	return MonitorModeFromInt32(raw)
}

// SetMode selects what the active monitor records.
func (m Monitors) SetMode(mode MonitorMode) error {
	return m.ctx.CallVoid(opMonSetMode, engine.I32(int32(mode)))
}

// ByteStream returns the active monitor's records in its binary layout:
// a little-endian header (signature, version, record size, mode) followed
// by float32 sample rows.
func (m Monitors) ByteStream() ([]byte, error) {
	return m.ctx.CallBytes(opMonStream)
}

// Channel returns one recorded channel, 1-based.
func (m Monitors) Channel(idx int32) ([]float64, error) {
	return m.ctx.CallFloats(opMonChannel, engine.I32(idx))
}

// Transformers iterates and edits transformer elements.
type Transformers struct {
	ctx *engine.Context
}

var (
	opXfmrFirst       = engine.Op{Name: "Transformers.First", Symbol: "ctx_Transformers_Get_First"}
	opXfmrNext        = engine.Op{Name: "Transformers.Next", Symbol: "ctx_Transformers_Get_Next"}
	opXfmrCount       = engine.Op{Name: "Transformers.Count", Symbol: "ctx_Transformers_Get_Count"}
	opXfmrName        = engine.Op{Name: "Transformers.Name", Symbol: "ctx_Transformers_Get_Name"}
	opXfmrCoreType    = engine.Op{Name: "Transformers.CoreType", Symbol: "ctx_Transformers_Get_CoreType"}
	opXfmrSetCoreType = engine.Op{Name: "Transformers.CoreType", Symbol: "ctx_Transformers_Set_CoreType"}
	opXfmrNumWindings = engine.Op{Name: "Transformers.NumWindings", Symbol: "ctx_Transformers_Get_NumWindings"}
	opXfmrWdg         = engine.Op{Name: "Transformers.Wdg", Symbol: "ctx_Transformers_Get_Wdg"}
	opXfmrSetWdg      = engine.Op{Name: "Transformers.Wdg", Symbol: "ctx_Transformers_Set_Wdg"}
	opXfmrKV          = engine.Op{Name: "Transformers.kV", Symbol: "ctx_Transformers_Get_kV"}
	opXfmrKVA         = engine.Op{Name: "Transformers.kVA", Symbol: "ctx_Transformers_Get_kVA"}
	opXfmrXhl         = engine.Op{Name: "Transformers.Xhl", Symbol: "ctx_Transformers_Get_Xhl"}
	opXfmrWdgVolts    = engine.Op{Name: "Transformers.WdgVoltages", Symbol: "ctx_Transformers_Get_WdgVoltages_GR"}
)

// First activates the first transformer, returning 0 when there are none.
func (t Transformers) First() (int32, error) {
	return t.ctx.CallI32(opXfmrFirst)
}

// Next advances to the following transformer, returning 0 past the end.
func (t Transformers) Next() (int32, error) {
	return t.ctx.CallI32(opXfmrNext)
}

// Count returns the number of transformers in the circuit.
func (t Transformers) Count() (int32, error) {
	return t.ctx.CallI32(opXfmrCount)
}

// Name returns the active transformer's name.
func (t Transformers) Name() (string, error) {
	return t.ctx.CallString(opXfmrName)
}

// CoreType returns the active transformer's validated core construction.
func (t Transformers) CoreType() (CoreType, error) {
	raw, err := t.ctx.CallI32(opXfmrCoreType)
	if err != nil {
		return 0, err
	}
	return CoreTypeFromInt32(raw)
}

// SetCoreType selects the active transformer's core construction.
func (t Transformers) SetCoreType(ct CoreType) error {
	return t.ctx.CallVoid(opXfmrSetCoreType, engine.I32(int32(ct)))
}

// NumWindings counts the active transformer's windings.
func (t Transformers) NumWindings() (int32, error) {
	return t.ctx.CallI32(opXfmrNumWindings)
}

// Wdg returns the 1-based active winding number. The engine carries it as
// a double.
func (t Transformers) Wdg() (float64, error) {
	return t.ctx.CallF64(opXfmrWdg)
}

// SetWdg selects the active winding, 1-based.
func (t Transformers) SetWdg(w float64) error {
	return t.ctx.CallVoid(opXfmrSetWdg, engine.F64(w))
}

// KV returns the active winding's rated voltage in kV.
func (t Transformers) KV() (float64, error) {
	return t.ctx.CallF64(opXfmrKV)
}

// KVA returns the active winding's rated power in kVA.
func (t Transformers) KVA() (float64, error) {
	return t.ctx.CallF64(opXfmrKVA)
}

// Xhl returns the high-to-low winding reactance in percent.
func (t Transformers) Xhl() (float64, error) {
	return t.ctx.CallF64(opXfmrXhl)
}

// WdgVoltages returns the active winding's complex terminal voltages,
// nil before the circuit has been solved.
func (t Transformers) WdgVoltages() ([]complex128, error) {
	return t.ctx.CallComplexes(opXfmrWdgVolts)
}

// Fuses iterates and edits fuse elements.
type Fuses struct {
	ctx *engine.Context
}

var (
	opFusesFirst     = engine.Op{Name: "Fuses.First", Symbol: "ctx_Fuses_Get_First"}
	opFusesNext      = engine.Op{Name: "Fuses.Next", Symbol: "ctx_Fuses_Get_Next"}
	opFusesCount     = engine.Op{Name: "Fuses.Count", Symbol: "ctx_Fuses_Get_Count"}
	opFusesName      = engine.Op{Name: "Fuses.Name", Symbol: "ctx_Fuses_Get_Name"}
	opFusesState     = engine.Op{Name: "Fuses.State", Symbol: "ctx_Fuses_Get_State"}
	opFusesSetState  = engine.Op{Name: "Fuses.State", Symbol: "ctx_Fuses_Set_State"}
	opFusesNormal    = engine.Op{Name: "Fuses.NormalState", Symbol: "ctx_Fuses_Get_NormalState"}
	opFusesSetNormal = engine.Op{Name: "Fuses.NormalState", Symbol: "ctx_Fuses_Set_NormalState"}
)

// First activates the first fuse, returning 0 when there are none.
func (f Fuses) First() (int32, error) {
	return f.ctx.CallI32(opFusesFirst)
}

// Next advances to the following fuse, returning 0 past the end.
func (f Fuses) Next() (int32, error) {
	return f.ctx.CallI32(opFusesNext)
}

// Count returns the number of fuses in the circuit.
func (f Fuses) Count() (int32, error) {
	return f.ctx.CallI32(opFusesCount)
}

// Name returns the active fuse's name.
func (f Fuses) Name() (string, error) {
	return f.ctx.CallString(opFusesName)
}

// State returns per-phase fuse states, "open" or "closed".
func (f Fuses) State() ([]string, error) {
	return f.ctx.CallStrings(opFusesState)
}

// SetState replaces the per-phase fuse states.
func (f Fuses) SetState(states []string) error {
	return f.ctx.CallVoid(opFusesSetState, engine.Strs(states))
}

// NormalState returns the per-phase states the fuse returns to on reset.
func (f Fuses) NormalState() ([]string, error) {
	return f.ctx.CallStrings(opFusesNormal)
}

// SetNormalState replaces the per-phase normal states.
func (f Fuses) SetNormalState(states []string) error {
	return f.ctx.CallVoid(opFusesSetNormal, engine.Strs(states))
}
