package enginetest

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/wippyai/dss-runtime/engine"
)

// symbolList enumerates every native symbol the simulation implements.
// Resolution of anything else fails, like a dlsym miss.
var symbolList = []string{
	"ctx_New", "ctx_Dispose", "ctx_Get_Prime",
	"ctx_DSS_Start", "ctx_DSS_GetGRPointers",
	"ctx_Error_Get_NumberPtr", "ctx_Error_Get_Description",

	"ctx_DSS_Get_Version", "ctx_DSS_Get_NumCircuits", "ctx_DSS_ClearAll",
	"ctx_DSS_Get_AllowChangeDir", "ctx_DSS_Set_AllowChangeDir",

	"ctx_Text_Set_Command", "ctx_Text_Get_Result",
	"ctx_Text_CommandBlock", "ctx_Text_CommandArray",

	"ctx_Circuit_Get_Name", "ctx_Circuit_Get_NumBuses",
	"ctx_Circuit_Get_NumNodes", "ctx_Circuit_Get_NumCktElements",
	"ctx_Circuit_Get_AllNodeNames", "ctx_Circuit_Get_AllBusVmagPu_GR",
	"ctx_Circuit_Get_AllBusVolts_GR", "ctx_Circuit_Get_TotalPower_GR",
	"ctx_Circuit_Get_Losses_GR", "ctx_Circuit_SetActiveElement",
	"ctx_Circuit_SetActiveBus",

	"ctx_Solution_Solve", "ctx_Solution_Get_Converged",
	"ctx_Solution_Get_Iterations",
	"ctx_Solution_Get_Mode", "ctx_Solution_Set_Mode",
	"ctx_Solution_Get_ControlMode", "ctx_Solution_Set_ControlMode",
	"ctx_Solution_Get_LoadMult", "ctx_Solution_Set_LoadMult",
	"ctx_Solution_Get_Number", "ctx_Solution_Set_Number",
	"ctx_Solution_Get_StepsizeMin", "ctx_Solution_Set_StepsizeMin",
	"ctx_Solution_Get_dblHour", "ctx_Solution_Set_dblHour",

	"ctx_Bus_Get_Name", "ctx_Bus_Get_NumNodes", "ctx_Bus_Get_Nodes_GR",
	"ctx_Bus_Get_kVBase", "ctx_Bus_Get_puVoltages_GR",
	"ctx_Bus_Get_VMagAngle_GR",

	"ctx_CktElement_Get_Name", "ctx_CktElement_Get_NumPhases",
	"ctx_CktElement_Get_Enabled", "ctx_CktElement_Set_Enabled",
	"ctx_CktElement_Get_AllPropertyNames",
	"ctx_CktElement_Get_Powers_GR", "ctx_CktElement_Get_Currents_GR",

	"ctx_Loads_Get_First", "ctx_Loads_Get_Next", "ctx_Loads_Get_Count",
	"ctx_Loads_Get_AllNames",
	"ctx_Loads_Get_Name", "ctx_Loads_Set_Name",
	"ctx_Loads_Get_kW", "ctx_Loads_Set_kW",
	"ctx_Loads_Get_kvar", "ctx_Loads_Set_kvar",
	"ctx_Loads_Get_Model", "ctx_Loads_Set_Model",
	"ctx_Loads_Get_ZIPV_GR", "ctx_Loads_Set_ZIPV",

	"ctx_Meters_ResetAll", "ctx_Meters_Get_First", "ctx_Meters_Get_Next",
	"ctx_Meters_Get_Name", "ctx_Meters_Get_RegisterNames",
	"ctx_Meters_Get_RegisterValues_GR", "ctx_Meters_Get_Totals_GR",

	"ctx_Monitors_Get_First", "ctx_Monitors_Get_Next",
	"ctx_Monitors_Get_Name", "ctx_Monitors_ResetAll",
	"ctx_Monitors_Get_SampleCount",
	"ctx_Monitors_Get_Mode", "ctx_Monitors_Set_Mode",
	"ctx_Monitors_Get_ByteStream_GR", "ctx_Monitors_Get_Channel_GR",

	"ctx_Transformers_Get_First", "ctx_Transformers_Get_Next",
	"ctx_Transformers_Get_Count", "ctx_Transformers_Get_Name",
	"ctx_Transformers_Get_CoreType", "ctx_Transformers_Set_CoreType",
	"ctx_Transformers_Get_NumWindings",
	"ctx_Transformers_Get_Wdg", "ctx_Transformers_Set_Wdg",
	"ctx_Transformers_Get_kV", "ctx_Transformers_Get_kVA",
	"ctx_Transformers_Get_Xhl", "ctx_Transformers_Get_WdgVoltages_GR",

	"ctx_Fuses_Get_First", "ctx_Fuses_Get_Next", "ctx_Fuses_Get_Count",
	"ctx_Fuses_Get_Name",
	"ctx_Fuses_Get_State", "ctx_Fuses_Set_State",
	"ctx_Fuses_Get_NormalState", "ctx_Fuses_Set_NormalState",

	"ctx_Settings_Get_VoltageBases_GR", "ctx_Settings_Set_VoltageBases",
}

var symbols = func() map[string]struct{} {
	m := make(map[string]struct{}, len(symbolList))
	for _, s := range symbolList {
		m[s] = struct{}{}
	}
	return m
}()

const engineVersion = "DSS Simulated Engine 0.1.0 (in-memory); API level 0.14.6"

// monitorSignature opens every monitor byte stream.
const monitorSignature = 43756

func i32slot(v int32) uint64   { return engine.EncodeI32(v) }
func f64slot(v float64) uint64 { return engine.EncodeF64(v) }
func boolSlot(b bool) uint64   { return engine.EncodeBool(b) }

// dispatch implements one native call. It runs with the engine lock held.
// Go errors model crashes (unknown tokens, malformed calls); everything a
// real engine reports through its error channel goes through fail instead.
func (e *Engine) dispatch(symbol string, args []uint64) (uint64, error) {
	switch symbol {
	case "ctx_New":
		return e.newContext(), nil
	case "ctx_Get_Prime":
		return e.prime, nil
	}

	if len(args) == 0 {
		return 0, fmt.Errorf("%s: missing context argument", symbol)
	}
	c := e.ctx(args[0])
	if c == nil {
		return 0, fmt.Errorf("%s: unknown or disposed context %#x", symbol, args[0])
	}
	ctl := &Ctl{e: e}

	switch symbol {
	case "ctx_Dispose":
		c.disposed = true
		return 0, nil
	case "ctx_DSS_Start":
		c.started = true
		return boolSlot(true), nil
	case "ctx_DSS_GetGRPointers":
		for i := 0; i < 4; i++ {
			e.mem.writePtr(args[1+i], c.grDat[i])
			e.mem.writePtr(args[5+i], c.grCnt[i])
		}
		return 0, nil
	case "ctx_Error_Get_NumberPtr":
		return c.errFlag, nil
	case "ctx_Error_Get_Description":
		return e.mem.cstring(c.errDesc), nil

	case "ctx_DSS_Get_Version":
		return e.mem.cstring(engineVersion), nil
	case "ctx_DSS_Get_NumCircuits":
		if c.circuit == nil {
			return i32slot(0), nil
		}
		return i32slot(1), nil
	case "ctx_DSS_ClearAll":
		c.circuit = nil
		c.iter = nil
		c.activeEl, c.activeBus = 0, 0
		return 0, nil
	case "ctx_DSS_Get_AllowChangeDir":
		return boolSlot(c.allowDir), nil
	case "ctx_DSS_Set_AllowChangeDir":
		c.allowDir = engine.DecodeBool(args[1])
		return 0, nil

	case "ctx_Text_Set_Command":
		cmd, err := e.mem.readCString(args[1])
		if err != nil {
			return 0, err
		}
		e.exec(c, cmd)
		return 0, nil
	case "ctx_Text_Get_Result":
		return e.mem.cstring(c.result), nil
	case "ctx_Text_CommandBlock":
		script, err := e.mem.readCString(args[1])
		if err != nil {
			return 0, err
		}
		e.execBlock(c, script)
		return 0, nil
	case "ctx_Text_CommandArray":
		n := int(engine.DecodeI32(args[2]))
		ptrs, err := e.mem.readPtrs(args[1], n)
		if err != nil {
			return 0, err
		}
		for _, p := range ptrs {
			cmd, err := e.mem.readCString(p)
			if err != nil {
				return 0, err
			}
			e.exec(c, cmd)
			if flag, _ := e.mem.readI32(c.errFlag); flag != 0 {
				break
			}
		}
		return 0, nil
	}

	if fn := e.circuitOps(symbol); fn != nil {
		return fn(c, ctl, args)
	}
	if fn := e.elementOps(symbol); fn != nil {
		return fn(c, ctl, args)
	}
	return 0, fmt.Errorf("unimplemented symbol %s", symbol)
}

type opFunc func(c *contextState, ctl *Ctl, args []uint64) (uint64, error)

// circuitOps covers the circuit, solution, bus, and settings families.
func (e *Engine) circuitOps(symbol string) opFunc {
	switch symbol {
	case "ctx_Circuit_Get_Name":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			return e.mem.cstring(ckt.name), nil
		}
	case "ctx_Circuit_Get_NumBuses":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			return i32slot(int32(len(ckt.buses))), nil
		}
	case "ctx_Circuit_Get_NumNodes":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			return i32slot(ckt.numNodes()), nil
		}
	case "ctx_Circuit_Get_NumCktElements":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			return i32slot(int32(len(ckt.elements))), nil
		}
	case "ctx_Circuit_Get_AllNodeNames":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			var names []string
			for _, b := range ckt.buses {
				for _, n := range b.nodes {
					names = append(names, fmt.Sprintf("%s.%d", b.name, n))
				}
			}
			ctl.WriteStrings(args[1], args[2], names)
			return 0, nil
		}
	case "ctx_Circuit_Get_AllBusVmagPu_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			var mags []float64
			for _, b := range ckt.buses {
				for i := range b.nodes {
					if i < len(b.vpu) {
						mags = append(mags, cmplx.Abs(b.vpu[i]))
					} else {
						mags = append(mags, 0)
					}
				}
			}
			ctl.SetFloats(c.tok, mags)
			return 0, nil
		}
	case "ctx_Circuit_Get_AllBusVolts_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			var volts []complex128
			for _, b := range ckt.buses {
				scale := complex(b.kvBase*1000, 0)
				for i := range b.nodes {
					if i < len(b.vpu) {
						volts = append(volts, b.vpu[i]*scale)
					} else {
						volts = append(volts, 0)
					}
				}
			}
			ctl.SetComplexes(c.tok, volts)
			return 0, nil
		}
	case "ctx_Circuit_Get_TotalPower_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			kw, kvar := ckt.totals()
			ctl.SetComplexes(c.tok, []complex128{complex(-kw, -kvar)})
			return 0, nil
		}
	case "ctx_Circuit_Get_Losses_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			kw, kvar := ckt.totals()
			ctl.SetComplexes(c.tok, []complex128{complex(kw*35, kvar*20)})
			return 0, nil
		}
	case "ctx_Circuit_SetActiveElement":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return i32slot(-1), nil
			}
			name, err := e.mem.readCString(args[1])
			if err != nil {
				return 0, err
			}
			for i, el := range ckt.elements {
				if strings.EqualFold(el.full(), name) {
					c.activeEl = i + 1
					return i32slot(int32(i)), nil
				}
			}
			return i32slot(-1), nil
		}
	case "ctx_Circuit_SetActiveBus":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return i32slot(-1), nil
			}
			name, err := e.mem.readCString(args[1])
			if err != nil {
				return 0, err
			}
			short, _, _ := strings.Cut(strings.ToLower(name), ".")
			for i, b := range ckt.buses {
				if b.name == short {
					c.activeBus = i + 1
					return i32slot(int32(i)), nil
				}
			}
			return i32slot(-1), nil
		}

	case "ctx_Solution_Solve":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			if e.needCircuit(c) == nil {
				return 0, nil
			}
			e.solve(c)
			return 0, nil
		}
	case "ctx_Solution_Get_Converged":
		return e.solGetBool(func(ckt *circuit) bool { return ckt.converged })
	case "ctx_Solution_Get_Iterations":
		return e.solGetI32(func(ckt *circuit) int32 { return ckt.iterations })
	case "ctx_Solution_Get_Mode":
		return e.solGetI32(func(ckt *circuit) int32 { return ckt.mode })
	case "ctx_Solution_Set_Mode":
		return e.solSetI32(func(ckt *circuit, v int32) { ckt.mode = v })
	case "ctx_Solution_Get_ControlMode":
		return e.solGetI32(func(ckt *circuit) int32 { return ckt.control })
	case "ctx_Solution_Set_ControlMode":
		return e.solSetI32(func(ckt *circuit, v int32) { ckt.control = v })
	case "ctx_Solution_Get_LoadMult":
		return e.solGetF64(func(ckt *circuit) float64 { return ckt.loadMult })
	case "ctx_Solution_Set_LoadMult":
		return e.solSetF64(func(ckt *circuit, v float64) {
			ckt.loadMult = v
			ckt.solved = false
		})
	case "ctx_Solution_Get_Number":
		return e.solGetI32(func(ckt *circuit) int32 { return ckt.number })
	case "ctx_Solution_Set_Number":
		return e.solSetI32(func(ckt *circuit, v int32) { ckt.number = v })
	case "ctx_Solution_Get_StepsizeMin":
		return e.solGetF64(func(ckt *circuit) float64 { return ckt.stepsize })
	case "ctx_Solution_Set_StepsizeMin":
		return e.solSetF64(func(ckt *circuit, v float64) { ckt.stepsize = v })
	case "ctx_Solution_Get_dblHour":
		return e.solGetF64(func(ckt *circuit) float64 { return ckt.hour })
	case "ctx_Solution_Set_dblHour":
		return e.solSetF64(func(ckt *circuit, v float64) { ckt.hour = v })

	case "ctx_Bus_Get_Name":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			return e.mem.cstring(b.name), nil
		}
	case "ctx_Bus_Get_NumNodes":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			return i32slot(int32(len(b.nodes))), nil
		}
	case "ctx_Bus_Get_Nodes_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			ctl.SetInts(c.tok, append([]int32(nil), b.nodes...))
			return 0, nil
		}
	case "ctx_Bus_Get_kVBase":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			return f64slot(b.kvBase), nil
		}
	case "ctx_Bus_Get_puVoltages_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			ctl.SetComplexes(c.tok, append([]complex128(nil), b.vpu...))
			return 0, nil
		}
	case "ctx_Bus_Get_VMagAngle_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			b := e.activeBusOf(c)
			if b == nil {
				return 0, nil
			}
			var pairs []float64
			for _, v := range b.vpu {
				mag, ang := cmplx.Polar(v)
				pairs = append(pairs, mag, ang*180/math.Pi)
			}
			ctl.SetFloats(c.tok, pairs)
			return 0, nil
		}

	case "ctx_Settings_Get_VoltageBases_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			ctl.SetFloats(c.tok, append([]float64(nil), ckt.voltageBases...))
			return 0, nil
		}
	case "ctx_Settings_Set_VoltageBases":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			vals, err := e.readF64s(args[1], int(engine.DecodeI32(args[2])))
			if err != nil {
				return 0, err
			}
			ckt.voltageBases = vals
			return 0, nil
		}
	}
	return nil
}

func (e *Engine) needCircuit(c *contextState) *circuit {
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "there is no active circuit")
		return nil
	}
	return c.circuit
}

func (e *Engine) activeBusOf(c *contextState) *bus {
	ckt := e.needCircuit(c)
	if ckt == nil {
		return nil
	}
	if c.activeBus < 1 || c.activeBus > len(ckt.buses) {
		e.fail(c, CodeNoActive, "no active bus")
		return nil
	}
	return ckt.buses[c.activeBus-1]
}

func (e *Engine) solGetI32(get func(*circuit) int32) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		ckt := e.needCircuit(c)
		if ckt == nil {
			return 0, nil
		}
		return i32slot(get(ckt)), nil
	}
}

func (e *Engine) solSetI32(set func(*circuit, int32)) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		ckt := e.needCircuit(c)
		if ckt == nil {
			return 0, nil
		}
		set(ckt, engine.DecodeI32(args[1]))
		return 0, nil
	}
}

func (e *Engine) solGetF64(get func(*circuit) float64) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		ckt := e.needCircuit(c)
		if ckt == nil {
			return 0, nil
		}
		return f64slot(get(ckt)), nil
	}
}

func (e *Engine) solSetF64(set func(*circuit, float64)) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		ckt := e.needCircuit(c)
		if ckt == nil {
			return 0, nil
		}
		set(ckt, engine.DecodeF64(args[1]))
		return 0, nil
	}
}

func (e *Engine) solGetBool(get func(*circuit) bool) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		ckt := e.needCircuit(c)
		if ckt == nil {
			return 0, nil
		}
		return boolSlot(get(ckt)), nil
	}
}

// readCString reads a null-terminated string out of the arena.
func (a *arena) readCString(addr uint64) (string, error) {
	if addr < a.base {
		return "", fmt.Errorf("text address %#x outside arena", addr)
	}
	off := int(addr - a.base)
	for i := off; i < len(a.buf); i++ {
		if a.buf[i] == 0 {
			return string(a.buf[off:i]), nil
		}
	}
	return "", fmt.Errorf("unterminated text at %#x", addr)
}

func (a *arena) readPtrs(addr uint64, n int) ([]uint64, error) {
	b, err := a.slice(addr, n*8)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return out, nil
}

func (e *Engine) readF64s(addr uint64, n int) ([]float64, error) {
	b, err := e.mem.slice(addr, n*8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = engine.DecodeF64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}
