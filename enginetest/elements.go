package enginetest

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/dss-runtime/engine"
)

// elementOps covers the per-class families: circuit elements, loads, meters,
// monitors, transformers, and fuses.
func (e *Engine) elementOps(symbol string) opFunc {
	switch symbol {
	case "ctx_CktElement_Get_Name":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			return e.mem.cstring(el.full()), nil
		}
	case "ctx_CktElement_Get_NumPhases":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			return i32slot(el.phases), nil
		}
	case "ctx_CktElement_Get_Enabled":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			return boolSlot(el.enabled), nil
		}
	case "ctx_CktElement_Set_Enabled":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			el.enabled = engine.DecodeBool(args[1])
			c.circuit.solved = false
			return 0, nil
		}
	case "ctx_CktElement_Get_AllPropertyNames":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			ctl.WriteStrings(args[1], args[2], propNames[el.class])
			return 0, nil
		}
	case "ctx_CktElement_Get_Powers_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			ctl.SetFloats(c.tok, el.powers(c.circuit))
			return 0, nil
		}
	case "ctx_CktElement_Get_Currents_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeElement(c)
			if el == nil {
				return 0, nil
			}
			ctl.SetFloats(c.tok, el.currents())
			return 0, nil
		}

	case "ctx_Loads_Get_First":
		return e.classFirst("load")
	case "ctx_Loads_Get_Next":
		return e.classNext("load")
	case "ctx_Loads_Get_Count":
		return e.classCount("load")
	case "ctx_Loads_Get_AllNames":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			var names []string
			for _, el := range ckt.byClass("load") {
				names = append(names, el.name)
			}
			ctl.WriteStrings(args[1], args[2], names)
			return 0, nil
		}
	case "ctx_Loads_Get_Name":
		return e.classGetName("load")
	case "ctx_Loads_Set_Name":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			name, err := e.mem.readCString(args[1])
			if err != nil {
				return 0, err
			}
			for i, el := range ckt.byClass("load") {
				if strings.EqualFold(el.name, name) {
					e.selectClass(c, "load", i)
					return 0, nil
				}
			}
			e.fail(c, CodeBadParam, fmt.Sprintf("load %q not found", name))
			return 0, nil
		}
	case "ctx_Loads_Get_kW":
		return e.loadGetF64(func(el *element) float64 { return el.kw })
	case "ctx_Loads_Set_kW":
		return e.loadSetF64(func(el *element, v float64) { el.kw = v })
	case "ctx_Loads_Get_kvar":
		return e.loadGetF64(func(el *element) float64 { return el.kvar })
	case "ctx_Loads_Set_kvar":
		return e.loadSetF64(func(el *element, v float64) { el.kvar = v })
	case "ctx_Loads_Get_Model":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "load")
			if el == nil {
				return 0, nil
			}
			return i32slot(el.model), nil
		}
	case "ctx_Loads_Set_Model":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "load")
			if el == nil {
				return 0, nil
			}
			el.model = engine.DecodeI32(args[1])
			c.circuit.solved = false
			return 0, nil
		}
	case "ctx_Loads_Get_ZIPV_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "load")
			if el == nil {
				return 0, nil
			}
			ctl.SetFloats(c.tok, append([]float64(nil), el.zipv...))
			return 0, nil
		}
	case "ctx_Loads_Set_ZIPV":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "load")
			if el == nil {
				return 0, nil
			}
			vals, err := e.readF64s(args[1], int(engine.DecodeI32(args[2])))
			if err != nil {
				return 0, err
			}
			el.zipv = vals
			return 0, nil
		}

	case "ctx_Meters_ResetAll":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			for _, el := range ckt.byClass("energymeter") {
				for i := range el.registers {
					el.registers[i] = 0
				}
			}
			return 0, nil
		}
	case "ctx_Meters_Get_First":
		return e.classFirst("energymeter")
	case "ctx_Meters_Get_Next":
		return e.classNext("energymeter")
	case "ctx_Meters_Get_Name":
		return e.classGetName("energymeter")
	case "ctx_Meters_Get_RegisterNames":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			if e.needCircuit(c) == nil {
				return 0, nil
			}
			ctl.WriteStrings(args[1], args[2], meterRegisterNames)
			return 0, nil
		}
	case "ctx_Meters_Get_RegisterValues_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "energymeter")
			if el == nil {
				return 0, nil
			}
			ctl.SetFloats(c.tok, append([]float64(nil), el.registers...))
			return 0, nil
		}
	case "ctx_Meters_Get_Totals_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			totals := make([]float64, len(meterRegisterNames))
			for _, el := range ckt.byClass("energymeter") {
				for i, v := range el.registers {
					totals[i] += v
				}
			}
			ctl.SetFloats(c.tok, totals)
			return 0, nil
		}

	case "ctx_Monitors_Get_First":
		return e.classFirst("monitor")
	case "ctx_Monitors_Get_Next":
		return e.classNext("monitor")
	case "ctx_Monitors_Get_Name":
		return e.classGetName("monitor")
	case "ctx_Monitors_ResetAll":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			ckt := e.needCircuit(c)
			if ckt == nil {
				return 0, nil
			}
			for _, el := range ckt.byClass("monitor") {
				el.samples = 0
			}
			return 0, nil
		}
	case "ctx_Monitors_Get_SampleCount":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "monitor")
			if el == nil {
				return 0, nil
			}
			return i32slot(el.samples), nil
		}
	case "ctx_Monitors_Get_Mode":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "monitor")
			if el == nil {
				return 0, nil
			}
			return i32slot(el.monMode), nil
		}
	case "ctx_Monitors_Set_Mode":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "monitor")
			if el == nil {
				return 0, nil
			}
			el.monMode = engine.DecodeI32(args[1])
			return 0, nil
		}
	case "ctx_Monitors_Get_ByteStream_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "monitor")
			if el == nil {
				return 0, nil
			}
			ctl.SetBytes(c.tok, el.byteStream())
			return 0, nil
		}
	case "ctx_Monitors_Get_Channel_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "monitor")
			if el == nil {
				return 0, nil
			}
			idx := engine.DecodeI32(args[1])
			if idx < 1 || idx > monitorChannels {
				e.fail(c, CodeBadIndex, fmt.Sprintf("monitor channel %d out of range", idx))
				return 0, nil
			}
			vals := make([]float64, el.samples)
			for i := range vals {
				vals[i] = el.channelValue(idx, int32(i))
			}
			ctl.SetFloats(c.tok, vals)
			return 0, nil
		}

	case "ctx_Transformers_Get_First":
		return e.classFirst("transformer")
	case "ctx_Transformers_Get_Next":
		return e.classNext("transformer")
	case "ctx_Transformers_Get_Count":
		return e.classCount("transformer")
	case "ctx_Transformers_Get_Name":
		return e.classGetName("transformer")
	case "ctx_Transformers_Get_CoreType":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return i32slot(el.coreType), nil
		}
	case "ctx_Transformers_Set_CoreType":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			el.coreType = engine.DecodeI32(args[1])
			return 0, nil
		}
	case "ctx_Transformers_Get_NumWindings":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return i32slot(el.windings), nil
		}
	case "ctx_Transformers_Get_Wdg":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return f64slot(float64(el.wdg)), nil
		}
	case "ctx_Transformers_Set_Wdg":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			w := int32(engine.DecodeF64(args[1]))
			if w < 1 || w > el.windings {
				e.fail(c, CodeBadIndex, fmt.Sprintf("winding %d out of range 1..%d", w, el.windings))
				return 0, nil
			}
			el.wdg = w
			return 0, nil
		}
	case "ctx_Transformers_Get_kV":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return f64slot(el.wdgKV[el.wdg-1]), nil
		}
	case "ctx_Transformers_Get_kVA":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return f64slot(el.wdgKVA[el.wdg-1]), nil
		}
	case "ctx_Transformers_Get_Xhl":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			return f64slot(el.xhl), nil
		}
	case "ctx_Transformers_Get_WdgVoltages_GR":
		return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
			el := e.activeOf(c, "transformer")
			if el == nil {
				return 0, nil
			}
			ctl.SetComplexes(c.tok, el.wdgVoltages(c.circuit))
			return 0, nil
		}

	case "ctx_Fuses_Get_First":
		return e.classFirst("fuse")
	case "ctx_Fuses_Get_Next":
		return e.classNext("fuse")
	case "ctx_Fuses_Get_Count":
		return e.classCount("fuse")
	case "ctx_Fuses_Get_Name":
		return e.classGetName("fuse")
	case "ctx_Fuses_Get_State":
		return e.fuseGetStates(func(el *element) []string { return el.state })
	case "ctx_Fuses_Set_State":
		return e.fuseSetStates(func(el *element, s []string) { el.state = s })
	case "ctx_Fuses_Get_NormalState":
		return e.fuseGetStates(func(el *element) []string { return el.normalState })
	case "ctx_Fuses_Set_NormalState":
		return e.fuseSetStates(func(el *element, s []string) { el.normalState = s })
	}
	return nil
}

const monitorChannels = 2

// classFirst starts iteration over a class: 0 when the class is empty,
// otherwise 1 with the first element activated.
func (e *Engine) classFirst(class string) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		if c.circuit == nil {
			return i32slot(0), nil
		}
		if len(c.circuit.byClass(class)) == 0 {
			c.setPos(class, 0)
			return i32slot(0), nil
		}
		e.selectClass(c, class, 0)
		return i32slot(1), nil
	}
}

// classNext advances iteration: the new 1-based position, or 0 past the end.
func (e *Engine) classNext(class string) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		if c.circuit == nil {
			return i32slot(0), nil
		}
		els := c.circuit.byClass(class)
		pos := c.pos(class) + 1
		if pos > len(els) {
			return i32slot(0), nil
		}
		e.selectClass(c, class, pos-1)
		return i32slot(int32(pos)), nil
	}
}

func (e *Engine) classCount(class string) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		if c.circuit == nil {
			return i32slot(0), nil
		}
		return i32slot(int32(len(c.circuit.byClass(class)))), nil
	}
}

func (e *Engine) classGetName(class string) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		el := e.activeOf(c, class)
		if el == nil {
			return 0, nil
		}
		return e.mem.cstring(el.name), nil
	}
}

// selectClass makes the i-th element of a class both the class iterator
// position and the circuit's active element, as class selection does in the
// engine.
func (e *Engine) selectClass(c *contextState, class string, i int) {
	c.setPos(class, i+1)
	el := c.circuit.byClass(class)[i]
	for gi, cand := range c.circuit.elements {
		if cand == el {
			c.activeEl = gi + 1
			return
		}
	}
}

func (e *Engine) activeOf(c *contextState, class string) *element {
	if e.needCircuit(c) == nil {
		return nil
	}
	els := c.circuit.byClass(class)
	pos := c.pos(class)
	if pos < 1 || pos > len(els) {
		e.fail(c, CodeNoActive, fmt.Sprintf("no active %s element", classDisplay[class]))
		return nil
	}
	return els[pos-1]
}

func (e *Engine) activeElement(c *contextState) *element {
	if e.needCircuit(c) == nil {
		return nil
	}
	if c.activeEl < 1 || c.activeEl > len(c.circuit.elements) {
		e.fail(c, CodeNoActive, "no active circuit element")
		return nil
	}
	return c.circuit.elements[c.activeEl-1]
}

func (e *Engine) loadGetF64(get func(*element) float64) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		el := e.activeOf(c, "load")
		if el == nil {
			return 0, nil
		}
		return f64slot(get(el)), nil
	}
}

func (e *Engine) loadSetF64(set func(*element, float64)) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		el := e.activeOf(c, "load")
		if el == nil {
			return 0, nil
		}
		set(el, engine.DecodeF64(args[1]))
		c.circuit.solved = false
		return 0, nil
	}
}

func (e *Engine) fuseGetStates(get func(*element) []string) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		el := e.activeOf(c, "fuse")
		if el == nil {
			return 0, nil
		}
		ctl.WriteStrings(args[1], args[2], get(el))
		return 0, nil
	}
}

func (e *Engine) fuseSetStates(set func(*element, []string)) opFunc {
	return func(c *contextState, ctl *Ctl, args []uint64) (uint64, error) {
		el := e.activeOf(c, "fuse")
		if el == nil {
			return 0, nil
		}
		n := int(engine.DecodeI32(args[2]))
		ptrs, err := e.mem.readPtrs(args[1], n)
		if err != nil {
			return 0, err
		}
		vals := make([]string, n)
		for i, p := range ptrs {
			s, err := e.mem.readCString(p)
			if err != nil {
				return 0, err
			}
			vals[i] = s
		}
		set(el, vals)
		return 0, nil
	}
}

// powers returns per-conductor (kW, kvar) pairs. Loads draw their demand,
// sources deliver the circuit total, wires pass power through with a small
// loss between terminals.
func (el *element) powers(ckt *circuit) []float64 {
	ph := int(el.phases)
	if ph < 1 {
		ph = 1
	}
	var out []float64
	switch el.class {
	case "load":
		for i := 0; i < ph; i++ {
			out = append(out, el.kw*ckt.loadMult/float64(ph), el.kvar*ckt.loadMult/float64(ph))
		}
	case "vsource":
		kw, kvar := ckt.totals()
		for i := 0; i < ph; i++ {
			out = append(out, -kw/float64(ph), -kvar/float64(ph))
		}
	default:
		kw, kvar := ckt.totals()
		for i := 0; i < ph; i++ {
			out = append(out, kw/float64(ph), kvar/float64(ph))
		}
		for i := 0; i < ph; i++ {
			out = append(out, -kw*0.97/float64(ph), -kvar*0.98/float64(ph))
		}
	}
	return out
}

// currents returns per-conductor (re, im) ampere pairs with a deterministic
// magnitude per element.
func (el *element) currents() []float64 {
	ph := int(el.phases)
	if ph < 1 {
		ph = 1
	}
	base := 10 + float64(len(el.name))
	var out []float64
	for i := 0; i < ph; i++ {
		ang := -2 * math.Pi / 3 * float64(i)
		out = append(out, base*math.Cos(ang), base*math.Sin(ang))
	}
	return out
}

// wdgVoltages returns per-phase voltages of the active winding, empty
// before a solve.
func (el *element) wdgVoltages(ckt *circuit) []complex128 {
	if !ckt.solved {
		return nil
	}
	kv := el.wdgKV[el.wdg-1]
	mag := kv * 1000 / math.Sqrt(3) * 0.98
	var out []complex128
	for i := int32(0); i < el.phases; i++ {
		ang := -2 * math.Pi / 3 * float64(i)
		out = append(out, complex(mag*math.Cos(ang), mag*math.Sin(ang)))
	}
	return out
}

// byteStream packs the monitor's record file: signature, version, mode,
// sample count, then one record of (hour, sec, channels...) per sample as
// 32-bit floats.
func (el *element) byteStream() []byte {
	buf := make([]byte, 0, 16+int(el.samples)*(2+monitorChannels)*4)
	buf = binary.LittleEndian.AppendUint32(buf, monitorSignature)
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(el.monMode))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(el.samples))
	for s := int32(0); s < el.samples; s++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(s)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0))
		for ch := int32(1); ch <= monitorChannels; ch++ {
			buf = binary.LittleEndian.AppendUint32(buf,
				math.Float32bits(float32(el.channelValue(ch, s))))
		}
	}
	return buf
}

func (el *element) channelValue(channel, sample int32) float64 {
	return float64(channel)*100 + float64(len(el.name)) + float64(sample)*0.25
}
