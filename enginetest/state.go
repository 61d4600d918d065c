package enginetest

import (
	"fmt"
	"math"
	"math/cmplx"
	"strconv"
	"strings"
)

// Stable error codes raised by the simulation on its error channel. The
// values are arbitrary but fixed so tests can match on them.
const (
	CodeUnknownCommand int32 = 212
	CodeNoCircuit      int32 = 255
	CodeUnknownClass   int32 = 262
	CodeNoActive       int32 = 263
	CodeBadParam       int32 = 281
	CodeBadIndex       int32 = 289
)

// contextState is one simulated engine context: the protocol cells the
// interop layer reads and writes through Memory, plus the circuit being
// edited. Contexts are fully isolated from each other.
type contextState struct {
	tok      uint64
	errFlag  uint64    // int32 cell, read and cleared by the caller
	grCnt    [4]uint64 // result count cells: text, float, int, byte
	grDat    [4]uint64 // result data pointer slots, same order
	started  bool
	disposed bool
	errDesc  string

	circuit   *circuit
	allowDir  bool
	result    string
	iter      map[string]int // class -> 1-based iteration position, 0 none
	activeEl  int            // 1-based index into circuit.elements, 0 none
	activeBus int            // 1-based index into circuit.buses, 0 none
}

func (c *contextState) pos(class string) int {
	if c.iter == nil {
		return 0
	}
	return c.iter[class]
}

func (c *contextState) setPos(class string, p int) {
	if c.iter == nil {
		c.iter = make(map[string]int)
	}
	c.iter[class] = p
}

type circuit struct {
	name     string
	buses    []*bus
	busIndex map[string]*bus
	elements []*element

	solved     bool
	converged  bool
	iterations int32

	mode     int32
	control  int32
	loadMult float64
	number   int32
	stepsize float64 // minutes
	hour     float64

	voltageBases []float64
}

type bus struct {
	name   string
	nodes  []int32
	kvBase float64
	vpu    []complex128 // per node, filled by solve
}

type element struct {
	class   string
	name    string
	props   map[string]string
	enabled bool
	phases  int32
	busRefs []string

	// load
	kw, kvar float64
	model    int32
	zipv     []float64

	// transformer
	coreType int32
	windings int32
	wdg      int32 // active winding, 1-based
	wdgKV    []float64
	wdgKVA   []float64
	xhl      float64

	// fuse
	state       []string
	normalState []string

	// monitor
	monMode    int32
	samples    int32
	monitored  string
	monTerm    int32

	// energymeter
	registers []float64
}

func (el *element) full() string {
	return classDisplay[el.class] + "." + el.name
}

var classDisplay = map[string]string{
	"circuit":     "Circuit",
	"vsource":     "Vsource",
	"load":        "Load",
	"line":        "Line",
	"transformer": "Transformer",
	"capacitor":   "Capacitor",
	"reactor":     "Reactor",
	"fuse":        "Fuse",
	"energymeter": "EnergyMeter",
	"monitor":     "Monitor",
	"linecode":    "Linecode",
	"loadshape":   "Loadshape",
	"regcontrol":  "RegControl",
}

// propNames lists property names per class in definition order, served by
// AllPropertyNames. Trimmed to the properties the simulation understands
// plus the usual leaders of each class.
var propNames = map[string][]string{
	"load": {"phases", "bus1", "kV", "kW", "pf", "model", "yearly", "daily",
		"conn", "kvar", "status", "vminpu", "vmaxpu", "zipv"},
	"line": {"bus1", "bus2", "linecode", "length", "phases", "r1", "x1",
		"r0", "x0", "units"},
	"transformer": {"phases", "windings", "wdg", "bus", "conn", "kV", "kVA",
		"tap", "XHL", "coretype"},
	"fuse": {"monitoredobj", "monitoredterm", "switchedobj", "switchedterm",
		"fusecurve", "ratedcurrent", "delay", "action", "normal", "state"},
	"energymeter": {"element", "terminal", "action", "option", "peakcurrent"},
	"monitor":     {"element", "terminal", "mode", "action", "residual", "ppolar"},
	"vsource":     {"bus1", "basekv", "pu", "angle", "frequency", "phases"},
	"capacitor":   {"bus1", "bus2", "phases", "kvar", "kv", "conn"},
	"reactor":     {"bus1", "bus2", "phases", "kvar", "kv", "conn"},
	"linecode":    {"nphases", "r1", "x1", "r0", "x0", "units"},
	"loadshape":   {"npts", "interval", "mult", "hour"},
	"regcontrol":  {"transformer", "winding", "vreg", "band", "ptratio"},
}

func (e *Engine) fail(c *contextState, code int32, desc string) {
	e.mem.writeI32(c.errFlag, code)
	c.errDesc = desc
}

// exec runs one command line against the context, raising engine errors on
// the context's error channel rather than returning them.
func (e *Engine) exec(c *contextState, line string) {
	c.result = ""
	toks := splitLine(line)
	if len(toks) == 0 {
		return
	}
	verb := strings.ToLower(toks[0])
	if strings.HasPrefix(verb, "//") {
		return
	}
	switch verb {
	case "clear", "clearall":
		c.circuit = nil
		c.iter = nil
		c.activeEl, c.activeBus = 0, 0
	case "new":
		if len(toks) < 2 {
			e.fail(c, CodeBadParam, "new: missing object name")
			return
		}
		e.execNew(c, toks[1], toks[2:])
	case "edit":
		if len(toks) < 2 {
			e.fail(c, CodeBadParam, "edit: missing object name")
			return
		}
		e.execEdit(c, toks[1], toks[2:])
	case "set":
		e.execSet(c, toks[1:])
	case "solve":
		if c.circuit == nil {
			e.fail(c, CodeNoCircuit, "make a new circuit before solving")
			return
		}
		e.solve(c)
	case "calcvoltagebases":
		e.execCalcVoltageBases(c)
	default:
		if strings.HasPrefix(verb, "?") {
			ref := strings.TrimPrefix(verb, "?")
			if ref == "" && len(toks) > 1 {
				ref = toks[1]
			}
			e.execQuery(c, ref)
			return
		}
		e.fail(c, CodeUnknownCommand, fmt.Sprintf("unknown command: %q", toks[0]))
	}
}

// execQuery answers a "? class.name.property" query on the result channel.
func (e *Engine) execQuery(c *contextState, ref string) {
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "no circuit to query")
		return
	}
	parts := strings.SplitN(strings.ToLower(ref), ".", 3)
	if len(parts) != 3 {
		e.fail(c, CodeBadParam, fmt.Sprintf("query %q needs class.name.property form", ref))
		return
	}
	el := c.circuit.find(parts[0], parts[1])
	if el == nil {
		e.fail(c, CodeBadParam, fmt.Sprintf("%s.%s not found", parts[0], parts[1]))
		return
	}
	switch parts[2] {
	case "kw":
		c.result = strconv.FormatFloat(el.kw, 'g', -1, 64)
	case "kvar":
		c.result = strconv.FormatFloat(el.kvar, 'g', -1, 64)
	case "model":
		c.result = strconv.FormatInt(int64(el.model), 10)
	case "phases":
		c.result = strconv.FormatInt(int64(el.phases), 10)
	case "xhl":
		c.result = strconv.FormatFloat(el.xhl, 'g', -1, 64)
	case "state":
		c.result = "[" + strings.Join(el.state, " ") + "]"
	default:
		v, ok := el.props[parts[2]]
		if !ok {
			e.fail(c, CodeBadParam, fmt.Sprintf("%s has no property %q", el.full(), parts[2]))
			return
		}
		c.result = v
	}
}

// execBlock runs a multi-line script, stopping at the first line that
// raises an engine error.
func (e *Engine) execBlock(c *contextState, script string) {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "!") {
			continue
		}
		e.exec(c, line)
		if flag, _ := e.mem.readI32(c.errFlag); flag != 0 {
			return
		}
	}
}

func (e *Engine) execNew(c *contextState, objName string, props []string) {
	class, name, ok := strings.Cut(strings.ToLower(objName), ".")
	if !ok {
		e.fail(c, CodeBadParam, fmt.Sprintf("object name %q needs class.name form", objName))
		return
	}
	if class == "circuit" {
		ckt := &circuit{
			name:      name,
			busIndex:  make(map[string]*bus),
			loadMult:  1.0,
			number:    100,
			stepsize:  60,
			converged: false,
		}
		src := &element{
			class:   "vsource",
			name:    "source",
			props:   map[string]string{},
			enabled: true,
			phases:  3,
			busRefs: []string{"sourcebus"},
		}
		ckt.elements = append(ckt.elements, src)
		c.circuit = ckt
		sb := ckt.getBus("sourcebus", 3)
		sb.kvBase = 66.4 // 115 kV line-line default until bases are set
		for _, kv := range props {
			k, v, _ := strings.Cut(kv, "=")
			src.props[strings.ToLower(k)] = v
			if strings.EqualFold(k, "basekv") {
				if f, err := atof(v); err == nil {
					sb.kvBase = f / math.Sqrt(3)
				}
			}
		}
		c.activeEl, c.activeBus = 0, 0
		c.iter = nil
		return
	}

	if _, known := classDisplay[class]; !known {
		e.fail(c, CodeUnknownClass, fmt.Sprintf("DSS class %q not found", class))
		return
	}
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "make a new circuit before defining objects")
		return
	}
	if c.circuit.find(class, name) != nil {
		e.fail(c, CodeBadParam, fmt.Sprintf("%s.%s already exists", class, name))
		return
	}
	el := newElement(class, name)
	for _, kv := range props {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			e.fail(c, CodeBadParam, fmt.Sprintf("property %q needs key=value form", kv))
			return
		}
		el.apply(c.circuit, strings.ToLower(k), v)
	}
	el.finish(c.circuit)
	c.circuit.elements = append(c.circuit.elements, el)
	c.circuit.solved = false
	c.activeEl = len(c.circuit.elements)
}

func (e *Engine) execEdit(c *contextState, objName string, props []string) {
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "no circuit to edit")
		return
	}
	class, name, _ := strings.Cut(strings.ToLower(objName), ".")
	el := c.circuit.find(class, name)
	if el == nil {
		e.fail(c, CodeBadParam, fmt.Sprintf("%s not found", objName))
		return
	}
	for _, kv := range props {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			e.fail(c, CodeBadParam, fmt.Sprintf("property %q needs key=value form", kv))
			return
		}
		el.apply(c.circuit, strings.ToLower(k), v)
	}
	c.circuit.solved = false
}

func (e *Engine) execSet(c *contextState, pairs []string) {
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "make a new circuit before set")
		return
	}
	ckt := c.circuit
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			e.fail(c, CodeBadParam, fmt.Sprintf("set needs key=value, got %q", kv))
			return
		}
		switch strings.ToLower(k) {
		case "mode":
			ckt.mode = solveModeNumber(v)
		case "controlmode":
			ckt.control = controlModeNumber(v)
		case "loadmult":
			if f, err := atof(v); err == nil {
				ckt.loadMult = f
				ckt.solved = false
			}
		case "number":
			if n, err := atoi(v); err == nil {
				ckt.number = n
			}
		case "stepsize", "stepsizemin":
			if f, err := atof(v); err == nil {
				ckt.stepsize = f
			}
		case "voltagebases":
			ckt.voltageBases = parseFloats(v)
		default:
			// Unrecognized options are accepted and ignored.
		}
	}
}

func (e *Engine) execCalcVoltageBases(c *contextState) {
	if c.circuit == nil {
		e.fail(c, CodeNoCircuit, "make a new circuit first")
		return
	}
	ckt := c.circuit
	if len(ckt.voltageBases) == 0 {
		e.fail(c, CodeBadParam, "set voltagebases before calcvoltagebases")
		return
	}
	// Without impedance data, base assignment is positional: the source bus
	// keeps the first base, everything downstream gets the second.
	first := ckt.voltageBases[0]
	rest := first
	if len(ckt.voltageBases) > 1 {
		rest = ckt.voltageBases[1]
	}
	for i, b := range ckt.buses {
		base := rest
		if i == 0 {
			base = first
		}
		b.kvBase = base / math.Sqrt(3)
	}
}

// solve marks the circuit solved and fills deterministic per-node voltages.
// Magnitudes sag with bus ordinal and total load so different load
// multipliers produce visibly different solutions.
func (e *Engine) solve(c *contextState) {
	ckt := c.circuit
	totKW, totKvar := ckt.totals()
	ckt.iterations = 2 + int32(len(ckt.elements)%3)
	ckt.converged = true
	ckt.solved = true

	for i, b := range ckt.buses {
		sag := 0.004*float64(i) + totKW*2e-5
		mag := 1.05 - sag
		if mag < 0.8 {
			mag = 0.8
		}
		b.vpu = b.vpu[:0]
		for _, node := range b.nodes {
			ang := -2 * math.Pi / 3 * float64((node-1)%3)
			b.vpu = append(b.vpu, cmplx.Rect(mag, ang))
		}
	}

	steps := int32(1)
	dtHours := 1.0
	if ckt.mode != 0 {
		steps = ckt.number
		dtHours = ckt.stepsize / 60 * float64(steps)
		ckt.hour += dtHours
	}
	for _, el := range ckt.elements {
		switch el.class {
		case "monitor":
			if el.enabled {
				el.samples += steps
			}
		case "energymeter":
			if el.enabled {
				el.accumulate(totKW, totKvar, dtHours)
			}
		}
	}
}

func (ckt *circuit) totals() (kw, kvar float64) {
	for _, el := range ckt.elements {
		if el.class == "load" && el.enabled {
			kw += el.kw * ckt.loadMult
			kvar += el.kvar * ckt.loadMult
		}
	}
	return kw, kvar
}

func (ckt *circuit) getBus(ref string, phases int32) *bus {
	name, _, _ := strings.Cut(strings.ToLower(ref), ".")
	b := ckt.busIndex[name]
	if b == nil {
		b = &bus{name: name, kvBase: 2.4018}
		ckt.busIndex[name] = b
		ckt.buses = append(ckt.buses, b)
	}
	b.addNodes(ref, phases)
	return b
}

// addNodes merges the node references of one bus connection, "675.1.3" style.
// A bare bus name connects the first phases nodes.
func (b *bus) addNodes(ref string, phases int32) {
	_, spec, explicit := strings.Cut(ref, ".")
	var nodes []int32
	if explicit {
		for _, p := range strings.Split(spec, ".") {
			if n, err := atoi(p); err == nil && n > 0 {
				nodes = append(nodes, n)
			}
		}
	} else {
		for n := int32(1); n <= phases; n++ {
			nodes = append(nodes, n)
		}
	}
	for _, n := range nodes {
		if !containsI32(b.nodes, n) {
			b.nodes = append(b.nodes, n)
		}
	}
}

func (ckt *circuit) find(class, name string) *element {
	for _, el := range ckt.elements {
		if el.class == class && strings.EqualFold(el.name, name) {
			return el
		}
	}
	return nil
}

func (ckt *circuit) byClass(class string) []*element {
	var out []*element
	for _, el := range ckt.elements {
		if el.class == class {
			out = append(out, el)
		}
	}
	return out
}

func (ckt *circuit) numNodes() int32 {
	var n int32
	for _, b := range ckt.buses {
		n += int32(len(b.nodes))
	}
	return n
}

func newElement(class, name string) *element {
	el := &element{
		class:   class,
		name:    name,
		props:   map[string]string{},
		enabled: true,
		phases:  3,
	}
	switch class {
	case "load":
		el.model = 1
	case "transformer":
		el.windings = 2
		el.wdg = 1
		el.wdgKV = make([]float64, 2)
		el.wdgKVA = make([]float64, 2)
	case "energymeter":
		el.registers = make([]float64, len(meterRegisterNames))
	}
	return el
}

// apply stores one property and interprets the ones the simulation models.
func (el *element) apply(ckt *circuit, key, val string) {
	el.props[key] = val
	switch key {
	case "phases":
		if n, err := atoi(val); err == nil {
			el.phases = n
		}
	case "bus1", "bus2", "bus":
		el.busRefs = append(el.busRefs, val)
	case "buses":
		el.busRefs = append(el.busRefs, parseStrings(val)...)
	case "kw":
		el.kw, _ = atof(val)
	case "kvar":
		el.kvar, _ = atof(val)
	case "model":
		if n, err := atoi(val); err == nil {
			el.model = n
		}
	case "zipv":
		el.zipv = parseFloats(val)
	case "windings":
		if n, err := atoi(val); err == nil && n > 0 {
			el.windings = n
			el.wdgKV = resize(el.wdgKV, int(n))
			el.wdgKVA = resize(el.wdgKVA, int(n))
		}
	case "wdg":
		if n, err := atoi(val); err == nil && n >= 1 && n <= el.windings {
			el.wdg = n
		}
	case "kv":
		if el.class == "transformer" {
			el.wdgKV[el.wdg-1], _ = atof(val)
		}
	case "kva":
		if el.class == "transformer" {
			el.wdgKVA[el.wdg-1], _ = atof(val)
		}
	case "xhl":
		el.xhl, _ = atof(val)
	case "coretype":
		if n, err := atoi(val); err == nil {
			el.coreType = n
		}
	case "normal":
		el.normalState = parseStrings(val)
	case "state":
		el.state = parseStrings(val)
	case "element", "monitoredobj":
		el.monitored = strings.ToLower(val)
	case "terminal", "monitoredterm":
		if n, err := atoi(val); err == nil {
			el.monTerm = n
		}
	case "mode":
		if n, err := atoi(val); err == nil {
			el.monMode = n
		}
	}
}

// finish resolves bus references and per-phase defaults once all properties
// are in.
func (el *element) finish(ckt *circuit) {
	for _, ref := range el.busRefs {
		ckt.getBus(ref, el.phases)
	}
	if el.class == "fuse" {
		if len(el.normalState) == 0 {
			el.normalState = make([]string, el.phases)
			for i := range el.normalState {
				el.normalState[i] = "closed"
			}
		}
		if len(el.state) == 0 {
			el.state = append([]string(nil), el.normalState...)
		}
	}
}

var meterRegisterNames = []string{
	"kWh", "kvarh", "Max kW", "Max kVA",
	"Zone kWh", "Zone kvarh", "Zone Max kW", "Zone Max kVA",
	"Overload kWh Normal", "Overload kWh Emerg", "Load EEN", "Load UE",
}

func (el *element) accumulate(kw, kvar, dtHours float64) {
	kva := math.Hypot(kw, kvar)
	el.registers[0] += kw * dtHours
	el.registers[1] += kvar * dtHours
	el.registers[2] = math.Max(el.registers[2], kw)
	el.registers[3] = math.Max(el.registers[3], kva)
	el.registers[4] += kw * dtHours * 1.03 // zone view includes losses
	el.registers[5] += kvar * dtHours * 1.02
	el.registers[6] = math.Max(el.registers[6], kw*1.03)
	el.registers[7] = math.Max(el.registers[7], kva*1.03)
}

var solveModeNames = map[string]int32{
	"snap": 0, "snapshot": 0, "daily": 1, "yearly": 2, "duty": 6, "dutycycle": 6,
	"time": 16,
}

func solveModeNumber(s string) int32 {
	if n, ok := solveModeNames[strings.ToLower(s)]; ok {
		return n
	}
	if n, err := atoi(s); err == nil {
		return n
	}
	return 0
}

var controlModeNames = map[string]int32{
	"off": -1, "static": 0, "event": 1, "time": 2,
}

func controlModeNumber(s string) int32 {
	if n, ok := controlModeNames[strings.ToLower(s)]; ok {
		return n
	}
	if n, err := atoi(s); err == nil {
		return n
	}
	return 0
}

// splitLine splits a command line on whitespace while keeping bracketed and
// quoted groups attached to their token.
func splitLine(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	var quote byte
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			cur.WriteByte(ch)
		case ch == '(' || ch == '[' || ch == '{':
			depth++
			cur.WriteByte(ch)
		case ch == ')' || ch == ']' || ch == '}':
			depth--
			cur.WriteByte(ch)
		case depth == 0 && (ch == ' ' || ch == '\t' || ch == ','):
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return out
}

// parseStrings reads a bracketed or quoted list into its items.
func parseStrings(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "()[]{}\"'")
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	}) {
		f = strings.Trim(f, "\"'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseFloats(s string) []float64 {
	var out []float64
	for _, f := range parseStrings(s) {
		if v, err := atof(f); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func atof(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func atoi(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	return int32(n), err
}

func containsI32(xs []int32, v int32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func resize(xs []float64, n int) []float64 {
	for len(xs) < n {
		xs = append(xs, 0)
	}
	return xs[:n]
}
