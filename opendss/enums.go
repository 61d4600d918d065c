package opendss

import (
	"fmt"

	"github.com/wippyai/dss-runtime/errors"
)

// SolveMode selects the solution algorithm's time handling.
type SolveMode int32

const (
	SolveSnap          SolveMode = 0
	SolveDaily         SolveMode = 1
	SolveYearly        SolveMode = 2
	SolveMonte1        SolveMode = 3
	SolveLoadDuration1 SolveMode = 4
	SolveMonte2        SolveMode = 5
	SolveDuty          SolveMode = 6
	SolveDirect        SolveMode = 7
	SolveMonteFault    SolveMode = 8
	SolvePeakDay       SolveMode = 9
	SolveLoadDuration2 SolveMode = 10
	SolveMonte3        SolveMode = 11
	SolveFaultStudy    SolveMode = 12
	SolveAutoAdd       SolveMode = 13
	SolveDynamic       SolveMode = 14
	SolveHarmonic      SolveMode = 15
	SolveTime          SolveMode = 16
	SolveHarmonicT     SolveMode = 17
)

// SolveModeFromInt32 validates a raw engine discriminant.
func SolveModeFromInt32(v int32) (SolveMode, error) {
	if v < 0 || v > 17 {
		return 0, errors.InvalidEnum("", v, "SolveMode")
	}
	return SolveMode(v), nil
}

func (m SolveMode) String() string {
	switch m {
	case SolveSnap:
		return "Snap"
	case SolveDaily:
		return "Daily"
	case SolveYearly:
		return "Yearly"
	case SolveMonte1:
		return "Monte1"
	case SolveLoadDuration1:
		return "LoadDuration1"
	case SolveMonte2:
		return "Monte2"
	case SolveDuty:
		return "Duty"
	case SolveDirect:
		return "Direct"
	case SolveMonteFault:
		return "MonteFault"
	case SolvePeakDay:
		return "PeakDay"
	case SolveLoadDuration2:
		return "LoadDuration2"
	case SolveMonte3:
		return "Monte3"
	case SolveFaultStudy:
		return "FaultStudy"
	case SolveAutoAdd:
		return "AutoAdd"
	case SolveDynamic:
		return "Dynamic"
	case SolveHarmonic:
		return "Harmonic"
	case SolveTime:
		return "Time"
	case SolveHarmonicT:
		return "HarmonicT"
	}
	return fmt.Sprintf("SolveMode(%d)", int32(m))
}

// ControlMode selects how control actions are processed during a solution.
type ControlMode int32

const (
	ControlOff       ControlMode = -1
	ControlStatic    ControlMode = 0
	ControlEvent     ControlMode = 1
	ControlTime      ControlMode = 2
	ControlMultiRate ControlMode = 3
)

// ControlModeFromInt32 validates a raw engine discriminant.
func ControlModeFromInt32(v int32) (ControlMode, error) {
	if v < -1 || v > 3 {
		return 0, errors.InvalidEnum("", v, "ControlMode")
	}
	return ControlMode(v), nil
}

func (m ControlMode) String() string {
	switch m {
	case ControlOff:
		return "Off"
	case ControlStatic:
		return "Static"
	case ControlEvent:
		return "Event"
	case ControlTime:
		return "Time"
	case ControlMultiRate:
		return "MultiRate"
	}
	return fmt.Sprintf("ControlMode(%d)", int32(m))
}

// LoadModel selects a load's voltage dependence model.
type LoadModel int32

const (
	LoadConstPQ      LoadModel = 1
	LoadConstZ       LoadModel = 2
	LoadMotor        LoadModel = 3
	LoadCVR          LoadModel = 4
	LoadConstI       LoadModel = 5
	LoadConstPFixedQ LoadModel = 6
	LoadConstPFixedX LoadModel = 7
	LoadZIPV         LoadModel = 8
)

// LoadModelFromInt32 validates a raw engine discriminant.
func LoadModelFromInt32(v int32) (LoadModel, error) {
	if v < 1 || v > 8 {
		return 0, errors.InvalidEnum("", v, "LoadModel")
	}
	return LoadModel(v), nil
}

func (m LoadModel) String() string {
	switch m {
	case LoadConstPQ:
		return "ConstPQ"
	case LoadConstZ:
		return "ConstZ"
	case LoadMotor:
		return "Motor"
	case LoadCVR:
		return "CVR"
	case LoadConstI:
		return "ConstI"
	case LoadConstPFixedQ:
		return "ConstPFixedQ"
	case LoadConstPFixedX:
		return "ConstPFixedX"
	case LoadZIPV:
		return "ZIPV"
	}
	return fmt.Sprintf("LoadModel(%d)", int32(m))
}

// CoreType is a transformer's core construction. The engine's discriminants
// are sparse; anything outside the set is rejected rather than preserved.
type CoreType int32

const (
	CoreShell    CoreType = 0
	CoreOnePhase CoreType = 1
	CoreThreeLeg CoreType = 3
	CoreFourLeg  CoreType = 4
	CoreFiveLeg  CoreType = 5
	CoreCore1    CoreType = 9
)

// CoreTypeFromInt32 validates a raw engine discriminant.
func CoreTypeFromInt32(v int32) (CoreType, error) {
	switch v {
	case 0, 1, 3, 4, 5, 9:
		return CoreType(v), nil
	}
	return 0, errors.InvalidEnum("", v, "CoreType")
}

func (c CoreType) String() string {
	switch c {
	case CoreShell:
		return "Shell"
	case CoreOnePhase:
		return "OnePhase"
	case CoreThreeLeg:
		return "ThreeLeg"
	case CoreFourLeg:
		return "FourLeg"
	case CoreFiveLeg:
		return "FiveLeg"
	case CoreCore1:
		return "Core1Phase"
	}
	return fmt.Sprintf("CoreType(%d)", int32(c))
}

// MonitorMode is a monitor's base quantity plus optional presentation flags
// in the high bits.
type MonitorMode int32

const (
	MonitorVI     MonitorMode = 0
	MonitorPower  MonitorMode = 1
	MonitorTaps   MonitorMode = 2
	MonitorStates MonitorMode = 3

	MonitorSequence  MonitorMode = 16
	MonitorMagnitude MonitorMode = 32
	MonitorPosOnly   MonitorMode = 64
)

const monitorFlagMask = int32(MonitorSequence | MonitorMagnitude | MonitorPosOnly)

// MonitorModeFromInt32 validates a raw engine discriminant: a base mode of
// 0..3 with any combination of the presentation flags.
func MonitorModeFromInt32(v int32) (MonitorMode, error) {
	base := v &^ monitorFlagMask
	if base < 0 || base > 3 {
		return 0, errors.InvalidEnum("", v, "MonitorMode")
	}
	return MonitorMode(v), nil
}

// Base strips the presentation flags.
func (m MonitorMode) Base() MonitorMode { return m &^ MonitorMode(monitorFlagMask) }

func (m MonitorMode) String() string {
	s := ""
	switch m.Base() {
	case MonitorVI:
		s = "VI"
	case MonitorPower:
		s = "Power"
	case MonitorTaps:
		s = "Taps"
	case MonitorStates:
		s = "States"
	default:
		return fmt.Sprintf("MonitorMode(%d)", int32(m))
	}
	if m&MonitorSequence != 0 {
		s += "+Sequence"
	}
	if m&MonitorMagnitude != 0 {
		s += "+Magnitude"
	}
	if m&MonitorPosOnly != 0 {
		s += "+PosOnly"
	}
	return s
}
