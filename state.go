package nx595e

import "golang.org/x/exp/slices"

// AreaBank is a bit position inside an area bank state. Most positions were
// reverse engineered and their purpose is unknown, so they are kept opaque.
type AreaBank int

const (
	AreaBankArmed AreaBank = iota
	AreaBankPartial
	AreaBankUnknown02
	AreaBankFireAlarm
	AreaBankBurglarAlarm
	AreaBankPanicAlarm
	AreaBankMedicalAlarm
	AreaBankExitMode01
	AreaBankExitMode02
	AreaBankUnknown09
	AreaBankUnknown10
	AreaBankUnknown11
	AreaBankUnknown12
	AreaBankUnknown13
	AreaBankUnknown14
	AreaBankChime
	AreaBankUnknown16
)

// areaBankSize is the number of stat words the panel reports per area group.
const areaBankSize = 17

// AreaState is a candidate area status. Its value doubles as the bit
// position checked in the area virtual bank.
type AreaState int

const (
	AreaArmedAway AreaState = iota
	AreaArmedStay
	AreaReady
	AreaAlarmFire
	AreaAlarmBurglar
	AreaAlarmPanic
	AreaAlarmMedical
	AreaDelayExit1
	AreaDelayExit2
	AreaDelayEntry
	AreaSensorBypass
	AreaSensorTrouble
	AreaSensorTamper
	AreaSensorBattery
	AreaSensorSupervision
	AreaNotReady
	AreaNotReadyForceable
	AreaDisarmed
)

var areaStatusText = [...]string{
	"Armed Away",
	"Armed Stay",
	"Ready",
	"Fire Alarm",
	"Burglar Alarm",
	"Panic Alarm",
	"Medical Alarm",
	"Exit Delay 1",
	"Exit Delay 2",
	"Entry Delay",
	"Sensor Bypass",
	"Sensor Trouble",
	"Sensor Tamper",
	"Sensor Low Battery",
	"Sensor Supervision",
	"Not Ready",
	"Not Ready",
	"Disarm",
}

func (s AreaState) String() string {
	if s < 0 || int(s) >= len(areaStatusText) {
		return "Unknown"
	}
	return areaStatusText[s]
}

// areaStatePriority is walked top to bottom; the first candidate whose bit
// is set becomes the area status.
var areaStatePriority = []AreaState{
	AreaAlarmFire,
	AreaAlarmBurglar,
	AreaAlarmPanic,
	AreaAlarmMedical,

	AreaDelayExit1,
	AreaDelayExit2,
	AreaDelayEntry,

	AreaArmedAway,
	AreaArmedStay,

	AreaSensorBypass,
	AreaSensorTrouble,
	AreaSensorTamper,
	AreaSensorBattery,
	AreaSensorSupervision,

	AreaReady,
}

const noSystemFaults = "No System Faults"

type areaDecode struct {
	status   string
	priority int
	states   AreaStates
}

// decodeArea resolves the status, priority and flags of the area at the given
// bank out of its raw bank state and the system fault lines last reported by
// the panel.
func decodeArea(bank int, bankState []int, faults []string) areaDecode {
	mask := 1 << (bank % 8)
	var vbank [areaBankSize]bool
	for i := 0; i < areaBankSize && i < len(bankState); i++ {
		vbank[i] = bankState[i]&mask != 0
	}

	states := AreaStates{
		Armed:   vbank[AreaBankArmed],
		Partial: vbank[AreaBankPartial],
		Chime:   vbank[AreaBankChime],
		Exit1:   vbank[AreaBankExitMode01],
		Exit2:   vbank[AreaBankExitMode02],
	}

	return areaDecode{
		status:   areaStatus(vbank, states, faults),
		priority: areaPriority(vbank, states, faults),
		states:   states,
	}
}

func areaStatus(vbank [areaBankSize]bool, states AreaStates, faults []string) string {
	armed := states.Armed || states.Partial
	for _, candidate := range areaStatePriority {
		set := vbank[candidate]
		if candidate == AreaReady {
			if armed {
				// ready is meaningless once the area is armed
				continue
			}
			if !set {
				return AreaNotReady.String()
			}
		}
		if set {
			return candidate.String()
		}
	}

	if len(faults) > 0 {
		if faults[0] == noSystemFaults {
			return AreaNotReady.String()
		}
		return faults[0]
	}
	return AreaReady.String()
}

func areaPriority(vbank [areaBankSize]bool, states AreaStates, faults []string) int {
	switch {
	case vbank[AreaBankFireAlarm] || vbank[AreaBankBurglarAlarm] ||
		vbank[AreaBankPanicAlarm] || vbank[AreaBankMedicalAlarm]:
		return 1
	case vbank[AreaBankUnknown11] || vbank[AreaBankUnknown12] ||
		vbank[AreaBankUnknown13] || vbank[AreaBankUnknown14] ||
		hasSystemFaults(faults):
		return 2
	case vbank[AreaBankUnknown10] || states.Partial:
		return 3
	case states.Armed:
		return 4
	case vbank[AreaBankUnknown02]:
		return 5
	default:
		return 6
	}
}

func hasSystemFaults(faults []string) bool {
	return slices.ContainsFunc(faults, func(s string) bool {
		return s != noSystemFaults
	})
}

// ZoneState is a bit position inside the zone state banks. Only the bypass
// bits are known for sure, the rest are kept opaque.
type ZoneState int

const (
	ZoneStateUnknown00 ZoneState = iota
	ZoneStateUnknown01
	ZoneStateUnknown02
	ZoneStateBypassed
	ZoneStateUnknown04
	ZoneStateUnknown05
	ZoneStateUnknown06
	ZoneStateUnknown07
	ZoneStateAutoBypass
	ZoneStateUnknown09
	ZoneStateUnknown10
	ZoneStateUnknown11
	ZoneStateUnknown12
	ZoneStateUnknown13
)

const (
	zoneStatusReady    = "Ready"
	zoneStatusNotReady = "Not Ready"
)

// zoneStatusText is indexed by zone state bank. Empty entries never become a
// status.
var zoneStatusText = [...]string{
	zoneStatusNotReady,
	"Tamper",
	"Trouble",
	"",
	"Inhibited",
	"Alarm",
	"Low Battery",
	"Supervision Fault",
	"Test Fail",
	"",
	"Entry Delay",
	"",
	"Test Active",
	"Activity Fail",
	"Antimask",
}

type zoneDecode struct {
	bits       []int
	status     string
	priority   int
	area       int
	bypassed   bool
	autoBypass bool
}

// decodeZone projects every zone state bank onto the zone at the given bank.
// Each state bank holds one word per 16 zones.
func decodeZone(bank int, stateBanks [][]int) zoneDecode {
	mask := 1 << (bank % 16)
	word := bank / 16

	vbank := make([]bool, len(stateBanks))
	bits := make([]int, len(stateBanks))
	for i, words := range stateBanks {
		if word < len(words) && words[word]&mask != 0 {
			vbank[i] = true
			bits[i] = 1
		}
	}
	isSet := func(s ZoneState) bool {
		return int(s) < len(vbank) && vbank[s]
	}

	status := zoneStatusReady
	for i, set := range vbank {
		if set && i < len(zoneStatusText) && zoneStatusText[i] != "" {
			status = zoneStatusText[i]
			break
		}
	}

	priority := 5
	switch {
	case isSet(ZoneStateUnknown05):
		priority = 1
	case isSet(ZoneStateUnknown01) || isSet(ZoneStateUnknown02) ||
		isSet(ZoneStateUnknown06) || isSet(ZoneStateUnknown07):
		priority = 2
	case isSet(ZoneStateBypassed) || isSet(ZoneStateUnknown04):
		priority = 3
	case isSet(ZoneStateUnknown00):
		priority = 4
	}

	return zoneDecode{
		bits:       bits,
		status:     status,
		priority:   priority,
		area:       word,
		bypassed:   isSet(ZoneStateBypassed),
		autoBypass: isSet(ZoneStateAutoBypass),
	}
}

// apply stores the decoded state into the zone, bumping its sequence when
// the bits differ from the ones previously stored.
func (d zoneDecode) apply(z *Zone) {
	if !slices.Equal(z.BankState, d.bits) {
		z.Sequence = nextSequence(z.Sequence)
	}
	z.BankState = d.bits
	z.Status = d.status
	z.Priority = d.priority
	z.Area = d.area
	z.Bypassed = d.bypassed
	z.AutoBypass = d.autoBypass
}

func (d areaDecode) apply(a *Area) {
	a.Status = d.status
	a.Priority = d.priority
	a.States = d.states
}

// nextSequence increments a sequence counter, wrapping from 256 back to 1.
func nextSequence(last int) int {
	if last < 256 {
		return last + 1
	}
	return 1
}
