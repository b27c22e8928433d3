package nx595e

import (
	"fmt"
	"strconv"
	"strings"
)

// Vendor identifies the firmware flavor reported by the panel login page.
type Vendor string

const (
	VendorComnav    Vendor = "COMNAV"
	VendorUndefined Vendor = "NONE"
)

func vendorFromTag(tag string) Vendor {
	switch tag {
	case "CN":
		return VendorComnav
	default:
		return VendorUndefined
	}
}

// Area is a partition of the panel.
type Area struct {
	Bank      int
	Name      string
	Status    string
	Priority  int
	Sequence  int
	BankState []int
	States    AreaStates
}

// AreaStates are the flags derived from an area bank state.
type AreaStates struct {
	Armed   bool
	Partial bool
	Chime   bool
	Exit1   bool
	Exit2   bool
}

// Zone is a sensor attached to the panel.
type Zone struct {
	Bank       int
	Area       int
	Name       string
	Status     string
	Priority   int
	Sequence   int
	BankState  []int
	Bypassed   bool
	AutoBypass bool
}

// Open reports whether the zone is in any state other than ready.
func (z Zone) Open() bool {
	return z.Status != zoneStatusReady
}

// Output is a relay driven by the panel.
type Output struct {
	Bank int
	Name string
	On   bool
}

// SequenceResponse is the sequence vector reported by the panel on each poll.
type SequenceResponse struct {
	Areas []int
	Zones []int
}

// AreaCommand is a keypad function applied to one or more areas.
type AreaCommand int

const (
	AreaChimeToggle AreaCommand = 1
	AreaDisarm      AreaCommand = 16
	AreaAway        AreaCommand = 17
	AreaStay        AreaCommand = 18
)

func (c AreaCommand) String() string {
	switch c {
	case AreaChimeToggle:
		return "chime"
	case AreaDisarm:
		return "disarm"
	case AreaAway:
		return "away"
	case AreaStay:
		return "stay"
	default:
		return "unknown"
	}
}

func (c AreaCommand) valid() bool {
	return c.String() != "unknown"
}

// ParseAreaCommand parses an area command by name: chime, disarm, away or
// stay. Case is ignored.
func ParseAreaCommand(s string) (AreaCommand, error) {
	for _, c := range []AreaCommand{AreaChimeToggle, AreaDisarm, AreaAway, AreaStay} {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
}

// ZoneCommand is a function applied to one or more zones.
type ZoneCommand int

const ZoneBypass ZoneCommand = 1

func (c ZoneCommand) String() string {
	if c == ZoneBypass {
		return "bypass"
	}
	return "unknown"
}

func (c ZoneCommand) valid() bool {
	return c == ZoneBypass
}

func joinInts(v []int, sep string) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, sep)
}
