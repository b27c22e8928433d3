package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	nx595e "github.com/caarlos0/homekit-nx595e"
	"golang.org/x/exp/slices"
	"gopkg.in/ini.v1"
)

type Config struct {
	Host              string        `env:"HOST,notEmpty"`
	Username          string        `env:"USERNAME,notEmpty"`
	PIN               string        `env:"PIN,notEmpty"`
	HTTPS             bool          `env:"HTTPS"`
	InsecureTLS       bool          `env:"INSECURE_TLS"`
	LoginParser       string        `env:"LOGIN_PARSER"       envDefault:"marker"`
	PollInterval      time.Duration `env:"POLL_INTERVAL"      envDefault:"3s"`
	MotionZones       []int         `env:"MOTION"`
	SmokeZones        []int         `env:"SMOKE"`
	IgnoreZones       string        `env:"IGNORE"`
	DisplayBypass     bool          `env:"DISPLAY_BYPASS"`
	DisplayOutputs    bool          `env:"DISPLAY_OUTPUTS"`
	MotionPersistence time.Duration `env:"MOTION_PERSISTENCE" envDefault:"60s"`
	SmokePersistence  time.Duration `env:"SMOKE_PERSISTENCE"  envDefault:"60s"`
	Overrides         string        `env:"OVERRIDES"`
	LogLevel          string        `env:"LOG_LEVEL"          envDefault:"info"`
	Address           string        `env:"LISTEN"             envDefault:":9009"`
}

type zoneKind uint8

const (
	kindContact zoneKind = iota
	kindMotion
	kindSmoke
)

func (z zoneKind) String() string {
	switch z {
	case kindMotion:
		return "motion"
	case kindSmoke:
		return "smoke"
	default:
		return "contact"
	}
}

func parseZoneKind(s string) (zoneKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contact":
		return kindContact, nil
	case "motion", "radar":
		return kindMotion, nil
	case "smoke":
		return kindSmoke, nil
	default:
		return kindContact, fmt.Errorf("invalid sensor kind: %q", s)
	}
}

type zoneConfig struct {
	bank        int
	name        string
	kind        zoneKind
	persistence time.Duration
	allowBypass bool
}

type allZoneConfigs []zoneConfig

func (a allZoneConfigs) String() string {
	var zones []string
	for _, zone := range a {
		zones = append(
			zones,
			fmt.Sprintf("zone %d: %q (%s)", zone.bank+1, zone.name, zone.kind.String()),
		)
	}
	return strings.Join(zones, "\n")
}

// zoneOverride replaces the name and, if set, the sensor kind of a zone.
type zoneOverride struct {
	name    string
	kind    zoneKind
	hasKind bool
}

// parseOverrides reads an INI source with one section per zone:
//
//	[zone 5]
//	name = Garage Door
//	sensor = motion
func parseOverrides(source interface{}) (map[int]zoneOverride, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, source)
	if err != nil {
		return nil, fmt.Errorf("could not load overrides: %w", err)
	}

	overrides := map[int]zoneOverride{}
	for _, section := range file.Sections() {
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			continue
		}
		num, ok := strings.CutPrefix(section.Name(), "zone")
		if !ok {
			return nil, fmt.Errorf("invalid override section: %q", section.Name())
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid override section: %q", section.Name())
		}
		kind, err := parseZoneKind(section.Key("sensor").String())
		if err != nil {
			return nil, fmt.Errorf("invalid override for zone %d: %w", n, err)
		}
		overrides[n-1] = zoneOverride{
			name:    section.Key("name").String(),
			kind:    kind,
			hasKind: section.HasKey("sensor"),
		}
	}
	return overrides, nil
}

func (c Config) overrides() (map[int]zoneOverride, error) {
	if c.Overrides == "" {
		return nil, nil
	}
	return parseOverrides(c.Overrides)
}

var ignoreRe = regexp.MustCompile(`^\d{1,3}(?:-\d{1,3})?(?:,\d{1,3}(?:-\d{1,3})?)*$`)

// parseIgnoredZones parses zone numbers and ascending ranges such as
// "1,4-6,8" into the set of ignored zone banks.
func parseIgnoredZones(s string, count int) (map[int]bool, error) {
	ignored := map[int]bool{}
	if s == "" {
		return ignored, nil
	}
	if !ignoreRe.MatchString(s) {
		return nil, fmt.Errorf("invalid ignored zones: %q", s)
	}
	for _, item := range strings.Split(s, ",") {
		from, to, isRange := strings.Cut(item, "-")
		start, _ := strconv.Atoi(from)
		end := start
		if isRange {
			end, _ = strconv.Atoi(to)
			if end <= start {
				return nil, fmt.Errorf("zone range %q should go from the lower to the higher zone", item)
			}
		}
		if start < 1 {
			return nil, fmt.Errorf("zone numbers start at 1: %q", item)
		}
		if end > count {
			return nil, fmt.Errorf("zone %q exceeds the zone count of %d", item, count)
		}
		for i := start; i <= end; i++ {
			ignored[i-1] = true
		}
	}
	return ignored, nil
}

// allZones merges the zones reported by the panel with the bridge settings.
func (c Config) allZones(zones []nx595e.Zone, overrides map[int]zoneOverride) (allZoneConfigs, error) {
	count := 0
	for _, z := range zones {
		count = max(count, z.Bank+1)
	}
	ignored, err := parseIgnoredZones(c.IgnoreZones, count)
	if err != nil {
		return nil, err
	}
	for bank := range overrides {
		if !slices.ContainsFunc(zones, func(z nx595e.Zone) bool { return z.Bank == bank }) {
			return nil, fmt.Errorf("override declared for zone %d, which the panel does not report", bank+1)
		}
	}

	var result allZoneConfigs
	for _, z := range zones {
		if ignored[z.Bank] {
			log.Debug("ignoring zone", "zone", z.Bank+1, "name", z.Name)
			continue
		}
		zone := zoneConfig{
			bank:        z.Bank,
			name:        z.Name,
			kind:        kindContact,
			allowBypass: c.DisplayBypass,
		}
		switch {
		case slices.Contains(c.MotionZones, z.Bank+1):
			zone.kind = kindMotion
		case slices.Contains(c.SmokeZones, z.Bank+1):
			zone.kind = kindSmoke
		}
		if o, ok := overrides[z.Bank]; ok {
			if o.hasKind {
				zone.kind = o.kind
			}
			if o.name != "" {
				zone.name = o.name
			}
		}
		switch zone.kind {
		case kindMotion:
			zone.persistence = c.MotionPersistence
		case kindSmoke:
			zone.persistence = c.SmokePersistence
		}
		result = append(result, zone)
	}
	return result, nil
}
