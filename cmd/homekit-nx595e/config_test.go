package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	nx595e "github.com/caarlos0/homekit-nx595e"
	"github.com/stretchr/testify/require"
)

func TestParseIgnoredZones(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ignored, err := parseIgnoredZones("", 8)
		require.NoError(t, err)
		require.Empty(t, ignored)
	})

	t.Run("numbers and ranges", func(t *testing.T) {
		ignored, err := parseIgnoredZones("1,4-6,8", 8)
		require.NoError(t, err)
		require.Equal(t, map[int]bool{0: true, 3: true, 4: true, 5: true, 7: true}, ignored)
	})

	for name, s := range map[string]string{
		"syntax":          "1,,2",
		"spaces":          "1, 2",
		"negative":        "-1",
		"descending":      "6-4",
		"single range":    "4-4",
		"zero":            "0",
		"over count":      "9",
		"range over":      "7-9",
		"too many digits": "1000",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseIgnoredZones(s, 8)
			require.Error(t, err)
		})
	}
}

func TestParseOverrides(t *testing.T) {
	overrides, err := parseOverrides([]byte(`
[Zone 2]
name = Garage Door

[zone 5]
name = Hallway
sensor = Radar

[zone 7]
sensor = smoke
`))
	require.NoError(t, err)
	require.Equal(t, map[int]zoneOverride{
		1: {name: "Garage Door", kind: kindContact},
		4: {name: "Hallway", kind: kindMotion, hasKind: true},
		6: {kind: kindSmoke, hasKind: true},
	}, overrides)

	t.Run("keys outside sections are ignored", func(t *testing.T) {
		overrides, err := parseOverrides([]byte("name = nobody\n\n[ZONE 3]\nsensor = motion\n"))
		require.NoError(t, err)
		require.Equal(t, map[int]zoneOverride{
			2: {kind: kindMotion, hasKind: true},
		}, overrides)
	})

	for name, src := range map[string]string{
		"bad section": "[sensors]\nname = x",
		"bad number":  "[zone x]\nname = x",
		"zero":        "[zone 0]\nname = x",
		"bad sensor":  "[zone 1]\nsensor = laser",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseOverrides([]byte(src))
			require.Error(t, err)
		})
	}
}

func TestOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.ini")
	require.NoError(t, os.WriteFile(path, []byte("[zone 1]\nname = Front\n"), 0o600))

	overrides, err := Config{Overrides: path}.overrides()
	require.NoError(t, err)
	require.Equal(t, "Front", overrides[0].name)

	overrides, err = Config{}.overrides()
	require.NoError(t, err)
	require.Nil(t, overrides)

	_, err = Config{Overrides: filepath.Join(t.TempDir(), "nope.ini")}.overrides()
	require.Error(t, err)
}

func TestAllZones(t *testing.T) {
	panelZones := []nx595e.Zone{
		{Bank: 0, Name: "Front Door"},
		{Bank: 1, Name: "Living Room"},
		{Bank: 2, Name: "Kitchen"},
		{Bank: 4, Name: "Hallway"},
		{Bank: 5, Name: "Garage"},
	}
	cfg := Config{
		MotionZones:       []int{2, 5},
		SmokeZones:        []int{3},
		IgnoreZones:       "6",
		DisplayBypass:     true,
		MotionPersistence: time.Minute,
		SmokePersistence:  2 * time.Minute,
	}

	zones, err := cfg.allZones(panelZones, map[int]zoneOverride{
		2: {name: "Kitchen Smoke"},
		4: {name: "", kind: kindContact, hasKind: true},
	})
	require.NoError(t, err)
	require.Equal(t, allZoneConfigs{
		{bank: 0, name: "Front Door", kind: kindContact, allowBypass: true},
		{bank: 1, name: "Living Room", kind: kindMotion, persistence: time.Minute, allowBypass: true},
		{bank: 2, name: "Kitchen Smoke", kind: kindSmoke, persistence: 2 * time.Minute, allowBypass: true},
		{bank: 4, name: "Hallway", kind: kindContact, allowBypass: true},
	}, zones)
	require.Equal(t, `zone 1: "Front Door" (contact)
zone 2: "Living Room" (motion)
zone 3: "Kitchen Smoke" (smoke)
zone 5: "Hallway" (contact)`, zones.String())

	t.Run("override for unknown zone", func(t *testing.T) {
		_, err := cfg.allZones(panelZones, map[int]zoneOverride{3: {name: "Ghost"}})
		require.Error(t, err)
	})

	t.Run("ignore past the last zone", func(t *testing.T) {
		cfg := cfg
		cfg.IgnoreZones = "7"
		_, err := cfg.allZones(panelZones, nil)
		require.Error(t, err)
	})
}

func TestParseZoneKind(t *testing.T) {
	for s, kind := range map[string]zoneKind{
		"":        kindContact,
		"Contact": kindContact,
		"radar":   kindMotion,
		"motion":  kindMotion,
		"SMOKE":   kindSmoke,
	} {
		got, err := parseZoneKind(s)
		require.NoError(t, err)
		require.Equal(t, kind, got, s)
	}
	_, err := parseZoneKind("glass")
	require.Error(t, err)
}
