package main

import (
	"testing"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	nx595e "github.com/caarlos0/homekit-nx595e"
	"github.com/stretchr/testify/require"
)

func TestContactSensor(t *testing.T) {
	now := time.Now()
	s := newZoneSensor(accessory.Info{Name: "Door"}, zoneConfig{bank: 0, name: "Door"})
	require.Nil(t, s.Bypass)

	s.Update(nx595e.Zone{Name: "Door", Status: "Not Ready", Sequence: 1}, now)
	require.Equal(t, 1, s.Contact.ContactSensorState.Value())

	s.Update(nx595e.Zone{Name: "Door", Status: "Ready", Sequence: 2}, now)
	require.Equal(t, 0, s.Contact.ContactSensorState.Value())
}

func TestMotionPersistence(t *testing.T) {
	now := time.Now()
	s := newZoneSensor(accessory.Info{Name: "Hall"}, zoneConfig{
		bank:        1,
		name:        "Hall",
		kind:        kindMotion,
		persistence: time.Minute,
	})

	s.Update(nx595e.Zone{Bank: 1, Status: "Ready", Sequence: 1}, now)
	require.False(t, s.Motion.MotionDetected.Value())

	s.Update(nx595e.Zone{Bank: 1, Status: "Not Ready", Sequence: 2}, now)
	require.True(t, s.Motion.MotionDetected.Value())

	// closed again, but still within the window
	s.Update(nx595e.Zone{Bank: 1, Status: "Ready", Sequence: 3}, now.Add(30*time.Second))
	require.True(t, s.Motion.MotionDetected.Value())

	s.Update(nx595e.Zone{Bank: 1, Status: "Ready", Sequence: 3}, now.Add(61*time.Second))
	require.False(t, s.Motion.MotionDetected.Value())

	// the same sequence does not restart the window
	s.Update(nx595e.Zone{Bank: 1, Status: "Not Ready", Sequence: 3}, now.Add(62*time.Second))
	require.False(t, s.Motion.MotionDetected.Value())
}

func TestSmokePersistence(t *testing.T) {
	now := time.Now()
	s := newZoneSensor(accessory.Info{Name: "Kitchen"}, zoneConfig{
		bank:        2,
		name:        "Kitchen",
		kind:        kindSmoke,
		persistence: 2 * time.Minute,
	})

	s.Update(nx595e.Zone{Bank: 2, Status: "Alarm", Sequence: 1}, now)
	require.Equal(t, 1, s.Smoke.SmokeDetected.Value())

	s.Update(nx595e.Zone{Bank: 2, Status: "Ready", Sequence: 2}, now.Add(time.Minute))
	require.Equal(t, 1, s.Smoke.SmokeDetected.Value())

	s.Update(nx595e.Zone{Bank: 2, Status: "Ready", Sequence: 2}, now.Add(3*time.Minute))
	require.Equal(t, 0, s.Smoke.SmokeDetected.Value())
}

func TestBypassSwitch(t *testing.T) {
	panel := &fakePanel{zones: map[int]nx595e.Zone{
		3: {Bank: 3, Name: "Window", Status: "Ready", Sequence: 1},
	}}
	sensors := setupZones(panel, allZoneConfigs{
		{bank: 3, name: "Window", allowBypass: true},
		{bank: 9, name: "Missing"},
	}, time.Now())
	require.Len(t, sensors, 2)
	s := sensors[0]
	require.NotNil(t, s.Bypass)
	require.Equal(t, uint64(1003), s.Id)
	require.False(t, s.Bypass.On.Value())

	_, code := s.Bypass.On.SetValueRequestFunc(false, nil)
	require.Equal(t, hap.JsonStatusSuccess, code)
	require.Empty(t, panel.commands, "already in the requested state")

	_, code = s.Bypass.On.SetValueRequestFunc(true, nil)
	require.Equal(t, hap.JsonStatusSuccess, code)
	require.Equal(t, []command{{"zone", int(nx595e.ZoneBypass), []int{3}}}, panel.commands)

	s.Update(nx595e.Zone{Bank: 3, Name: "Window", Status: "Ready", Sequence: 2, Bypassed: true}, time.Now())
	require.True(t, s.Bypass.On.Value())
}
