package main

import (
	"context"
	"net/http"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
	nx595e "github.com/caarlos0/homekit-nx595e"
)

type ZoneSensor struct {
	*accessory.A
	Kind    zoneKind
	Contact *service.ContactSensor
	Motion  *service.MotionSensor
	Smoke   *service.SmokeSensor
	Bypass  *service.Switch

	bank        int
	persistence time.Duration
	sequence    int
	lastSeen    time.Time
}

func newZoneSensor(info accessory.Info, zone zoneConfig) *ZoneSensor {
	a := &ZoneSensor{
		Kind:        zone.kind,
		bank:        zone.bank,
		persistence: zone.persistence,
		sequence:    -1,
	}
	a.A = accessory.New(info, accessory.TypeSensor)

	switch zone.kind {
	case kindContact:
		a.Contact = service.NewContactSensor()
		a.AddS(a.Contact.S)
	case kindMotion:
		a.Motion = service.NewMotionSensor()
		a.AddS(a.Motion.S)
	case kindSmoke:
		a.Smoke = service.NewSmokeSensor()
		a.AddS(a.Smoke.S)
	}

	if zone.allowBypass {
		a.Bypass = newNamedSwitch(zone.name + " Bypass")
		a.AddS(a.Bypass.S)
	}

	return a
}

// Update reflects the zone state. Contact sensors follow the zone, motion
// and smoke sensors stay detected for their persistence window after the
// zone last opened.
func (sensor *ZoneSensor) Update(zone nx595e.Zone, now time.Time) {
	if zone.Sequence != sensor.sequence {
		sensor.sequence = zone.Sequence
		openGauge.WithLabelValues(zone.Name).Set(boolToFloat(zone.Open()))
		bypassedGauge.WithLabelValues(zone.Name).Set(boolToFloat(zone.Bypassed))
		zonePriorityGauge.WithLabelValues(zone.Name).Set(float64(zone.Priority))

		if sensor.Bypass != nil && sensor.Bypass.On.Value() != zone.Bypassed {
			sensor.Bypass.On.SetValue(zone.Bypassed)
			log.Info("bypass", "zone", zone.Name, "status", zone.Bypassed)
		}

		switch sensor.Kind {
		case kindContact:
			current := boolToInt(zone.Open())
			if sensor.Contact.ContactSensorState.Value() != current {
				_ = sensor.Contact.ContactSensorState.SetValue(current)
				log.Info("contact", "zone", zone.Name, "status", zone.Status)
			}
		case kindMotion, kindSmoke:
			if zone.Open() {
				log.Debug("persistence updated", "zone", zone.Name)
				sensor.lastSeen = now
			}
		}
	}

	detected := !sensor.lastSeen.IsZero() && now.Sub(sensor.lastSeen) < sensor.persistence
	if !detected {
		sensor.lastSeen = time.Time{}
	}
	switch sensor.Kind {
	case kindMotion:
		if sensor.Motion.MotionDetected.Value() != detected {
			sensor.Motion.MotionDetected.SetValue(detected)
			log.Info("motion", "zone", zone.Name, "detected", detected)
		}
	case kindSmoke:
		if v := boolToInt(detected); sensor.Smoke.SmokeDetected.Value() != v {
			_ = sensor.Smoke.SmokeDetected.SetValue(v)
			log.Info("smoke", "zone", zone.Name, "detected", detected)
		}
	}
}

func setupZones(panel Panel, zones allZoneConfigs, now time.Time) []*ZoneSensor {
	var sensors []*ZoneSensor
	for _, zone := range zones {
		zone := zone
		a := newZoneSensor(accessory.Info{
			Name:         zone.name,
			Manufacturer: manufacturer,
			Model:        modelFor(zone.kind),
		}, zone)
		a.Id = uint64(1000 + zone.bank)

		if a.Bypass != nil {
			a.Bypass.On.SetValueRequestFunc = func(value interface{}, r *http.Request) (response interface{}, code int) {
				v := value.(bool)
				current, ok := panel.Zone(zone.bank)
				if !ok {
					return nil, hap.JsonStatusResourceDoesNotExist
				}
				if current.Bypassed == v {
					return nil, hap.JsonStatusSuccess
				}
				// bypass is a toggle on the panel side
				log.Info("set zone bypass", "zone", zone.name, "bypass", v)
				if err := sendCommand(requestContext(r), nx595e.ZoneBypass.String(), func(ctx context.Context) error {
					return panel.SendZoneCommand(ctx, nx595e.ZoneBypass, zone.bank)
				}); err != nil {
					log.Error("failed to set bypass", "zone", zone.name, "value", v, "err", err)
					return nil, hap.JsonStatusResourceBusy
				}
				return nil, hap.JsonStatusSuccess
			}
		}

		if z, ok := panel.Zone(zone.bank); ok {
			a.Update(z, now)
		}
		sensors = append(sensors, a)
	}
	return sensors
}

func modelFor(kind zoneKind) string {
	switch kind {
	case kindMotion:
		return "Motion Sensor"
	case kindSmoke:
		return "Smoke Sensor"
	default:
		return "Contact Sensor"
	}
}
