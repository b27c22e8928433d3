package main

import (
	"context"
	"net/http"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	nx595e "github.com/caarlos0/homekit-nx595e"
)

const (
	statusNotReady = "Not Ready"
	noTargetChange = -1
)

type SecuritySystem struct {
	*accessory.A
	SecuritySystem *service.SecuritySystem
	Chime          *service.Switch

	bank  int
	panel Panel
}

func NewSecuritySystem(info accessory.Info, bank int, panel Panel) *SecuritySystem {
	a := &SecuritySystem{
		bank:  bank,
		panel: panel,
	}
	a.A = accessory.New(info, accessory.TypeSecuritySystem)

	a.SecuritySystem = service.NewSecuritySystem()
	a.AddS(a.SecuritySystem.S)

	a.Chime = newNamedSwitch(info.Name + " Chime")
	a.AddS(a.Chime.S)

	_ = a.SecuritySystem.SecuritySystemCurrentState.SetValue(characteristic.SecuritySystemCurrentStateDisarmed)
	_ = a.SecuritySystem.SecuritySystemTargetState.SetValue(characteristic.SecuritySystemTargetStateDisarm)
	a.SecuritySystem.SecuritySystemTargetState.SetValueRequestFunc = a.updateHandler
	a.Chime.On.SetValueRequestFunc = a.chimeHandler

	return a
}

// homekitState maps an area status to the current and target HomeKit
// states. Alarms leave the target alone, exit delays already target away.
func homekitState(status string) (current int, target int) {
	switch status {
	case nx595e.AreaAlarmFire.String(),
		nx595e.AreaAlarmBurglar.String(),
		nx595e.AreaAlarmPanic.String(),
		nx595e.AreaAlarmMedical.String():
		return characteristic.SecuritySystemCurrentStateAlarmTriggered, noTargetChange
	case nx595e.AreaDelayExit1.String(),
		nx595e.AreaDelayExit2.String():
		return characteristic.SecuritySystemCurrentStateDisarmed, characteristic.SecuritySystemTargetStateAwayArm
	case nx595e.AreaArmedStay.String():
		return characteristic.SecuritySystemCurrentStateStayArm, characteristic.SecuritySystemTargetStateStayArm
	case nx595e.AreaDelayEntry.String(),
		nx595e.AreaArmedAway.String():
		return characteristic.SecuritySystemCurrentStateAwayArm, characteristic.SecuritySystemTargetStateAwayArm
	default:
		return characteristic.SecuritySystemCurrentStateDisarmed, characteristic.SecuritySystemTargetStateDisarm
	}
}

func (a *SecuritySystem) Update(area nx595e.Area) {
	areaPriorityGauge.WithLabelValues(area.Name).Set(float64(area.Priority))
	armedGauge.WithLabelValues(area.Name).Set(boolToFloat(area.States.Armed || area.States.Partial))

	current, target := homekitState(area.Status)
	if a.SecuritySystem.SecuritySystemCurrentState.Value() != current {
		err := a.SecuritySystem.SecuritySystemCurrentState.SetValue(current)
		log.Info("set current state", "area", area.Name, "status", area.Status, "state", current, "err", err)
	}
	if target != noTargetChange && a.SecuritySystem.SecuritySystemTargetState.Value() != target {
		err := a.SecuritySystem.SecuritySystemTargetState.SetValue(target)
		log.Info("set target state", "area", area.Name, "state", target, "err", err)
	}
	if a.Chime.On.Value() != area.States.Chime {
		a.Chime.On.SetValue(area.States.Chime)
		log.Info("chime", "area", area.Name, "on", area.States.Chime)
	}
}

func (a *SecuritySystem) updateHandler(
	v interface{},
	r *http.Request,
) (response interface{}, code int) {
	target := v.(int)

	area, ok := a.panel.Area(a.bank)
	if !ok {
		return nil, hap.JsonStatusResourceDoesNotExist
	}
	if target != characteristic.SecuritySystemTargetStateDisarm {
		if area.Status == statusNotReady {
			log.Error("area is not ready for arming", "area", area.Name)
			return nil, hap.JsonStatusResourceBusy
		}
		if a.SecuritySystem.SecuritySystemCurrentState.Value() != characteristic.SecuritySystemCurrentStateDisarmed {
			log.Error("attempting to arm an already armed area", "area", area.Name)
			return nil, hap.JsonStatusResourceBusy
		}
	}

	var cmd nx595e.AreaCommand
	switch target {
	case characteristic.SecuritySystemTargetStateStayArm:
		cmd = nx595e.AreaStay
	case characteristic.SecuritySystemTargetStateAwayArm:
		cmd = nx595e.AreaAway
	case characteristic.SecuritySystemTargetStateDisarm:
		cmd = nx595e.AreaDisarm
	default:
		return nil, hap.JsonStatusInvalidValueInRequest
	}

	log.Info("area command", "area", area.Name, "command", cmd)
	if err := sendCommand(requestContext(r), cmd.String(), func(ctx context.Context) error {
		return a.panel.SendAreaCommand(ctx, cmd, a.bank)
	}); err != nil {
		log.Error("could not send area command", "area", area.Name, "command", cmd, "err", err)
		return nil, hap.JsonStatusResourceBusy
	}
	return nil, hap.JsonStatusSuccess
}

// chimeHandler toggles the chime. The panel only knows how to toggle, so the
// requested value is ignored and the next poll reports the actual state.
func (a *SecuritySystem) chimeHandler(
	v interface{},
	r *http.Request,
) (response interface{}, code int) {
	log.Info("toggle chime", "area", a.bank, "requested", v)
	if err := sendCommand(requestContext(r), nx595e.AreaChimeToggle.String(), func(ctx context.Context) error {
		return a.panel.SendAreaCommand(ctx, nx595e.AreaChimeToggle, a.bank)
	}); err != nil {
		log.Error("could not toggle chime", "area", a.bank, "err", err)
		return nil, hap.JsonStatusResourceBusy
	}
	return nil, hap.JsonStatusSuccess
}

func setupAreas(panel Panel, areas []nx595e.Area, serial, firmware string) []*SecuritySystem {
	var result []*SecuritySystem
	for _, area := range areas {
		a := NewSecuritySystem(accessory.Info{
			Name:         area.Name,
			SerialNumber: serial,
			Manufacturer: manufacturer,
			Model:        "Alarm Area",
			Firmware:     firmware,
		}, area.Bank, panel)
		a.Id = uint64(100 + area.Bank)
		a.Update(area)
		result = append(result, a)
	}
	return result
}
