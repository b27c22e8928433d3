package main

import (
	"context"
	"net/http"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	nx595e "github.com/caarlos0/homekit-nx595e"
)

type OutputSwitch struct {
	*accessory.Switch
	bank int
}

func newOutputSwitch(info accessory.Info, bank int, panel Panel) *OutputSwitch {
	a := &OutputSwitch{
		Switch: accessory.NewSwitch(info),
		bank:   bank,
	}
	a.Switch.Switch.On.SetValueRequestFunc = func(value interface{}, r *http.Request) (response interface{}, code int) {
		v := value.(bool)
		log.Info("set output", "output", info.Name, "on", v)
		if err := sendCommand(requestContext(r), "output", func(ctx context.Context) error {
			return panel.SendOutputCommand(ctx, v, bank)
		}); err != nil {
			log.Error("failed to set output", "output", info.Name, "on", v, "err", err)
			return nil, hap.JsonStatusResourceBusy
		}
		return nil, hap.JsonStatusSuccess
	}
	return a
}

func (o *OutputSwitch) Update(output nx595e.Output) {
	outputGauge.WithLabelValues(output.Name).Set(boolToFloat(output.On))
	if o.Switch.Switch.On.Value() != output.On {
		o.Switch.Switch.On.SetValue(output.On)
		log.Info("output", "output", output.Name, "on", output.On)
	}
}

func setupOutputs(panel Panel, cfg Config, outputs []nx595e.Output) []*OutputSwitch {
	if !cfg.DisplayOutputs {
		return nil
	}
	var result []*OutputSwitch
	for _, output := range outputs {
		a := newOutputSwitch(accessory.Info{
			Name:         output.Name,
			Manufacturer: manufacturer,
			Model:        "Output",
		}, output.Bank, panel)
		a.Id = uint64(500 + output.Bank)
		a.Update(output)
		result = append(result, a)
	}
	return result
}
