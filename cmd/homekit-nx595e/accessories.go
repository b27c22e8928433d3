package main

import (
	"context"
	"net/http"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	nx595e "github.com/caarlos0/homekit-nx595e"
)

// Panel is what accessories need from the panel client.
type Panel interface {
	Area(bank int) (nx595e.Area, bool)
	Zone(bank int) (nx595e.Zone, bool)
	SendAreaCommand(ctx context.Context, cmd nx595e.AreaCommand, banks ...int) error
	SendZoneCommand(ctx context.Context, cmd nx595e.ZoneCommand, banks ...int) error
	SendOutputCommand(ctx context.Context, on bool, bank int) error
}

const commandTimeout = 30 * time.Second

func requestContext(r *http.Request) context.Context {
	if r != nil {
		return r.Context()
	}
	return context.Background()
}

// sendCommand runs a panel command with a timeout, counting it.
func sendCommand(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	commandCounter.WithLabelValues(name).Inc()
	if err := fn(ctx); err != nil {
		commandErrorCounter.WithLabelValues(name).Inc()
		return err
	}
	return nil
}

func newNamedSwitch(name string) *service.Switch {
	s := service.NewSwitch()
	n := characteristic.NewName()
	n.SetValue(name)
	s.AddC(n.C)
	return s
}

func securityAccessories(
	areas []*SecuritySystem,
	sensors []*ZoneSensor,
	outputs []*OutputSwitch,
) []*accessory.A {
	var result []*accessory.A
	for _, c := range areas {
		result = append(result, c.A)
	}
	for _, c := range sensors {
		result = append(result, c.A)
	}
	for _, c := range outputs {
		result = append(result, c.A)
	}
	return result
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolToFloat(b bool) float64 {
	return float64(boolToInt(b))
}
