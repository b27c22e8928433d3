package nx595e

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SendAreaCommand applies the command to the given area banks, or to every
// known area if none are given. Local state is not touched: the next poll
// picks up whatever the panel reports.
func (c *Client) SendAreaCommand(ctx context.Context, cmd AreaCommand, banks ...int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("could not send area command: %w", err)
	}
	if !cmd.valid() {
		return fmt.Errorf("%w: invalid area command %d", ErrInvalidCommand, cmd)
	}

	c.mu.RLock()
	known := make([]int, 0, len(c.areas))
	for _, a := range c.areas {
		known = append(known, a.Bank)
	}
	c.mu.RUnlock()

	targets, err := resolveBanks("area", banks, known)
	if err != nil {
		return err
	}
	for _, bank := range targets {
		log.Debug("area command", "command", cmd, "area", bank)
		p := newPayload(
			"comm", "80",
			"data0", "2",
			"data1", strconv.Itoa(1<<(bank%8)),
			"data2", strconv.Itoa(int(cmd)),
		)
		if _, err := c.request(ctx, pathKeyFunction, p, requestOpts{}); err != nil {
			return fmt.Errorf("could not send %s to area %d: %w", cmd, bank, err)
		}
	}
	return nil
}

// SendZoneCommand applies the command to the given zone banks, or to every
// known zone if none are given.
func (c *Client) SendZoneCommand(ctx context.Context, cmd ZoneCommand, banks ...int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("could not send zone command: %w", err)
	}
	if !cmd.valid() {
		return fmt.Errorf("%w: invalid zone command %d", ErrInvalidCommand, cmd)
	}

	c.mu.RLock()
	known := maps.Keys(c.zones)
	c.mu.RUnlock()
	slices.Sort(known)

	targets, err := resolveBanks("zone", banks, known)
	if err != nil {
		return err
	}
	for _, bank := range targets {
		log.Debug("zone command", "command", cmd, "zone", bank)
		// bypass is the only zone command, so it is not sent along
		p := newPayload(
			"comm", "82",
			"data0", strconv.Itoa(bank),
		)
		if _, err := c.request(ctx, pathZoneFunction, p, requestOpts{}); err != nil {
			return fmt.Errorf("could not send %s to zone %d: %w", cmd, bank, err)
		}
	}
	return nil
}

// SendOutputCommand turns the output at the given bank on or off.
func (c *Client) SendOutputCommand(ctx context.Context, on bool, bank int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("could not send output command: %w", err)
	}
	if _, ok := c.Output(bank); !ok {
		return fmt.Errorf("%w: output %d", ErrUnknownBank, bank)
	}

	state := "0"
	if on {
		state = "1"
	}
	log.Debug("output command", "output", bank, "on", on)
	p := newPayload(
		"onum", strconv.Itoa(bank+1),
		"ostate", state,
	)
	if _, err := c.request(ctx, pathOutput, p, requestOpts{}); err != nil {
		return fmt.Errorf("could not set output %d to %v: %w", bank, on, err)
	}
	return nil
}

// ensureSession logs in if there is no session yet.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.Authenticated() {
		return nil
	}
	if err := c.Login(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// resolveBanks validates every requested bank against the known ones before
// anything is sent. No banks means all of them.
func resolveBanks(kind string, requested, known []int) ([]int, error) {
	if len(requested) == 0 {
		return known, nil
	}
	for _, bank := range requested {
		if !slices.Contains(known, bank) {
			return nil, fmt.Errorf("%w: %s %d not found", ErrUnknownBank, kind, bank)
		}
	}
	return requested, nil
}
