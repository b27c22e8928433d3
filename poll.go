package nx595e

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// PollResult lists the banks whose state changed in a poll.
type PollResult struct {
	Areas   []int
	Zones   []int
	Outputs []int
}

// Changed reports whether anything changed.
func (r PollResult) Changed() bool {
	return len(r.Areas)+len(r.Zones)+len(r.Outputs) > 0
}

// Poll runs one reconciliation cycle: it fetches the sequence vector, then
// only the zone state banks and areas whose sequence changed, and finally
// every output. A failed poll leaves the client usable, callers are expected
// to poll again later.
func (c *Client) Poll(ctx context.Context) (PollResult, error) {
	var result PollResult
	if !c.Authenticated() {
		return result, fmt.Errorf("%w: could not poll", ErrNotAuthenticated)
	}

	body, err := c.request(ctx, pathSequence, newPayload(), requestOpts{})
	if err != nil {
		return result, fmt.Errorf("could not poll: %w", err)
	}
	seq, err := parseSequenceResponse(body)
	if err != nil {
		return result, fmt.Errorf("could not poll: %w", err)
	}

	zonesChanged := false
	for i, s := range seq.Zones {
		if c.zoneSequence(i) == s {
			continue
		}
		if err := c.updateZoneState(ctx, i, s); err != nil {
			return result, fmt.Errorf("could not poll: %w", err)
		}
		zonesChanged = true
	}

	var areasChanged []int
	for bank, s := range seq.Areas {
		if cur, ok := c.areaSequence(bank); !ok || cur == s {
			continue
		}
		if err := c.updateAreaStatus(ctx, bank, s); err != nil {
			return result, fmt.Errorf("could not poll: %w", err)
		}
		areasChanged = append(areasChanged, bank)
	}

	outputs, err := c.updateOutputs(ctx)
	if err != nil {
		return result, fmt.Errorf("could not poll: %w", err)
	}
	result.Outputs = outputs

	c.mu.Lock()
	defer c.mu.Unlock()
	if zonesChanged {
		result.Zones = c.processZonesLocked()
	}
	if len(areasChanged) > 0 {
		c.processAreasLocked()
		result.Areas = areasChanged
	}
	return result, nil
}

func (c *Client) zoneSequence(i int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < len(c.zoneSeq) {
		return c.zoneSeq[i]
	}
	return -1
}

func (c *Client) areaSequence(bank int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a := c.findArea(bank); a != nil {
		return a.Sequence, true
	}
	return 0, false
}

// updateZoneState fetches one zone state bank. The sequence is only stored
// once the bank is, so a failed fetch is retried on the next poll.
func (c *Client) updateZoneState(ctx context.Context, i, seq int) error {
	log.Debug("zone state changed", "state", i, "sequence", seq)
	body, err := c.request(ctx, pathZoneState, newPayload("state", strconv.Itoa(i)), requestOpts{})
	if err != nil {
		return fmt.Errorf("could not fetch zone state %d: %w", i, err)
	}
	words, err := parseZoneState(body)
	if err != nil {
		return fmt.Errorf("could not fetch zone state %d: %w", i, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.zoneSeq) <= i {
		c.zoneSeq = append(c.zoneSeq, -1)
	}
	for len(c.zoneBanks) <= i {
		c.zoneBanks = append(c.zoneBanks, nil)
	}
	c.zoneSeq[i] = seq
	c.zoneBanks[i] = words
	return nil
}

func (c *Client) updateAreaStatus(ctx context.Context, bank, seq int) error {
	log.Debug("area changed", "area", bank, "sequence", seq)
	body, err := c.request(ctx, pathAreaStatus, newPayload("arsel", strconv.Itoa(bank)), requestOpts{})
	if err != nil {
		return fmt.Errorf("could not fetch area %d status: %w", bank, err)
	}
	stats, faults, err := parseAreaStatus(body)
	if err != nil {
		return fmt.Errorf("could not fetch area %d status: %w", bank, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = faults
	if a := c.findArea(bank); a != nil {
		a.Sequence = seq
		a.BankState = stats
	}
	return nil
}

// updateOutputs refreshes every output and returns the ones that flipped.
func (c *Client) updateOutputs(ctx context.Context) ([]int, error) {
	body, err := c.request(ctx, pathOutputStatus, newPayload(), requestOpts{})
	if err != nil {
		return nil, fmt.Errorf("could not fetch outputs: %w", err)
	}
	states, err := parseOutputStatus(body)
	if err != nil {
		return nil, fmt.Errorf("could not fetch outputs: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var changed []int
	for i, o := range c.outputs {
		if i >= len(states) {
			break
		}
		if o.On != states[i] {
			o.On = states[i]
			changed = append(changed, o.Bank)
		}
	}
	return changed, nil
}

func (c *Client) processAreasLocked() {
	for _, a := range c.areas {
		decodeArea(a.Bank, a.BankState, c.faults).apply(a)
	}
}

// processZonesLocked decodes every zone and returns the banks whose sequence
// moved.
func (c *Client) processZonesLocked() []int {
	banks := maps.Keys(c.zones)
	slices.Sort(banks)
	var changed []int
	for _, bank := range banks {
		z := c.zones[bank]
		before := z.Sequence
		decodeZone(bank, c.zoneBanks).apply(z)
		if z.Sequence != before {
			changed = append(changed, bank)
		}
	}
	return changed
}
