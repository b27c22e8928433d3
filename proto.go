package nx595e

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// payload is a form body whose key order is kept on the wire: the panel
// rejects requests where the session is not the first key.
type payload []field

type field struct {
	key   string
	value string
}

func newPayload(kv ...string) payload {
	var p payload
	for i := 0; i+1 < len(kv); i += 2 {
		p = append(p, field{kv[i], kv[i+1]})
	}
	return p
}

// withSession returns a copy of the payload with sess as its first key.
func (p payload) withSession(sess string) payload {
	out := payload{{"sess", sess}}
	for _, f := range p {
		if f.key == "sess" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (p payload) encode() string {
	var sb strings.Builder
	for i, f := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(f.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.value))
	}
	return sb.String()
}

var (
	areaSequenceRe = regexp.MustCompile(`var\s+areaSequence\s+=\s+new\s+Array\(([\d,]+)\);`)
	areaStatusRe   = regexp.MustCompile(`var\s+areaStatus\s+=\s+new\s+Array\(([\d,]+)\);`)
	areaNamesRe    = regexp.MustCompile(`var\s+areaNames\s+=\s+new\s+Array\(("(.+)")\);`)

	zoneSequenceRe = regexp.MustCompile(`var\s+zoneSequence\s+=\s+new\s+Array\(([\d,]+)\);`)
	zoneStatusRe   = regexp.MustCompile(`var\s+zoneStatus\s+=\s+new\s+Array\((.*)\);`)
	zoneBankRe     = regexp.MustCompile(`(?:new\s+)?Array\(([^)]*)\)`)
	zoneNamesRe    = regexp.MustCompile(`var\s+zoneNames\s*=\s*(?:new\s+)?Array\(([^)]+)\)`)

	outputNameRe  = regexp.MustCompile(`var\s+oname\d+\s+=\s+decodeURIComponent\s*\(\s*decode_utf8\s*\(\s*"(.*)"\)\);`)
	outputStateRe = regexp.MustCompile(`var\s+ostate\d+\s+=\s+"([01])";`)
)

type areaPage struct {
	sequence []int
	status   []int
	names    []string
}

func parseAreaPage(body string) (areaPage, error) {
	seq := areaSequenceRe.FindStringSubmatch(body)
	status := areaStatusRe.FindStringSubmatch(body)
	names := areaNamesRe.FindStringSubmatch(body)
	if seq == nil || status == nil || names == nil {
		return areaPage{}, fmt.Errorf("%w: area arrays not found", ErrParse)
	}
	return areaPage{
		sequence: parseIntList(seq[1]),
		status:   parseIntList(status[1]),
		names:    parseNameList(names[1]),
	}, nil
}

// areas builds the area table, skipping unused slots. Each group of 8 areas
// shares 17 stat words.
func (p areaPage) areas() []*Area {
	seq := padInts(p.sequence, len(p.names))
	var areas []*Area
	for i, name := range p.names {
		if name == "!" || name == "%21" {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("Area %d", i+1)
		}
		start := (i / 8) * areaBankSize
		areas = append(areas, &Area{
			Bank:      i,
			Name:      name,
			Priority:  6,
			Sequence:  seq[i],
			BankState: sliceInts(p.status, start, start+areaBankSize),
		})
	}
	return areas
}

type zonePage struct {
	sequence []int
	banks    [][]int
	names    []string
}

func parseZonePage(body string) (zonePage, error) {
	seq := zoneSequenceRe.FindStringSubmatch(body)
	status := zoneStatusRe.FindStringSubmatch(body)
	names := zoneNamesRe.FindStringSubmatch(body)
	if seq == nil || status == nil || names == nil {
		return zonePage{}, fmt.Errorf("%w: zone arrays not found", ErrParse)
	}
	page := zonePage{
		sequence: parseIntList(seq[1]),
		names:    parseNameList(names[1]),
	}
	for _, m := range zoneBankRe.FindAllStringSubmatch(status[1], -1) {
		page.banks = append(page.banks, parseIntList(m[1]))
	}
	return page, nil
}

// zones builds the sparse zone table. Firmware without zone naming reports
// meaningless names, so those zones are named after their bank.
func (p zonePage) zones(naming bool) map[int]*Zone {
	zones := map[int]*Zone{}
	for i, name := range p.names {
		switch name {
		case "!", "%21", "-", "%2D":
			continue
		case "":
			if naming {
				continue
			}
		}
		if !naming || name == "" {
			name = fmt.Sprintf("Sensor %d", i+1)
		}
		zones[i] = &Zone{
			Bank:     i,
			Area:     -1,
			Name:     name,
			Priority: 5,
		}
	}
	return zones
}

func parseOutputPage(body string) []*Output {
	names := outputNameRe.FindAllStringSubmatch(body, -1)
	states := outputStateRe.FindAllStringSubmatch(body, -1)
	outputs := make([]*Output, 0, len(names))
	for i, m := range names {
		name := decodeName(m[1])
		if name == "" {
			name = fmt.Sprintf("Output %d", i+1)
		}
		outputs = append(outputs, &Output{
			Bank: i,
			Name: name,
			On:   i < len(states) && states[i][1] == "1",
		})
	}
	return outputs
}

// xmlResponse holds the children of a panel <response> document, in order.
type xmlResponse struct {
	keys   []string
	values map[string]string
}

func (r xmlResponse) get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

func parseXMLResponse(body string) (xmlResponse, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	resp := xmlResponse{values: map[string]string{}}
	var root, key string
	var text strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return xmlResponse{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				root = t.Name.Local
			case 2:
				key = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				resp.keys = append(resp.keys, key)
				resp.values[key] = strings.TrimSpace(text.String())
			}
			depth--
		}
	}
	if root != "response" {
		return xmlResponse{}, fmt.Errorf("%w: missing response element", ErrParse)
	}
	return resp, nil
}

func parseSequenceResponse(body string) (SequenceResponse, error) {
	resp, err := parseXMLResponse(body)
	if err != nil {
		return SequenceResponse{}, err
	}
	areas, ok := resp.get("areas")
	if !ok {
		return SequenceResponse{}, fmt.Errorf("%w: sequence response without areas", ErrParse)
	}
	zones, ok := resp.get("zones")
	if !ok {
		return SequenceResponse{}, fmt.Errorf("%w: sequence response without zones", ErrParse)
	}
	return SequenceResponse{
		Areas: parseIntList(areas),
		Zones: parseIntList(zones),
	}, nil
}

func parseZoneState(body string) ([]int, error) {
	resp, err := parseXMLResponse(body)
	if err != nil {
		return nil, err
	}
	zdat, ok := resp.get("zdat")
	if !ok {
		return nil, fmt.Errorf("%w: zone state without zdat", ErrParse)
	}
	return parseIntList(zdat), nil
}

// parseAreaStatus returns the 17 stat words of an area and the system fault
// lines, if any.
func parseAreaStatus(body string) ([]int, []string, error) {
	resp, err := parseXMLResponse(body)
	if err != nil {
		return nil, nil, err
	}
	stats := make([]int, areaBankSize)
	for i := range stats {
		v, ok := resp.get("stat" + strconv.Itoa(i))
		if !ok {
			return nil, nil, fmt.Errorf("%w: area status without stat%d", ErrParse, i)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: stat%d: %w", ErrParse, i, err)
		}
		stats[i] = n
	}

	var faults []string
	if sysflt, ok := resp.get("sysflt"); ok {
		for _, line := range strings.Split(sysflt, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				faults = append(faults, line)
			}
		}
	}
	return stats, faults, nil
}

func parseOutputStatus(body string) ([]bool, error) {
	resp, err := parseXMLResponse(body)
	if err != nil {
		return nil, err
	}
	states := make([]bool, len(resp.keys))
	for i, key := range resp.keys {
		states[i] = resp.values[key] != "0"
	}
	return states, nil
}

// parseIntList parses a comma separated list, dropping anything that is not
// a number.
func parseIntList(s string) []int {
	var out []int
	for _, item := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

var quotes = strings.NewReplacer(`"`, "", `'`, "")

func parseNameList(s string) []string {
	items := strings.Split(s, ",")
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = decodeName(quotes.Replace(strings.TrimSpace(item)))
	}
	return names
}

// decodeName percent-decodes a panel name. The unused slot markers are kept
// as they are so callers can tell them apart from real names.
func decodeName(s string) string {
	switch s {
	case "%21", "%2D":
		return s
	}
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

func padInts(v []int, n int) []int {
	if len(v) >= n {
		return v
	}
	return append(append([]int{}, v...), make([]int, n-len(v))...)
}

func sliceInts(v []int, from, to int) []int {
	if from > len(v) {
		from = len(v)
	}
	if to > len(v) {
		to = len(v)
	}
	return append([]int{}, v[from:to]...)
}
