// Package catalog holds the plant reference data the scheduler reads: production
// lines with their daily capacity and the wire-drawing throughput table.
//
// A Catalog is validated when it is built and never mutated afterwards, so a
// single instance is shared by every scheduling call.
package catalog

import (
	"cmp"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// LineID identifies a production line, e.g. "tel_cekme".
type LineID string

var (
	ErrUnknownLine = errors.New("unknown production line")
	ErrNoRate      = errors.New("no wire-drawing rate for diameter pair")
)

// Line is one production line of the plant.
type Line struct {
	ID            LineID  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	DailyCapacity float64 `json:"daily_capacity" yaml:"daily_capacity"`
	Unit          string  `json:"unit" yaml:"unit"`
}

// HourlyCapacity is the daily capacity spread over 24 hours.
func (l Line) HourlyCapacity() float64 { return l.DailyCapacity / 24 }

// DiameterPair is an (input, output) wire diameter in millimetres.
type DiameterPair struct {
	In  float64
	Out float64
}

func (p DiameterPair) String() string {
	return strconv.FormatFloat(p.In, 'f', -1, 64) + "x" + strconv.FormatFloat(p.Out, 'f', -1, 64)
}

// ParseDiameterPair parses the "<in>x<out>" form used in catalog files.
func ParseDiameterPair(s string) (DiameterPair, error) {
	in, out, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return DiameterPair{}, fmt.Errorf("diameter pair %q: want <in>x<out>", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
	if err != nil {
		return DiameterPair{}, fmt.Errorf("diameter pair %q: %w", s, err)
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return DiameterPair{}, fmt.Errorf("diameter pair %q: %w", s, err)
	}
	return DiameterPair{In: a, Out: b}, nil
}

// Catalog is the immutable registry of lines and wire-drawing rates.
type Catalog struct {
	lines    map[LineID]Line
	order    []LineID
	rates    map[DiameterPair]float64
	wireLine LineID
	print    string
}

type fileFormat struct {
	WireDrawingLine LineID             `yaml:"wire_drawing_line"`
	Lines           []Line             `yaml:"lines"`
	WireRates       map[string]float64 `yaml:"wire_rates"`
}

// New validates the inputs and builds a Catalog. Line ids must be unique,
// capacities and rates strictly positive, and wireLine must be one of lines.
func New(lines []Line, rates map[DiameterPair]float64, wireLine LineID) (*Catalog, error) {
	c := &Catalog{
		lines:    make(map[LineID]Line, len(lines)),
		order:    make([]LineID, 0, len(lines)),
		rates:    make(map[DiameterPair]float64, len(rates)),
		wireLine: wireLine,
	}
	for _, l := range lines {
		if l.ID == "" {
			return nil, errors.New("catalog: line with empty id")
		}
		if _, dup := c.lines[l.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate line %q", l.ID)
		}
		if !(l.DailyCapacity > 0) || math.IsInf(l.DailyCapacity, 0) {
			return nil, fmt.Errorf("catalog: line %q: daily capacity must be > 0, got %v", l.ID, l.DailyCapacity)
		}
		if l.Name == "" {
			l.Name = string(l.ID)
		}
		c.lines[l.ID] = l
		c.order = append(c.order, l.ID)
	}
	if _, ok := c.lines[wireLine]; !ok {
		return nil, fmt.Errorf("catalog: wire drawing line %q: %w", wireLine, ErrUnknownLine)
	}
	for p, r := range rates {
		if !(r > 0) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("catalog: rate %s must be > 0, got %v", p, r)
		}
		c.rates[p] = r
	}
	c.print = c.fingerprint()
	return c, nil
}

// fingerprint hashes the capacities and rates in a fixed order, so catalogs
// with the same content match however their files are laid out.
func (c *Catalog) fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "wire=%s\n", c.wireLine)
	ids := slices.Clone(c.order)
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(h, "line=%s cap=%g\n", id, c.lines[id].DailyCapacity)
	}
	pairs := make([]DiameterPair, 0, len(c.rates))
	for p := range c.rates {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(a, b DiameterPair) int {
		return cmp.Or(cmp.Compare(a.In, b.In), cmp.Compare(a.Out, b.Out))
	})
	for _, p := range pairs {
		fmt.Fprintf(h, "rate=%s %g\n", p, c.rates[p])
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Fingerprint identifies the scheduling-relevant content of c. Results
// computed against one catalog are only valid for the same fingerprint.
func (c *Catalog) Fingerprint() string { return c.print }

// Parse builds a Catalog from its YAML form.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	rates := make(map[DiameterPair]float64, len(f.WireRates))
	for k, v := range f.WireRates {
		p, err := ParseDiameterPair(k)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		rates[p] = v
	}
	return New(f.Lines, rates, f.WireDrawingLine)
}

// Load reads a catalog file. An empty path yields the built-in plant catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in plant catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Line looks up a line by id.
func (c *Catalog) Line(id LineID) (Line, error) {
	l, ok := c.lines[id]
	if !ok {
		return Line{}, fmt.Errorf("%w: %q", ErrUnknownLine, id)
	}
	return l, nil
}

func (c *Catalog) Has(id LineID) bool {
	_, ok := c.lines[id]
	return ok
}

// Lines returns a copy of all lines in catalog order.
func (c *Catalog) Lines() []Line {
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.lines[id])
	}
	return out
}

func (c *Catalog) WireDrawingLine() LineID { return c.wireLine }

// WireRate returns the hourly throughput for a diameter pair.
func (c *Catalog) WireRate(p DiameterPair) (float64, error) {
	r, ok := c.rates[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoRate, p)
	}
	return r, nil
}

// Rates returns a copy of the wire-drawing table.
func (c *Catalog) Rates() map[DiameterPair]float64 {
	out := make(map[DiameterPair]float64, len(c.rates))
	for k, v := range c.rates {
		out[k] = v
	}
	return out
}
