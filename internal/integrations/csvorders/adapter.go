// Package csvorders reads order batches from CSV exports.
//
// The header row names the columns, in any order. Unknown columns are ignored.
// Recognized columns:
//
//	id, product, quantity, routing, input_diameter, output_diameter
//
// Routing steps are separated by '|' or '>'. Empty cells fall back to the
// scheduler defaults.
package csvorders

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"apsplan/internal/catalog"
	"apsplan/internal/integrations"
	"apsplan/internal/opt"
)

type Adapter struct {
	open func() (io.ReadCloser, error)
	name string
}

// FromFile reads path on every FetchOrders call.
func FromFile(path string) *Adapter {
	return &Adapter{name: "csv:" + path, open: func() (io.ReadCloser, error) { return os.Open(path) }}
}

// FromReader reads r once.
func FromReader(name string, r io.Reader) *Adapter {
	return &Adapter{name: name, open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil }}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FetchOrders(ctx context.Context) (integrations.OrderBatch, error) {
	rc, err := a.open()
	if err != nil {
		return integrations.OrderBatch{}, err
	}
	defer rc.Close()
	b, err := Parse(ctx, rc)
	b.Source = a.name
	return b, err
}

var ErrNoHeader = errors.New("csv: missing header row")

// Parse reads a whole CSV document.
func Parse(ctx context.Context, r io.Reader) (integrations.OrderBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return integrations.OrderBatch{}, ErrNoHeader
		}
		return integrations.OrderBatch{}, err
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var out integrations.OrderBatch
	row := 1
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return out, fmt.Errorf("csv row %d: %w", row, err)
		}
		o, err := parseRow(cols, rec)
		if err != nil {
			out.Rejected = append(out.Rejected, integrations.RowError{Row: row, Reason: err.Error()})
			continue
		}
		out.Orders = append(out.Orders, o)
	}
	return out, nil
}

func parseRow(cols map[string]int, rec []string) (opt.OrderInput, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(name string) (*float64, error) {
		v := cell(name)
		if v == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &f, nil
	}
	var o opt.OrderInput
	if v := cell("id"); v != "" {
		id := opt.OrderID(v)
		o.ID = &id
	}
	if v := cell("product"); v != "" {
		o.Product = &v
	}
	var err error
	if o.Quantity, err = num("quantity"); err != nil {
		return o, err
	}
	if o.InputDiameter, err = num("input_diameter"); err != nil {
		return o, err
	}
	if o.OutputDiameter, err = num("output_diameter"); err != nil {
		return o, err
	}
	if v := cell("routing"); v != "" {
		for _, step := range strings.FieldsFunc(v, func(r rune) bool { return r == '|' || r == '>' }) {
			if step = strings.TrimSpace(step); step != "" {
				o.Routing = append(o.Routing, catalog.LineID(step))
			}
		}
	}
	return o, nil
}
