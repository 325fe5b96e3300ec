// Command apsctl schedules an order file offline and prints the plan.
//
//	apsctl -orders batch.json
//	apsctl -orders batch.csv -budget 2s -workers 4 -json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apsplan/internal/catalog"
	"apsplan/internal/integrations"
	"apsplan/internal/integrations/csvorders"
	"apsplan/internal/model"
	"apsplan/internal/opt"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "apsctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apsctl", flag.ContinueOnError)
	ordersPath := fs.String("orders", "", "orders file (.json or .csv); - reads JSON from stdin")
	catalogPath := fs.String("catalog", os.Getenv("APS_CATALOG"), "catalog YAML (default: built-in plant)")
	budget := fs.Duration("budget", 10*time.Second, "search time budget")
	workers := fs.Int("workers", 1, "parallel search workers")
	reject := fs.Bool("reject-unknown", false, "fail on routing steps naming unknown lines")
	noSeed := fs.Bool("no-seed", false, "disable the greedy starting schedule")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ordersPath == "" {
		fs.Usage()
		return errors.New("-orders is required")
	}
	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	batch, err := source(*ordersPath).FetchOrders(ctx)
	if err != nil {
		return err
	}
	for _, re := range batch.Rejected {
		fmt.Fprintf(os.Stderr, "row %d skipped: %s\n", re.Row, re.Reason)
	}

	cfg := opt.DefaultConfig(cat)
	cfg.TimeBudget = *budget
	cfg.Workers = *workers
	cfg.GreedySeed = !*noSeed
	if *reject {
		cfg.UnknownLines = opt.RejectUnknownLines
	}
	res, err := opt.Schedule(ctx, cat, batch.Orders, cfg)
	out := model.NewScheduleResult(res)
	if err != nil {
		out = model.FailedResult(err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Println(render(out, batch.Source))
	}
	if err != nil || !out.Status.Solved() {
		return fmt.Errorf("no schedule: %s", out.Status)
	}
	return nil
}

func source(path string) integrations.OrderSource {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return csvorders.FromFile(path)
	}
	return jsonSource(path)
}

// jsonSource reads either a bare order array or a {"orders": [...]} object.
type jsonSource string

func (s jsonSource) Name() string { return "json:" + string(s) }

func (s jsonSource) FetchOrders(ctx context.Context) (integrations.OrderBatch, error) {
	var data []byte
	var err error
	if s == "-" {
		data, err = readAll(os.Stdin)
	} else {
		data, err = os.ReadFile(string(s))
	}
	if err != nil {
		return integrations.OrderBatch{}, err
	}
	b := integrations.OrderBatch{Source: s.Name()}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &b.Orders)
	} else {
		var wrapped struct {
			Orders []opt.OrderInput `json:"orders"`
		}
		err = json.Unmarshal(data, &wrapped)
		b.Orders = wrapped.Orders
	}
	if err != nil {
		return integrations.OrderBatch{}, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return b, nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}
