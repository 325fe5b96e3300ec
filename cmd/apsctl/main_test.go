package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"apsplan/internal/model"
	"apsplan/internal/opt"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestJSONSourceShapes(t *testing.T) {
	for _, body := range []string{
		`[{"id":1,"quantity":1000,"routing":["tel_cekme","galvaniz"],"input_diameter":5,"output_diameter":2.5}]`,
		`{"orders":[{"id":1,"quantity":1000,"routing":["tel_cekme","galvaniz"],"input_diameter":5,"output_diameter":2.5}]}`,
	} {
		b, err := source(writeFile(t, "o.json", body)).FetchOrders(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(b.Orders) != 1 || *b.Orders[0].ID != "1" {
			t.Fatalf("unexpected orders: %+v", b.Orders)
		}
	}
}

func TestRunCSV(t *testing.T) {
	p := writeFile(t, "o.csv", "id,quantity,routing,input_diameter,output_diameter\nA1,1000,tel_cekme|galvaniz,5,2.5\n")
	if err := run(context.Background(), []string{"-orders", p, "-json"}); err != nil {
		t.Fatal(err)
	}
}

func TestRunRejectUnknown(t *testing.T) {
	p := writeFile(t, "o.json", `[{"routing":["laser"]}]`)
	if err := run(context.Background(), []string{"-orders", p, "-reject-unknown", "-json"}); err == nil {
		t.Fatalf("want error for rejected unknown line")
	}
}

func TestRender(t *testing.T) {
	mk := 166
	res := model.ScheduleResult{
		Status:   opt.StatusOptimal,
		Makespan: &mk,
		Schedule: []opt.Entry{
			{OrderID: "1", Machine: "Tel Çekme", Line: "tel_cekme", StartTime: 0, EndTime: 155, Duration: 155},
			{OrderID: "1", Machine: "Galvaniz", Line: "galvaniz", Step: 1, StartTime: 155, EndTime: 166, Duration: 11},
		},
	}
	out := render(res, "test")
	for _, want := range []string{"optimal", "makespan 166", "Tel Çekme", "Galvaniz", "TIMELINE"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestTimeline(t *testing.T) {
	full := timeline(opt.Entry{StartTime: 0, EndTime: 10}, 10)
	if strings.Count(full, "█") != barWidth {
		t.Fatalf("full bar: %q", full)
	}
	tick := timeline(opt.Entry{StartTime: 10, EndTime: 10}, 10)
	if strings.Count(tick, "█") != 1 {
		t.Fatalf("zero-length step should render a tick: %q", tick)
	}
}
