package csvorders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"apsplan/internal/catalog"
	"apsplan/internal/opt"
)

func TestParseOrders(t *testing.T) {
	doc := strings.Join([]string{
		"id,product,quantity,routing,input_diameter,output_diameter",
		"A1,wire,1000,tel_cekme|galvaniz,5,2.5",
		"A2,,,,,",
		"A3,mesh,abc,hasir,,",
		"A4,nail,50, tel_cekme > civi ,,",
	}, "\n")
	b, err := FromReader("test", strings.NewReader(doc)).FetchOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b.Source != "test" || len(b.Orders) != 3 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	if len(b.Rejected) != 1 || b.Rejected[0].Row != 4 {
		t.Fatalf("want row 4 rejected, got %+v", b.Rejected)
	}

	a1 := b.Orders[0]
	if *a1.ID != "A1" || *a1.Quantity != 1000 || *a1.InputDiameter != 5 || *a1.OutputDiameter != 2.5 {
		t.Fatalf("A1 fields: %+v", a1)
	}
	if len(a1.Routing) != 2 || a1.Routing[1] != "galvaniz" {
		t.Fatalf("A1 routing: %v", a1.Routing)
	}
	a2 := b.Orders[1]
	if a2.Product != nil || a2.Quantity != nil || a2.Routing != nil {
		t.Fatalf("empty cells should stay nil: %+v", a2)
	}
	want := []catalog.LineID{"tel_cekme", "civi"}
	if got := b.Orders[2].Routing; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("A4 routing: %v", got)
	}
}

func TestParsedOrdersSchedule(t *testing.T) {
	doc := "id,quantity,routing,input_diameter,output_diameter\nA1,1000,tel_cekme|galvaniz,5,2.5\n"
	b, err := Parse(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	c := catalog.Default()
	res, err := opt.Schedule(context.Background(), c, b.Orders, opt.DefaultConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != opt.StatusOptimal || res.Makespan != 166 {
		t.Fatalf("got %s makespan %d", res.Status, res.Makespan)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(context.Background(), strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("want ErrNoHeader, got %v", err)
	}
}
