package opt

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"apsplan/internal/catalog"
)

func ptr[T any](v T) *T { return &v }

func orderIn(id string, qty float64, routing ...catalog.LineID) OrderInput {
	oid := OrderID(id)
	return OrderInput{ID: &oid, Product: ptr("P" + id), Quantity: &qty, Routing: routing}
}

func TestNormalizeOrdersDefaults(t *testing.T) {
	c := catalog.Default()
	d := DefaultConfig(c).Defaults
	got := NormalizeOrders([]OrderInput{{}, {Routing: []catalog.LineID{}}}, d)
	if got[0].ID != "0" || got[1].ID != "1" {
		t.Fatalf("ids: %q %q", got[0].ID, got[1].ID)
	}
	if got[0].Quantity != 100 || got[0].Product != "Unknown" {
		t.Fatalf("defaults: %+v", got[0])
	}
	if len(got[0].Routing) != 1 || got[0].Routing[0] != "tel_cekme" {
		t.Fatalf("default routing: %v", got[0].Routing)
	}
	// an explicit empty routing is kept
	if len(got[1].Routing) != 0 {
		t.Fatalf("empty routing replaced: %v", got[1].Routing)
	}
	one := NormalizeOrders([]OrderInput{{InputDiameter: ptr(5.0)}}, d)
	if one[0].Diameters != nil {
		t.Fatal("diameter pair built from a single diameter")
	}
}

func TestBuildTasksHorizon(t *testing.T) {
	c := catalog.Default()
	orders := NormalizeOrders([]OrderInput{
		orderIn("A", 1000, "tel_cekme", "galvaniz"),
		orderIn("B", 1000, "galvaniz", "civi"),
	}, DefaultConfig(c).Defaults)
	ts, err := BuildTasks(orders, c, SkipUnknownLines)
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	if len(ts.Tasks) != 4 {
		t.Fatalf("tasks: %d", len(ts.Tasks))
	}
	sum := 0
	for i, tk := range ts.Tasks {
		if tk.Index != i {
			t.Fatalf("index %d: %d", i, tk.Index)
		}
		sum += tk.Duration
	}
	// every step counts, not just the first of each order
	if ts.Horizon != sum {
		t.Fatalf("horizon: got %d want %d", ts.Horizon, sum)
	}
}

func TestBuildTasksUnknownLines(t *testing.T) {
	c := catalog.Default()
	orders := NormalizeOrders([]OrderInput{
		orderIn("A", 1000, "tel_cekme", "boyahane", "galvaniz"),
	}, DefaultConfig(c).Defaults)

	ts, err := BuildTasks(orders, c, SkipUnknownLines)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if len(ts.Tasks) != 2 || len(ts.Skipped) != 1 {
		t.Fatalf("skip: tasks=%d skipped=%v", len(ts.Tasks), ts.Skipped)
	}
	if s := ts.Skipped[0]; s.OrderID != "A" || s.Step != 1 || s.Line != "boyahane" {
		t.Fatalf("skipped: %+v", s)
	}
	if ts.Tasks[1].Step != 2 {
		t.Fatalf("surviving step keeps its routing position: %+v", ts.Tasks[1])
	}

	_, err = BuildTasks(orders, c, RejectUnknownLines)
	var ule *UnknownLineError
	if !errors.As(err, &ule) || ule.Line != "boyahane" || ule.Step != 1 {
		t.Fatalf("reject: %v", err)
	}
	if !errors.Is(err, catalog.ErrUnknownLine) {
		t.Fatalf("reject does not wrap ErrUnknownLine: %v", err)
	}
}

func TestBuildTasksInvalidQuantity(t *testing.T) {
	c := catalog.Default()
	orders := NormalizeOrders([]OrderInput{orderIn("A", -5, "galvaniz")}, DefaultConfig(c).Defaults)
	ts, err := BuildTasks(orders, c, SkipUnknownLines)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}
	if len(ts.Tasks) != 0 {
		t.Fatal("partial task set returned on error")
	}
}

func TestNewModelInterleavedOrders(t *testing.T) {
	ts := TaskSet{Tasks: []Task{
		{OrderID: "A", Line: "tel_cekme", Step: 0, Duration: 10},
		{OrderID: "B", Line: "tel_cekme", Step: 0, Duration: 5},
		{OrderID: "A", Line: "galvaniz", Step: 1, Duration: 3},
		{OrderID: "B", Line: "galvaniz", Step: 1, Duration: 0},
	}, Horizon: 18}
	m := NewModel(ts)
	if m.NumVars() != 9 {
		t.Fatalf("vars: %d", m.NumVars())
	}
	want := []Precedence{{Before: 0, After: 2}, {Before: 1, After: 3}}
	if len(m.Precedences) != len(want) {
		t.Fatalf("precedences: %+v", m.Precedences)
	}
	for i, p := range want {
		if m.Precedences[i] != p {
			t.Fatalf("precedence %d: got %+v want %+v", i, m.Precedences[i], p)
		}
	}
	// the zero-length task on galvaniz is in no disjunction
	if len(m.Disjunctions) != 1 || m.Disjunctions[0] != (Disjunction{A: 0, B: 1}) {
		t.Fatalf("disjunctions: %+v", m.Disjunctions)
	}
	if len(m.NoOverlaps) != 2 || m.NoOverlaps[0].Line != "tel_cekme" {
		t.Fatalf("no-overlaps: %+v", m.NoOverlaps)
	}
	lo, hi := m.Domain(m.Intervals[2].End)
	if lo != 0 || hi != 18 {
		t.Fatalf("domain: [%d,%d]", lo, hi)
	}
}

func TestPropagateRoot(t *testing.T) {
	ts := TaskSet{Tasks: []Task{
		{OrderID: "A", Line: "x", Step: 0, Duration: 4},
		{OrderID: "A", Line: "y", Step: 1, Duration: 6},
		{OrderID: "B", Line: "x", Step: 0, Duration: 5},
	}, Horizon: 15}
	m := NewModel(ts)
	s := m.rootState()
	if ok, err := m.propagate(context.Background(), s); !ok || err != nil {
		t.Fatalf("root propagation failed: %v", err)
	}
	if got := s.lo[m.Intervals[1].Start]; got != 4 {
		t.Fatalf("precedence bound: %d", got)
	}
	// line x carries 9 minutes of work, chain A carries 10
	if got := s.lo[m.Makespan]; got != 10 {
		t.Fatalf("makespan lower bound: %d", got)
	}
	s.hi[m.Makespan] = 8
	if ok, _ := m.propagate(context.Background(), s); ok {
		t.Fatal("propagation accepted a makespan below the chain length")
	}
}

func TestNewModelSkipsPairsWithinOneOrder(t *testing.T) {
	ts := TaskSet{Tasks: []Task{
		{OrderID: "A", Line: "x", Step: 0, Duration: 4},
		{OrderID: "A", Line: "x", Step: 1, Duration: 6},
		{OrderID: "B", Line: "x", Step: 0, Duration: 5},
	}, Horizon: 15}
	m := NewModel(ts)
	want := []Disjunction{{A: 0, B: 2}, {A: 1, B: 2}}
	if len(m.Disjunctions) != len(want) {
		t.Fatalf("disjunctions: %+v", m.Disjunctions)
	}
	for i, d := range want {
		if m.Disjunctions[i] != d {
			t.Fatalf("disjunction %d: got %+v want %+v", i, m.Disjunctions[i], d)
		}
	}
}

// chain builds one order of n unit steps on line x; the horizon leaves no
// slack, so every start is fixed by propagation alone.
func chain(n int) TaskSet {
	ts := TaskSet{Horizon: n}
	for i := 0; i < n; i++ {
		ts.Tasks = append(ts.Tasks, Task{OrderID: "A", Line: "x", Step: i, Duration: 1})
	}
	return ts
}

func TestPropagateSettlesLongChain(t *testing.T) {
	const n = 1500
	m := NewModel(chain(n))
	s := m.rootState()
	if ok, err := m.propagate(context.Background(), s); !ok || err != nil {
		t.Fatalf("propagation failed: %v", err)
	}
	for _, i := range []int{0, 1, n / 2, n - 1} {
		iv := m.Intervals[i]
		if s.lo[iv.Start] != i || s.hi[iv.Start] != i {
			t.Fatalf("step %d: start in [%d,%d]", i, s.lo[iv.Start], s.hi[iv.Start])
		}
	}
}

func TestPropagateStopsOnDoneContext(t *testing.T) {
	ts := TaskSet{Horizon: 0}
	for i := 0; i < 200; i++ {
		ts.Tasks = append(ts.Tasks, Task{OrderID: OrderID(strconv.Itoa(i)), Line: "x", Duration: 1})
		ts.Horizon++
	}
	m := NewModel(ts)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := m.propagate(ctx, m.rootState())
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("got ok=%t err=%v", ok, err)
	}
}

func TestBuildTasksTooMany(t *testing.T) {
	c := catalog.Default()
	routing := make([]catalog.LineID, MaxTasks+1)
	for i := range routing {
		routing[i] = "civi"
	}
	orders := NormalizeOrders([]OrderInput{orderIn("A", 10, routing...)}, DefaultConfig(c).Defaults)
	if _, err := BuildTasks(orders, c, SkipUnknownLines); !errors.Is(err, ErrTooManyTasks) {
		t.Fatalf("want ErrTooManyTasks, got %v", err)
	}
	orders[0].Routing = routing[:MaxTasks]
	if _, err := BuildTasks(orders, c, SkipUnknownLines); err != nil {
		t.Fatalf("at the limit: %v", err)
	}
}
