package opt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"apsplan/internal/catalog"
)

func testConfig(c *catalog.Catalog) Config {
	cfg := DefaultConfig(c)
	cfg.TimeBudget = 5 * time.Second
	return cfg
}

// checkSchedule asserts no-overlap, precedence and makespan on a solved result.
func checkSchedule(t *testing.T, res Result) {
	t.Helper()
	if !res.Status.Solved() {
		t.Fatalf("status %s", res.Status)
	}
	byLine := map[catalog.LineID][]Task{}
	byOrder := map[OrderID][]Task{}
	mk := 0
	for _, tk := range res.Tasks {
		if tk.End-tk.Start != tk.Duration || tk.Start < 0 {
			t.Fatalf("bad interval: %+v", tk)
		}
		byLine[tk.Line] = append(byLine[tk.Line], tk)
		byOrder[tk.OrderID] = append(byOrder[tk.OrderID], tk)
		mk = max(mk, tk.End)
	}
	for line, ts := range byLine {
		for i := range ts {
			for j := i + 1; j < len(ts); j++ {
				a, b := ts[i], ts[j]
				if a.Duration > 0 && b.Duration > 0 && a.Start < b.End && b.Start < a.End {
					t.Fatalf("overlap on %s: %+v %+v", line, a, b)
				}
			}
		}
	}
	for id, ts := range byOrder {
		for _, a := range ts {
			for _, b := range ts {
				if a.Step < b.Step && a.End > b.Start {
					t.Fatalf("order %s: step %d ends %d after step %d starts %d", id, a.Step, a.End, b.Step, b.Start)
				}
			}
		}
	}
	if res.Makespan != mk {
		t.Fatalf("makespan %d, max end %d", res.Makespan, mk)
	}
	for i := 1; i < len(res.Schedule); i++ {
		a, b := res.Schedule[i-1], res.Schedule[i]
		if a.StartTime > b.StartTime || (a.StartTime == b.StartTime && a.Machine > b.Machine) {
			t.Fatalf("schedule not sorted at %d: %+v %+v", i, a, b)
		}
	}
}

func TestScheduleWireThenGalvaniz(t *testing.T) {
	c := catalog.Default()
	in := orderIn("1", 1000, "tel_cekme", "galvaniz")
	in.InputDiameter, in.OutputDiameter = ptr(5.0), ptr(2.5)
	res, err := Schedule(context.Background(), c, []OrderInput{in}, testConfig(c))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Status != StatusOptimal || res.Makespan != 166 {
		t.Fatalf("got %s makespan %d", res.Status, res.Makespan)
	}
	if len(res.Schedule) != 2 {
		t.Fatalf("entries: %+v", res.Schedule)
	}
	first, second := res.Schedule[0], res.Schedule[1]
	if first.Machine != "Tel Çekme" || first.Duration != 155 || first.StartTime != 0 {
		t.Fatalf("first: %+v", first)
	}
	if second.Machine != "Galvaniz" || second.StartTime != 155 || second.EndTime != 166 {
		t.Fatalf("second: %+v", second)
	}
	checkSchedule(t, res)
}

func TestScheduleEmptyBatch(t *testing.T) {
	c := catalog.Default()
	res, err := Schedule(context.Background(), c, nil, testConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusOptimal || res.Makespan != 0 || res.Schedule == nil || len(res.Schedule) != 0 {
		t.Fatalf("empty batch: %+v", res)
	}
}

func TestScheduleSharedLines(t *testing.T) {
	c := catalog.Default()
	orders := []OrderInput{
		orderIn("A", 2000, "tel_cekme", "galvaniz", "civi"),
		orderIn("B", 1500, "galvaniz", "tel_cekme"),
		orderIn("C", 800, "tel_cekme", "civi"),
		orderIn("D", 1200, "civi", "galvaniz", "tel_cekme"),
	}
	res, err := Schedule(context.Background(), c, orders, testConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("status %s", res.Status)
	}
	checkSchedule(t, res)
	if res.Stats.Nodes == 0 {
		t.Fatalf("stats: %+v", res.Stats)
	}

	// same instance with the seed off and a portfolio must reach the same optimum
	cfg := testConfig(c)
	cfg.GreedySeed = false
	cfg.Workers = 4
	par, err := Schedule(context.Background(), c, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if par.Status != StatusOptimal || par.Makespan != res.Makespan {
		t.Fatalf("portfolio: %s %d, serial %d", par.Status, par.Makespan, res.Makespan)
	}
	checkSchedule(t, par)
}

func TestScheduleInterleavedAndDuplicateIDs(t *testing.T) {
	c := catalog.Default()
	a0 := orderIn("A", 1000, "tel_cekme")
	b0 := orderIn("B", 1000, "galvaniz")
	a1 := orderIn("A", 1000, "galvaniz")
	res, err := Schedule(context.Background(), c, []OrderInput{a0, b0, a1}, testConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	checkSchedule(t, res)
}

func TestScheduleSkipReportsDroppedSteps(t *testing.T) {
	c := catalog.Default()
	orders := []OrderInput{orderIn("A", 1000, "tel_cekme", "boyahane", "galvaniz")}
	res, err := Schedule(context.Background(), c, orders, testConfig(c))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Skipped) != 1 || len(res.Schedule) != 2 {
		t.Fatalf("skip: %+v", res)
	}
	checkSchedule(t, res)

	cfg := testConfig(c)
	cfg.UnknownLines = RejectUnknownLines
	res, err = Schedule(context.Background(), c, orders, cfg)
	if !errors.Is(err, catalog.ErrUnknownLine) {
		t.Fatalf("reject: %v", err)
	}
	if res.Status != StatusInfeasible || len(res.Schedule) != 0 {
		t.Fatalf("reject result: %+v", res)
	}
}

func TestScheduleNeverInfeasibleForValidRoutings(t *testing.T) {
	c := catalog.Default()
	lines := c.Lines()
	for n := 1; n <= 6; n++ {
		var orders []OrderInput
		for i := 0; i < n; i++ {
			var routing []catalog.LineID
			for k := 0; k <= i%3; k++ {
				routing = append(routing, lines[(i+k)%len(lines)].ID)
			}
			orders = append(orders, orderIn(fmt.Sprint(i), float64(100*(i+1)), routing...))
		}
		cfg := testConfig(c)
		cfg.NodeLimit = 5000
		res, err := Schedule(context.Background(), c, orders, cfg)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if res.Status == StatusInfeasible || res.Status == StatusUnknown {
			t.Fatalf("n=%d: status %s", n, res.Status)
		}
		checkSchedule(t, res)
	}
}

func TestScheduleUnknownWhenBudgetGoneWithoutSeed(t *testing.T) {
	c := catalog.Default()
	orders := []OrderInput{
		orderIn("A", 1000, "tel_cekme", "galvaniz"),
		orderIn("B", 1000, "tel_cekme", "galvaniz"),
	}
	cfg := testConfig(c)
	cfg.GreedySeed = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Schedule(ctx, c, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusUnknown || len(res.Schedule) != 0 || res.Makespan != 0 {
		t.Fatalf("want unknown with empty schedule, got %+v", res)
	}

	// with the seed the same budget still yields a schedule
	cfg.GreedySeed = true
	res, err = Schedule(ctx, c, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFeasible {
		t.Fatalf("seeded: %s", res.Status)
	}
	checkSchedule(t, res)
}

func TestScheduleLongRoutingsStayWithinBudget(t *testing.T) {
	c := catalog.Default()
	const budget = 100 * time.Millisecond
	long := make([]catalog.LineID, 1600)
	for i := range long {
		long[i] = "civi"
	}
	wide := make([]OrderInput, 400)
	for i := range wide {
		wide[i] = orderIn(fmt.Sprint(i), 10, "civi")
	}
	for name, orders := range map[string][]OrderInput{
		"one long chain":        {orderIn("A", 10, long...)},
		"many orders on a line": wide,
	} {
		cfg := testConfig(c)
		cfg.TimeBudget = budget
		begin := time.Now()
		res, err := Schedule(context.Background(), c, orders, cfg)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if took := time.Since(begin); took > 20*budget {
			t.Fatalf("%s: took %v on a %v budget", name, took, budget)
		}
		checkSchedule(t, res)
	}
}

func TestScheduleNodeLimit(t *testing.T) {
	c := catalog.Default()
	orders := []OrderInput{
		orderIn("A", 1000, "tel_cekme", "galvaniz"),
		orderIn("B", 1000, "tel_cekme", "galvaniz"),
		orderIn("C", 1000, "tel_cekme", "galvaniz"),
	}
	cfg := testConfig(c)
	cfg.GreedySeed = false
	cfg.NodeLimit = 1
	res, err := Schedule(context.Background(), c, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusUnknown || res.Stats.Nodes != 1 {
		t.Fatalf("node limit: %s nodes=%d", res.Status, res.Stats.Nodes)
	}
}

func TestReplaySolvedSchedule(t *testing.T) {
	c := catalog.Default()
	orders := NormalizeOrders([]OrderInput{
		orderIn("A", 1000, "tel_cekme", "galvaniz"),
		orderIn("B", 2000, "galvaniz", "civi"),
		orderIn("C", 500, "civi", "tel_cekme"),
	}, DefaultConfig(c).Defaults)
	ts, err := BuildTasks(orders, c, SkipUnknownLines)
	if err != nil {
		t.Fatal(err)
	}
	m := NewModel(ts)
	res := Extract(m, Search(context.Background(), m, Options{GreedySeed: true, TimeBudget: 5 * time.Second}), c)
	if err := Replay(m, res.Tasks); err != nil {
		t.Fatalf("replay: %v", err)
	}

	bad := append([]Task(nil), res.Tasks...)
	bad[1].Start, bad[1].End = 0, bad[1].Duration
	if err := Replay(m, bad); !errors.Is(err, ErrReplay) {
		t.Fatalf("precedence violation accepted: %v", err)
	}
	if err := Replay(m, res.Tasks[:1]); !errors.Is(err, ErrReplay) {
		t.Fatalf("short schedule accepted: %v", err)
	}
}

func TestScheduleConcurrentCalls(t *testing.T) {
	c := catalog.Default()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qty := float64(1000 + 100*i)
			orders := []OrderInput{
				orderIn("A", qty, "tel_cekme", "galvaniz"),
				orderIn("B", qty, "galvaniz", "tel_cekme"),
			}
			res, err := Schedule(context.Background(), c, orders, testConfig(c))
			if err != nil {
				errs <- err
				return
			}
			if res.Status != StatusOptimal {
				errs <- fmt.Errorf("call %d: %s", i, res.Status)
				return
			}
			want, _ := DurationMinutes(c, "tel_cekme", qty, nil)
			for _, e := range res.Schedule {
				if e.Line == "tel_cekme" && e.Duration != want {
					errs <- fmt.Errorf("call %d: durations leaked between calls: %+v", i, res.Schedule)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
