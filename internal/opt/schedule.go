package opt

import (
	"context"
	"time"

	"apsplan/internal/catalog"
)

// Schedule is the scheduling entry point: normalize orders, expand them into
// tasks, build the model, search and extract. Each call owns everything it
// builds, so concurrent calls are safe against one shared catalog.
//
// Input errors (bad quantity, rejected unknown line) come back as an error
// together with an infeasible Result carrying an empty schedule. Search
// outcomes, including infeasible and unknown, are never errors.
func Schedule(ctx context.Context, c *catalog.Catalog, orders []OrderInput, cfg Config) (Result, error) {
	begin := time.Now()
	ts, err := BuildTasks(NormalizeOrders(orders, cfg.Defaults), c, cfg.UnknownLines)
	if err != nil {
		return Result{Status: StatusInfeasible, Schedule: []Entry{}}, err
	}
	if len(ts.Tasks) == 0 {
		return Result{
			Status:   StatusOptimal,
			Schedule: []Entry{},
			Skipped:  ts.Skipped,
			Stats:    Stats{Workers: max(cfg.Workers, 1), WallTime: time.Since(begin)},
		}, nil
	}
	m := NewModel(ts)
	out := Search(ctx, m, Options{
		TimeBudget: cfg.TimeBudget,
		Workers:    cfg.Workers,
		NodeLimit:  int64(cfg.NodeLimit),
		GreedySeed: cfg.GreedySeed,
	})
	res := Extract(m, out, c)
	if res.Schedule == nil {
		res.Schedule = []Entry{}
	}
	res.Skipped = ts.Skipped
	return res, nil
}
