package opt

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options control one Search call.
type Options struct {
	// TimeBudget bounds wall time; zero leaves only the context deadline.
	TimeBudget time.Duration
	// Workers is the portfolio size. Each worker explores the same tree with
	// a different tie-break order and all share one incumbent.
	Workers int
	// NodeLimit caps explored nodes across workers; zero is unlimited.
	NodeLimit int64
	// GreedySeed installs a serial schedule as the first incumbent.
	GreedySeed bool
	// Seed perturbs tie-breaks of workers after the first.
	Seed int64
}

// Outcome is the raw search result. Starts is indexed by task and is nil
// unless Status.Solved().
type Outcome struct {
	Status   Status
	Makespan int
	Starts   []int
	Stats    Stats
}

// incumbent is the best schedule found so far, shared by all workers.
type incumbent struct {
	mu     sync.Mutex
	found  bool
	best   int
	starts []int
}

func (in *incumbent) bound() (int, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.best, in.found
}

func (in *incumbent) offer(makespan int, starts []int) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.found && makespan >= in.best {
		return false
	}
	in.found, in.best, in.starts = true, makespan, starts
	return true
}

type counters struct {
	conflicts, branches, nodes, solutions atomic.Int64
}

// Search minimizes the makespan of m by depth-first branch and bound over the
// disjunctions, with propagation at every node. It stops when the tree is
// exhausted, the budget or context expires, or the node limit is hit, and
// always reports the status and best schedule it has at that point.
func Search(ctx context.Context, m *Model, o Options) Outcome {
	begin := time.Now()
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.TimeBudget)
		defer cancel()
	}

	var (
		inc incumbent
		cnt counters
	)
	if o.GreedySeed && len(m.Tasks) > 0 {
		starts, mk := m.greedySeed()
		inc.offer(mk, starts)
		cnt.solutions.Add(1)
	}

	root := m.rootState()
	exhausted := false
	ok, err := m.propagate(ctx, root)
	switch {
	case err != nil:
		// out of time before the first branch; the seed is all there is
	case !ok:
		cnt.conflicts.Add(1)
		exhausted = true
	default:
		var once atomic.Bool
		g, gctx := errgroup.WithContext(ctx)
		stop, cancel := context.WithCancel(gctx)
		defer cancel()
		for w := 0; w < o.Workers; w++ {
			g.Go(func() error {
				sw := &worker{m: m, inc: &inc, cnt: &cnt, limit: o.NodeLimit}
				if w > 0 {
					sw.rng = rand.New(rand.NewSource(o.Seed + int64(w)))
				}
				if sw.run(stop, root.clone()) {
					once.Store(true)
					// one finished proof settles the search for everybody
					cancel()
				}
				return nil
			})
		}
		_ = g.Wait()
		exhausted = once.Load()
	}

	out := Outcome{Stats: Stats{
		Conflicts: cnt.conflicts.Load(),
		Branches:  cnt.branches.Load(),
		Nodes:     cnt.nodes.Load(),
		Solutions: cnt.solutions.Load(),
		Workers:   o.Workers,
	}}
	best, found := inc.bound()
	switch {
	case found && exhausted:
		out.Status = StatusOptimal
	case found:
		out.Status = StatusFeasible
	case exhausted:
		out.Status = StatusInfeasible
	default:
		out.Status = StatusUnknown
	}
	if found {
		out.Makespan = best
		inc.mu.Lock()
		out.Starts = append([]int(nil), inc.starts...)
		inc.mu.Unlock()
	}
	out.Stats.WallTime = time.Since(begin)
	return out
}

type worker struct {
	m     *Model
	inc   *incumbent
	cnt   *counters
	limit int64
	rng   *rand.Rand
}

// frame is a pending node: the parent's state and the decision to apply.
type frame struct {
	s     *state
	pair  int
	order int8
}

// run explores the tree under root. It returns true only when the tree was
// exhausted, which proves the incumbent optimal (or the model infeasible).
func (w *worker) run(ctx context.Context, root *state) bool {
	m := w.m
	stack := []frame{{s: root, pair: -1}}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return false
		}
		if w.limit > 0 && w.cnt.nodes.Load() >= w.limit {
			return false
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s := f.s

		if best, ok := w.inc.bound(); ok && best-1 < s.hi[m.Makespan] {
			s.hi[m.Makespan] = best - 1
		}
		if f.pair >= 0 {
			s.order[f.pair] = f.order
		}
		w.cnt.nodes.Add(1)
		ok, err := m.propagate(ctx, s)
		if err != nil {
			return false
		}
		if !ok {
			w.cnt.conflicts.Add(1)
			continue
		}

		k := w.choose(s)
		if k < 0 {
			w.leaf(s)
			continue
		}
		w.cnt.branches.Add(1)
		first, second := w.orderings(s, k)
		stack = append(stack,
			frame{s: s.clone(), pair: k, order: second},
			frame{s: s, pair: k, order: first},
		)
	}
	return true
}

// leaf records the schedule of a fully ordered state: every task at its
// earliest start.
func (w *worker) leaf(s *state) {
	m := w.m
	starts := make([]int, len(m.Tasks))
	mk := 0
	for i, iv := range m.Intervals {
		starts[i] = s.lo[iv.Start]
		mk = max(mk, starts[i]+iv.Size)
	}
	if w.inc.offer(mk, starts) {
		w.cnt.solutions.Add(1)
	}
}

// choose returns the undecided disjunction whose earlier task can start
// first, or -1 when every pair is ordered.
func (w *worker) choose(s *state) int {
	m := w.m
	best, bestKey, ties := -1, 0, 0
	for k, d := range m.Disjunctions {
		if s.order[k] != undecided {
			continue
		}
		key := min(s.lo[m.Intervals[d.A].Start], s.lo[m.Intervals[d.B].Start])
		switch {
		case best < 0 || key < bestKey:
			best, bestKey, ties = k, key, 1
		case key == bestKey && w.rng != nil:
			// reservoir pick among equal keys
			ties++
			if w.rng.Intn(ties) == 0 {
				best = k
			}
		}
	}
	return best
}

// orderings puts the task with the earlier start (then earlier end) first.
func (w *worker) orderings(s *state, k int) (int8, int8) {
	d := w.m.Disjunctions[k]
	ia, ib := w.m.Intervals[d.A], w.m.Intervals[d.B]
	sa, sb := s.lo[ia.Start], s.lo[ib.Start]
	ea, eb := s.lo[ia.End], s.lo[ib.End]
	switch {
	case sa < sb, sa == sb && ea < eb:
		return aFirst, bFirst
	case sb < sa, eb < ea:
		return bFirst, aFirst
	}
	if w.rng != nil && w.rng.Intn(2) == 1 {
		return bFirst, aFirst
	}
	return aFirst, bFirst
}
