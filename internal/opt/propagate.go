package opt

import "context"

// Ordering of a disjunction inside a search state.
const (
	undecided int8 = 0
	aFirst    int8 = 1
	bFirst    int8 = -1
)

// state is one node of the search: current variable bounds plus the
// resolution of every disjunction. States are cloned on branching, never
// shared between workers.
type state struct {
	lo, hi []int
	order  []int8
}

func (m *Model) rootState() *state {
	return &state{
		lo:    append([]int(nil), m.lo...),
		hi:    append([]int(nil), m.hi...),
		order: make([]int8, len(m.Disjunctions)),
	}
}

func (s *state) clone() *state {
	return &state{
		lo:    append([]int(nil), s.lo...),
		hi:    append([]int(nil), s.hi...),
		order: append([]int8(nil), s.order...),
	}
}

type propagator struct {
	s       *state
	changed bool
}

func (p *propagator) raise(v VarID, x int) bool {
	if x > p.s.lo[v] {
		p.s.lo[v] = x
		p.changed = true
	}
	return p.s.lo[v] <= p.s.hi[v]
}

func (p *propagator) lower(v VarID, x int) bool {
	if x < p.s.hi[v] {
		p.s.hi[v] = x
		p.changed = true
	}
	return p.s.lo[v] <= p.s.hi[v]
}

// size keeps end = start + Size on both bounds of iv.
func (m *Model) size(p *propagator, iv Interval) bool {
	s := p.s
	return p.raise(iv.End, s.lo[iv.Start]+iv.Size) &&
		p.raise(iv.Start, s.lo[iv.End]-iv.Size) &&
		p.lower(iv.End, s.hi[iv.Start]+iv.Size) &&
		p.lower(iv.Start, s.hi[iv.End]-iv.Size)
}

// before enforces end[a] <= start[b] and pushes the result through both
// intervals, so walking a chain in order settles it in one visit.
func (m *Model) before(p *propagator, a, b int) bool {
	ia, ib := m.Intervals[a], m.Intervals[b]
	return m.size(p, ia) &&
		p.raise(ib.Start, p.s.lo[ia.End]) &&
		m.size(p, ib) &&
		p.lower(ia.End, p.s.hi[ib.Start]) &&
		m.size(p, ia)
}

// ctxCheckEvery is how many disjunctions are visited between context checks.
const ctxCheckEvery = 4096

// propagate tightens s to a fixpoint. It returns false when some domain
// empties or some disjunction can be ordered neither way. A done ctx stops it
// with ctx.Err(), leaving s partially tightened.
func (m *Model) propagate(ctx context.Context, s *state) (bool, error) {
	p := &propagator{s: s}
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		p.changed = false
		for _, iv := range m.Intervals {
			if !m.size(p, iv) {
				return false, nil
			}
		}
		// Precedences are listed chain by chain in step order: the forward
		// walk settles lower bounds, the backward walk upper bounds.
		for _, pr := range m.Precedences {
			if !m.before(p, pr.Before, pr.After) {
				return false, nil
			}
		}
		for i := len(m.Precedences) - 1; i >= 0; i-- {
			if pr := m.Precedences[i]; !m.before(p, pr.Before, pr.After) {
				return false, nil
			}
		}
		for k, d := range m.Disjunctions {
			if k%ctxCheckEvery == ctxCheckEvery-1 {
				if err := ctx.Err(); err != nil {
					return false, err
				}
			}
			switch s.order[k] {
			case aFirst:
				if !m.before(p, d.A, d.B) {
					return false, nil
				}
			case bFirst:
				if !m.before(p, d.B, d.A) {
					return false, nil
				}
			default:
				ia, ib := m.Intervals[d.A], m.Intervals[d.B]
				canAB := s.lo[ia.End] <= s.hi[ib.Start]
				canBA := s.lo[ib.End] <= s.hi[ia.Start]
				switch {
				case !canAB && !canBA:
					return false, nil
				case !canAB:
					s.order[k] = bFirst
					p.changed = true
				case !canBA:
					s.order[k] = aFirst
					p.changed = true
				}
			}
		}
		if !m.propagateMakespan(p) {
			return false, nil
		}
		if !p.changed {
			return true, nil
		}
	}
}

func (m *Model) propagateMakespan(p *propagator) bool {
	s := p.s
	mk := m.Makespan
	for _, iv := range m.Intervals {
		if !p.raise(mk, s.lo[iv.End]) || !p.lower(iv.End, s.hi[mk]) {
			return false
		}
	}
	// a line cannot finish before its earliest start plus all its work
	for _, no := range m.NoOverlaps {
		if len(no.Tasks) < 2 {
			continue
		}
		minStart, work := s.hi[mk], 0
		for _, t := range no.Tasks {
			iv := m.Intervals[t]
			if s.lo[iv.Start] < minStart {
				minStart = s.lo[iv.Start]
			}
			work += iv.Size
		}
		if !p.raise(mk, minStart+work) {
			return false
		}
	}
	return true
}
