package opt

import (
	"sort"

	"apsplan/internal/catalog"
)

// VarID indexes the integer variables of a Model.
type VarID int

// Interval binds a task's start and end variables with its fixed size.
type Interval struct {
	Start VarID
	End   VarID
	Size  int
}

// Precedence requires end[Before] <= start[After] (task indexes).
type Precedence struct {
	Before int
	After  int
}

// NoOverlap requires the intervals of Tasks to be pairwise disjoint.
type NoOverlap struct {
	Line  catalog.LineID
	Tasks []int
}

// Disjunction is one unordered pair of tasks competing for a line. The search
// resolves it to A before B or B before A.
type Disjunction struct {
	A int
	B int
}

// Model is the constraint model of one scheduling call. All variables live in
// one arena owned by the model; nothing is shared between models.
type Model struct {
	Tasks        []Task
	Horizon      int
	Intervals    []Interval
	Precedences  []Precedence
	NoOverlaps   []NoOverlap
	Disjunctions []Disjunction
	Makespan     VarID

	lo, hi []int
	pred   []int // chain predecessor per task, -1 for the first step
	succ   []int
}

// NewModel creates start/end variables over [0, horizon] for every task, the
// per-line no-overlap constraints, the per-order precedence chains and the
// makespan objective variable.
func NewModel(ts TaskSet) *Model {
	n := len(ts.Tasks)
	m := &Model{
		Tasks:     append([]Task(nil), ts.Tasks...),
		Horizon:   ts.Horizon,
		Intervals: make([]Interval, n),
		lo:        make([]int, 2*n+1),
		hi:        make([]int, 2*n+1),
		pred:      make([]int, n),
		succ:      make([]int, n),
	}
	for i := range m.Tasks {
		m.Tasks[i].Index = i
		m.Intervals[i] = Interval{Start: VarID(2 * i), End: VarID(2*i + 1), Size: m.Tasks[i].Duration}
		m.hi[2*i] = ts.Horizon
		m.hi[2*i+1] = ts.Horizon
		m.pred[i], m.succ[i] = -1, -1
	}
	m.Makespan = VarID(2 * n)
	m.hi[m.Makespan] = ts.Horizon

	m.buildPrecedences()
	m.buildNoOverlaps()
	return m
}

// buildPrecedences chains the steps of every order id by step index. Tasks are
// matched by order id, so interleaved batches chain correctly. Each chain is
// appended whole and in step order; propagate relies on that.
func (m *Model) buildPrecedences() {
	var ids []OrderID
	byOrder := map[OrderID][]int{}
	for i, t := range m.Tasks {
		if _, ok := byOrder[t.OrderID]; !ok {
			ids = append(ids, t.OrderID)
		}
		byOrder[t.OrderID] = append(byOrder[t.OrderID], i)
	}
	for _, id := range ids {
		chain := byOrder[id]
		sort.SliceStable(chain, func(a, b int) bool { return m.Tasks[chain[a]].Step < m.Tasks[chain[b]].Step })
		for j := 0; j+1 < len(chain); j++ {
			a, b := chain[j], chain[j+1]
			m.Precedences = append(m.Precedences, Precedence{Before: a, After: b})
			m.pred[b] = a
			m.succ[a] = b
		}
	}
}

func (m *Model) buildNoOverlaps() {
	idx := map[catalog.LineID]int{}
	for i, t := range m.Tasks {
		k, ok := idx[t.Line]
		if !ok {
			k = len(m.NoOverlaps)
			idx[t.Line] = k
			m.NoOverlaps = append(m.NoOverlaps, NoOverlap{Line: t.Line})
		}
		m.NoOverlaps[k].Tasks = append(m.NoOverlaps[k].Tasks, i)
	}
	for _, no := range m.NoOverlaps {
		for x := 0; x < len(no.Tasks); x++ {
			a := no.Tasks[x]
			if m.Tasks[a].Duration == 0 {
				continue
			}
			for y := x + 1; y < len(no.Tasks); y++ {
				b := no.Tasks[y]
				// zero-length intervals never overlap anything, and steps of
				// one order are already ordered by its chain
				if m.Tasks[b].Duration == 0 || m.Tasks[b].OrderID == m.Tasks[a].OrderID {
					continue
				}
				m.Disjunctions = append(m.Disjunctions, Disjunction{A: a, B: b})
			}
		}
	}
}

// NumVars is the size of the variable arena (two per task plus makespan).
func (m *Model) NumVars() int { return len(m.lo) }

// Domain returns the initial bounds of v.
func (m *Model) Domain(v VarID) (int, int) { return m.lo[v], m.hi[v] }
