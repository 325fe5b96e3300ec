package opt

import (
	"context"
	"errors"
	"fmt"
)

// ErrReplay reports a schedule that violates the model it was checked against.
var ErrReplay = errors.New("schedule violates model")

// Replay checks that tasks (indexed like m.Tasks, Start and End filled in)
// satisfy every constraint of m. The values are also fixed as domains and
// pushed through propagation, so the model itself confirms the schedule
// without any search.
func Replay(m *Model, tasks []Task) error {
	if len(tasks) != len(m.Tasks) {
		return fmt.Errorf("%w: %d tasks for a model of %d", ErrReplay, len(tasks), len(m.Tasks))
	}
	for i, t := range tasks {
		if t.Duration != m.Tasks[i].Duration || t.End-t.Start != t.Duration {
			return fmt.Errorf("%w: task %d (order %s step %d) spans [%d,%d) for duration %d",
				ErrReplay, i, t.OrderID, t.Step, t.Start, t.End, m.Tasks[i].Duration)
		}
		if t.Start < 0 || t.End > m.Horizon {
			return fmt.Errorf("%w: task %d outside [0,%d]", ErrReplay, i, m.Horizon)
		}
	}
	for _, p := range m.Precedences {
		a, b := tasks[p.Before], tasks[p.After]
		if a.End > b.Start {
			return fmt.Errorf("%w: order %s step %d ends at %d after step %d starts at %d",
				ErrReplay, a.OrderID, a.Step, a.End, b.Step, b.Start)
		}
	}
	for _, d := range m.Disjunctions {
		a, b := tasks[d.A], tasks[d.B]
		if a.Start < b.End && b.Start < a.End {
			return fmt.Errorf("%w: %s overlaps: order %s step %d and order %s step %d",
				ErrReplay, a.Line, a.OrderID, a.Step, b.OrderID, b.Step)
		}
	}

	s := m.rootState()
	for i, iv := range m.Intervals {
		s.lo[iv.Start], s.hi[iv.Start] = tasks[i].Start, tasks[i].Start
		s.lo[iv.End], s.hi[iv.End] = tasks[i].End, tasks[i].End
	}
	if ok, _ := m.propagate(context.Background(), s); !ok {
		return fmt.Errorf("%w: propagation failed on fixed values", ErrReplay)
	}
	return nil
}
