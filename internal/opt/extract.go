package opt

import (
	"sort"

	"apsplan/internal/catalog"
)

// Extract turns a search outcome into a Result. Schedule entries are ordered
// by start time, then machine name, order id and step. Unsolved outcomes get
// an empty schedule.
func Extract(m *Model, out Outcome, c *catalog.Catalog) Result {
	res := Result{Status: out.Status, Stats: out.Stats}
	if !out.Status.Solved() {
		return res
	}
	res.Makespan = out.Makespan
	res.Tasks = make([]Task, len(m.Tasks))
	res.Schedule = make([]Entry, 0, len(m.Tasks))
	for i, t := range m.Tasks {
		t.Start = out.Starts[i]
		t.End = t.Start + t.Duration
		res.Tasks[i] = t
		machine := string(t.Line)
		if l, err := c.Line(t.Line); err == nil {
			machine = l.Name
		}
		res.Schedule = append(res.Schedule, Entry{
			OrderID:   t.OrderID,
			Product:   t.Product,
			Machine:   machine,
			Line:      t.Line,
			Step:      t.Step,
			StartTime: t.Start,
			EndTime:   t.End,
			Duration:  t.Duration,
		})
	}
	sort.SliceStable(res.Schedule, func(i, j int) bool {
		a, b := res.Schedule[i], res.Schedule[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.Machine != b.Machine {
			return a.Machine < b.Machine
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.Step < b.Step
	})
	return res
}
