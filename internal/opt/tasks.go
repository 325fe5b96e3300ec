package opt

import (
	"errors"
	"fmt"

	"apsplan/internal/catalog"
)

// UnknownLineError is returned under RejectUnknownLines when a routing step
// names a line missing from the catalog.
type UnknownLineError struct {
	OrderID OrderID
	Step    int
	Line    catalog.LineID
}

func (e *UnknownLineError) Error() string {
	return fmt.Sprintf("order %s step %d: unknown production line %q", e.OrderID, e.Step, e.Line)
}

func (e *UnknownLineError) Unwrap() error { return catalog.ErrUnknownLine }

// MaxTasks bounds one batch. The line disjunctions grow with the square of
// the tasks sharing a line.
const MaxTasks = 2000

// ErrTooManyTasks reports a batch that expands past MaxTasks.
var ErrTooManyTasks = errors.New("too many routing steps in batch")

// TaskSet is the expanded batch: one task per surviving routing step and the
// horizon bounding every start and end.
type TaskSet struct {
	Tasks   []Task
	Horizon int
	Skipped []SkippedStep
}

// BuildTasks expands orders into tasks in batch order. Horizon is the sum of
// all task durations, which a fully serialized schedule never exceeds.
// Nothing is returned on error.
func BuildTasks(orders []Order, c *catalog.Catalog, policy UnknownLinePolicy) (TaskSet, error) {
	var ts TaskSet
	for _, o := range orders {
		for step, line := range o.Routing {
			if !c.Has(line) {
				if policy == RejectUnknownLines {
					return TaskSet{}, &UnknownLineError{OrderID: o.ID, Step: step, Line: line}
				}
				ts.Skipped = append(ts.Skipped, SkippedStep{OrderID: o.ID, Step: step, Line: line})
				continue
			}
			if len(ts.Tasks) == MaxTasks {
				return TaskSet{}, fmt.Errorf("%w: more than %d", ErrTooManyTasks, MaxTasks)
			}
			d, err := DurationMinutes(c, line, o.Quantity, o.Diameters)
			if err != nil {
				return TaskSet{}, fmt.Errorf("order %s step %d: %w", o.ID, step, err)
			}
			ts.Tasks = append(ts.Tasks, Task{
				Index:    len(ts.Tasks),
				OrderID:  o.ID,
				Product:  o.Product,
				Line:     line,
				Step:     step,
				Duration: d,
			})
			ts.Horizon += d
		}
	}
	return ts, nil
}
