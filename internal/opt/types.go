package opt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"apsplan/internal/catalog"
)

// OrderID identifies an order. Inputs may carry it as a JSON string or number.
type OrderID string

func (id *OrderID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order id: want string or number: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}

// OrderInput is an order as received from a caller. Absent fields are nil and
// are filled from Defaults by NormalizeOrders.
type OrderInput struct {
	ID             *OrderID         `json:"id,omitempty"`
	Product        *string          `json:"product,omitempty"`
	Quantity       *float64         `json:"quantity,omitempty"`
	Routing        []catalog.LineID `json:"routing,omitempty"`
	InputDiameter  *float64         `json:"input_diameter,omitempty"`
	OutputDiameter *float64         `json:"output_diameter,omitempty"`
}

// Order is a normalized order; every field is explicit.
type Order struct {
	ID        OrderID
	Product   string
	Quantity  float64
	Routing   []catalog.LineID
	Diameters *catalog.DiameterPair // nil unless both diameters were given
}

// Defaults are the values substituted for absent order fields.
type Defaults struct {
	Line     catalog.LineID
	Quantity float64
	Product  string
}

// UnknownLinePolicy decides what happens to routing steps naming a line the
// catalog does not know.
type UnknownLinePolicy string

const (
	SkipUnknownLines   UnknownLinePolicy = "skip"
	RejectUnknownLines UnknownLinePolicy = "reject"
)

// Config is passed to every Schedule call.
type Config struct {
	Defaults     Defaults
	UnknownLines UnknownLinePolicy
	// TimeBudget bounds the search; zero means no budget beyond the context.
	TimeBudget time.Duration
	Workers    int
	NodeLimit  int
	GreedySeed bool
}

// DefaultConfig mirrors the plant defaults: single-step wire drawing, 100
// units, unknown steps skipped, 10s budget.
func DefaultConfig(c *catalog.Catalog) Config {
	return Config{
		Defaults: Defaults{
			Line:     c.WireDrawingLine(),
			Quantity: 100,
			Product:  "Unknown",
		},
		UnknownLines: SkipUnknownLines,
		TimeBudget:   10 * time.Second,
		Workers:      1,
		GreedySeed:   true,
	}
}

// NormalizeOrders applies d to every absent field. A missing id becomes the
// order's position in the batch.
func NormalizeOrders(in []OrderInput, d Defaults) []Order {
	out := make([]Order, len(in))
	for i, o := range in {
		n := Order{
			ID:       OrderID(strconv.Itoa(i)),
			Product:  d.Product,
			Quantity: d.Quantity,
			Routing:  []catalog.LineID{d.Line},
		}
		if o.ID != nil {
			n.ID = *o.ID
		}
		if o.Product != nil {
			n.Product = *o.Product
		}
		if o.Quantity != nil {
			n.Quantity = *o.Quantity
		}
		if o.Routing != nil {
			n.Routing = append([]catalog.LineID(nil), o.Routing...)
		}
		if o.InputDiameter != nil && o.OutputDiameter != nil {
			n.Diameters = &catalog.DiameterPair{In: *o.InputDiameter, Out: *o.OutputDiameter}
		}
		out[i] = n
	}
	return out
}

// Task is one routing step of one order bound to one line.
type Task struct {
	Index    int
	OrderID  OrderID
	Product  string
	Line     catalog.LineID
	Step     int // position in the order's routing, skipped steps included
	Duration int // minutes
	Start    int
	End      int
}

// SkippedStep records a routing step dropped because its line is unknown.
type SkippedStep struct {
	OrderID OrderID        `json:"order_id"`
	Step    int            `json:"step"`
	Line    catalog.LineID `json:"line"`
}

// Status is the terminal state of a search.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnknown    Status = "unknown"
)

// Solved reports whether the status carries a schedule.
func (s Status) Solved() bool { return s == StatusOptimal || s == StatusFeasible }

// Entry is one line of a solved schedule.
type Entry struct {
	OrderID   OrderID        `json:"order_id"`
	Product   string         `json:"product"`
	Machine   string         `json:"machine"`
	Line      catalog.LineID `json:"line"`
	Step      int            `json:"step"`
	StartTime int            `json:"start_time"`
	EndTime   int            `json:"end_time"`
	Duration  int            `json:"duration"`
}

// Stats are search diagnostics.
type Stats struct {
	Conflicts int64
	Branches  int64
	Nodes     int64
	Solutions int64
	Workers   int
	WallTime  time.Duration
}

// Result is what Schedule returns.
type Result struct {
	Status   Status
	Schedule []Entry
	// Tasks holds solved tasks in model order; empty unless Status.Solved().
	Tasks    []Task
	Makespan int
	Stats    Stats
	Skipped  []SkippedStep
}
