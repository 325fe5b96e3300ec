package model

import (
	"time"

	"apsplan/internal/catalog"
	"apsplan/internal/opt"
)

// API-facing types. Scheduling types themselves live in opt.

type ScheduleRequest struct {
	TenantID     string           `json:"tenantId,omitempty" validate:"omitempty,max=64"`
	Orders       []opt.OrderInput `json:"orders" validate:"required,max=1000"`
	TimeBudgetMs *int             `json:"timeBudgetMs,omitempty" validate:"omitempty,min=1,max=600000"`
	Workers      *int             `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	NodeLimit    *int             `json:"nodeLimit,omitempty" validate:"omitempty,min=0"`
	UnknownLines string           `json:"unknownLines,omitempty" validate:"omitempty,oneof=skip reject"`
	NoCache      bool             `json:"noCache,omitempty"`
}

// SchedulerConfig is a per-tenant overlay on the service defaults. Nil fields
// keep the service value.
type SchedulerConfig struct {
	TimeBudgetMs    *int     `json:"timeBudgetMs,omitempty" yaml:"time_budget_ms" validate:"omitempty,min=1,max=600000"`
	Workers         *int     `json:"workers,omitempty" yaml:"workers" validate:"omitempty,min=1,max=64"`
	NodeLimit       *int     `json:"nodeLimit,omitempty" yaml:"node_limit" validate:"omitempty,min=0"`
	UnknownLines    *string  `json:"unknownLines,omitempty" yaml:"unknown_lines" validate:"omitempty,oneof=skip reject"`
	DefaultLine     *string  `json:"defaultLine,omitempty" yaml:"default_line"`
	DefaultQuantity *float64 `json:"defaultQuantity,omitempty" yaml:"default_quantity" validate:"omitempty,gte=0"`
	DefaultProduct  *string  `json:"defaultProduct,omitempty" yaml:"default_product"`
	GreedySeed      *bool    `json:"greedySeed,omitempty" yaml:"greedy_seed"`
}

// Apply overlays c on base.
func (c *SchedulerConfig) Apply(base opt.Config) opt.Config {
	if c == nil {
		return base
	}
	if c.TimeBudgetMs != nil {
		base.TimeBudget = time.Duration(*c.TimeBudgetMs) * time.Millisecond
	}
	if c.Workers != nil {
		base.Workers = *c.Workers
	}
	if c.NodeLimit != nil {
		base.NodeLimit = *c.NodeLimit
	}
	if c.UnknownLines != nil {
		base.UnknownLines = opt.UnknownLinePolicy(*c.UnknownLines)
	}
	if c.DefaultLine != nil {
		base.Defaults.Line = catalog.LineID(*c.DefaultLine)
	}
	if c.DefaultQuantity != nil {
		base.Defaults.Quantity = *c.DefaultQuantity
	}
	if c.DefaultProduct != nil {
		base.Defaults.Product = *c.DefaultProduct
	}
	if c.GreedySeed != nil {
		base.GreedySeed = *c.GreedySeed
	}
	return base
}

// SolverStats mirrors opt.Stats with wall time in seconds.
type SolverStats struct {
	Conflicts int64   `json:"conflicts"`
	Branches  int64   `json:"branches"`
	Nodes     int64   `json:"nodes"`
	Solutions int64   `json:"solutions"`
	Workers   int     `json:"workers"`
	WallTime  float64 `json:"wall_time"`
}

// ScheduleResult is the wire form of a scheduling outcome. Makespan is absent
// unless a schedule was found.
type ScheduleResult struct {
	RunID       string            `json:"runId,omitempty"`
	Status      opt.Status        `json:"status"`
	Schedule    []opt.Entry       `json:"schedule"`
	Makespan    *int              `json:"makespan,omitempty"`
	SolverStats *SolverStats      `json:"solver_stats,omitempty"`
	Skipped     []opt.SkippedStep `json:"skipped_steps,omitempty"`
	Error       string            `json:"error,omitempty"`
	Cached      bool              `json:"cached,omitempty"`
}

func NewScheduleResult(res opt.Result) ScheduleResult {
	out := ScheduleResult{
		Status:   res.Status,
		Schedule: res.Schedule,
		Skipped:  res.Skipped,
		SolverStats: &SolverStats{
			Conflicts: res.Stats.Conflicts,
			Branches:  res.Stats.Branches,
			Nodes:     res.Stats.Nodes,
			Solutions: res.Stats.Solutions,
			Workers:   res.Stats.Workers,
			WallTime:  res.Stats.WallTime.Seconds(),
		},
	}
	if out.Schedule == nil {
		out.Schedule = []opt.Entry{}
	}
	if res.Status.Solved() {
		mk := res.Makespan
		out.Makespan = &mk
	}
	if res.Status == opt.StatusUnknown {
		out.Error = "time budget exhausted before any schedule was found"
	}
	return out
}

// FailedResult is the body returned for input errors.
func FailedResult(err error) ScheduleResult {
	return ScheduleResult{Status: opt.StatusInfeasible, Schedule: []opt.Entry{}, Error: err.Error()}
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Status    opt.Status `json:"status"`
	Makespan  int        `json:"makespan"`
	Orders    int        `json:"orders"`
	Entries   int        `json:"entries"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Run is a persisted scheduling call.
type Run struct {
	RunSummary
	Result ScheduleResult `json:"result"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,required"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Event types published by the service.
const (
	EventScheduleCompleted = "schedule.completed"
	EventScheduleFailed    = "schedule.failed"
)
