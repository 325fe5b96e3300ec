package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"apsplan/internal/model"
	"apsplan/internal/opt"
)

const barWidth = 32

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// render draws a summary box and one table row per scheduled step with a
// bar placing the step on the makespan.
func render(res model.ScheduleResult, source string) string {
	head := titleStyle.Render(fmt.Sprintf("APS · %s", source))
	summary := fmt.Sprintf("status %s", res.Status)
	if res.Makespan != nil {
		summary += fmt.Sprintf(" · makespan %d min", *res.Makespan)
	}
	if st := res.SolverStats; st != nil {
		summary += dimStyle.Render(fmt.Sprintf(" · %d nodes, %d branches, %d workers, %.3fs", st.Nodes, st.Branches, st.Workers, st.WallTime))
	}
	parts := []string{head, summary}
	if res.Error != "" {
		parts = append(parts, errStyle.Render(res.Error))
	}
	for _, sk := range res.Skipped {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("skipped order %s step %d: unknown line %q", sk.OrderID, sk.Step, sk.Line)))
	}
	out := boxStyle.Render(strings.Join(parts, "\n"))
	if len(res.Schedule) == 0 || res.Makespan == nil {
		return out
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("MACHINE", "ORDER", "STEP", "START", "END", "MIN", "TIMELINE")
	for _, e := range res.Schedule {
		t.Row(e.Machine, string(e.OrderID), fmt.Sprint(e.Step), fmt.Sprint(e.StartTime), fmt.Sprint(e.EndTime), fmt.Sprint(e.Duration), timeline(e, *res.Makespan))
	}
	return out + "\n" + t.Render()
}

// timeline scales e onto barWidth cells; zero-length steps get a tick.
func timeline(e opt.Entry, makespan int) string {
	if makespan <= 0 {
		return ""
	}
	from := e.StartTime * barWidth / makespan
	to := e.EndTime * barWidth / makespan
	if to <= from {
		to = min(from+1, barWidth)
		from = to - 1
	}
	return strings.Repeat(" ", from) + barStyle.Render(strings.Repeat("█", to-from)) + strings.Repeat(" ", barWidth-to)
}
