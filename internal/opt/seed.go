package opt

import "apsplan/internal/catalog"

// greedySeed builds a serial schedule: repeatedly place the ready task that
// can start earliest on its line, ties going to the lower task index. The
// result satisfies every constraint and gives the search an initial bound.
func (m *Model) greedySeed() (starts []int, makespan int) {
	n := len(m.Tasks)
	starts = make([]int, n)
	placed := make([]bool, n)
	lineFree := map[catalog.LineID]int{}
	for count := 0; count < n; count++ {
		best, bestStart := -1, 0
		for i := 0; i < n; i++ {
			if placed[i] {
				continue
			}
			ready := 0
			if p := m.pred[i]; p >= 0 {
				if !placed[p] {
					continue
				}
				ready = starts[p] + m.Tasks[p].Duration
			}
			if m.Tasks[i].Duration > 0 {
				ready = max(ready, lineFree[m.Tasks[i].Line])
			}
			if best < 0 || ready < bestStart {
				best, bestStart = i, ready
			}
		}
		t := m.Tasks[best]
		starts[best] = bestStart
		placed[best] = true
		end := bestStart + t.Duration
		if t.Duration > 0 {
			lineFree[t.Line] = end
		}
		makespan = max(makespan, end)
	}
	return starts, makespan
}
