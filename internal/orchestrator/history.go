package orchestrator

import "sort"

// MaxHistory bounds how many job records the controller retains for the
// dashboard.
const MaxHistory = 50

// SortHistory orders records by StartTime descending, with records that
// never started (StartTime nil, still Pending) sorted last, and truncates
// to MaxHistory. The input slice is not mutated; a new slice is returned.
func SortHistory(records []WorkerJobRecord) []WorkerJobRecord {
	out := make([]WorkerJobRecord, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartTime, out[j].StartTime
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	if len(out) > MaxHistory {
		out = out[:MaxHistory]
	}
	return out
}
