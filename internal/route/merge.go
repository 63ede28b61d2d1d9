package route

import (
	"sort"

	"stopplanner.sistper.org/internal/models"
)

// ApprovedStopName labels stops added through an approval.
const ApprovedStopName = models.NewStopName + " ✓"

// Merge overlays approved stops on the native sequence of a line.
//
// InsertAfter values index the native sequence, so approvals are replayed from
// the highest index down: an insertion never shifts a position another
// approval still has to use. Approvals sharing an index are replayed newest
// first (higher ID, then later in the slice), which leaves them in approval
// order inside their gap. Approvals without an index go last and are
// appended in slice order. Neither argument is modified.
func Merge(base []models.Stop, approvals []models.ApprovedStop) []models.Stop {
	order := make([]int, len(approvals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		x, y := approvals[order[i]], approvals[order[j]]
		a, b := x.InsertAfter, y.InsertAfter
		switch {
		case a == nil || b == nil:
			return a != nil && b == nil
		case *a != *b:
			return *a > *b
		case x.ID != y.ID:
			return x.ID > y.ID
		default:
			return order[i] > order[j]
		}
	})
	sorted := make([]models.ApprovedStop, len(order))
	for i, idx := range order {
		sorted[i] = approvals[idx]
	}

	merged := make([]models.Stop, len(base), len(base)+len(approvals))
	copy(merged, base)

	for _, a := range sorted {
		idx := len(merged)
		if a.InsertAfter != nil && *a.InsertAfter < idx {
			idx = max(*a.InsertAfter, 0)
		}
		merged = insertAt(merged, idx, models.Stop{
			Point:      a.Point(),
			Name:       ApprovedStopName,
			IsNew:      true,
			IsApproved: true,
		})
	}
	return merged
}

func insertAt(stops []models.Stop, idx int, s models.Stop) []models.Stop {
	stops = append(stops, models.Stop{})
	copy(stops[idx+1:], stops[idx:])
	stops[idx] = s
	return stops
}
