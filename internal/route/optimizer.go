package route

import (
	"fmt"
	"math"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/models"
)

// Insertion is the result of placing a candidate stop into a route.
type Insertion struct {
	Route []models.Stop
	// Index is the position of the candidate in Route, i.e. the number of
	// existing stops that come before it.
	Index int
	// Cost is the added cycle length of the chosen edge, zero for an empty route.
	Cost float64
}

// Optimize inserts candidate into the route at the edge that adds the least
// length, treating the route as a closed cycle (the last stop connects back to
// the first). On equal cost the lowest edge index wins.
//
// An invalid coordinate yields ErrInvalidPoint; callers fall back to
// CandidateOnly.
func Optimize(canonical []models.Stop, candidate models.Point) (Insertion, error) {
	if !candidate.Valid() {
		return Insertion{}, fmt.Errorf("candidate: %w", ErrInvalidPoint)
	}

	n := len(canonical)
	if n == 0 {
		return Insertion{Route: []models.Stop{candidateStop(candidate)}, Index: 0}, nil
	}

	bestIdx := 0
	bestCost := math.Inf(1)
	for i := 0; i < n; i++ {
		a, b := canonical[i].Point, canonical[(i+1)%n].Point
		if !a.Valid() {
			return Insertion{}, fmt.Errorf("stop %d: %w", i, ErrInvalidPoint)
		}
		cost := geo.Distance(a, candidate) + geo.Distance(candidate, b) - geo.Distance(a, b)
		if cost < bestCost {
			bestCost = cost
			bestIdx = i + 1
		}
	}

	augmented := make([]models.Stop, 0, n+1)
	augmented = append(augmented, canonical[:bestIdx]...)
	augmented = append(augmented, candidateStop(candidate))
	augmented = append(augmented, canonical[bestIdx:]...)

	return Insertion{Route: augmented, Index: bestIdx, Cost: bestCost}, nil
}

// CandidateOnly is the fallback preview when a route cannot be optimized.
func CandidateOnly(candidate models.Point) Insertion {
	return Insertion{Route: []models.Stop{candidateStop(candidate)}, Index: 0}
}

// NativeIndex converts a position in a canonical route to the index in the
// native sequence that is persisted with an approval: the number of native
// stops placed before it.
func NativeIndex(route []models.Stop, index int) int {
	index = min(max(index, 0), len(route))
	count := 0
	for _, s := range route[:index] {
		if !s.IsNew {
			count++
		}
	}
	return count
}

func candidateStop(p models.Point) models.Stop {
	return models.Stop{Point: p, Name: models.NewStopName, IsNew: true}
}
