package spectral

import (
	"sort"
)

type Peak struct {
	Index  int
	Height float64
}

// FindPeaks returns the local maxima of x which are at least height high
// and at least distance apart; of two close peaks the higher one wins.
// The result is ordered by index.
//
// A plateau counts as one peak located at its middle.
func FindPeaks(x []float64, height float64, distance int) []Peak {
	var candidates []Peak
	for i := 1; i < len(x)-1; i++ {
		if !(x[i-1] < x[i]) {
			continue
		}
		j := i
		for j+1 < len(x)-1 && x[j+1] == x[i] {
			j++
		}
		if x[j+1] < x[i] && x[i] >= height {
			candidates = append(candidates, Peak{Index: (i + j) / 2, Height: x[i]})
		}
		i = j
	}
	if distance <= 1 || len(candidates) < 2 {
		return candidates
	}

	byHeight := make([]int, len(candidates))
	for i := range byHeight {
		byHeight[i] = i
	}
	sort.SliceStable(byHeight, func(a, b int) bool {
		return candidates[byHeight[a]].Height > candidates[byHeight[b]].Height
	})
	removed := make([]bool, len(candidates))
	for _, idx := range byHeight {
		if removed[idx] {
			continue
		}
		pos := candidates[idx].Index
		for k := idx - 1; k >= 0 && pos-candidates[k].Index < distance; k-- {
			removed[k] = true
		}
		for k := idx + 1; k < len(candidates) && candidates[k].Index-pos < distance; k++ {
			removed[k] = true
		}
	}

	var result []Peak
	for i, p := range candidates {
		if !removed[i] {
			result = append(result, p)
		}
	}
	return result
}
