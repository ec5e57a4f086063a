// Package zerocrossing finds sign changes in a sampled signal.
package zerocrossing

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Find returns the indices i where sign(samples[i]) != sign(samples[i-1]).
//
// A crossing closer than minSpacing to the previously kept one replaces it,
// so of every too-close pair the later crossing survives. Kept crossings
// are therefore never closer than minSpacing to each other.
func Find(samples []float64, minSpacing float64) []int {
	var result []int
	if len(samples) < 2 {
		return result
	}
	prev := sign(samples[0])
	for i := 1; i < len(samples); i++ {
		cur := sign(samples[i])
		if cur == prev {
			continue
		}
		prev = cur
		if n := len(result); n > 0 && float64(i-result[n-1]) < minSpacing {
			result[n-1] = i
			continue
		}
		result = append(result, i)
	}
	return result
}
