package position

import "sort"

// MergeTargets combines two target ladders into one. Each index is the
// weighted average of both ladders at that index, weights being the sizes
// behind each ladder. The shorter ladder is padded by repeating its own last
// target, and the result is sorted ascending.
func MergeTargets(existing []float64, existingWeight float64, incoming []float64, incomingWeight float64) []float64 {
	if len(existing) == 0 {
		return append([]float64(nil), incoming...)
	}
	if len(incoming) == 0 {
		return append([]float64(nil), existing...)
	}

	wa, wb := existingWeight, incomingWeight
	if wa < 0 {
		wa = 0
	}
	if wb < 0 {
		wb = 0
	}
	if wa+wb == 0 {
		wa, wb = 1, 1
	}

	n := max(len(existing), len(incoming))
	out := make([]float64, n)
	for i := range n {
		a := padAt(existing, i)
		b := padAt(incoming, i)
		out[i] = (a*wa + b*wb) / (wa + wb)
	}
	sort.Float64s(out)
	return out
}

func padAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return values[len(values)-1]
}

// weightedPrice averages two entry prices by size.
func weightedPrice(a, wa, b, wb float64) float64 {
	if wa+wb <= 0 {
		return (a + b) / 2
	}
	return (a*wa + b*wb) / (wa + wb)
}
