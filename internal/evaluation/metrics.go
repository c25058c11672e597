package evaluation

import "math"

// hits[i] reports whether the pattern ranked i+1 is relevant. relevant is
// the number of labelled patterns, which may exceed what was ranked.

// NDCG calculates binary Normalized Discounted Cumulative Gain at k.
func NDCG(hits []bool, relevant, k int) float64 {
	if k <= 0 || relevant == 0 {
		return 0
	}

	dcg := 0.0
	for i := 0; i < k && i < len(hits); i++ {
		if hits[i] {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	idcg := 0.0
	for i := 0; i < k && i < relevant; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	return dcg / idcg
}

// Recall calculates the share of labelled patterns found in the top k.
func Recall(hits []bool, relevant, k int) float64 {
	if relevant == 0 {
		return 0
	}
	return float64(countHits(hits, k)) / float64(relevant)
}

// Precision calculates the share of the top k that is relevant. Missing
// ranks count as irrelevant.
func Precision(hits []bool, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countHits(hits, k)) / float64(k)
}

// MRR calculates the reciprocal rank of the first relevant pattern.
func MRR(hits []bool) float64 {
	if rank := firstHit(hits); rank > 0 {
		return 1 / float64(rank)
	}
	return 0
}

// AveragePrecision calculates average precision over the labelled patterns.
func AveragePrecision(hits []bool, relevant int) float64 {
	if relevant == 0 {
		return 0
	}

	found := 0
	sum := 0.0
	for i, h := range hits {
		if h {
			found++
			sum += float64(found) / float64(i+1)
		}
	}
	return sum / float64(relevant)
}

func countHits(hits []bool, k int) int {
	n := 0
	for i := 0; i < k && i < len(hits); i++ {
		if hits[i] {
			n++
		}
	}
	return n
}

func firstHit(hits []bool) int {
	for i, h := range hits {
		if h {
			return i + 1
		}
	}
	return 0
}
