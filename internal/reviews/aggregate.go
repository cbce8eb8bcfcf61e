package reviews

import "math"

// driftTolerance bounds the float error between the cached aggregate folded
// forward and a full recompute.
const driftTolerance = 1e-9

// Mean is the arithmetic mean of count ratings summing to total. Zero reviews
// average to zero.
func Mean(total, count int64) float64 {
	if count <= 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// IncrementalMean folds one more rating into an existing average.
func IncrementalMean(avg float64, count int, rating int) float64 {
	if count <= 0 {
		return float64(rating)
	}
	n := float64(count + 1)
	return avg + (float64(rating)-avg)/n
}

func drifted(expected, actual float64) bool {
	return math.Abs(expected-actual) > driftTolerance
}

// RatingStats is the sum and count of ratings for a gig or seller.
type RatingStats struct {
	Total int64
	Count int64
}

func (s RatingStats) Average() float64 {
	return Mean(s.Total, s.Count)
}
