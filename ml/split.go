package ml

import (
	"math"
	"math/rand"
)

// TrainTestSplit shuffles [0, n) with seed and returns the train and test
// indices. The test partition holds ceil(n*testRatio) samples.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n && n > 0 {
		nTest = n - 1
	}
	return indices[nTest:], indices[:nTest]
}

// Subset gathers the rows and labels at indices.
func Subset(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}
