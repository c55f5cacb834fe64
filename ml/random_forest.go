package ml

import (
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultNumTrees = 200
	DefaultSeed     = 42
)

// RandomForest averages the leaf distributions of bootstrap-trained trees.
type RandomForest struct {
	NumTrees        int             `json:"n_estimators"`
	MaxDepth        int             `json:"max_depth"`
	MaxFeatures     int             `json:"max_features"`
	MinSamplesSplit int             `json:"min_samples_split"`
	Seed            int64           `json:"random_state"`
	NumFeatures     int             `json:"n_features"`
	NumClasses      int             `json:"n_classes"`
	Trees           []*DecisionTree `json:"estimators"`

	// Workers bounds concurrent tree fitting; 0 uses every CPU.
	Workers int `json:"-"`
}

func NewRandomForest(numTrees int, seed int64) *RandomForest {
	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}
	return &RandomForest{NumTrees: numTrees, Seed: seed}
}

// Fit trains NumTrees trees. Tree i always receives the i-th seed drawn from
// Seed, so the fitted forest does not depend on Workers.
func (rf *RandomForest) Fit(features [][]float64, labels []int) error {
	numFeatures, numClasses, err := validateTrainingData(features, labels)
	if err != nil {
		return err
	}
	if rf.NumTrees <= 0 {
		rf.NumTrees = DefaultNumTrees
	}
	numClasses = max(numClasses, rf.NumClasses)
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(numFeatures))))
	}

	seeder := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NumTrees)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*DecisionTree, rf.NumTrees)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			bootstrap := make([]int, len(labels))
			for j := range bootstrap {
				bootstrap[j] = rng.Intn(len(labels))
			}
			tree := &DecisionTree{
				MaxDepth:        rf.MaxDepth,
				MinSamplesSplit: rf.MinSamplesSplit,
				MaxFeatures:     maxFeatures,
			}
			tree.grow(features, labels, bootstrap, numFeatures, numClasses, rng)
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.NumFeatures = numFeatures
	rf.NumClasses = numClasses
	rf.MaxFeatures = maxFeatures
	rf.Trees = trees
	return nil
}

// PredictProba returns the mean class distribution across trees.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != rf.NumFeatures {
		return nil, ErrFeatureLength
	}
	proba := make([]float64, rf.NumClasses)
	for _, tree := range rf.Trees {
		leaf, err := tree.leaf(features)
		if err != nil {
			return nil, err
		}
		for class, p := range leaf.Value {
			if class < len(proba) {
				proba[class] += p
			}
		}
	}
	for i := range proba {
		proba[i] /= float64(len(rf.Trees))
	}
	return proba, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// PredictBatch predicts every row of features.
func (rf *RandomForest) PredictBatch(features [][]float64) ([]int, error) {
	out := make([]int, len(features))
	for i, row := range features {
		label, err := rf.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}
