package ml

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

// DecisionTree is a CART classifier using Gini impurity. Nodes are stored in
// preorder with absolute child indices.
type DecisionTree struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MaxFeatures     int        `json:"max_features"`
	NumFeatures     int        `json:"n_features"`
	NumClasses      int        `json:"n_classes"`
	Nodes           []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"`
}

// Fit trains on every sample. MaxFeatures of 0 considers all features, which
// makes the tree deterministic.
func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	numFeatures, numClasses, err := validateTrainingData(features, labels)
	if err != nil {
		return err
	}
	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}
	dt.grow(features, labels, indices, numFeatures, max(numClasses, dt.NumClasses), rand.New(rand.NewSource(0)))
	return nil
}

func (dt *DecisionTree) grow(features [][]float64, labels []int, indices []int, numFeatures, numClasses int, rng *rand.Rand) {
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	dt.NumFeatures = numFeatures
	dt.NumClasses = numClasses
	dt.Nodes = nil
	b := &treeBuilder{
		tree:     dt,
		features: features,
		labels:   labels,
		rng:      rng,
		order:    make([]int, numFeatures),
	}
	for i := range b.order {
		b.order[i] = i
	}
	b.build(indices, 0)
}

// Predict returns the most probable class.
func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

// PredictProba returns the class distribution of the leaf features fall into.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return slices.Clone(leaf.Value), nil
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != dt.NumFeatures {
		return nil, ErrFeatureLength
	}
	idx := 0
	for {
		node := &dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, ErrFeatureLength
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, ErrInvalidTree
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
	rng      *rand.Rand
	order    []int
	scratch  []sample
}

type sample struct {
	value float64
	label int
}

// build appends the subtree for indices and returns its root index.
func (b *treeBuilder) build(indices []int, depth int) int {
	dt := b.tree
	counts := b.classCounts(indices)
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, leafNode(counts, len(indices)))

	if dt.MaxDepth > 0 && depth >= dt.MaxDepth {
		return idx
	}
	if len(indices) < dt.MinSamplesSplit || isPure(counts) {
		return idx
	}

	feature, threshold, ok := b.findBestSplit(indices, counts)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &dt.Nodes[idx]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.Value = nil
	return idx
}

// findBestSplit visits features in random order. After MaxFeatures candidates
// it keeps going only until some valid split has been found.
func (b *treeBuilder) findBestSplit(indices []int, counts []int) (int, float64, bool) {
	dt := b.tree
	limit := dt.MaxFeatures
	if limit <= 0 || limit > dt.NumFeatures {
		limit = dt.NumFeatures
	}
	if limit < dt.NumFeatures {
		b.rng.Shuffle(len(b.order), func(i, j int) {
			b.order[i], b.order[j] = b.order[j], b.order[i]
		})
	}

	if cap(b.scratch) < len(indices) {
		b.scratch = make([]sample, len(indices))
	}
	values := b.scratch[:len(indices)]
	leftCounts := make([]int, len(counts))
	rightCounts := make([]int, len(counts))

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	total := len(indices)

	for visited, featureIdx := range b.order {
		if visited >= limit && bestFeature != -1 {
			break
		}
		for i, sampleIdx := range indices {
			values[i] = sample{value: b.features[sampleIdx][featureIdx], label: b.labels[sampleIdx]}
		}
		slices.SortFunc(values, func(x, y sample) int {
			return cmp.Compare(x.value, y.value)
		})
		if values[0].value == values[total-1].value {
			continue
		}

		clear(leftCounts)
		copy(rightCounts, counts)
		for i := 0; i < total-1; i++ {
			leftCounts[values[i].label]++
			rightCounts[values[i].label]--
			if values[i].value == values[i+1].value {
				continue
			}
			nLeft := i + 1
			nRight := total - nLeft
			impurity := (float64(nLeft)*gini(leftCounts, nLeft) + float64(nRight)*gini(rightCounts, nRight)) / float64(total)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = (values[i].value + values[i+1].value) / 2
				if bestThreshold >= values[i+1].value {
					bestThreshold = values[i].value
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) classCounts(indices []int) []int {
	counts := make([]int, b.tree.NumClasses)
	for _, i := range indices {
		counts[b.labels[i]]++
	}
	return counts
}

func leafNode(counts []int, total int) TreeNode {
	value := make([]float64, len(counts))
	for i, c := range counts {
		if total > 0 {
			value[i] = float64(c) / float64(total)
		}
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: majorityLabel(counts),
		IsLeaf:     true,
		Value:      value,
	}
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

func majorityLabel(counts []int) int {
	bestLabel := 0
	for label, count := range counts {
		if count > counts[bestLabel] {
			bestLabel = label
		}
	}
	return bestLabel
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
