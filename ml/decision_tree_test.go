package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := &DecisionTree{}
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	proba, err := model.PredictProba([]float64{0.85, 0.85})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, proba)
}

func TestDecisionTreeDeepTreeUsesAbsoluteIndices(t *testing.T) {
	// one feature, alternating classes: needs a split per boundary
	var features [][]float64
	var labels []int
	for i := 0; i < 8; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, (i/2)%2)
	}

	model := &DecisionTree{}
	require.NoError(t, model.Fit(features, labels))
	assert.Greater(t, model.Depth(), 1)

	for i, row := range features {
		label, err := model.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, labels[i], label, "sample %d", i)
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	var features [][]float64
	var labels []int
	for i := 0; i < 16; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, i%2)
	}
	model := &DecisionTree{MaxDepth: 2}
	require.NoError(t, model.Fit(features, labels))
	assert.LessOrEqual(t, model.Depth(), 2)
}

func TestDecisionTreeConstantFeaturesYieldLeaf(t *testing.T) {
	features := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels := []int{0, 1, 1}

	model := &DecisionTree{}
	require.NoError(t, model.Fit(features, labels))
	require.Len(t, model.Nodes, 1)

	proba, err := model.PredictProba([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, proba[0], 1e-12)
	assert.InDelta(t, 2.0/3, proba[1], 1e-12)
}

func TestDecisionTreeErrors(t *testing.T) {
	model := &DecisionTree{}
	_, err := model.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)

	assert.ErrorIs(t, model.Fit(nil, nil), ErrEmptyData)
	assert.ErrorIs(t, model.Fit([][]float64{{1}}, []int{0, 1}), ErrSizeMismatch)
	assert.ErrorIs(t, model.Fit([][]float64{{1}, {1, 2}}, []int{0, 1}), ErrFeatureLength)

	require.NoError(t, model.Fit([][]float64{{0}, {1}}, []int{0, 1}))
	_, err = model.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrFeatureLength)
}

