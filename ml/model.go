package ml

import "errors"

var (
	ErrEmptyData     = errors.New("features or labels empty")
	ErrSizeMismatch  = errors.New("features and labels size mismatch")
	ErrNotTrained    = errors.New("model not trained")
	ErrFeatureLength = errors.New("feature vector length mismatch")
	ErrInvalidTree   = errors.New("invalid tree state")
)

// Classifier is the narrow surface the trainer and predictor rely on. Labels
// are class indices in [0, n_classes).
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(features []float64) (int, error)
	PredictProba(features []float64) ([]float64, error)
}

func validateTrainingData(features [][]float64, labels []int) (numFeatures, numClasses int, err error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, 0, ErrEmptyData
	}
	if len(features) != len(labels) {
		return 0, 0, ErrSizeMismatch
	}
	numFeatures = len(features[0])
	if numFeatures == 0 {
		return 0, 0, ErrEmptyData
	}
	for _, row := range features {
		if len(row) != numFeatures {
			return 0, 0, ErrFeatureLength
		}
	}
	for _, label := range labels {
		if label < 0 {
			return 0, 0, errors.New("negative class label")
		}
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}
	return numFeatures, numClasses, nil
}

// argmax returns the first index holding the largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
