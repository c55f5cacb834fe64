package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"petclassifier/imaging"
)

// DefaultArtifactName is the file the trainer writes and the predictor reads.
const DefaultArtifactName = "cat_dog_classifier.pkl"

const ArtifactVersion = 1

var (
	ErrArtifactNotFound = errors.New("model file not found")
	ErrSchemaMismatch   = errors.New("model artifact schema mismatch")
)

// Artifact bundles a fitted forest with the feature extraction parameters it
// was trained with.
type Artifact struct {
	Version   int           `json:"version"`
	Model     *RandomForest `json:"model"`
	ImageSize imaging.Size  `json:"image_size"`
	Classes   []string      `json:"classes"`
	TrainedAt time.Time     `json:"trained_at"`
	Accuracy  float64       `json:"accuracy"`
	Samples   int           `json:"samples"`
}

// Label maps a class index back to its name.
func (a *Artifact) Label(class int) string {
	if class < 0 || class >= len(a.Classes) {
		return fmt.Sprintf("class_%d", class)
	}
	return a.Classes[class]
}

// Validate checks that the artifact can drive predictions for its own image size.
func (a *Artifact) Validate() error {
	switch {
	case a.Model == nil || len(a.Model.Trees) == 0:
		return fmt.Errorf("%w: missing model", ErrSchemaMismatch)
	case a.ImageSize.Width <= 0 || a.ImageSize.Height <= 0:
		return fmt.Errorf("%w: missing image_size", ErrSchemaMismatch)
	case len(a.Classes) != a.Model.NumClasses:
		return fmt.Errorf("%w: %d class names for %d classes", ErrSchemaMismatch, len(a.Classes), a.Model.NumClasses)
	case a.Model.NumFeatures != a.ImageSize.Len():
		return fmt.Errorf("%w: model expects %d features, image_size %s yields %d",
			ErrSchemaMismatch, a.Model.NumFeatures, a.ImageSize, a.ImageSize.Len())
	}
	return nil
}

// Save writes the artifact as zstd-compressed JSON. The file is written next
// to path and renamed into place so readers never see a partial artifact.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Version == 0 {
		a.Version = ArtifactVersion
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		tmp.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(a); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
