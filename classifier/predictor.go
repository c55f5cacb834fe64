// Package classifier loads a trained artifact and labels images with it.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"petclassifier/imaging"
	"petclassifier/ml"
)

// upperLabel builds a fresh Caser per call; Casers are stateful.
func upperLabel(label string) string {
	return cases.Upper(language.Und).String(label)
}

// Prediction is the outcome for one image.
type Prediction struct {
	Path          string             `json:"path,omitempty"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// String renders the CLI result line.
func (p *Prediction) String() string {
	return fmt.Sprintf("%s -> %s (confidence: %.4f)", p.Path, upperLabel(p.Label), p.Confidence)
}

// DisplayLabel is the upper-cased label shown to users.
func (p *Prediction) DisplayLabel() string {
	return upperLabel(p.Label)
}

// Predictor applies the artifact's own feature extraction parameters.
type Predictor struct {
	artifact *ml.Artifact
}

func New(artifact *ml.Artifact) (*Predictor, error) {
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{artifact: artifact}, nil
}

// Load resolves path with ResolveModelPath and reads the artifact there.
func Load(path string) (*Predictor, error) {
	resolved, err := ResolveModelPath(path)
	if err != nil {
		return nil, err
	}
	artifact, err := ml.LoadArtifact(resolved)
	if err != nil {
		return nil, err
	}
	return New(artifact)
}

// ResolveModelPath keeps absolute paths and anchors relative ones to the
// directory of the running executable.
func ResolveModelPath(path string) (string, error) {
	if path == "" {
		path = ml.DefaultArtifactName
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), path), nil
}

func (p *Predictor) Artifact() *ml.Artifact {
	return p.artifact
}

func (p *Predictor) ImageSize() imaging.Size {
	return p.artifact.ImageSize
}

// Classify extracts features from the image at path and predicts its label.
func (p *Predictor) Classify(path string) (*Prediction, error) {
	features, err := imaging.ExtractFeatures(path, p.artifact.ImageSize)
	if err != nil {
		return nil, err
	}
	prediction, err := p.predict(features)
	if err != nil {
		return nil, err
	}
	prediction.Path = path
	return prediction, nil
}

// ClassifyReader is Classify for an image held in memory.
func (p *Predictor) ClassifyReader(r io.Reader) (*Prediction, error) {
	features, err := imaging.ExtractFromReader(r, p.artifact.ImageSize)
	if err != nil {
		return nil, err
	}
	return p.predict(features)
}

// PredictImage never fails: extraction problems are written to errOut and
// the returned line names the path.
func (p *Predictor) PredictImage(path string, errOut io.Writer) string {
	prediction, err := p.Classify(path)
	if err != nil {
		cause := err
		var extractErr *imaging.ExtractionError
		if errors.As(err, &extractErr) {
			cause = extractErr.Err
		}
		if errOut != nil {
			fmt.Fprintf(errOut, "Error processing %s: %v\n", path, cause)
		}
		return fmt.Sprintf("Error: Could not process image %s", path)
	}
	return prediction.String()
}

func (p *Predictor) predict(features []float64) (*Prediction, error) {
	proba, err := p.artifact.Model.PredictProba(features)
	if err != nil {
		return nil, err
	}
	best := 0
	probabilities := make(map[string]float64, len(proba))
	for class, value := range proba {
		probabilities[p.artifact.Label(class)] = value
		if value > proba[best] {
			best = class
		}
	}
	return &Prediction{
		Label:         p.artifact.Label(best),
		Confidence:    proba[best],
		Probabilities: probabilities,
	}, nil
}
