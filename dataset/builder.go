package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"petclassifier/imaging"
)

// DefaultPerClassLimit caps how many samples are taken from each class.
const DefaultPerClassLimit = 1000

// Class ties a label to its directory relative to the source root.
type Class struct {
	Label string
	Dir   string
}

// DefaultClasses is the PetImages layout of the Microsoft corpus.
var DefaultClasses = []Class{
	{Label: "cat", Dir: filepath.Join("PetImages", "Cat")},
	{Label: "dog", Dir: filepath.Join("PetImages", "Dog")},
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Dataset is a feature matrix with a parallel label sequence.
type Dataset struct {
	Features [][]float64
	Labels   []string
	Size     imaging.Size
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Count returns how many samples carry label.
func (d *Dataset) Count(label string) int {
	var n int
	for _, l := range d.Labels {
		if l == label {
			n++
		}
	}
	return n
}

// Builder extracts up to Limit samples per class from a source directory.
type Builder struct {
	Classes []Class
	Limit   int
	Size    imaging.Size
	Logger  *zap.Logger
}

func NewBuilder(limit int, size imaging.Size, logger *zap.Logger) *Builder {
	if limit <= 0 {
		limit = DefaultPerClassLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		Classes: DefaultClasses,
		Limit:   limit,
		Size:    size,
		Logger:  logger,
	}
}

// Build walks each class directory in directory order. Files that are not
// images or fail extraction are skipped; a class with fewer valid images than
// Limit contributes what it has.
func (b *Builder) Build(sourceDir string) (*Dataset, error) {
	ds := &Dataset{Size: b.Size}
	for _, class := range b.Classes {
		dir := filepath.Join(sourceDir, class.Dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read class %s: %w", class.Label, err)
		}

		count := 0
		for _, entry := range entries {
			if count >= b.Limit {
				break
			}
			if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			features, err := imaging.ExtractFeatures(path, b.Size)
			if err != nil {
				b.Logger.Warn("skipping sample", zap.String("path", path), zap.Error(err))
				continue
			}
			ds.Features = append(ds.Features, features)
			ds.Labels = append(ds.Labels, class.Label)
			count++
		}

		if count < b.Limit {
			b.Logger.Info("class below sample limit",
				zap.String("class", class.Label), zap.Int("samples", count), zap.Int("limit", b.Limit))
		} else {
			b.Logger.Debug("class complete", zap.String("class", class.Label), zap.Int("samples", count))
		}
	}
	return ds, nil
}
