// Package training runs the download, feature extraction, fit and persist
// pipeline that produces a model artifact.
package training

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"petclassifier/config"
	"petclassifier/dataset"
	"petclassifier/db"
	"petclassifier/imaging"
	"petclassifier/ml"
)

// ModelName is recorded in the training log.
const ModelName = "random_forest"

// Publisher copies a saved artifact somewhere else.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// Recorder keeps a history of training runs.
type Recorder interface {
	SaveTrainingLog(log db.TrainingLog) error
}

type Trainer struct {
	cfg       *config.Config
	logger    *zap.Logger
	out       io.Writer
	client    *http.Client
	publisher Publisher
	recorder  Recorder
}

type Option func(*Trainer)

// WithOutput redirects the human readable progress report.
func WithOutput(w io.Writer) Option {
	return func(t *Trainer) { t.out = w }
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Trainer) { t.client = c }
}

func WithPublisher(p Publisher) Option {
	return func(t *Trainer) { t.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(t *Trainer) { t.recorder = r }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Result is a fitted artifact plus its held-out evaluation.
type Result struct {
	Artifact  *ml.Artifact
	Report    ml.ClassificationReport
	TrainSize int
	TestSize  int
}

// Fit splits ds, trains the forest and scores it on the test partition. The
// score is informational; Fit never rejects a model for low accuracy.
func (t *Trainer) Fit(ds *dataset.Dataset) (*Result, error) {
	if ds.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 samples, got %d", ds.Len())
	}
	classes, labels := encodeLabels(ds.Labels)

	trainIdx, testIdx := ml.TrainTestSplit(ds.Len(), t.cfg.ML.TestRatio, t.cfg.ML.Seed)
	trainX, trainY := ml.Subset(ds.Features, labels, trainIdx)
	testX, testY := ml.Subset(ds.Features, labels, testIdx)

	forest := ml.NewRandomForest(t.cfg.ML.NumTrees, t.cfg.ML.Seed)
	forest.MaxDepth = t.cfg.ML.MaxDepth
	forest.Workers = t.cfg.ML.Workers
	// the train partition can miss a class; size the output to the corpus
	forest.NumClasses = len(classes)

	start := time.Now()
	if err := forest.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	t.logger.Info("forest trained",
		zap.Int("trees", len(forest.Trees)),
		zap.Int("train_samples", len(trainY)),
		zap.Duration("elapsed", time.Since(start)))

	predicted, err := forest.PredictBatch(testX)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	report := ml.NewClassificationReport(testY, predicted, classes)

	artifact := &ml.Artifact{
		Version:   ml.ArtifactVersion,
		Model:     forest,
		ImageSize: ds.Size,
		Classes:   classes,
		TrainedAt: time.Now().UTC(),
		Accuracy:  report.Accuracy,
		Samples:   ds.Len(),
	}
	return &Result{
		Artifact:  artifact,
		Report:    report,
		TrainSize: len(trainY),
		TestSize:  len(testY),
	}, nil
}

// Run executes the whole pipeline. Download and extraction failures abort
// the run; the raw corpus is removed only after the artifact is saved.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	dcfg := t.cfg.Dataset
	size := imaging.Size{Width: t.cfg.ML.ImageWidth, Height: t.cfg.ML.ImageHeight}

	fmt.Fprintln(t.out, "Downloading dataset...")
	n, err := dataset.Download(ctx, t.client, dcfg.URL, dcfg.ArchivePath)
	if err != nil {
		return nil, err
	}
	t.logger.Info("dataset downloaded", zap.String("url", dcfg.URL), zap.Int64("bytes", n))

	fmt.Fprintln(t.out, "Extracting dataset...")
	files, err := dataset.Extract(dcfg.ArchivePath, dcfg.RawDir)
	if err != nil {
		return nil, err
	}
	t.logger.Info("dataset extracted", zap.String("dir", dcfg.RawDir), zap.Int("files", files))

	if err := dataset.PrepareOutputDirs(dcfg.OutputDir, dataset.DefaultClasses); err != nil {
		return nil, err
	}

	fmt.Fprintln(t.out, "Processing images...")
	builder := dataset.NewBuilder(dcfg.PerClassLimit, size, t.logger)
	ds, err := builder.Build(dcfg.RawDir)
	if err != nil {
		return nil, err
	}
	t.printDataset(ds)

	fmt.Fprintln(t.out, "\nTraining Random Forest classifier...")
	result, err := t.Fit(ds)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(t.out, "\nModel Accuracy: %v\n", result.Report.Accuracy)
	fmt.Fprintf(t.out, "\nClassification Report:\n%s\n", result.Report)

	fmt.Fprintln(t.out, "\nSaving model...")
	modelPath := t.cfg.ML.ModelPath
	if err := result.Artifact.Save(modelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	fmt.Fprintf(t.out, "Model saved as '%s'\n", modelPath)

	t.afterSave(ctx, modelPath, result)

	fmt.Fprintln(t.out, "\nCleaning up downloaded files...")
	dataset.Cleanup(t.logger, dcfg.ArchivePath, dcfg.RawDir)

	fmt.Fprintln(t.out, "\nTraining completed! You can now use predict to classify new images.")
	return result, nil
}

// afterSave publishes and records the run. Neither step can fail the run
// because the artifact is already on disk.
func (t *Trainer) afterSave(ctx context.Context, modelPath string, result *Result) {
	if t.publisher != nil {
		key, err := t.publisher.Publish(ctx, modelPath)
		if err != nil {
			t.logger.Error("publish model failed", zap.String("path", modelPath), zap.Error(err))
		} else {
			t.logger.Info("model published", zap.String("key", key))
		}
	}
	if t.recorder != nil {
		weighted := result.Report.WeightedAvg
		err := t.recorder.SaveTrainingLog(db.TrainingLog{
			ModelName:  ModelName,
			Accuracy:   result.Report.Accuracy,
			Precision:  weighted.Precision,
			Recall:     weighted.Recall,
			F1:         weighted.F1,
			TrainedAt:  result.Artifact.TrainedAt,
			DataPoints: result.Artifact.Samples,
		})
		if err != nil {
			t.logger.Error("record training log failed", zap.Error(err))
		}
	}
}

func (t *Trainer) printDataset(ds *dataset.Dataset) {
	fmt.Fprintf(t.out, "\nDataset shape: (%d, %d)\n", ds.Len(), ds.Size.Len()+1)
	fmt.Fprintln(t.out, "\nSample of the dataset:")
	rows := min(5, ds.Len())
	cols := min(5, ds.Size.Len())
	for i := 0; i < rows; i++ {
		fmt.Fprintf(t.out, "%d", i)
		for j := 0; j < cols; j++ {
			fmt.Fprintf(t.out, " %6.0f", ds.Features[i][j])
		}
		fmt.Fprintf(t.out, " ... %s\n", ds.Labels[i])
	}
}

// encodeLabels maps labels to indices into the sorted set of distinct labels.
func encodeLabels(labels []string) ([]string, []int) {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	encoded := make([]int, len(labels))
	for i, label := range labels {
		encoded[i], _ = slices.BinarySearch(classes, label)
	}
	return classes, encoded
}
