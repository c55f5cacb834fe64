package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPredictionsAreScopedToUser(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		_, err := store.SavePrediction(Prediction{
			UserID:     "alice",
			Prediction: "CAT",
			Confidence: 0.5 + float64(i)/100,
			ImageData:  []byte{byte(i)},
			MimeType:   "image/jpeg",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	bobID, err := store.SavePrediction(Prediction{UserID: "bob", Prediction: "DOG", Confidence: 0.9, ImageData: []byte("png"), MimeType: "image/png"})
	require.NoError(t, err)

	recent, err := store.RecentPredictions("alice", 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.InDelta(t, 0.61, recent[0].Confidence, 1e-9)
	assert.True(t, recent[0].Timestamp.After(recent[1].Timestamp))
	assert.Nil(t, recent[0].ImageData)

	bob, err := store.RecentPredictions("bob", 10)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "DOG", bob[0].Prediction)

	data, mime, err := store.PredictionImage(bobID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, "image/png", mime)

	_, _, err = store.PredictionImage(bobID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSavePredictionRequiresUser(t *testing.T) {
	store := openTestStore(t)
	_, err := store.SavePrediction(Prediction{Prediction: "CAT"})
	assert.Error(t, err)
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveTrainingLog(TrainingLog{
		ModelName:  "random_forest",
		Accuracy:   0.61,
		Precision:  0.6,
		Recall:     0.62,
		F1:         0.61,
		TrainedAt:  time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
		DataPoints: 2000,
	}))

	logs, err := store.LoadTrainingLog()
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "random_forest", logs[0].ModelName)
	assert.Equal(t, 2000, logs[0].DataPoints)
	assert.InDelta(t, 0.61, logs[0].F1, 1e-9)
}
