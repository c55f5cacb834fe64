package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"petclassifier/classifier"
	"petclassifier/db"
	"petclassifier/monitoring"
)

const (
	userCookie    = "uid"
	historyLimit  = 10
	formField     = "image"
	maxFormMemory = 10 << 20
)

var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ModelSource yields the predictor currently in service, nil when no
// artifact could be loaded.
type ModelSource interface {
	Current() *classifier.Predictor
}

type PredictionStore interface {
	SavePrediction(p db.Prediction) (int64, error)
	RecentPredictions(userID string, limit int) ([]db.Prediction, error)
	PredictionImage(id int64, userID string) ([]byte, string, error)
}

type uploadResult struct {
	Label      string
	Confidence float64
}

type Handlers struct {
	models  ModelSource
	store   PredictionStore
	cache   *lru.Cache[string, uploadResult]
	metrics *monitoring.Collector
	logger  *zap.Logger
}

func NewHandlers(models ModelSource, store PredictionStore, cacheSize int, logger *zap.Logger) (*Handlers, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, uploadResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		models:  models,
		store:   store,
		cache:   cache,
		metrics: monitoring.NewCollector(),
		logger:  logger,
	}, nil
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("GET /api/predictions", h.handlePredictions)
	mux.HandleFunc("GET /image/{id}", h.handleImage)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": h.models.Current() != nil,
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := ensureUser(w, r)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		h.metrics.RecordUpload(monitoring.OutcomeRejected)
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file, header, err := r.FormFile(formField)
	if err != nil {
		h.metrics.RecordUpload(monitoring.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		h.metrics.RecordUpload(monitoring.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "Only .jpg, .jpeg and .png files are allowed")
		return
	}

	predictor := h.models.Current()
	if predictor == nil {
		h.metrics.RecordUpload(monitoring.OutcomeNoModel)
		writeError(w, http.StatusInternalServerError, "Model file not found")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.metrics.RecordUpload(monitoring.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "Could not read upload")
		return
	}

	result, err := h.classify(predictor, data)
	if err != nil {
		h.metrics.RecordUpload(monitoring.OutcomeFailed)
		h.logger.Warn("classify upload failed",
			zap.String("file", header.Filename),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "Could not process image "+header.Filename)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	id, err := h.store.SavePrediction(db.Prediction{
		UserID:     userID,
		Prediction: result.Label,
		Confidence: result.Confidence,
		ImageData:  data,
		MimeType:   mimeType,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		h.metrics.RecordUpload(monitoring.OutcomeFailed)
		h.logger.Error("save prediction failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Could not save prediction")
		return
	}

	h.metrics.RecordUpload(monitoring.OutcomeOK)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"id":         id,
		"prediction": result.Label,
		"confidence": result.Confidence,
	})
}

// classify memoises results per artifact and image content.
func (h *Handlers) classify(predictor *classifier.Predictor, data []byte) (uploadResult, error) {
	sum := sha256.Sum256(data)
	key := strconv.FormatInt(predictor.Artifact().TrainedAt.UnixNano(), 10) + ":" + hex.EncodeToString(sum[:])
	if cached, ok := h.cache.Get(key); ok {
		h.metrics.RecordCacheHit()
		return cached, nil
	}
	start := time.Now()
	prediction, err := predictor.ClassifyReader(bytes.NewReader(data))
	if err != nil {
		return uploadResult{}, err
	}
	result := uploadResult{Label: prediction.DisplayLabel(), Confidence: prediction.Confidence}
	h.metrics.ObservePrediction(result.Label, time.Since(start))
	h.cache.Add(key, result)
	return result, nil
}

func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	userID := ensureUser(w, r)
	predictions, err := h.store.RecentPredictions(userID, historyLimit)
	if err != nil {
		h.logger.Error("load predictions failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Could not load predictions")
		return
	}
	if predictions == nil {
		predictions = []db.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
}

func (h *Handlers) handleImage(w http.ResponseWriter, r *http.Request) {
	userID := ensureUser(w, r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	data, mimeType, err := h.store.PredictionImage(id, userID)
	if errors.Is(err, db.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("load image failed", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Cat or Dog?</title></head>
<body>
<h1>Cat or Dog?</h1>
<form action="/upload" method="post" enctype="multipart/form-data">
<input type="file" name="image" accept=".jpg,.jpeg,.png">
<button type="submit">Classify</button>
</form>
{{if not .ModelLoaded}}<p>No model is loaded. Run train_model first.</p>{{end}}
<h2>Recent predictions</h2>
<ul>
{{range .Predictions}}<li><img src="/image/{{.ID}}" width="64" alt=""> {{.Prediction}} ({{printf "%.2f" .Confidence}}) {{.Timestamp.Format "2006-01-02 15:04:05"}}</li>
{{else}}<li>None yet</li>
{{end}}</ul>
</body>
</html>
`))

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	userID := ensureUser(w, r)
	predictions, err := h.store.RecentPredictions(userID, historyLimit)
	if err != nil {
		h.logger.Error("load predictions failed", zap.String("user_id", userID), zap.Error(err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = indexTemplate.Execute(w, struct {
		ModelLoaded bool
		Predictions []db.Prediction
	}{h.models.Current() != nil, predictions})
	if err != nil {
		h.logger.Error("render index failed", zap.Error(err))
	}
}

// ensureUser returns the caller's id from the uid cookie, issuing a new one
// when the cookie is absent or malformed.
func ensureUser(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(userCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     userCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
