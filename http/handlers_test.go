package http

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"petclassifier/classifier"
	"petclassifier/db"
	"petclassifier/imaging"
	"petclassifier/ml"
	"petclassifier/monitoring"
)

type staticModels struct {
	predictor *classifier.Predictor
}

func (s staticModels) Current() *classifier.Predictor { return s.predictor }

func solidPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPredictor(t *testing.T) *classifier.Predictor {
	t.Helper()
	size := imaging.Size{Width: 4, Height: 4}
	dark := make([]float64, size.Len())
	light := make([]float64, size.Len())
	for i := range light {
		light[i] = 255
	}
	var features [][]float64
	var labels []int
	for i := 0; i < 6; i++ {
		features = append(features, dark, light)
		labels = append(labels, 0, 1)
	}
	rf := ml.NewRandomForest(5, ml.DefaultSeed)
	require.NoError(t, rf.Fit(features, labels))
	p, err := classifier.New(&ml.Artifact{Model: rf, ImageSize: size, Classes: []string{"cat", "dog"}})
	require.NoError(t, err)
	return p
}

func newTestHandler(t *testing.T, models ModelSource) (http.Handler, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handlers, err := NewHandlers(models, store, 16, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewHandler(DefaultServerConfig(), handlers, zaptest.NewLogger(t)), store
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func userCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == userCookie {
			return c
		}
	}
	t.Fatal("uid cookie not set")
	return nil
}

func TestHealthHandler(t *testing.T) {
	handler, _ := newTestHandler(t, staticModels{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, false, payload["model_loaded"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestUploadClassifiesAndStores(t *testing.T) {
	handler, _ := newTestHandler(t, staticModels{testPredictor(t)})
	data := solidPNG(t, 250)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, uploadRequest(t, "white.png", data))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	payload := decode(t, rr)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "DOG", payload["prediction"])
	assert.Greater(t, payload["confidence"].(float64), 0.5)
	cookie := userCookieFrom(t, rr)

	list := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	list.AddCookie(cookie)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, list)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Predictions []db.Prediction `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history.Predictions, 1)
	assert.Equal(t, "DOG", history.Predictions[0].Prediction)

	img := httptest.NewRequest(http.MethodGet, "/image/"+jsonID(payload), nil)
	img.AddCookie(cookie)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, img)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, data, rr.Body.Bytes())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))

	other := httptest.NewRequest(http.MethodGet, "/image/"+jsonID(payload), nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func jsonID(payload map[string]any) string {
	return strconv.FormatInt(int64(payload["id"].(float64)), 10)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name   string
		models ModelSource
		req    func(t *testing.T) *http.Request
		status int
		errMsg string
	}{
		{
			name:   "no file",
			models: staticModels{testPredictor(t)},
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/upload", nil)
			},
			status: http.StatusBadRequest,
			errMsg: "No file uploaded",
		},
		{
			name:   "bad extension",
			models: staticModels{testPredictor(t)},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "notes.gif", solidPNG(t, 0))
			},
			status: http.StatusBadRequest,
			errMsg: "Only .jpg, .jpeg and .png files are allowed",
		},
		{
			name:   "no model",
			models: staticModels{},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "cat.jpg", solidPNG(t, 0))
			},
			status: http.StatusInternalServerError,
			errMsg: "Model file not found",
		},
		{
			name:   "undecodable",
			models: staticModels{testPredictor(t)},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "broken.JPG", []byte("not an image"))
			},
			status: http.StatusUnprocessableEntity,
			errMsg: "Could not process image broken.JPG",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(t, tt.models)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, tt.req(t))
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.errMsg, decode(t, rr)["error"])
		})
	}
}

func TestUploadUsesResultCache(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	defer store.Close()
	handlers, err := NewHandlers(staticModels{testPredictor(t)}, store, 4, nil)
	require.NoError(t, err)
	handler := NewHandler(DefaultServerConfig(), handlers, zaptest.NewLogger(t))

	data := solidPNG(t, 3)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, uploadRequest(t, "dark.png", data))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "CAT", decode(t, rr)["prediction"])
	}
	assert.Equal(t, 1, handlers.cache.Len())
}

func TestImageNotFound(t *testing.T) {
	handler, _ := newTestHandler(t, staticModels{})
	for _, path := range []string{"/image/999", "/image/abc"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestExistingCookieIsKept(t *testing.T) {
	handler, store := newTestHandler(t, staticModels{testPredictor(t)})
	id := "6f1c1e0a-8a1e-4c55-9d57-2f1a3c4b5d6e"
	_, err := store.SavePrediction(db.Prediction{UserID: id, Prediction: "CAT", Confidence: 0.9})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: userCookie, Value: id})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
	assert.Contains(t, rr.Body.String(), "CAT (0.90)")
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsCountUploads(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	defer store.Close()
	handlers, err := NewHandlers(staticModels{testPredictor(t)}, store, 4, nil)
	require.NoError(t, err)
	handler := NewHandler(DefaultServerConfig(), handlers, zaptest.NewLogger(t))

	data := solidPNG(t, 250)
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "white.png", data))
	}
	handler.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "white.bmp", data))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, int64(2), snap.Uploads[monitoring.OutcomeOK])
	assert.Equal(t, int64(1), snap.Uploads[monitoring.OutcomeRejected])
	assert.Len(t, snap.Uploads, 2)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.Labels["DOG"])
	assert.Equal(t, 1, snap.Latency.Count)
}
