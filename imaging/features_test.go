package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 2), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestExtractFeaturesDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "g.png", gradient(80, 50))

	first, err := ExtractFeatures(path, DefaultSize)
	require.NoError(t, err)
	second, err := ExtractFeatures(path, DefaultSize)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("features differ between runs (-first +second):\n%s", diff)
	}
}

func TestExtractFeaturesLength(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "g.png", gradient(40, 90))

	for _, size := range []Size{{64, 64}, {32, 16}, {1, 1}, {100, 7}} {
		features, err := ExtractFeatures(path, size)
		require.NoError(t, err)
		assert.Len(t, features, size.Width*size.Height, "size %s", size)
		assert.Equal(t, size.Len(), len(features))
	}
}

func TestExtractFeaturesGrayscaleValues(t *testing.T) {
	dir := t.TempDir()
	black := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 3; i < len(black.Pix); i += 4 {
		black.Pix[i] = 255
	}
	white := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range white.Pix {
		white.Pix[i] = 255
	}

	features, err := ExtractFeatures(writePNG(t, dir, "black.png", black), DefaultSize)
	require.NoError(t, err)
	for _, v := range features {
		require.Equal(t, 0.0, v)
	}

	features, err = ExtractFeatures(writePNG(t, dir, "white.png", white), DefaultSize)
	require.NoError(t, err)
	for _, v := range features {
		require.Equal(t, 255.0, v)
	}
}

func TestFlattenRowMajor(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(gray.Pix, []uint8{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, Flatten(gray))

	// identical size means no resampling, so order is preserved end to end
	features, err := FromImage(gray, Size{Width: 3, Height: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, features)
}

func TestExtractFeaturesNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jpg")
	_, err := ExtractFeatures(path, DefaultSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), path)

	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, path, extractionErr.Path)
}

func TestExtractFeaturesDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not really a jpeg"), 0o600))

	_, err := ExtractFeatures(path, DefaultSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestExtractFromReaderMatchesFile(t *testing.T) {
	dir := t.TempDir()
	img := gradient(70, 70)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	path := filepath.Join(dir, "g.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	fromFile, err := ExtractFeatures(path, DefaultSize)
	require.NoError(t, err)
	fromReader, err := ExtractFromReader(bytes.NewReader(buf.Bytes()), DefaultSize)
	require.NoError(t, err)
	assert.Equal(t, fromFile, fromReader)
}

func TestInvalidSize(t *testing.T) {
	_, err := FromImage(gradient(4, 4), Size{Width: 0, Height: 4})
	assert.ErrorIs(t, err, ErrInvalidSize)
}
