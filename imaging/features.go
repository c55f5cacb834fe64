// Package imaging turns image files into fixed-length grayscale feature
// vectors. Training and inference must go through the same functions here.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/nfnt/resize"
)

var (
	// ErrNotFound is returned when the image path does not exist.
	ErrNotFound = errors.New("image file not found")
	// ErrDecode is returned when the file exists but is not a decodable image.
	ErrDecode = errors.New("cannot decode image")
	// ErrInvalidSize is returned for non-positive resize targets.
	ErrInvalidSize = errors.New("invalid resize target")
)

// Size is the resize target applied before flattening.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultSize is the 64x64 target used unless configured otherwise.
var DefaultSize = Size{Width: 64, Height: 64}

// Len is the length of every feature vector produced for s.
func (s Size) Len() int {
	return s.Width * s.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s Size) validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSize, s)
	}
	return nil
}

// ExtractionError reports which path failed and why.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("error processing %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractFeatures opens path, converts it to grayscale, resizes it to size and
// returns the pixels in row-major order.
func ExtractFeatures(path string, size Size) ([]float64, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ExtractionError{Path: path, Err: ErrNotFound}
		}
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer file.Close()

	features, err := ExtractFromReader(file, size)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return features, nil
}

// ExtractFromReader decodes an image from r and extracts its features.
func ExtractFromReader(r io.Reader, size Size) ([]float64, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromImage(img, size)
}

// FromImage extracts features from an already decoded image.
func FromImage(img image.Image, size Size) ([]float64, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	gray := Grayscale(img)
	resized, ok := resize.Resize(uint(size.Width), uint(size.Height), gray, resize.Bicubic).(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected resize output", ErrDecode)
	}
	return Flatten(resized), nil
}

// Grayscale converts img to a single 8-bit channel using the ITU-R 601 luma
// weights of color.GrayModel.
func Grayscale(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray
}

// Flatten returns the pixels of gray row by row.
func Flatten(gray *image.Gray) []float64 {
	bounds := gray.Bounds()
	out := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			out = append(out, float64(row[x]))
		}
	}
	return out
}
