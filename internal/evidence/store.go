// Package evidence keeps the photos of recorded identifications on local disk.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxSize is the longest side of a stored photo in pixels.
	DefaultMaxSize = 1024
	jpegQuality    = 85
	fileExt        = ".jpg"
)

var (
	// ErrNotFound is returned for a well-formed ref with no stored file.
	ErrNotFound = errors.New("evidence not found")
	// ErrInvalidRef is returned for refs that were not issued by the store.
	ErrInvalidRef = errors.New("invalid evidence ref")
)

// Store writes evidence photos as JPEG files named by random UUID refs.
type Store struct {
	dir     string
	maxSize int
}

// NewStore creates the directory if needed. maxSize <= 0 uses DefaultMaxSize.
func NewStore(dir string, maxSize int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("evidence directory is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Save normalizes the image to a downscaled JPEG and stores it.
func (s *Store) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	normalized, err := NormalizeImage(data, s.maxSize)
	if err != nil {
		return "", err
	}

	ref := uuid.NewString()
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(normalized); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close evidence file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(ref)); err != nil {
		return "", fmt.Errorf("failed to store evidence file: %w", err)
	}
	return ref, nil
}

// Open returns a reader for a stored photo.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence: %w", err)
	}
	return f, nil
}

// Delete removes a stored photo. Deleting a missing ref is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	return nil
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.dir, ref+fileExt)
}

func validateRef(ref string) error {
	if _, err := uuid.Parse(ref); err != nil || len(ref) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}

// NormalizeImage decodes any supported format and re-encodes it as JPEG,
// downscaled to fit within maxSize while keeping the aspect ratio.
func NormalizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
