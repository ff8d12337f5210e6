// Package stages reads and writes the files of a pipeline run with OpenCV.
package stages

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"histoseg/internal/logger"
	"histoseg/internal/models"
	"histoseg/internal/opencv/conversion"
	"histoseg/internal/processing/filters"
	"histoseg/internal/processing/histogram"

	"gocv.io/x/gocv"
)

type Loader struct {
	// Smoothing is the Gaussian sigma applied to decoded images; 0 disables it.
	Smoothing float64
	logger    logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Loader{logger: log}
}

// LoadImage decodes path with OpenCV and converts it to space. Files OpenCV
// cannot decode are retried with the standard library decoders.
func (l *Loader) LoadImage(path string, space models.ColorSpace) (*models.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	mat, err := l.decode(path, data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if l.Smoothing > 0 {
		blurred, err := filters.GaussianBlur(mat, l.Smoothing)
		if err != nil {
			return nil, fmt.Errorf("smoothing failed: %w", err)
		}
		mat.Close()
		mat = blurred
	}

	converted, err := conversion.ConvertColorSpace(mat, space)
	if err != nil {
		return nil, fmt.Errorf("color space conversion failed: %w", err)
	}
	defer converted.Close()

	img, err := conversion.MatToImage(converted)
	if err != nil {
		return nil, err
	}

	l.logger.Info("ImageLoader", "image loaded successfully", map[string]interface{}{
		"path":        path,
		"width":       img.Width,
		"height":      img.Height,
		"channels":    img.Channels(),
		"format":      determineFormat(path),
		"color_space": space.String(),
	})

	return img, nil
}

func (l *Loader) decode(path string, data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err == nil {
		if !mat.Empty() {
			return mat, nil
		}
		mat.Close()
	}

	l.logger.Warning("ImageLoader", "OpenCV decode failed, trying standard library", map[string]interface{}{
		"path": path,
	})

	src, format, stdErr := image.Decode(bytes.NewReader(data))
	if stdErr != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode image %s: %w", path, stdErr)
	}

	img, err := models.NewImageFromGo(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	if img.Channels() == 3 {
		img.Planes[0], img.Planes[2] = img.Planes[2], img.Planes[0]
	}

	l.logger.Debug("ImageLoader", "decoded with standard library", map[string]interface{}{
		"format": format,
	})

	return conversion.ImageToMat(img)
}

// LoadGrid reads a grayscale image as per-pixel values in [0, 1].
func (l *Loader) LoadGrid(path string) (*models.Grid, error) {
	mat, err := l.readGray(path)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return conversion.MatToGrid(mat)
}

// LoadMask reads a binary image; pixels above 127 are set.
func (l *Loader) LoadMask(path string) (*models.Mask, error) {
	mat, err := l.readGray(path)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return conversion.MatToMask(mat)
}

func (l *Loader) readGray(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("failed to read grayscale image %s", path)
	}

	l.logger.Debug("ImageLoader", "grayscale image loaded", map[string]interface{}{
		"path":   path,
		"width":  mat.Cols(),
		"height": mat.Rows(),
	})
	return mat, nil
}

// LoadHistogram reads a YAML histogram written by Saver.SaveHistogram.
func (l *Loader) LoadHistogram(path string, opts ...histogram.Option) (*histogram.Histogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open histogram: %w", err)
	}
	defer f.Close()

	h, err := histogram.Decode(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load histogram %s: %w", path, err)
	}

	l.logger.Debug("ImageLoader", "histogram loaded", map[string]interface{}{
		"path": path,
		"dims": h.Dims(),
		"bins": h.BinsPerDim(),
	})
	return h, nil
}

func determineFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tiff", ".tif":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".bmp":
		return "bmp"
	case ".webp":
		return "webp"
	default:
		return "unknown"
	}
}
