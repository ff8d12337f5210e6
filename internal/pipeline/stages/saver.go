package stages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"histoseg/internal/logger"
	"histoseg/internal/models"
	"histoseg/internal/opencv/conversion"
	"histoseg/internal/processing/histogram"
	"histoseg/internal/report"

	"gocv.io/x/gocv"
)

type Saver struct {
	logger logger.Logger
}

func NewSaver(log logger.Logger) *Saver {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Saver{logger: log}
}

// SaveMask writes mask as a 0/255 single-channel image.
func (s *Saver) SaveMask(path string, mask *models.Mask) error {
	mat, err := conversion.MaskToMat(mask)
	if err != nil {
		return err
	}
	defer mat.Close()

	return s.write(path, mat, "mask")
}

// SaveProbability writes prob scaled to 0..255, or as raw float32 values
// when path names a TIFF or EXR file.
func (s *Saver) SaveProbability(path string, prob *models.Grid) error {
	var (
		mat gocv.Mat
		err error
	)
	if floatFormat(path) {
		mat, err = conversion.GridToMat32(prob)
	} else {
		mat, err = conversion.GridToMat8(prob)
	}
	if err != nil {
		return err
	}
	defer mat.Close()

	return s.write(path, mat, "probability")
}

// SavePosterior writes post as raw float32 values. Only TIFF and EXR keep
// floating-point samples, so other extensions are rejected.
func (s *Saver) SavePosterior(path string, post *models.Grid) error {
	if !floatFormat(path) {
		return fmt.Errorf("posterior %s must be a .tif, .tiff or .exr file", path)
	}

	mat, err := conversion.GridToMat32(post)
	if err != nil {
		return err
	}
	defer mat.Close()

	return s.write(path, mat, "posterior")
}

func floatFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".exr":
		return true
	default:
		return false
	}
}

func (s *Saver) write(path string, mat gocv.Mat, kind string) error {
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write %s image %s", kind, path)
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"kind":   kind,
		"format": determineFormat(path),
	})
	return nil
}

// SaveHistogram writes h as YAML.
func (s *Saver) SaveHistogram(path string, h *histogram.Histogram) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create histogram file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := h.Encode(f); err != nil {
		return err
	}

	s.logger.Info("ImageSaver", "histogram saved", map[string]interface{}{
		"path": path,
		"dims": h.Dims(),
		"bins": h.BinsPerDim(),
	})
	return nil
}

// SavePlot charts the channel marginals of series. The image format follows
// the extension of path.
func (s *Saver) SavePlot(path, title string, channels []string, series ...report.Series) error {
	if err := report.PlotMarginals(path, title, channels, series...); err != nil {
		return err
	}

	s.logger.Info("ImageSaver", "plot saved", map[string]interface{}{
		"path":   path,
		"series": len(series),
	})
	return nil
}
