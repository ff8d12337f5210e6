// Package safe guards gocv.Mat values before they cross into the pure-Go
// segmentation core.
package safe

import (
	"fmt"

	"gocv.io/x/gocv"
)

const maxDimension = 32768

func ValidateMatForOperation(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}

	if err := ValidateDimensions(mat.Cols(), mat.Rows(), operation); err != nil {
		return err
	}

	return nil
}

// ValidateEightBit accepts 8-bit unsigned Mats with 1, 3 or 4 channels.
func ValidateEightBit(mat gocv.Mat, operation string) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}
	return ValidateMatType(mat.Type(), operation)
}

func ValidateColorConversion(src gocv.Mat, code gocv.ColorConversionCode) error {
	if err := ValidateMatForOperation(src, "CvtColor"); err != nil {
		return err
	}

	channels := src.Channels()

	switch code {
	case gocv.ColorBGRToGray, gocv.ColorBGRToHSV, gocv.ColorBGRToHSVFull, gocv.ColorBGRToLab, gocv.ColorBGRToYCrCb:
		if channels != 3 {
			return fmt.Errorf("BGR conversion requires 3 channels, got %d", channels)
		}
	case gocv.ColorGrayToBGR:
		if channels != 1 {
			return fmt.Errorf("Gray to BGR conversion requires 1 channel, got %d", channels)
		}
	case gocv.ColorBGRAToBGR:
		if channels != 4 {
			return fmt.Errorf("BGRA to BGR conversion requires 4 channels, got %d", channels)
		}
	}

	return nil
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d for operation: %s", width, height, operation)
	}

	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("dimensions %dx%d exceed maximum size for operation: %s", width, height, operation)
	}

	return nil
}

func ValidateMatType(matType gocv.MatType, operation string) error {
	switch matType {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
		return nil
	default:
		return fmt.Errorf("unsupported MatType %d for operation: %s", int(matType), operation)
	}
}
