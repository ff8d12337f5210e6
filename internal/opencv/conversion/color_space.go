package conversion

import (
	"fmt"

	"histoseg/internal/models"
	"histoseg/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertColorSpace converts a Mat decoded by OpenCV (gray, BGR or BGRA)
// into target. The caller owns and must close the returned Mat.
func ConvertColorSpace(src gocv.Mat, target models.ColorSpace) (gocv.Mat, error) {
	if err := safe.ValidateEightBit(src, "color space conversion"); err != nil {
		return gocv.NewMat(), err
	}

	bgr, err := toBGR(src)
	if err != nil {
		return gocv.NewMat(), err
	}

	var code gocv.ColorConversionCode
	switch target {
	case models.ColorSpaceBGR:
		return bgr, nil
	case models.ColorSpaceGray:
		if src.Channels() == 1 {
			bgr.Close()
			return src.Clone(), nil
		}
		code = gocv.ColorBGRToGray
	case models.ColorSpaceHSV:
		// Full-range hue spans 0..255 so every hue bin can fill.
		code = gocv.ColorBGRToHSVFull
	case models.ColorSpaceLab:
		code = gocv.ColorBGRToLab
	case models.ColorSpaceYCrCb:
		code = gocv.ColorBGRToYCrCb
	default:
		bgr.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported color space conversion to %v", target)
	}
	defer bgr.Close()

	if err := safe.ValidateColorConversion(bgr, code); err != nil {
		return gocv.NewMat(), err
	}

	dst := gocv.NewMat()
	gocv.CvtColor(bgr, &dst, code)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("CvtColor to %v produced an empty Mat", target)
	}

	return dst, nil
}

// toBGR normalises a gray, BGR or BGRA Mat to a fresh 3-channel BGR Mat.
func toBGR(src gocv.Mat) (gocv.Mat, error) {
	switch src.Channels() {
	case 3:
		return src.Clone(), nil
	case 1:
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
		return dst, nil
	case 4:
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
		return dst, nil
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
}
