package models

import (
	"fmt"
	"strings"
)

// ColorSpace is the feature space pixels are binned in.
type ColorSpace int

const (
	ColorSpaceBGR ColorSpace = iota
	ColorSpaceHSV
	ColorSpaceLab
	ColorSpaceYCrCb
	ColorSpaceGray
)

func (cs ColorSpace) String() string {
	switch cs {
	case ColorSpaceBGR:
		return "bgr"
	case ColorSpaceHSV:
		return "hsv"
	case ColorSpaceLab:
		return "lab"
	case ColorSpaceYCrCb:
		return "ycrcb"
	case ColorSpaceGray:
		return "gray"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(cs))
	}
}

// Channels is the number of planes an image has in this space.
func (cs ColorSpace) Channels() int {
	if cs == ColorSpaceGray {
		return 1
	}
	return 3
}

// ChannelNames labels the planes of an image in this space.
func (cs ColorSpace) ChannelNames() []string {
	switch cs {
	case ColorSpaceHSV:
		return []string{"h", "s", "v"}
	case ColorSpaceLab:
		return []string{"l", "a", "b"}
	case ColorSpaceYCrCb:
		return []string{"y", "cr", "cb"}
	case ColorSpaceGray:
		return []string{"gray"}
	default:
		return []string{"b", "g", "r"}
	}
}

func ParseColorSpace(s string) (ColorSpace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bgr":
		return ColorSpaceBGR, nil
	case "hsv":
		return ColorSpaceHSV, nil
	case "lab":
		return ColorSpaceLab, nil
	case "ycrcb":
		return ColorSpaceYCrCb, nil
	case "gray", "grey":
		return ColorSpaceGray, nil
	default:
		return 0, fmt.Errorf("unknown color space %q", s)
	}
}
