package segment

import (
	"fmt"

	"histoseg/internal/models"
	"histoseg/internal/processing/threshold"
)

// Label is the per-pixel outcome of a decision.
type Label uint8

const (
	// Undetermined marks pixels where both posteriors vanish.
	Undetermined Label = iota
	Object
	Background
)

func (l Label) String() string {
	switch l {
	case Object:
		return "object"
	case Background:
		return "background"
	default:
		return "undetermined"
	}
}

// Classify applies the likelihood-ratio test po/pb > t. A zero background
// posterior never divides: the pixel is Object when po > 0 and Undetermined
// when both are zero.
func Classify(po, pb, t float64) Label {
	switch {
	case pb > 0:
		if po/pb > t {
			return Object
		}
		return Background
	case po > 0:
		return Object
	default:
		return Undetermined
	}
}

// Labels classifies every pixel with threshold t.
func (p *Posteriors) Labels(t float64) []Label {
	labels := make([]Label, len(p.Object.Data))
	for i := range labels {
		labels[i] = Classify(p.Object.Data[i], p.Background.Data[i], t)
	}
	return labels
}

// Mask sets the pixels classified as Object with threshold t.
func (p *Posteriors) Mask(t float64) *models.Mask {
	m := models.NewMask(p.Width(), p.Height())
	for i, l := range p.Labels(t) {
		m.Data[i] = l == Object
	}
	return m
}

// Probability returns Object/(Object+Background) per pixel, 0 where both
// posteriors vanish.
func (p *Posteriors) Probability() *models.Grid {
	out := models.NewGrid(p.Width(), p.Height())
	for i := range out.Data {
		po, pb := p.Object.Data[i], p.Background.Data[i]
		if s := po + pb; s > 0 {
			out.Data[i] = po / s
		}
	}
	return out
}

// Rule turns posteriors into a binary mask.
type Rule interface {
	Apply(p *Posteriors) *models.Mask
	Name() string
}

// RatioRule thresholds the likelihood ratio.
type RatioRule struct {
	Threshold float64
}

func (r RatioRule) Apply(p *Posteriors) *models.Mask {
	return p.Mask(r.Threshold)
}

func (r RatioRule) Name() string {
	return fmt.Sprintf("ratio>%g", r.Threshold)
}

// OtsuRule picks the cut on the object probability that best separates
// its 256-bin histogram. Undetermined pixels are left out of the histogram
// and never set.
type OtsuRule struct{}

func (OtsuRule) Apply(p *Posteriors) *models.Mask {
	m, _ := p.OtsuMask()
	return m
}

func (OtsuRule) Name() string {
	return "otsu"
}

// OtsuMask returns the Otsu mask and the chosen probability cut.
func (p *Posteriors) OtsuMask() (*models.Mask, float64) {
	prob := p.Probability()
	undetermined := func(i int) bool {
		return p.Object.Data[i]+p.Background.Data[i] <= 0
	}

	cut := threshold.Otsu(threshold.Histogram256(prob.Data, undetermined))

	m := models.NewMask(p.Width(), p.Height())
	for i, v := range prob.Data {
		m.Data[i] = !undetermined(i) && threshold.Bin256(v) > cut
	}
	return m, float64(cut) / 255.0
}
