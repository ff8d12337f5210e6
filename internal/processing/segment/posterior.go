// Package segment combines object and background colour likelihoods with
// spatial priors into per-pixel posterior maps and derives binary masks.
package segment

import (
	"histoseg/internal/models"
	"histoseg/internal/processing/histogram"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Mode selects how spatial priors enter the posterior.
type Mode int

const (
	// ModeNone uses a uniform prior: posteriors are the raw likelihoods.
	ModeNone Mode = iota
	// ModeExplicit multiplies caller-supplied prior grids.
	ModeExplicit
	// ModeGaussian derives both priors from a Gaussian around a region.
	ModeGaussian
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeExplicit:
		return "explicit"
	case ModeGaussian:
		return "gaussian"
	default:
		return "unknown"
	}
}

// Regularization describes the spatial prior applied by ComputePosteriors.
type Regularization struct {
	Mode            Mode
	PriorObject     *models.Grid
	PriorBackground *models.Grid
	// Region, when set in explicit mode, supplies Gaussian priors for any
	// grid left nil.
	Region *models.Region
}

func None() Regularization {
	return Regularization{Mode: ModeNone}
}

// Explicit uses the given grids. A nil grid means a uniform prior for that
// class unless WithRegion attaches a fallback region.
func Explicit(priorObject, priorBackground *models.Grid) Regularization {
	return Regularization{Mode: ModeExplicit, PriorObject: priorObject, PriorBackground: priorBackground}
}

// DefaultGaussian centres the object prior on region; see GaussianPriors.
func DefaultGaussian(region models.Region) Regularization {
	return Regularization{Mode: ModeGaussian, Region: &region}
}

func (r Regularization) WithRegion(region models.Region) Regularization {
	r.Region = &region
	return r
}

func (r Regularization) priors(width, height int) (*models.Grid, *models.Grid, error) {
	switch r.Mode {
	case ModeNone:
		return nil, nil, nil

	case ModeGaussian:
		if r.Region == nil {
			return nil, nil, errors.New("gaussian regularization requires a region")
		}
		po, pb := GaussianPriors(width, height, *r.Region)
		return po, pb, nil

	case ModeExplicit:
		po, pb := r.PriorObject, r.PriorBackground
		for _, g := range []*models.Grid{po, pb} {
			if g != nil && !g.SameSize(width, height) {
				return nil, nil, errors.Wrapf(histogram.ErrSizeMismatch, "prior is %dx%d, image is %dx%d",
					g.Width, g.Height, width, height)
			}
		}
		if (po == nil || pb == nil) && r.Region != nil {
			gaussO, gaussB := GaussianPriors(width, height, *r.Region)
			if po == nil {
				po = gaussO
			}
			if pb == nil {
				pb = gaussB
			}
		}
		return po, pb, nil

	default:
		return nil, nil, errors.Errorf("unknown regularization mode %d", r.Mode)
	}
}

// Posteriors holds unnormalised object and background posterior maps. The
// ratio Object/Background is the decision statistic.
type Posteriors struct {
	Object     *models.Grid
	Background *models.Grid
}

func (p *Posteriors) Width() int {
	return p.Object.Width
}

func (p *Posteriors) Height() int {
	return p.Object.Height
}

// ComputePosteriors back-projects both histograms over img and multiplies
// the likelihoods by the priors selected by reg. It holds no state between
// calls.
func ComputePosteriors(img *models.Image, objHist, bgHist *histogram.Histogram, reg Regularization) (*Posteriors, error) {
	if objHist == nil || bgHist == nil {
		return nil, errors.Wrap(histogram.ErrUninitializedHistogram, "both histograms are required")
	}
	if objHist.Dims() != bgHist.Dims() {
		return nil, errors.Wrapf(histogram.ErrInvalidDimension, "object histogram has %d dims, background %d",
			objHist.Dims(), bgHist.Dims())
	}
	if objHist.BinsPerDim() != bgHist.BinsPerDim() {
		return nil, errors.Wrapf(histogram.ErrSizeMismatch, "object histogram has %d bins per dim, background %d",
			objHist.BinsPerDim(), bgHist.BinsPerDim())
	}

	likelihoodObject, err := objHist.BackProject(img)
	if err != nil {
		return nil, errors.Wrap(err, "object back-projection")
	}
	likelihoodBackground, err := bgHist.BackProject(img)
	if err != nil {
		return nil, errors.Wrap(err, "background back-projection")
	}

	priorObject, priorBackground, err := reg.priors(img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	if priorObject != nil {
		floats.Mul(likelihoodObject.Data, priorObject.Data)
	}
	if priorBackground != nil {
		floats.Mul(likelihoodBackground.Data, priorBackground.Data)
	}

	return &Posteriors{Object: likelihoodObject, Background: likelihoodBackground}, nil
}
