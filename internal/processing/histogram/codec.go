package histogram

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the persisted form of a histogram.
type File struct {
	Dims       int       `yaml:"dims"`
	BinsPerDim int       `yaml:"bins_per_dim"`
	Vector     []float64 `yaml:"vector,flow"`
}

// Encode writes the histogram as YAML.
func (h *Histogram) Encode(w io.Writer) error {
	if !h.Populated() {
		return errors.Wrap(ErrUninitializedHistogram, "nothing to encode")
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	f := File{Dims: h.numDim, BinsPerDim: h.numBinsPerDim, Vector: h.Vector()}
	if err := enc.Encode(&f); err != nil {
		return errors.Wrap(err, "encode histogram")
	}
	return nil
}

// Decode reads a histogram written by Encode.
func Decode(r io.Reader, opts ...Option) (*Histogram, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode histogram")
	}

	h, err := New(f.Dims, f.BinsPerDim, opts...)
	if err != nil {
		return nil, err
	}
	if err := h.SetVector(f.Vector); err != nil {
		return nil, err
	}
	return h, nil
}
