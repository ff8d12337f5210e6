package histogram

import (
	"golang.org/x/sync/errgroup"
)

const (
	minStripeRows = 32
	maxStripes    = 64
)

// stripe is the half-open row range [y0, y1).
type stripe struct {
	y0, y1 int
}

// splitRows partitions [y0, y1) into stripes whose layout depends only on
// the range, never on the worker count.
func splitRows(y0, y1 int) []stripe {
	rows := y1 - y0
	if rows <= 0 {
		return nil
	}

	step := max(minStripeRows, (rows+maxStripes-1)/maxStripes)
	parts := make([]stripe, 0, (rows+step-1)/step)
	for y := y0; y < y1; y += step {
		parts = append(parts, stripe{y0: y, y1: min(y+step, y1)})
	}
	return parts
}

func runStripes(workers int, parts []stripe, fn func(i int, s stripe)) {
	if workers <= 1 || len(parts) == 1 {
		for i, s := range parts {
			fn(i, s)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range parts {
		g.Go(func() error {
			fn(i, s)
			return nil
		})
	}
	_ = g.Wait()
}
