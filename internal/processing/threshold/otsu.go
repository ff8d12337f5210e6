package threshold

// Otsu returns the bin index that maximises the between-class variance of
// a weighted histogram. Bins at or below the index form the lower class.
// An empty histogram yields the middle bin.
func Otsu(histogram []float64) int {
	n := len(histogram)
	if n == 0 {
		return 0
	}

	total := 0.0
	sum := 0.0
	for i, w := range histogram {
		total += w
		sum += float64(i) * w
	}

	best := (n - 1) / 2
	if total <= 0 {
		return best
	}

	sumB := 0.0
	wB := 0.0
	maxVariance := 0.0

	for i := 0; i < n; i++ {
		wB += histogram[i]
		if wB == 0 {
			continue
		}

		wF := total - wB
		if wF <= 0 {
			break
		}

		sumB += float64(i) * histogram[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF

		varBetween := wB * wF * (mB - mF) * (mB - mF)
		if varBetween > maxVariance {
			maxVariance = varBetween
			best = i
		}
	}

	return best
}

// Histogram256 bins values in [0, 1] into 256 equal-width bins. Values
// outside the range are clamped; skip reports samples to leave out.
func Histogram256(values []float64, skip func(i int) bool) []float64 {
	hist := make([]float64, 256)
	for i, v := range values {
		if skip != nil && skip(i) {
			continue
		}
		hist[Bin256(v)]++
	}
	return hist
}

// Bin256 maps a value in [0, 1] to its 8-bit bin.
func Bin256(v float64) int {
	b := int(v * 255)
	return max(0, min(b, 255))
}
