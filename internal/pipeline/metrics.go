package pipeline

import (
	"fmt"
	"math"

	"histoseg/internal/models"
)

// SegmentationMetrics compares a predicted mask with ground truth.
type SegmentationMetrics struct {
	IoU                    float64 // Intersection over Union
	DiceCoefficient        float64 // Dice Similarity Coefficient
	MisclassificationError float64 // Fraction of wrongly labelled pixels
	Precision              float64
	Recall                 float64
	HausdorffDistance      float64 // Maximum boundary discrepancy in pixels
}

// CalculateSegmentationMetrics scores predicted against truth. Two empty
// masks count as a perfect match.
func CalculateSegmentationMetrics(truth, predicted *models.Mask) (*SegmentationMetrics, error) {
	if err := models.ValidateSameSize(truth, predicted); err != nil {
		return nil, err
	}

	var truePositive, falsePositive, falseNegative int
	for i, gt := range truth.Data {
		seg := predicted.Data[i]
		switch {
		case gt && seg:
			truePositive++
		case !gt && seg:
			falsePositive++
		case gt && !seg:
			falseNegative++
		}
	}

	metrics := &SegmentationMetrics{}

	union := truePositive + falsePositive + falseNegative
	if union > 0 {
		metrics.IoU = float64(truePositive) / float64(union)
		metrics.DiceCoefficient = 2 * float64(truePositive) / float64(2*truePositive+falsePositive+falseNegative)
	} else {
		metrics.IoU = 1.0
		metrics.DiceCoefficient = 1.0
	}

	if total := len(truth.Data); total > 0 {
		metrics.MisclassificationError = float64(falsePositive+falseNegative) / float64(total)
	}

	metrics.Precision = ratioOrOne(truePositive, truePositive+falsePositive)
	metrics.Recall = ratioOrOne(truePositive, truePositive+falseNegative)

	metrics.HausdorffDistance = hausdorffDistance(extractBoundaryPoints(truth), extractBoundaryPoints(predicted))

	return metrics, nil
}

func ratioOrOne(num, den int) float64 {
	if den == 0 {
		return 1.0
	}
	return float64(num) / float64(den)
}

// Fields flattens the metrics for structured logging.
func (m *SegmentationMetrics) Fields() map[string]interface{} {
	return map[string]interface{}{
		"iou":               m.IoU,
		"dice":              m.DiceCoefficient,
		"misclassification": m.MisclassificationError,
		"precision":         m.Precision,
		"recall":            m.Recall,
		"hausdorff":         m.HausdorffDistance,
	}
}

// GetMetricsDescription returns human-readable descriptions of the metrics
func (m *SegmentationMetrics) GetMetricsDescription() map[string]string {
	return map[string]string{
		"IoU":                    fmt.Sprintf("Intersection over Union: %.4f (higher is better, 1.0 = perfect)", m.IoU),
		"DiceCoefficient":        fmt.Sprintf("Dice Similarity: %.4f (higher is better, 1.0 = perfect)", m.DiceCoefficient),
		"MisclassificationError": fmt.Sprintf("Misclassification Error: %.4f (lower is better, 0.0 = perfect)", m.MisclassificationError),
		"Precision":              fmt.Sprintf("Precision: %.4f (higher is better, 1.0 = perfect)", m.Precision),
		"Recall":                 fmt.Sprintf("Recall: %.4f (higher is better, 1.0 = perfect)", m.Recall),
		"HausdorffDistance":      fmt.Sprintf("Hausdorff Distance: %.2f pixels (lower is better, 0.0 = perfect)", m.HausdorffDistance),
	}
}

// Point represents a 2D point
type Point struct {
	X, Y int
}

// extractBoundaryPoints returns set pixels with at least one unset
// 8-neighbour. Pixels on the image border count as boundary.
func extractBoundaryPoints(m *models.Mask) []Point {
	var boundary []Point

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			if isBoundary(m, x, y) {
				boundary = append(boundary, Point{X: x, Y: y})
			}
		}
	}

	return boundary
}

func isBoundary(m *models.Mask, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
				return true
			}
			if !m.At(nx, ny) {
				return true
			}
		}
	}
	return false
}

// hausdorffDistance is zero when either boundary is empty.
func hausdorffDistance(a, b []Point) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return math.Max(directedHausdorff(a, b), directedHausdorff(b, a))
}

func directedHausdorff(set1, set2 []Point) float64 {
	maxDist := 0.0

	for _, p1 := range set1 {
		minDist := math.Inf(1)

		for _, p2 := range set2 {
			dx := float64(p1.X - p2.X)
			dy := float64(p1.Y - p2.Y)
			dist := math.Sqrt(dx*dx + dy*dy)

			if dist < minDist {
				minDist = dist
			}
		}

		if minDist > maxDist {
			maxDist = minDist
		}
	}

	return maxDist
}
