package speech

import "math"

// DefaultCalibration maps whisper-style log probabilities into percentages
// so that the usual operating range (roughly -0.5..0) lands in the 50-100%
// band: -0.1 ~ 96%, -0.3 ~ 88%, -0.5 ~ 80%, -1.0 ~ 60%. Tunable, not a
// structural invariant.
const DefaultCalibration = 2.5

// Quality is the discrete confidence label derived from the percentage.
type Quality string

const (
	QualityExcellent Quality = "Excellent"
	QualityGood      Quality = "Good"
	QualityFair      Quality = "Fair"
	QualityPoor      Quality = "Poor"
	QualityVeryPoor  Quality = "Very Poor"
)

// NormalizeConfidence maps a raw log-probability confidence (<= 0, where 0
// is maximum certainty) to a bounded percentage and quality label.
func NormalizeConfidence(raw float64) (float64, Quality) {
	pct := ConfidencePct(raw)
	return pct, QualityFor(pct)
}

// ConfidencePct converts a raw log probability to a 0-100 percentage,
// rounded to one decimal.
func ConfidencePct(raw float64) float64 {
	if raw >= 0 {
		return 100
	}
	pct := 100 * (1 + raw/DefaultCalibration)
	pct = math.Max(0, math.Min(100, pct))
	return math.Round(pct*10) / 10
}

// QualityFor buckets a percentage. Bounds are inclusive below and exclusive
// above, except the top bucket which includes 100.
func QualityFor(pct float64) Quality {
	switch {
	case pct >= 95:
		return QualityExcellent
	case pct >= 85:
		return QualityGood
	case pct >= 70:
		return QualityFair
	case pct >= 50:
		return QualityPoor
	default:
		return QualityVeryPoor
	}
}

// OverallConfidence aggregates per-segment raw confidences: the raw values
// are averaged first and normalized once, so the nonlinear mapping does not
// bias the overall score.
func OverallConfidence(raws []float64) (raw, pct float64, quality Quality) {
	if len(raws) == 0 {
		pct, quality = NormalizeConfidence(0)
		return 0, pct, quality
	}
	var sum float64
	for _, r := range raws {
		sum += r
	}
	raw = sum / float64(len(raws))
	pct, quality = NormalizeConfidence(raw)
	return raw, pct, quality
}
