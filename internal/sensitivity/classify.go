package sensitivity

import (
	"math"

	"github.com/clipforge/clipforge/internal/video"
)

// Classification thresholds over aggregated frame scores.
const (
	flaggedAvg       = 0.7
	flaggedHighRatio = 0.3
	reviewAvg        = 0.4
	adultAvg         = 0.6
	flaggedMaxConf   = 0.9
	reviewConfFactor = 0.8
	reviewMaxConf    = 0.7
	safeMinConf      = 0.85
	safeConfBase     = 0.98
)

// classify aggregates per-frame scores into the final sub-record.
func classify(scores []frameScore) video.Sensitivity {
	var sumSuspicion, sumBrightness, sumContrast float64
	highCount := 0
	for _, s := range scores {
		sumSuspicion += s.Suspicion
		sumBrightness += s.Brightness
		sumContrast += s.Contrast
		if s.Suspicion > highSuspicion {
			highCount++
		}
	}

	n := float64(len(scores))
	avgSuspicion := sumSuspicion / n
	highRatio := float64(highCount) / n

	var (
		result     video.SensitivityResult
		confidence float64
	)
	switch {
	case avgSuspicion > flaggedAvg || highRatio > flaggedHighRatio:
		result = video.ResultFlagged
		confidence = math.Min(avgSuspicion, flaggedMaxConf)
	case avgSuspicion > reviewAvg || highCount > 0:
		result = video.ResultUnderReview
		confidence = math.Min(avgSuspicion*reviewConfFactor, reviewMaxConf)
	default:
		result = video.ResultSafe
		confidence = math.Max(safeMinConf, safeConfBase-avgSuspicion)
	}

	return video.Sensitivity{
		Status:     video.SensitivityCompleted,
		Result:     result,
		Confidence: round2(confidence),
		Categories: video.CategoryFlags{
			Adult: avgSuspicion > adultAvg,
		},
		Details: video.AnalysisDetails{
			FramesAnalyzed:     len(scores),
			AvgSuspicion:       round2(avgSuspicion),
			AvgBrightness:      round2(sumBrightness / n),
			AvgContrast:        round2(sumContrast / n),
			HighSuspicionCount: highCount,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
