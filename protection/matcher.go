package protection

import (
	"log/slog"
	"time"

	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/lgr"
)

const (
	// DefaultMinMatchScore is the minimum association score below which a
	// candidate is treated as no match at all.
	DefaultMinMatchScore = 0.3
	// DefaultMovementThreshold is the IoU between the captured and current
	// box below which the item counts as moved.
	DefaultMovementThreshold = 0.6
	// DefaultClassMismatchPenalty scales the IoU of candidates whose class
	// differs from the protected item's class.
	DefaultClassMismatchPenalty = 0.8
	// DefaultCheckInterval bounds how often the matcher runs.
	DefaultCheckInterval = time.Second
)

// Thresholds parameterizes the disturbance matcher.
type Thresholds struct {
	MinMatchScore        float64
	MovementThreshold    float64
	ClassMismatchPenalty float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinMatchScore:        DefaultMinMatchScore,
		MovementThreshold:    DefaultMovementThreshold,
		ClassMismatchPenalty: DefaultClassMismatchPenalty,
	}
}

// CheckDisturbances re-associates the current detections with the catalog
// snapshot and reports, per protected item, whether it moved or disappeared.
// frame may be nil; it is only used to attach a crop of the current state.
func CheckDisturbances(items []model.ProtectedItem, current []model.DetectedObject, frame Cropper, th Thresholds) []model.Disturbance {
	var disturbances []model.Disturbance

	for _, item := range items {
		match, found := findBestMatch(item, current, th)
		if !found {
			disturbances = append(disturbances, model.Disturbance{
				Item:          item.Class,
				OriginalBox:   item.Box,
				CurrentBox:    nil,
				MovementScore: 1.0,
				Missing:       true,
			})
			continue
		}

		iou := model.IoU(item.Box, match.Box)
		if iou >= th.MovementThreshold {
			// Still where we left it.
			continue
		}

		box := match.Box
		d := model.Disturbance{
			Item:          item.Class,
			OriginalBox:   item.Box,
			CurrentBox:    &box,
			MovementScore: 1 - iou,
		}
		if frame != nil {
			img, err := frame.Crop(match.Box)
			if err != nil {
				lgr.Logger.Warn(
					"failed to crop current-state image",
					slog.String("class", item.Class),
					slog.Any("error", err),
				)
			} else {
				d.CurrentImage = img
			}
		}
		disturbances = append(disturbances, d)
	}

	return disturbances
}

// findBestMatch runs the two-phase association for a single protected item.
// Phase one considers only same-class detections and tracks the best raw IoU.
// Phase two runs only when that best is below MinMatchScore: other-class
// candidates compete with their IoU scaled by the mismatch penalty. The final
// best is discarded when its score stays below MinMatchScore. The phase order
// matters: a same-class match at or above the minimum is never overridden by
// a cross-class candidate, however strong.
func findBestMatch(item model.ProtectedItem, current []model.DetectedObject, th Thresholds) (model.DetectedObject, bool) {
	var best model.DetectedObject
	bestScore := 0.0
	found := false

	for _, obj := range current {
		if obj.Class != item.Class {
			continue
		}
		if iou := model.IoU(item.Box, obj.Box); iou > bestScore {
			bestScore = iou
			best = obj
			found = true
		}
	}

	if bestScore < th.MinMatchScore {
		for _, obj := range current {
			if obj.Class == item.Class {
				continue
			}
			if score := model.IoU(item.Box, obj.Box) * th.ClassMismatchPenalty; score > bestScore {
				bestScore = score
				best = obj
				found = true
			}
		}
	}

	if bestScore < th.MinMatchScore {
		return model.DetectedObject{}, false
	}

	return best, found
}
