package model

// NormalizeDetections converts the raw detections of one frame into canonical
// detected objects, keeping only those with confidence strictly above the
// threshold. Class ids are resolved to display labels through labelFor.
// A frame without detections yields an empty result, never an error.
func NormalizeDetections(raw []RawDetection, threshold float32, labelFor func(classID int) string) []DetectedObject {
	if len(raw) == 0 {
		return nil
	}

	objects := make([]DetectedObject, 0, len(raw))
	for _, det := range raw {
		if det.Confidence <= threshold {
			continue
		}

		objects = append(objects, DetectedObject{
			Class:      labelFor(det.ClassID),
			Confidence: clampConfidence(det.Confidence),
			Box:        sanitizeBox(det.Box),
		})
	}

	return objects
}

func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func sanitizeBox(b BBox) BBox {
	if b.Width < 0 {
		b.Width = 0
	}
	if b.Height < 0 {
		b.Height = 0
	}
	return b
}
