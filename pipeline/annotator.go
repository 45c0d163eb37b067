package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/model"
)

var (
	detectionColor = color.RGBA{G: 255}
	alertColor     = color.RGBA{R: 255}
)

// annotateFrame overlays detection boxes and labels, plus a distinguishable
// alert marker per disturbance: the captured position, the current position
// when known, and the item class.
func annotateFrame(mat *gocv.Mat, detections []model.DetectedObject, disturbances []model.Disturbance) {
	for _, det := range detections {
		rect := rectFromBox(det.Box)
		gocv.Rectangle(mat, rect, detectionColor, 2)
		gocv.PutText(mat, fmt.Sprintf("%s: %.2f", det.Class, det.Confidence),
			image.Pt(rect.Min.X, rect.Min.Y-5),
			gocv.FontHersheySimplex, 0.5, detectionColor, 1)
	}

	for _, d := range disturbances {
		rect := rectFromBox(d.OriginalBox)
		gocv.Rectangle(mat, rect, alertColor, 3)

		label := fmt.Sprintf("DISTURBED: %s", d.Item)
		if d.Missing {
			label = fmt.Sprintf("MISSING: %s", d.Item)
		}
		gocv.PutText(mat, label,
			image.Pt(rect.Min.X, rect.Max.Y+18),
			gocv.FontHersheySimplex, 0.6, alertColor, 2)

		if d.CurrentBox != nil {
			gocv.Rectangle(mat, rectFromBox(*d.CurrentBox), alertColor, 2)
		}
	}
}

// encodeFrame produces the transmittable JPEG payload for a frame.
func encodeFrame(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// The native buffer is freed on Close; hand out a copy.
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

func rectFromBox(b model.BBox) image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
}
