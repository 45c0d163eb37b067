package camera

import (
	"context"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/config"
)

var syntheticLabels = []string{"background", "suitcase", "backpack", "laptop"}

// syntheticService generates frames in-process: a static scene with one
// object that starts drifting after a while. Useful for development and
// demos without camera hardware.
type syntheticService struct {
	CfgSvc config.IService
	frames int
}

func NewSynthetic(cfgsvc config.IService) IService {
	return &syntheticService{
		CfgSvc: cfgsvc,
	}
}

func (svc *syntheticService) Open(_ context.Context) error {
	return nil
}

func (svc *syntheticService) Next(canxCtx context.Context) (Frame, error) {
	if err := canxCtx.Err(); err != nil {
		return Frame{}, err
	}

	svc.frames++

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	img.SetTo(gocv.NewScalar(40, 40, 40, 0))

	// The "suitcase" sits still for the first 300 frames, then drifts right
	// two pixels per frame so a protected catalog raises disturbances.
	box := model.BBox{X: 200, Y: 180, Width: 120, Height: 140}
	if svc.frames > 300 {
		box.X += float64((svc.frames - 300) * 2)
	}

	rect := image.Rect(int(box.X), int(box.Y), int(box.X+box.Width), int(box.Y+box.Height))
	gocv.Rectangle(&img, rect, color.RGBA{R: 160, G: 120, B: 60}, -1)

	return Frame{
		Mat: img,
		Detections: []model.RawDetection{
			{ClassID: 1, Confidence: 0.92, Box: box},
		},
		Timestamp: time.Now(),
	}, nil
}

func (svc *syntheticService) LabelFor(classID int) string {
	if classID >= 0 && classID < len(syntheticLabels) {
		return syntheticLabels[classID]
	}
	return "object"
}

func (svc *syntheticService) Close() error {
	return nil
}
