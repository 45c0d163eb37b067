package camera

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/model"
)

// Frame is one captured image plus the raw detections the source's model
// produced for it. The caller owns the Mat and must close it.
type Frame struct {
	Mat        gocv.Mat
	Detections []model.RawDetection
	Timestamp  time.Time
}

type IService interface {
	// Open prepares the capture device and deploys the detection model.
	// A model deployment failure degrades the source to detection-less
	// frames; only a device failure aborts.
	Open(canxCtx context.Context) error
	// Next blocks until the next frame is available. Errors are transient;
	// the caller should back off briefly and retry.
	Next(canxCtx context.Context) (Frame, error)
	// LabelFor resolves a model class id to a display label.
	LabelFor(classID int) string
	Close() error
}
