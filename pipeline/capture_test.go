package pipeline

import (
	"context"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/camera"
	"github.com/sentrycam/sentry-go/service/metrics"
)

type cfgStub struct{}

func (cfgStub) GetHTTPPort() int               { return 5000 }
func (cfgStub) GetCameraType() string          { return "synthetic" }
func (cfgStub) GetCameraURL() string           { return "0" }
func (cfgStub) GetModelPath() string           { return "" }
func (cfgStub) GetModelConfigPath() string     { return "" }
func (cfgStub) GetLabelsPath() string          { return "" }
func (cfgStub) GetDetectionThreshold() float32 { return 0.55 }
func (cfgStub) GetCaptureThreshold() float32   { return 0.7 }
func (cfgStub) GetDefaultFrameRate() int       { return 30 }
func (cfgStub) GetCheckIntervalSeconds() int   { return 1 }
func (cfgStub) GetRecordingsFolder() string    { return "" }
func (cfgStub) GetWebhookURL() string          { return "" }
func (cfgStub) GetMQTTEnabled() bool           { return false }
func (cfgStub) GetMQTTBroker() string          { return "localhost:1883" }
func (cfgStub) GetMQTTTopic() string           { return "esp/messages" }
func (cfgStub) GetModeMaxShutdownTime() int    { return 5 }

type cameraStub struct{}

func (cameraStub) Open(_ context.Context) error { return nil }
func (cameraStub) Next(_ context.Context) (camera.Frame, error) {
	return camera.Frame{}, nil
}
func (cameraStub) LabelFor(classID int) string { return "suitcase" }
func (cameraStub) Close() error                { return nil }

// The retained capture feeds protection activation, so the reference crops
// must come from the camera image, not from the annotated broadcast frame.
func TestRetainedCaptureFreeOfOverlays(t *testing.T) {
	m := metrics.New()
	h := hub.New(m)
	r := NewRunner(ServicesFactory{
		CfgSvc:    cfgStub{},
		CameraSvc: cameraStub{},
		Metrics:   m,
	}, h)
	defer r.state.release()

	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(40, 40, 40, 0))

	box := model.BBox{X: 20, Y: 20, Width: 40, Height: 40}
	r.processFrame(camera.Frame{
		Mat: img,
		Detections: []model.RawDetection{
			{ClassID: 1, Confidence: 0.9, Box: box},
		},
		Timestamp: time.Now(),
	})

	if h.LastFrame() == nil {
		t.Fatal("expected a broadcast frame")
	}

	ok := r.state.withCapture(func(mat gocv.Mat, _ []model.DetectedObject) {
		// The detection rectangle was drawn at this corner on the broadcast
		// frame; the retained capture must still show the background.
		v := mat.GetVecbAt(int(box.Y), int(box.X))
		if v[0] != 40 || v[1] != 40 || v[2] != 40 {
			t.Errorf("retained capture carries overlay pixels at the box corner: %v", v)
		}
	})
	if !ok {
		t.Fatal("expected a retained capture after processing")
	}

	result := r.ActivateProtection()
	if !result.Success || result.ObjectCount != 1 {
		t.Fatalf("unexpected activation result: %+v", result)
	}

	item := r.catalog.Snapshot()[0]
	if len(item.RefImage) == 0 {
		t.Fatal("expected a reference image on the protected item")
	}

	crop, err := gocv.IMDecode(item.RefImage, gocv.IMReadColor)
	if err != nil {
		t.Fatalf("decode reference image: %v", err)
	}
	defer crop.Close()

	// JPEG is lossy; the drawn rectangle is full green, so anything close
	// to it at the crop's corner means the overlay leaked in.
	v := crop.GetVecbAt(0, 0)
	if v[1] > 128 {
		t.Fatalf("reference crop contaminated by annotation overlay: %v", v)
	}
}
