package camera

import (
	"context"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/config"
	"github.com/sentrycam/sentry-go/service/lgr"
)

const (
	ssdInputSize  = 300
	ssdMeanValue  = 127.5
	ssdScale      = 1.0 / 127.5
	ssdFieldCount = 7
)

type deviceService struct {
	CfgSvc config.IService

	webcam *gocv.VideoCapture
	net    gocv.Net
	hasNet bool
	labels []string
}

// NewDevice returns a frame source backed by a local capture device or
// stream URL, running an SSD MobileNet detector on every frame.
func NewDevice(cfgsvc config.IService) IService {
	return &deviceService{
		CfgSvc: cfgsvc,
	}
}

func (svc *deviceService) Open(_ context.Context) error {
	webcam, err := openCapture(svc.CfgSvc.GetCameraURL())
	if err != nil {
		return model.GenError("camera_device",
			err,
			map[string]interface{}{"url": svc.CfgSvc.GetCameraURL()},
			"error opening capture device")
	}
	svc.webcam = webcam

	svc.labels = loadLabels(svc.CfgSvc.GetLabelsPath())

	// A missing or broken model is not fatal: the pipeline keeps delivering
	// frames with empty detections.
	net := gocv.ReadNet(svc.CfgSvc.GetModelPath(), svc.CfgSvc.GetModelConfigPath())
	if net.Empty() {
		lgr.Logger.Warn(
			"failed to deploy detection model, continuing without detections",
			slog.String("model", svc.CfgSvc.GetModelPath()),
		)
		return nil
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		lgr.Logger.Warn("error setting DNN backend, continuing without detections", slog.Any("error", err))
		net.Close()
		return nil
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		lgr.Logger.Warn("error setting DNN target, continuing without detections", slog.Any("error", err))
		net.Close()
		return nil
	}

	svc.net = net
	svc.hasNet = true
	lgr.Logger.Info(
		"detection model deployed",
		slog.String("model", svc.CfgSvc.GetModelPath()),
		slog.String("openCV", gocv.Version()),
	)
	return nil
}

func (svc *deviceService) Next(canxCtx context.Context) (Frame, error) {
	if err := canxCtx.Err(); err != nil {
		return Frame{}, err
	}
	if svc.webcam == nil {
		return Frame{}, xerrors.New("capture device not open")
	}

	img := gocv.NewMat()
	if ok := svc.webcam.Read(&img); !ok || img.Empty() {
		img.Close()
		return Frame{}, xerrors.New("failed to read frame from capture device")
	}

	frame := Frame{
		Mat:       img,
		Timestamp: time.Now(),
	}
	if svc.hasNet {
		frame.Detections = svc.detect(img)
	}
	return frame, nil
}

// detect runs the SSD forward pass. The output is one row of
// [batch, class, confidence, left, top, right, bottom] per candidate with
// normalized corner coordinates.
func (svc *deviceService) detect(img gocv.Mat) []model.RawDetection {
	blob := gocv.BlobFromImage(img, ssdScale, image.Pt(ssdInputSize, ssdInputSize),
		gocv.NewScalar(ssdMeanValue, ssdMeanValue, ssdMeanValue, 0), true, false)
	defer blob.Close()

	svc.net.SetInput(blob, "")
	output := svc.net.Forward("")
	defer output.Close()

	cols := float64(img.Cols())
	rows := float64(img.Rows())

	candidates := output.Reshape(1, output.Total()/ssdFieldCount)
	defer candidates.Close()

	var detections []model.RawDetection
	for i := 0; i < candidates.Rows(); i++ {
		confidence := candidates.GetFloatAt(i, 2)
		if confidence <= 0 {
			continue
		}

		classID := int(candidates.GetFloatAt(i, 1))
		left := float64(candidates.GetFloatAt(i, 3)) * cols
		top := float64(candidates.GetFloatAt(i, 4)) * rows
		right := float64(candidates.GetFloatAt(i, 5)) * cols
		bottom := float64(candidates.GetFloatAt(i, 6)) * rows

		detections = append(detections, model.RawDetection{
			ClassID:    classID,
			Confidence: confidence,
			Box: model.BBox{
				X:      left,
				Y:      top,
				Width:  right - left,
				Height: bottom - top,
			},
		})
	}

	return detections
}

func (svc *deviceService) LabelFor(classID int) string {
	if classID >= 0 && classID < len(svc.labels) {
		return svc.labels[classID]
	}
	return "object " + strconv.Itoa(classID)
}

func (svc *deviceService) Close() error {
	if svc.hasNet {
		if err := svc.net.Close(); err != nil {
			lgr.Logger.Warn("error closing DNN", slog.Any("error", err))
		}
		svc.hasNet = false
	}
	if svc.webcam != nil {
		if err := svc.webcam.Close(); err != nil {
			lgr.Logger.Warn("error closing capture device", slog.Any("error", err))
		}
		svc.webcam = nil
	}
	return nil
}

// openCapture accepts either a numeric device index or a stream URL.
func openCapture(url string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(url); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(url)
}

func loadLabels(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		lgr.Logger.Warn(
			"failed to load labels file, falling back to numeric labels",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
