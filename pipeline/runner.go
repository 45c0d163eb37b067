package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/protection"
	"github.com/sentrycam/sentry-go/service/camera"
	"github.com/sentrycam/sentry-go/service/lgr"
)

const (
	minFrameRate = 1
	maxFrameRate = 60

	// Backoff after a failed frame read before retrying the camera.
	readRetryDelay = 250 * time.Millisecond

	alertStreamSize = 100
)

// Runner drives the capture-detect-check-broadcast loop at a controlled
// pace and exposes the control operations the outer surfaces call into.
type Runner struct {
	svcs       ServicesFactory
	hub        *hub.Hub
	catalog    *protection.Catalog
	thresholds protection.Thresholds

	detectionThreshold float32
	checkInterval      time.Duration
	state              *pipelineState
	alertStream        chan AlertData
	runID              string
	startedAt          time.Time

	// lifeMu guards the camera loop lifecycle below.
	lifeMu   sync.Mutex
	parent   context.Context
	loopCanx context.CancelFunc
	loopDone chan struct{}
}

func NewRunner(svcs ServicesFactory, h *hub.Hub) *Runner {
	frameRate := svcs.CfgSvc.GetDefaultFrameRate()
	if frameRate < minFrameRate || frameRate > maxFrameRate {
		frameRate = 30
	}

	r := &Runner{
		svcs:               svcs,
		hub:                h,
		catalog:            protection.NewCatalog(),
		thresholds:         protection.DefaultThresholds(),
		detectionThreshold: svcs.CfgSvc.GetDetectionThreshold(),
		checkInterval:      time.Duration(svcs.CfgSvc.GetCheckIntervalSeconds()) * time.Second,
		state:              newPipelineState(frameRate),
		alertStream:        make(chan AlertData, alertStreamSize),
		runID:              uuid.NewString(),
		startedAt:          time.Now(),
	}
	r.svcs.Metrics.FrameRate.Store(int64(frameRate))
	return r
}

// AlertStream is consumed by the alerter stage.
func (r *Runner) AlertStream() <-chan AlertData {
	return r.alertStream
}

// Run supervises the camera loop until canxCtx is cancelled. The loop
// itself can be stopped and restarted at runtime through StopCamera and
// StartCamera; Run starts it once on entry.
func (r *Runner) Run(canxCtx context.Context) error {
	r.lifeMu.Lock()
	if r.parent != nil {
		r.lifeMu.Unlock()
		return fmt.Errorf("pipeline already supervised")
	}
	r.parent = canxCtx
	r.lifeMu.Unlock()

	if err := r.StartCamera(); err != nil {
		return err
	}

	<-canxCtx.Done()
	r.StopCamera()
	r.state.release()
	return nil
}

// StartCamera opens the frame source and launches the pacing loop. It fails
// when the loop is already running or the camera cannot be opened.
func (r *Runner) StartCamera() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.parent == nil {
		return fmt.Errorf("pipeline not running")
	}
	if !r.state.transition(Idle, Running) && !r.state.transition(Stopped, Running) {
		return fmt.Errorf("camera already running")
	}

	if err := r.svcs.CameraSvc.Open(r.parent); err != nil {
		r.state.setPhase(Stopped)
		return fmt.Errorf("open camera: %w", err)
	}

	loopCtx, canxFn := context.WithCancel(r.parent)
	done := make(chan struct{})
	r.loopCanx = canxFn
	r.loopDone = done

	go func() {
		defer close(done)
		r.loop(loopCtx)
	}()
	return nil
}

// StopCamera cancels the pacing loop and waits for it to release the frame
// source. Idempotent; the last capture stays available for activation.
func (r *Runner) StopCamera() {
	r.lifeMu.Lock()
	canxFn := r.loopCanx
	done := r.loopDone
	r.loopCanx = nil
	r.loopDone = nil
	r.lifeMu.Unlock()

	if canxFn == nil {
		return
	}
	canxFn()
	<-done
}

// loop is the pacing loop proper. It owns the frame source from entry until
// it returns.
func (r *Runner) loop(canxCtx context.Context) {
	lgr.Logger.Info("pipeline running",
		slog.String("runID", r.runID),
		slog.Int("frameRate", r.state.currentFrameRate()))

	defer func() {
		r.svcs.CameraSvc.Close()
		r.state.setPhase(Stopped)
		lgr.Logger.Info("pipeline stopped", slog.String("runID", r.runID))
	}()

	for {
		select {
		case <-canxCtx.Done():
			r.state.setPhase(Stopping)
			return
		default:
		}

		started := time.Now()

		frame, err := r.svcs.CameraSvc.Next(canxCtx)
		if err != nil {
			if canxCtx.Err() != nil {
				r.state.setPhase(Stopping)
				return
			}
			r.svcs.Metrics.FrameErrors.Add(1)
			lgr.Logger.Warn("frame read failed", slog.Any("error", err))
			select {
			case <-canxCtx.Done():
				r.state.setPhase(Stopping)
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		r.processFrame(frame)

		interval := time.Second / time.Duration(r.state.currentFrameRate())
		if sleep := pacingSleep(time.Since(started), interval); sleep > 0 {
			select {
			case <-canxCtx.Done():
				frame.Mat.Close()
				r.state.setPhase(Stopping)
				return
			case <-time.After(sleep):
			}
		}
		frame.Mat.Close()
	}
}

// processFrame runs one iteration against a captured frame: normalize the
// raw detections, run the disturbance check when due, annotate, encode,
// publish and queue alerts. The frame Mat remains owned by the caller.
func (r *Runner) processFrame(frame camera.Frame) {
	detections := model.NormalizeDetections(
		frame.Detections,
		r.detectionThreshold,
		r.svcs.CameraSvc.LabelFor,
	)

	var disturbances []model.Disturbance
	now := time.Now()
	if r.catalog.Active() && r.state.dueForCheck(now, r.checkInterval) {
		disturbances = protection.CheckDisturbances(
			r.catalog.Snapshot(),
			detections,
			matCropper{mat: frame.Mat},
			r.thresholds,
		)
	}

	// The retained capture must stay free of overlay graphics: protection
	// activation crops its reference images from it.
	clean := frame.Mat.Clone()

	annotateFrame(&frame.Mat, detections, disturbances)

	encoded, err := encodeFrame(frame.Mat)
	if err != nil {
		clean.Close()
		r.svcs.Metrics.FramesSkipped.Add(1)
		lgr.Logger.Warn("frame encode failed", slog.Any("error", err))
		return
	}

	r.state.setLastCapture(encoded, clean, detections)
	r.hub.BroadcastFrame(encoded)
	r.svcs.Metrics.FramesProcessed.Add(1)

	if len(disturbances) == 0 {
		return
	}

	event := model.AlertEvent{
		Timestamp:    float64(now.UnixNano()) / float64(time.Second),
		Disturbances: disturbances,
	}
	select {
	case r.alertStream <- AlertData{Event: event, Timestamp: now}:
	default:
		r.svcs.Metrics.AlertsDropped.Add(1)
		lgr.Logger.Warn("alert stream full, dropping alert",
			slog.Int("disturbances", len(disturbances)))
	}
}

// pacingSleep computes how long the loop should pause so that iterations
// land one interval apart. A slow iteration yields zero; the loop never
// tries to catch up on missed deadlines.
func pacingSleep(elapsed, interval time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Status reports the live control-surface snapshot.
func (r *Runner) Status() model.StatusReport {
	return model.StatusReport{
		Running:               r.state.currentPhase() == Running,
		FrameRate:             r.state.currentFrameRate(),
		ProtectionActive:      r.catalog.Active(),
		ProtectedItemCount:    r.catalog.Size(),
		ActiveConnectionCount: r.hub.Count(),
	}
}

// Stats reports pipeline throughput since startup.
func (r *Runner) Stats() model.RunnerStats {
	uptime := int64(time.Since(r.startedAt).Seconds())
	return model.RunnerStats{
		Name:          r.runID,
		Frames:        int(r.svcs.Metrics.FramesProcessed.Load()),
		SkippedFrames: int(r.svcs.Metrics.FramesSkipped.Load()),
		Disturbances:  int(r.svcs.Metrics.DisturbancesRaised.Load()),
		Errors:        int(r.svcs.Metrics.FrameErrors.Load()),
		Uptime:        uptime,
		FPS:           r.state.currentFrameRate(),
		Timestamp:     time.Now().Unix(),
	}
}

// SetFrameRate applies a new pace for subsequent iterations. Out-of-range
// values are rejected without touching the current rate.
func (r *Runner) SetFrameRate(rate int) model.FrameRateResult {
	if rate < minFrameRate || rate > maxFrameRate {
		return model.FrameRateResult{
			Success:   false,
			FrameRate: r.state.currentFrameRate(),
			Message:   fmt.Sprintf("frame rate must be between %d and %d", minFrameRate, maxFrameRate),
		}
	}
	r.state.setFrameRate(rate)
	r.svcs.Metrics.FrameRate.Store(int64(rate))
	lgr.Logger.Info("frame rate updated", slog.Int("frameRate", rate))
	return model.FrameRateResult{Success: true, FrameRate: rate}
}

// ActivateProtection captures the current scene as the protected baseline.
// Items are cropped from the frame that was live at call time.
func (r *Runner) ActivateProtection() model.ActivationResult {
	var (
		count int
		err   error
	)
	ok := r.state.withCapture(func(mat gocv.Mat, detections []model.DetectedObject) {
		count, err = r.catalog.Activate(matCropper{mat: mat}, detections, r.svcs.CfgSvc.GetCaptureThreshold())
	})
	if !ok {
		return model.ActivationResult{Success: false, Message: "no frame available"}
	}
	if err != nil {
		lgr.Logger.Error("protection activation failed", slog.Any("error", err))
		return model.ActivationResult{Success: false, Message: err.Error()}
	}

	r.svcs.Metrics.ProtectedItems.Store(int64(count))
	lgr.Logger.Info("protection activated", slog.Int("items", count))
	return model.ActivationResult{
		Success:     true,
		ObjectCount: count,
		Message:     fmt.Sprintf("protection activated with %d objects", count),
	}
}

// DeactivateProtection clears the catalog. Always succeeds.
func (r *Runner) DeactivateProtection() {
	r.catalog.Deactivate()
	r.svcs.Metrics.ProtectedItems.Store(0)
	lgr.Logger.Info("protection deactivated")
}
