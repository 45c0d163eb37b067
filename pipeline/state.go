package pipeline

import (
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/model"
)

// State is the lifecycle phase of the pacing loop.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// pipelineState guards everything shared between the pipeline loop and the
// concurrent control handlers. Every read observes a fully-formed value.
type pipelineState struct {
	mu sync.RWMutex

	phase     State
	frameRate int

	lastEncoded    []byte
	lastMat        gocv.Mat
	hasMat         bool
	lastDetections []model.DetectedObject

	lastCheck time.Time
}

func newPipelineState(frameRate int) *pipelineState {
	return &pipelineState{
		phase:     Idle,
		frameRate: frameRate,
	}
}

func (s *pipelineState) currentPhase() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *pipelineState) setPhase(p State) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// transition moves from one phase to another only if the current phase
// matches, returning whether the swap happened.
func (s *pipelineState) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		return false
	}
	s.phase = to
	return true
}

func (s *pipelineState) currentFrameRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameRate
}

func (s *pipelineState) setFrameRate(rate int) {
	s.mu.Lock()
	s.frameRate = rate
	s.mu.Unlock()
}

// setLastCapture publishes the iteration's results: the encoded payload for
// broadcast catch-up and a clone of the raw frame plus its detections for
// later protection activation. It takes ownership of mat.
func (s *pipelineState) setLastCapture(encoded []byte, mat gocv.Mat, detections []model.DetectedObject) {
	s.mu.Lock()
	if s.hasMat {
		s.lastMat.Close()
	}
	s.lastEncoded = encoded
	s.lastMat = mat
	s.hasMat = true
	s.lastDetections = detections
	s.mu.Unlock()
}

func (s *pipelineState) lastFrame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEncoded
}

// withCapture runs fn against the last raw frame and its detections while
// holding the state lock, so the frame cannot be replaced or closed under it.
// It reports false without calling fn when no frame exists yet.
func (s *pipelineState) withCapture(fn func(mat gocv.Mat, detections []model.DetectedObject)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasMat {
		return false
	}
	fn(s.lastMat, s.lastDetections)
	return true
}

// dueForCheck reports whether a full check interval elapsed since the last
// disturbance check, and marks the check as done when it did.
func (s *pipelineState) dueForCheck(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastCheck) < interval {
		return false
	}
	s.lastCheck = now
	return true
}

// release closes the retained frame clone. Called once on shutdown.
func (s *pipelineState) release() {
	s.mu.Lock()
	if s.hasMat {
		s.lastMat.Close()
		s.hasMat = false
	}
	s.lastEncoded = nil
	s.lastDetections = nil
	s.mu.Unlock()
}
