package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	return fmt.Sprintf("%s: %s", e.Processor, e.Message)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// BBox is an axis-aligned rectangle as (x, y, width, height) in pixel units.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RawDetection is what the frame source produces per detected region,
// before normalization. The class id is resolved to a label later.
type RawDetection struct {
	ClassID    int
	Confidence float32
	Box        BBox
}

// DetectedObject is a normalized per-frame detection. Ephemeral.
type DetectedObject struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        BBox    `json:"bbox"`
}

// ProtectedItem is one guarded object captured at activation time.
// Owned exclusively by the protection catalog.
type ProtectedItem struct {
	Class      string    `json:"class"`
	Box        BBox      `json:"bbox"`
	RefImage   []byte    `json:"-"`
	Confidence float32   `json:"confidence"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Disturbance reports that a protected item moved or disappeared.
// CurrentBox is nil iff the item is missing.
type Disturbance struct {
	Item          string  `json:"item"`
	OriginalBox   BBox    `json:"original_bbox"`
	CurrentBox    *BBox   `json:"current_bbox"`
	MovementScore float64 `json:"movement_score"`
	Missing       bool    `json:"missing,omitempty"`
	CurrentImage  []byte  `json:"current_image,omitempty"`
}

// AlertEvent groups the disturbances found in one check cycle.
type AlertEvent struct {
	Timestamp    float64       `json:"timestamp"`
	Disturbances []Disturbance `json:"disturbances"`
}

// AlertEnvelope is the wire shape pushed to clients for alerts. Frames travel
// as raw binary payloads; the envelope type keeps the two shapes apart.
type AlertEnvelope struct {
	Type string     `json:"type"`
	Data AlertEvent `json:"data"`
}

type StatusReport struct {
	Running               bool `json:"running"`
	FrameRate             int  `json:"frame_rate"`
	ProtectionActive      bool `json:"protection_active"`
	ProtectedItemCount    int  `json:"protected_item_count"`
	ActiveConnectionCount int  `json:"active_connection_count"`
}

type ActivationResult struct {
	Success     bool   `json:"success"`
	ObjectCount int    `json:"object_count,omitempty"`
	Message     string `json:"message,omitempty"`
}

type FrameRateResult struct {
	Success   bool   `json:"success"`
	FrameRate int    `json:"frame_rate,omitempty"`
	Message   string `json:"message,omitempty"`
}

type RunnerStats struct {
	Name          string `json:"name"`
	Frames        int    `json:"frames"`
	SkippedFrames int    `json:"skippedFrames"`
	Disturbances  int    `json:"disturbances"`
	Errors        int    `json:"errors"`
	Uptime        int64  `json:"uptime"`
	FPS           int    `json:"fps"`
	Timestamp     int64  `json:"timestamp"`
}
