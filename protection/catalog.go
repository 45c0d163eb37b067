package protection

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/lgr"
)

// ErrNoFrameAvailable is returned by Activate when there is no current frame
// to capture reference images from. The catalog is left unchanged.
var ErrNoFrameAvailable = xerrors.New("no frame available")

// Cropper extracts an encoded crop of a bounding box region from the current
// frame. The pipeline provides an implementation backed by the raw image.
type Cropper interface {
	Crop(box model.BBox) ([]byte, error)
}

// Catalog holds the point-in-time snapshot of objects to protect. The item
// list is replaced atomically and in full on activation; a concurrent reader
// never observes a mix of two generations.
type Catalog struct {
	mu     sync.RWMutex
	items  []model.ProtectedItem
	active bool
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Activate builds a new generation of protected items from the detections
// whose confidence is strictly above the capture threshold, cropping each
// reference region from the current frame, and swaps it in atomically.
func (c *Catalog) Activate(frame Cropper, detections []model.DetectedObject, captureThreshold float32) (int, error) {
	if frame == nil {
		return 0, ErrNoFrameAvailable
	}

	now := time.Now()
	items := make([]model.ProtectedItem, 0, len(detections))
	for _, det := range detections {
		if det.Confidence <= captureThreshold {
			continue
		}

		ref, err := frame.Crop(det.Box)
		if err != nil {
			// Keep the item anyway. Matching works off the bounding box;
			// the reference image is display material only.
			lgr.Logger.Warn(
				"failed to crop reference image",
				slog.String("class", det.Class),
				slog.Any("error", err),
			)
			ref = nil
		}

		items = append(items, model.ProtectedItem{
			Class:      det.Class,
			Box:        det.Box,
			RefImage:   ref,
			Confidence: det.Confidence,
			CapturedAt: now,
		})
	}

	c.mu.Lock()
	c.items = items
	c.active = true
	c.mu.Unlock()

	return len(items), nil
}

// Deactivate clears the catalog unconditionally. Idempotent.
func (c *Catalog) Deactivate() {
	c.mu.Lock()
	c.items = nil
	c.active = false
	c.mu.Unlock()
}

// Snapshot returns a read-only copy of the current generation.
func (c *Catalog) Snapshot() []model.ProtectedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]model.ProtectedItem, len(c.items))
	copy(items, c.items)
	return items
}

func (c *Catalog) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
