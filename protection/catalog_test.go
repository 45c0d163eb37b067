package protection

import (
	"fmt"
	"sync"
	"testing"

	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/model"
)

func detection(class string, conf float32) model.DetectedObject {
	return model.DetectedObject{
		Class:      class,
		Confidence: conf,
		Box:        model.BBox{X: 10, Y: 10, Width: 20, Height: 20},
	}
}

func TestActivateCaptureThreshold(t *testing.T) {
	c := NewCatalog()
	detections := []model.DetectedObject{
		detection("suitcase", 0.9),
		detection("backpack", 0.8),
		detection("laptop", 0.6),
		detection("bottle", 0.5),
		detection("phone", 0.3),
	}

	count, err := c.Activate(stubCropper{data: []byte{1}}, detections, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 items above capture threshold, got %d", count)
	}
	if !c.Active() {
		t.Fatal("expected catalog active after activation")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestActivateNoFrame(t *testing.T) {
	c := NewCatalog()
	if _, err := c.Activate(stubCropper{data: []byte{1}}, []model.DetectedObject{detection("suitcase", 0.9)}, 0.7); err != nil {
		t.Fatalf("seed activation failed: %v", err)
	}

	_, err := c.Activate(nil, []model.DetectedObject{detection("laptop", 0.95)}, 0.7)
	if err != ErrNoFrameAvailable {
		t.Fatalf("expected ErrNoFrameAvailable, got %v", err)
	}

	// The previous generation must survive the failed attempt.
	items := c.Snapshot()
	if len(items) != 1 || items[0].Class != "suitcase" {
		t.Fatalf("catalog changed after failed activation: %+v", items)
	}
}

func TestActivateZeroItems(t *testing.T) {
	c := NewCatalog()
	count, err := c.Activate(stubCropper{data: []byte{1}}, []model.DetectedObject{detection("suitcase", 0.5)}, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 items, got %d", count)
	}
	// Activation with nothing to protect still arms the catalog.
	if !c.Active() {
		t.Fatal("expected catalog active")
	}
}

func TestActivateCropFailureKeepsItem(t *testing.T) {
	c := NewCatalog()
	count, err := c.Activate(stubCropper{err: xerrors.New("bad region")}, []model.DetectedObject{detection("suitcase", 0.9)}, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected item kept despite crop failure, got %d", count)
	}
	if c.Snapshot()[0].RefImage != nil {
		t.Fatal("expected nil reference image after crop failure")
	}
}

func TestActivateReplacesGeneration(t *testing.T) {
	c := NewCatalog()
	c.Activate(stubCropper{}, []model.DetectedObject{
		detection("suitcase", 0.9),
		detection("backpack", 0.9),
	}, 0.7)

	c.Activate(stubCropper{}, []model.DetectedObject{detection("laptop", 0.9)}, 0.7)

	items := c.Snapshot()
	if len(items) != 1 || items[0].Class != "laptop" {
		t.Fatalf("expected catalog fully replaced, got %+v", items)
	}
}

func TestDeactivateIdempotent(t *testing.T) {
	c := NewCatalog()
	c.Activate(stubCropper{}, []model.DetectedObject{detection("suitcase", 0.9)}, 0.7)

	c.Deactivate()
	c.Deactivate()

	if c.Active() {
		t.Fatal("expected catalog inactive")
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty catalog, got %d items", c.Size())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c := NewCatalog()
	c.Activate(stubCropper{}, []model.DetectedObject{detection("suitcase", 0.9)}, 0.7)

	snap := c.Snapshot()
	snap[0].Class = "tampered"

	if c.Snapshot()[0].Class != "suitcase" {
		t.Fatal("snapshot mutation leaked into the catalog")
	}
}

func TestConcurrentActivationAtomicity(t *testing.T) {
	c := NewCatalog()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			class := fmt.Sprintf("gen-%d", g)
			dets := make([]model.DetectedObject, 5)
			for i := range dets {
				dets[i] = detection(class, 0.9)
			}
			c.Activate(stubCropper{}, dets, 0.7)
		}(g)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			items := c.Snapshot()
			if len(items) == 0 {
				continue
			}
			// Every observed generation must be homogeneous.
			first := items[0].Class
			for _, item := range items {
				if item.Class != first {
					t.Errorf("mixed generations observed: %s and %s", first, item.Class)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done

	if c.Size() != 5 {
		t.Fatalf("expected a complete 5-item generation, got %d", c.Size())
	}
}
