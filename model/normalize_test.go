package model

import "testing"

func testLabelFor(classID int) string {
	labels := map[int]string{1: "suitcase", 2: "backpack", 3: "laptop"}
	if l, ok := labels[classID]; ok {
		return l
	}
	return "object"
}

func TestNormalizeDetectionsStrictThreshold(t *testing.T) {
	raw := []RawDetection{
		{ClassID: 1, Confidence: 0.55, Box: BBox{Width: 10, Height: 10}},
		{ClassID: 2, Confidence: 0.56, Box: BBox{Width: 10, Height: 10}},
	}

	got := NormalizeDetections(raw, 0.55, testLabelFor)
	if len(got) != 1 {
		t.Fatalf("expected 1 detection above threshold, got %d", len(got))
	}
	if got[0].Class != "backpack" {
		t.Fatalf("expected backpack, got %s", got[0].Class)
	}
}

func TestNormalizeDetectionsEmpty(t *testing.T) {
	if got := NormalizeDetections(nil, 0.5, testLabelFor); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestNormalizeDetectionsAllBelowThreshold(t *testing.T) {
	raw := []RawDetection{
		{ClassID: 1, Confidence: 0.1},
		{ClassID: 2, Confidence: 0.2},
	}
	if got := NormalizeDetections(raw, 0.5, testLabelFor); len(got) != 0 {
		t.Fatalf("expected no detections, got %d", len(got))
	}
}

func TestNormalizeDetectionsClampsConfidence(t *testing.T) {
	raw := []RawDetection{
		{ClassID: 1, Confidence: 1.7},
	}
	got := NormalizeDetections(raw, 0.5, testLabelFor)
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	if got[0].Confidence != 1.0 {
		t.Fatalf("expected confidence clamped to 1.0, got %v", got[0].Confidence)
	}
}

func TestNormalizeDetectionsSanitizesBox(t *testing.T) {
	raw := []RawDetection{
		{ClassID: 3, Confidence: 0.9, Box: BBox{X: 5, Y: 5, Width: -4, Height: 12}},
	}
	got := NormalizeDetections(raw, 0.5, testLabelFor)
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	if got[0].Box.Width != 0 {
		t.Fatalf("expected negative width clamped to 0, got %v", got[0].Box.Width)
	}
	if got[0].Box.Height != 12 {
		t.Fatalf("expected height preserved, got %v", got[0].Box.Height)
	}
}
