package model

import "math"

// IoU returns the intersection-over-union of two boxes, in [0,1].
// Boxes are converted to corner form; the intersection is zero when the
// boxes do not overlap, and the result is 0.0 when the union area is zero.
func IoU(a, b BBox) float64 {
	ax2 := a.X + a.Width
	ay2 := a.Y + a.Height
	bx2 := b.X + b.Width
	by2 := b.Y + b.Height

	iw := math.Min(ax2, bx2) - math.Max(a.X, b.X)
	ih := math.Min(ay2, by2) - math.Max(a.Y, b.Y)
	if iw <= 0 || ih <= 0 {
		return 0.0
	}

	intersection := iw * ih
	union := a.Width*a.Height + b.Width*b.Height - intersection
	if union == 0 {
		return 0.0
	}

	return intersection / union
}
