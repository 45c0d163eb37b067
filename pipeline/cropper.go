package pipeline

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/model"
)

// matCropper adapts a raw frame to the protection.Cropper interface. The
// region is clamped to the frame bounds before extraction.
type matCropper struct {
	mat gocv.Mat
}

func (m matCropper) Crop(box model.BBox) ([]byte, error) {
	cols := m.mat.Cols()
	rows := m.mat.Rows()

	x := int(box.X)
	y := int(box.Y)
	w := int(box.Width)
	h := int(box.Height)

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > cols {
		w = cols - x
	}
	if y+h > rows {
		h = rows - y
	}
	if w <= 0 || h <= 0 {
		return nil, xerrors.New("crop region outside frame bounds")
	}

	region := m.mat.Region(image.Rect(x, y, x+w, y+h))
	defer region.Close()

	return encodeFrame(region)
}
