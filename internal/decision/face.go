package decision

import "image"

// BoundingBox is a face region in pixel coordinates of the source image.
// It may extend past the image edges until it is clamped.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns width times height, or 0 for degenerate boxes.
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Detection is a single candidate returned by a face detector. Score is carried
// for logging only and plays no part in selection.
type Detection struct {
	Box   BoundingBox `json:"box"`
	Score float64     `json:"score"`
}

// Crop is the clamped region to cut out of the source image.
type Crop struct {
	Rect image.Rectangle
	Box  BoundingBox
}

// Locate picks the largest detection and clamps it to bounds. The boolean is false
// when there are no detections or the clamped region is empty.
func Locate(bounds image.Rectangle, detections []Detection) (Crop, bool) {
	if len(detections) == 0 {
		return Crop{}, false
	}

	best := 0
	for i := 1; i < len(detections); i++ {
		if detections[i].Box.Area() > detections[best].Box.Area() {
			best = i
		}
	}

	box := detections[best].Box
	x1, y1 := max(box.X, bounds.Min.X), max(box.Y, bounds.Min.Y)
	x2, y2 := min(box.X+box.Width, bounds.Max.X), min(box.Y+box.Height, bounds.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return Crop{}, false
	}

	return Crop{Rect: image.Rect(x1, y1, x2, y2), Box: box}, true
}
