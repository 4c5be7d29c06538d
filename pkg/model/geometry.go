package model

import "math"

// BBox is an axis-aligned box in page coordinates with the origin at the
// top-left corner of the page (Y grows downwards).
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of the box
func (b BBox) Width() float64 {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box
func (b BBox) Height() float64 {
	return b.Bottom - b.Top
}

// Empty reports whether the box has no area
func (b BBox) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Union returns the smallest box containing both b and other
func (b BBox) Union(other BBox) BBox {
	if b.Empty() {
		return other
	}
	if other.Empty() {
		return b
	}
	return BBox{
		Left:   math.Min(b.Left, other.Left),
		Top:    math.Min(b.Top, other.Top),
		Right:  math.Max(b.Right, other.Right),
		Bottom: math.Max(b.Bottom, other.Bottom),
	}
}

// Intersects checks if two bounding boxes overlap
func (b BBox) Intersects(other BBox) bool {
	return !(b.Right < other.Left ||
		b.Left > other.Right ||
		b.Bottom < other.Top ||
		b.Top > other.Bottom)
}

// HorizontallyAligned reports whether the vertical ranges of both boxes overlap,
// i.e. the boxes sit on a common text row.
func (b BBox) HorizontallyAligned(other BBox) bool {
	return b.Top <= other.Bottom && other.Top <= b.Bottom
}

// VerticallyAligned reports whether the horizontal ranges of both boxes overlap.
func (b BBox) VerticallyAligned(other BBox) bool {
	return b.Left <= other.Right && other.Left <= b.Right
}

// Page describes the geometry of one rendered page
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
