package model

import (
	"sort"
	"time"
)

// ElementKind tags the variant held by an Element
type ElementKind int

const (
	ElementPoint ElementKind = iota
	ElementSegment
)

func (k ElementKind) String() string {
	switch k {
	case ElementPoint:
		return "point"
	case ElementSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Element is either a free point or a track segment, as handed to a
// presentation layer.
type Element struct {
	Kind    ElementKind
	Point   *WayPoint
	Segment *TrackSegment
}

// PointElement wraps a point
func PointElement(p *WayPoint) Element {
	return Element{Kind: ElementPoint, Point: p}
}

// SegmentElement wraps a segment
func SegmentElement(s *TrackSegment) Element {
	return Element{Kind: ElementSegment, Segment: s}
}

// SortKey returns the time the element is ordered by
func (e Element) SortKey() (time.Time, bool) {
	switch e.Kind {
	case ElementPoint:
		if e.Point == nil || !e.Point.HasTime() {
			return time.Time{}, false
		}
		return e.Point.Time, true
	case ElementSegment:
		if e.Segment == nil {
			return time.Time{}, false
		}
		return e.Segment.SortKey()
	}
	return time.Time{}, false
}

// SortElements stable-sorts elements by their keys, keyless elements last
func SortElements(elements []Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		ti, _ := elements[i].SortKey()
		tj, _ := elements[j].SortKey()
		return compareTimes(ti, tj) < 0
	})
}

// Renderer is implemented by presentation collaborators
type Renderer interface {
	RenderElement(e Element) error
}
