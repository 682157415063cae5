package model

import (
	"sort"
	"time"
)

// TrackSegment is an ordered, contiguous run of points of one track
type TrackSegment struct {
	points []*WayPoint
	// number is 1-based and only meaningful while a restructuring is running
	number int

	distanceKm *float64
}

// NewTrackSegment creates a segment holding the given points in order
func NewTrackSegment(points ...*WayPoint) *TrackSegment {
	seg := &TrackSegment{}
	seg.points = append(seg.points, points...)
	return seg
}

// SortPoints stable-sorts points by time, untimed points last
func SortPoints(points []*WayPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return ComparePoints(points[i], points[j]) < 0
	})
}

// AddPoints appends points, re-sorts the segment and marks its first point as
// the only segment start.
func (s *TrackSegment) AddPoints(points []*WayPoint) {
	if len(points) == 0 {
		return
	}
	s.points = append(s.points, points...)
	SortPoints(s.points)
	s.normalizeStart()
	s.distanceKm = nil
}

// AddSegment appends the points of another segment
func (s *TrackSegment) AddSegment(other *TrackSegment) {
	if other == nil || other.IsEmpty() {
		return
	}
	s.AddPoints(other.points)
}

func (s *TrackSegment) normalizeStart() {
	for i, p := range s.points {
		p.SetSegmentStart(i == 0)
	}
}

// SubSegment returns a new segment with the points in [from, to). The segment
// number is carried over.
func (s *TrackSegment) SubSegment(from, to int) *TrackSegment {
	res := NewTrackSegment(s.points[from:to]...)
	res.number = s.number
	return res
}

// Clone returns a shallow copy holding the same points and segment number
func (s *TrackSegment) Clone() *TrackSegment {
	return s.SubSegment(0, len(s.points))
}

// IndexOf returns the position of p (by identity) or -1
func (s *TrackSegment) IndexOf(p *WayPoint) int {
	for i, candidate := range s.points {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Contains reports whether p belongs to the segment
func (s *TrackSegment) Contains(p *WayPoint) bool {
	return s.IndexOf(p) >= 0
}

// Number returns the transient 1-based segment number
func (s *TrackSegment) Number() int {
	return s.number
}

// SetNumber sets the transient segment number
func (s *TrackSegment) SetNumber(n int) {
	s.number = n
}

// Points returns the points of the segment. The slice must not be modified.
func (s *TrackSegment) Points() []*WayPoint {
	return s.points
}

func (s *TrackSegment) IsEmpty() bool {
	return len(s.points) == 0
}

func (s *TrackSegment) Len() int {
	return len(s.points)
}

// First returns the first point or nil
func (s *TrackSegment) First() *WayPoint {
	if len(s.points) == 0 {
		return nil
	}
	return s.points[0]
}

// Last returns the last point or nil
func (s *TrackSegment) Last() *WayPoint {
	if len(s.points) == 0 {
		return nil
	}
	return s.points[len(s.points)-1]
}

// At returns the i-th point or nil when out of range
func (s *TrackSegment) At(i int) *WayPoint {
	if i < 0 || i >= len(s.points) {
		return nil
	}
	return s.points[i]
}

// SortKey returns the earliest point time. Empty segments have no key.
func (s *TrackSegment) SortKey() (time.Time, bool) {
	first := s.First()
	if first == nil || !first.HasTime() {
		return time.Time{}, false
	}
	return first.Time, true
}

// Overlaps reports whether the time ranges of both segments intersect.
// Segments with untimed bounds never overlap.
func (s *TrackSegment) Overlaps(other *TrackSegment) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return false
	}
	sFirst, sLast := s.First(), s.Last()
	oFirst, oLast := other.First(), other.Last()
	if !sFirst.HasTime() || !sLast.HasTime() || !oFirst.HasTime() || !oLast.HasTime() {
		return false
	}
	return !sFirst.Time.After(oLast.Time) && !oFirst.Time.After(sLast.Time)
}

// DistanceKm returns the summed distance between consecutive points
func (s *TrackSegment) DistanceKm() float64 {
	if s.distanceKm == nil {
		var res float64
		for i := 1; i < len(s.points); i++ {
			res += s.points[i-1].DistanceKm(s.points[i])
		}
		s.distanceKm = &res
	}
	return *s.distanceKm
}

// AvgSpeedKmH returns the average speed over the segment, 0 when it cannot
// be derived.
func (s *TrackSegment) AvgSpeedKmH() float64 {
	first, last := s.First(), s.Last()
	if first == nil || !first.HasTime() || !last.HasTime() {
		return 0
	}
	hours := last.Time.Sub(first.Time).Hours()
	if hours == 0 {
		return 0
	}
	return s.DistanceKm() / hours
}

// remove drops p (by identity) from the segment
func (s *TrackSegment) remove(p *WayPoint) bool {
	i := s.IndexOf(p)
	if i < 0 {
		return false
	}
	s.points = append(s.points[:i:i], s.points[i+1:]...)
	s.distanceKm = nil
	return true
}

// CompareSegments orders segments by their earliest point time; empty
// segments sort last.
func CompareSegments(a, b *TrackSegment) int {
	switch {
	case a.IsEmpty() && b.IsEmpty():
		return 0
	case a.IsEmpty():
		return 1
	case b.IsEmpty():
		return -1
	}
	return ComparePoints(a.First(), b.First())
}
