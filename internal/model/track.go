package model

import (
	"sort"
)

// Track is a named, ordered list of segments. The last segment is the write
// cursor and is the only one allowed to be empty.
type Track struct {
	name     string
	segments []*TrackSegment
}

// NewTrack creates a track with an empty write cursor
func NewTrack(name string) *Track {
	return &Track{
		name:     name,
		segments: []*TrackSegment{NewTrackSegment()},
	}
}

func (t *Track) Name() string {
	return t.name
}

// SetName renames the track. Points see the new name through their parent.
func (t *Track) SetName(name string) {
	t.name = name
}

// Segments returns the segments in order. The slice must not be modified.
func (t *Track) Segments() []*TrackSegment {
	return t.segments
}

// NumberedSegments assigns 1-based numbers to all segments and returns them
func (t *Track) NumberedSegments() []*TrackSegment {
	for i, seg := range t.segments {
		seg.SetNumber(i + 1)
	}
	return t.segments
}

// SegmentNumberOf returns the 1-based position of seg (by identity) or 0
func (t *Track) SegmentNumberOf(seg *TrackSegment) int {
	for i, candidate := range t.segments {
		if candidate == seg {
			return i + 1
		}
	}
	return 0
}

// CurrentSegment returns the write cursor
func (t *Track) CurrentSegment() *TrackSegment {
	if len(t.segments) == 0 {
		t.segments = append(t.segments, NewTrackSegment())
	}
	return t.segments[len(t.segments)-1]
}

// StartNewSegment opens a new cursor unless the current one is still empty
func (t *Track) StartNewSegment() {
	if t.CurrentSegment().IsEmpty() {
		return
	}
	t.segments = append(t.segments, NewTrackSegment())
}

// AddPoints adds points to the current segment
func (t *Track) AddPoints(points []*WayPoint) {
	if len(points) == 0 {
		return
	}
	t.CurrentSegment().AddPoints(points)
}

// AddSegment adds the points of seg to the current segment
func (t *Track) AddSegment(seg *TrackSegment) {
	t.AddPoints(seg.Points())
}

// RemoveSegment removes the segment with the given 1-based number
func (t *Track) RemoveSegment(number int) bool {
	if number < 1 || number > len(t.segments) {
		return false
	}
	t.segments = append(t.segments[:number-1:number-1], t.segments[number:]...)
	return true
}

// RemoveWaypoint removes p from the first segment holding it. With
// correctStart the new first point of that segment becomes its start.
func (t *Track) RemoveWaypoint(p *WayPoint, correctStart bool) bool {
	for _, seg := range t.segments {
		if !seg.remove(p) {
			continue
		}
		if correctStart && !seg.IsEmpty() {
			seg.First().SetSegmentStart(true)
		}
		return true
	}
	return false
}

// RemoveWaypoints removes every point of toRemove and then drops segments
// that became empty, except the last one. It reports whether a segment was
// dropped.
func (t *Track) RemoveWaypoints(toRemove *TrackSegment, correctStart bool) bool {
	for _, p := range toRemove.Clone().Points() {
		t.RemoveWaypoint(p, correctStart)
	}
	return t.Compact()
}

// Compact drops empty segments other than the write cursor and reports
// whether any was dropped.
func (t *Track) Compact() bool {
	dropped := false
	kept := t.segments[:0:0]
	for i, seg := range t.segments {
		if seg.IsEmpty() && i+1 < len(t.segments) {
			dropped = true
			continue
		}
		kept = append(kept, seg)
	}
	t.segments = kept
	return dropped
}

// MergeSegments folds the given segments into the track. A segment whose
// time range overlaps existing segments is fused with all of them; otherwise
// it is inserted as a segment of its own. Segments are kept sorted by their
// earliest point and a single empty cursor stays at the end.
func (t *Track) MergeSegments(newSegments []*TrackSegment) {
	segments := make([]*TrackSegment, 0, len(t.segments)+len(newSegments))
	for _, seg := range t.segments {
		if !seg.IsEmpty() {
			segments = append(segments, seg)
		}
	}

	for _, incoming := range newSegments {
		if incoming.IsEmpty() {
			continue
		}
		var target *TrackSegment
		merged := segments[:0:0]
		for _, seg := range segments {
			if !seg.Overlaps(incoming) {
				merged = append(merged, seg)
				continue
			}
			if target == nil {
				target = seg
				merged = append(merged, seg)
				continue
			}
			target.AddSegment(seg)
		}
		if target == nil {
			merged = append(merged, NewTrackSegment())
			target = merged[len(merged)-1]
		}
		target.AddSegment(incoming)
		segments = merged
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return CompareSegments(segments[i], segments[j]) < 0
	})
	t.segments = append(segments, NewTrackSegment())
}

// Size returns the number of points over all segments
func (t *Track) Size() int {
	res := 0
	for _, seg := range t.segments {
		res += seg.Len()
	}
	return res
}

// AllPoints returns all points segment by segment
func (t *Track) AllPoints() []*WayPoint {
	res := make([]*WayPoint, 0, t.Size())
	for _, seg := range t.segments {
		res = append(res, seg.Points()...)
	}
	return res
}

// First returns the first point of the first segment, nil when empty
func (t *Track) First() *WayPoint {
	for _, seg := range t.segments {
		if !seg.IsEmpty() {
			return seg.First()
		}
	}
	return nil
}

// DistanceKm sums segment distances. Gaps between segments are not counted.
func (t *Track) DistanceKm() float64 {
	var res float64
	for _, seg := range t.segments {
		res += seg.DistanceKm()
	}
	return res
}

// CompareTracks orders tracks by their first point; empty tracks sort last
func CompareTracks(a, b *Track) int {
	af, bf := a.First(), b.First()
	switch {
	case af == nil && bf == nil:
		return 0
	case af == nil:
		return 1
	case bf == nil:
		return -1
	}
	return ComparePoints(af, bf)
}
