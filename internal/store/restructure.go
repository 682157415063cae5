package store

import (
	"sort"

	"github.com/devrev/securegpx/internal/model"
	"go.uber.org/zap"
)

// MovePointsToTrack moves start, the rest of its segment and every later
// segment of its track into the track named dest. The destination is created
// when missing; when it already has points the moved segments are merged
// into its segments by time. A source track left without points is removed.
//
// It returns false and changes nothing when start is a free waypoint, does
// not belong to this store or dest is its own track.
func (s *Store) MovePointsToTrack(start *model.WayPoint, dest string) bool {
	if start == nil {
		return false
	}
	source := start.Parent()
	if source == nil || !s.owns(source) || source.Name() == dest {
		return false
	}

	toMove, isStart := collectTail(source, start)
	if len(toMove) == 0 {
		return false
	}

	// Segments shift down as they are removed, so every later segment is
	// removed at the number of the first one.
	anchor := -1
	droppedSegment := false
	if isStart {
		s.removeSegmentFrom(source, toMove[0])
		anchor = toMove[0].Number()
	} else {
		droppedSegment = source.RemoveWaypoints(toMove[0], false)
	}
	if len(toMove) > 1 {
		if anchor == -1 {
			anchor = toMove[1].Number()
			if droppedSegment {
				anchor--
			}
		}
		for _, seg := range toMove[1:] {
			seg.SetNumber(anchor)
			s.removeSegmentFrom(source, seg)
		}
	}
	if source.Size() == 0 {
		s.dropTrack(source.Name())
	}

	target := s.ensureTrack(dest)
	moved := 0
	for _, seg := range toMove {
		for _, p := range seg.Points() {
			p.SetParent(target)
		}
		moved += seg.Len()
	}

	if target.Size() == 0 {
		for _, seg := range toMove {
			target.AddSegment(seg)
			target.StartNewSegment()
		}
	} else {
		target.MergeSegments(toMove)
	}

	s.invalidateSorted()
	s.valid = nil
	s.changed = true
	s.metrics.RecordMove()
	s.updateGauges()

	s.logger.Debug("Moved points to track",
		zap.String("source", source.Name()),
		zap.String("track", dest),
		zap.Int("segments", len(toMove)),
		zap.Int("points", moved))
	return true
}

// collectTail returns the part of start's segment from start on, followed by
// copies of all later segments. Copies keep their segment numbers. The flag
// reports whether start opens its segment.
func collectTail(track *model.Track, start *model.WayPoint) ([]*model.TrackSegment, bool) {
	segments := track.NumberedSegments()
	for i, seg := range segments {
		pos := seg.IndexOf(start)
		if pos < 0 {
			continue
		}
		res := make([]*model.TrackSegment, 0, len(segments)-i)
		res = append(res, seg.SubSegment(pos, seg.Len()))
		for _, later := range segments[i+1:] {
			res = append(res, later.Clone())
		}
		return res, pos == 0
	}
	return nil, false
}

func sortTracks(tracks []*model.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		return model.CompareTracks(tracks[i], tracks[j]) < 0
	})
}
