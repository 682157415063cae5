package store

import (
	"io"
	"time"

	"github.com/devrev/securegpx/internal/chain"
	"github.com/devrev/securegpx/internal/codec"
	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/metrics"
	"github.com/devrev/securegpx/internal/model"
	"go.uber.org/zap"
)

// Store is the aggregate root of one GPX document: free waypoints plus named
// tracks, the chronologically sorted view over all of them and the cached
// chain validity.
//
// Store is not safe for concurrent use. All mutations are expected to run on
// a single goroutine, normally the worker of a queue.Queue.
type Store struct {
	name       string
	waypoints  []*model.WayPoint
	tracks     map[string]*model.Track
	trackOrder []string

	sorted      []*model.WayPoint
	sortedFresh bool
	valid       *bool

	changed     bool
	initialized bool

	engine  *chain.Engine
	codec   *codec.Codec
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStore creates an empty, initialized store
func NewStore(engine *chain.Engine, c *codec.Codec, m *metrics.Metrics, logger *zap.Logger) *Store {
	return &Store{
		tracks:      make(map[string]*model.Track),
		initialized: true,
		engine:      engine,
		codec:       c,
		metrics:     m,
		logger:      logger,
	}
}

// AddWaypoint admits a free waypoint. The time is kept to the second, the
// resolution of the file.
func (s *Store) AddWaypoint(name string, lat, lng float64, t time.Time, accuracy float64, alt *float64) *model.WayPoint {
	p := model.NewWayPoint(name, lat, lng, t.Truncate(time.Second), accuracy).WithAltitude(alt)
	s.addPoint(p, nil)
	return p
}

// AddTrackPoint admits a point into the current segment of the named
// track, creating the track when it does not exist.
func (s *Store) AddTrackPoint(track, name string, lat, lng float64, t time.Time, accuracy float64, alt *float64) *model.WayPoint {
	p := model.NewWayPoint(name, lat, lng, t.Truncate(time.Second), accuracy).WithAltitude(alt)
	s.addPoint(p, s.ensureTrack(track))
	return p
}

// addPoint chains p from its predecessor in Locations. A point that lands
// before others in a valid store gets the later hashes rewritten.
func (s *Store) addPoint(p *model.WayPoint, track *model.Track) {
	locations := s.Locations()
	var last *model.WayPoint
	if n := len(locations); n > 0 {
		last = locations[n-1]
	}

	if s.sortsLast(p, track, last) {
		prev := ""
		if last != nil {
			prev = last.Hash
		}
		s.engine.Apply(p, prev)
		s.insert(p, track)
		s.sorted = append(s.sorted, p)
	} else {
		wasValid := s.IsValid()
		s.insert(p, track)
		s.invalidateSorted()

		locations = s.Locations()
		i := indexOf(locations, p)
		prev := ""
		if i > 0 {
			prev = locations[i-1].Hash
		}
		s.engine.Apply(p, prev)
		if wasValid && i < len(locations)-1 {
			s.Validate(true)
		}
	}
	s.valid = nil
	s.changed = true
	s.updateGauges()
}

func (s *Store) insert(p *model.WayPoint, track *model.Track) {
	if track == nil {
		s.waypoints = append(s.waypoints, p)
		return
	}
	p.SetParent(track)
	track.AddPoints([]*model.WayPoint{p})
}

// sortsLast reports whether Locations would put p, joining track, after
// last. Equal times are ordered free waypoints first, then by track order.
func (s *Store) sortsLast(p *model.WayPoint, track *model.Track, last *model.WayPoint) bool {
	switch {
	case !p.HasTime():
		return false
	case last == nil:
		return true
	case !last.HasTime() || p.Time.Before(last.Time):
		return false
	case p.Time.After(last.Time):
		return true
	}
	return s.rank(track) >= s.rank(last.Parent())
}

// rank is the position of a point container in the merge order
func (s *Store) rank(track *model.Track) int {
	if track == nil {
		return 0
	}
	for i, name := range s.trackOrder {
		if name == track.Name() {
			return i + 1
		}
	}
	return -1
}

func indexOf(points []*model.WayPoint, p *model.WayPoint) int {
	for i, candidate := range points {
		if candidate == p {
			return i
		}
	}
	return -1
}

// RemoveLocation removes p by identity from the free waypoints or from its
// track. A track left without points is dropped. When the chain was valid
// before, it is repaired from the removed position on.
func (s *Store) RemoveLocation(p *model.WayPoint) bool {
	if p == nil {
		return false
	}
	wasValid := s.IsValid()

	removed := false
	if parent := p.Parent(); parent == nil {
		for i, candidate := range s.waypoints {
			if candidate == p {
				s.waypoints = append(s.waypoints[:i:i], s.waypoints[i+1:]...)
				removed = true
				break
			}
		}
	} else if s.owns(parent) {
		removed = parent.RemoveWaypoint(p, true)
		parent.Compact()
		if parent.Size() == 0 {
			s.dropTrack(parent.Name())
		}
	}
	if !removed {
		return false
	}

	s.restructured(wasValid)
	return true
}

// RemoveSegment removes a whole segment from its track. The segment is found
// by identity, or by its segment number when seg is a copy.
func (s *Store) RemoveSegment(seg *model.TrackSegment) bool {
	if seg == nil || seg.IsEmpty() {
		return false
	}
	track := seg.First().Parent()
	if track == nil || !s.owns(track) {
		return false
	}
	wasValid := s.IsValid()
	if !s.removeSegmentFrom(track, seg) {
		return false
	}
	s.restructured(wasValid)
	return true
}

// removeSegmentFrom drops seg from track by number. Empty segments are
// never removed.
func (s *Store) removeSegmentFrom(track *model.Track, seg *model.TrackSegment) bool {
	if seg.IsEmpty() {
		return false
	}
	number := track.SegmentNumberOf(seg)
	if number == 0 {
		number = seg.Number()
	}
	if !track.RemoveSegment(number) {
		s.logger.Debug("Cannot remove segment",
			zap.String("track", track.Name()),
			zap.Int("segment", number),
			zap.Int("segments", len(track.Segments())))
		return false
	}
	if len(track.Segments()) == 0 || track.Size() == 0 {
		s.dropTrack(track.Name())
	}
	return true
}

// restructured drops the cached views after the merge order changed. A chain
// that was valid before is rewritten.
func (s *Store) restructured(wasValid bool) {
	s.invalidateSorted()
	s.valid = nil
	if wasValid && len(s.Locations()) > 0 {
		s.Validate(true)
	}
	s.changed = true
	s.updateGauges()
}

// RenameTrack re-keys a track. Its points see the new name through their
// parent reference. The renamed track moves to the end of the track order,
// which reorders points sharing a time with other tracks.
func (s *Store) RenameTrack(oldName, newName string) error {
	track, ok := s.tracks[oldName]
	if !ok {
		return errors.TrackNotFound(oldName)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := s.tracks[newName]; exists {
		return errors.TrackExists(newName)
	}

	wasValid := s.IsValid()
	s.dropTrack(oldName)
	track.SetName(newName)
	s.putTrack(track)
	s.restructured(wasValid)
	return nil
}

// RemoveTrack deletes a track and returns its points. The points keep their
// parent reference and are not added to the free waypoints.
func (s *Store) RemoveTrack(name string) ([]*model.WayPoint, error) {
	track, ok := s.tracks[name]
	if !ok {
		return nil, errors.TrackNotFound(name)
	}
	wasValid := s.IsValid()
	orphans := track.AllPoints()
	s.dropTrack(name)
	s.restructured(wasValid)

	s.logger.Debug("Removed track",
		zap.String("track", name),
		zap.Int("points", len(orphans)))
	return orphans, nil
}

// Locations returns every point of the store sorted by time, untimed points
// last and ties in insertion order. The same slice is returned until the
// next structural mutation; callers must not modify it.
func (s *Store) Locations() []*model.WayPoint {
	if s.sortedFresh {
		return s.sorted
	}
	res := make([]*model.WayPoint, 0, s.Size())
	res = append(res, s.waypoints...)
	for _, name := range s.trackOrder {
		res = append(res, s.tracks[name].AllPoints()...)
	}
	model.SortPoints(res)
	s.sorted = res
	s.sortedFresh = true
	return res
}

// TrackLocations returns the points of the named track, nil when unknown
func (s *Store) TrackLocations(name string) []*model.WayPoint {
	track, ok := s.tracks[name]
	if !ok {
		return nil
	}
	return track.AllPoints()
}

// Track returns the named track
func (s *Store) Track(name string) (*model.Track, bool) {
	t, ok := s.tracks[name]
	return t, ok
}

// Tracks returns the tracks in insertion order
func (s *Store) Tracks() []*model.Track {
	res := make([]*model.Track, 0, len(s.trackOrder))
	for _, name := range s.trackOrder {
		res = append(res, s.tracks[name])
	}
	return res
}

// SortedTracks returns the tracks ordered by their first point
func (s *Store) SortedTracks() []*model.Track {
	res := s.Tracks()
	sortTracks(res)
	return res
}

// Waypoints returns the free waypoints. The slice must not be modified.
func (s *Store) Waypoints() []*model.WayPoint {
	return s.waypoints
}

// Elements returns free waypoints and non-empty segments in one sorted list
func (s *Store) Elements() []model.Element {
	res := make([]model.Element, 0, len(s.waypoints))
	for _, p := range s.waypoints {
		res = append(res, model.PointElement(p))
	}
	for _, track := range s.Tracks() {
		for _, seg := range track.NumberedSegments() {
			if !seg.IsEmpty() {
				res = append(res, model.SegmentElement(seg))
			}
		}
	}
	model.SortElements(res)
	return res
}

// Validate checks the chain over Locations and caches the result. With
// repair every hash is rewritten, which makes the chain valid unless a digest
// cannot be computed.
func (s *Store) Validate(repair bool) bool {
	valid, _ := s.engine.ValidateChain(s.Locations(), repair)
	s.valid = &valid
	if repair {
		s.logger.Debug("Repaired hash chain",
			zap.String("name", s.name),
			zap.Int("points", len(s.Locations())),
			zap.Bool("valid", valid))
	}
	return valid
}

// IsValid returns the cached validity, validating without repair when the
// cache is empty.
func (s *Store) IsValid() bool {
	if s.valid == nil {
		return s.Validate(false)
	}
	return *s.valid
}

// IsValidatable reports whether the earliest point carries a hash
func (s *Store) IsValidatable() bool {
	locations := s.Locations()
	return len(locations) > 0 && locations[0].Hash != ""
}

// Load replaces the content with the decoded document. On failure the store
// is left empty and not initialized.
func (s *Store) Load(r io.Reader) error {
	s.Reset()
	doc, err := s.codec.Decode(r)
	if err != nil {
		s.initialized = false
		s.metrics.RecordDecodeError()
		s.logger.Error("Failed to load gpx document", zap.Error(err))
		return err
	}

	s.name = doc.Name
	s.waypoints = doc.Waypoints
	for _, track := range doc.Tracks {
		s.putTrack(track)
	}
	s.initialized = true
	s.updateGauges()

	s.logger.Info("Loaded gpx document",
		zap.String("name", s.name),
		zap.Int("points", s.Size()),
		zap.Int("tracks", len(s.trackOrder)))
	return nil
}

// Write encodes the store as GPX
func (s *Store) Write(w io.Writer) error {
	doc := &codec.Document{
		Name:      s.name,
		Waypoints: s.waypoints,
		Tracks:    s.Tracks(),
	}
	return s.codec.Encode(w, doc)
}

// Reset empties the store
func (s *Store) Reset() {
	s.name = ""
	s.waypoints = nil
	s.tracks = make(map[string]*model.Track)
	s.trackOrder = nil
	s.invalidateSorted()
	s.valid = nil
	s.changed = false
	s.initialized = true
	s.updateGauges()
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) SetName(name string) {
	s.name = name
	s.changed = true
}

// Changed reports whether the store was mutated since it was loaded or saved
func (s *Store) Changed() bool {
	return s.changed
}

func (s *Store) MarkChanged() {
	s.changed = true
}

func (s *Store) MarkSaved() {
	s.changed = false
}

// Initialized is false after a failed Load
func (s *Store) Initialized() bool {
	return s.initialized
}

// Size returns the number of points
func (s *Store) Size() int {
	res := len(s.waypoints)
	for _, track := range s.tracks {
		res += track.Size()
	}
	return res
}

// Equal compares name, sorted locations and the sizes of the sorted tracks
func (s *Store) Equal(other *Store) bool {
	if other == nil || s.name != other.name {
		return false
	}
	own, theirs := s.Locations(), other.Locations()
	if len(own) != len(theirs) {
		return false
	}
	ownTracks, otherTracks := s.SortedTracks(), other.SortedTracks()
	if len(ownTracks) != len(otherTracks) {
		return false
	}
	for i := range ownTracks {
		if ownTracks[i].Size() != otherTracks[i].Size() {
			return false
		}
	}
	for i := range own {
		if !own[i].Equal(theirs[i]) {
			return false
		}
	}
	return true
}

func (s *Store) owns(track *model.Track) bool {
	registered, ok := s.tracks[track.Name()]
	return ok && registered == track
}

func (s *Store) ensureTrack(name string) *model.Track {
	if track, ok := s.tracks[name]; ok {
		return track
	}
	track := model.NewTrack(name)
	s.putTrack(track)
	return track
}

func (s *Store) putTrack(track *model.Track) {
	s.tracks[track.Name()] = track
	s.trackOrder = append(s.trackOrder, track.Name())
}

func (s *Store) dropTrack(name string) {
	if _, ok := s.tracks[name]; !ok {
		return
	}
	delete(s.tracks, name)
	for i, candidate := range s.trackOrder {
		if candidate == name {
			s.trackOrder = append(s.trackOrder[:i:i], s.trackOrder[i+1:]...)
			break
		}
	}
}

func (s *Store) invalidateSorted() {
	s.sorted = nil
	s.sortedFresh = false
}

func (s *Store) updateGauges() {
	s.metrics.UpdateStoreSize(s.Size(), len(s.tracks))
}
