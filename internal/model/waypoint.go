package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// TimeLayout is the UTC layout used for GPX <time> elements and hash pre-images
const TimeLayout = "2006-01-02T15:04:05Z"

// WayPoint is a single geographic point. It can be a free waypoint, a route
// point or a track point; only track points have a parent track.
type WayPoint struct {
	Name     string
	Lat      float64
	Lng      float64
	Accuracy float64
	Altitude *float64
	Time     time.Time
	Hash     string

	segmentStart bool
	// parent is a lookup-only back reference, the track owns the point
	parent *Track
}

// NewWayPoint creates a point. A zero time means the point has no time.
func NewWayPoint(name string, lat, lng float64, t time.Time, accuracy float64) *WayPoint {
	return &WayPoint{
		Name:     name,
		Lat:      lat,
		Lng:      lng,
		Time:     t,
		Accuracy: accuracy,
	}
}

// WithAltitude sets the altitude and returns the point
func (p *WayPoint) WithAltitude(alt *float64) *WayPoint {
	if alt != nil {
		v := *alt
		p.Altitude = &v
	} else {
		p.Altitude = nil
	}
	return p
}

// HasTime reports whether the point carries a timestamp
func (p *WayPoint) HasTime() bool {
	return !p.Time.IsZero()
}

// IsSegmentStart reports whether the point opens its segment
func (p *WayPoint) IsSegmentStart() bool {
	return p.segmentStart
}

// SetSegmentStart sets the segment start flag
func (p *WayPoint) SetSegmentStart(start bool) {
	p.segmentStart = start
}

// Parent returns the owning track, nil for free waypoints
func (p *WayPoint) Parent() *Track {
	return p.parent
}

// SetParent sets the owning track
func (p *WayPoint) SetParent(t *Track) {
	p.parent = t
}

// ParentName returns the current name of the owning track
func (p *WayPoint) ParentName() (string, bool) {
	if p.parent == nil {
		return "", false
	}
	return p.parent.Name(), true
}

// FormattedTime returns the GPX text of the time, empty when unset
func (p *WayPoint) FormattedTime() string {
	if !p.HasTime() {
		return ""
	}
	return p.Time.UTC().Format(TimeLayout)
}

// DistanceKm returns the great-circle distance to other in kilometres
func (p *WayPoint) DistanceKm(other *WayPoint) float64 {
	return geo.Distance(orb.Point{p.Lng, p.Lat}, orb.Point{other.Lng, other.Lat}) / 1000
}

// Equal compares name, second resolution time, coordinates and accuracy.
// Hash, altitude and parent are ignored.
func (p *WayPoint) Equal(other *WayPoint) bool {
	if other == nil {
		return false
	}
	if p.Name != other.Name {
		return false
	}
	if p.HasTime() != other.HasTime() {
		return false
	}
	if p.FormattedTime() != other.FormattedTime() {
		return false
	}
	return p.Lat == other.Lat && p.Lng == other.Lng && p.Accuracy == other.Accuracy
}

// ComparePoints orders points by time. Points without time sort after all
// timed points.
func ComparePoints(a, b *WayPoint) int {
	return compareTimes(a.Time, b.Time)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
