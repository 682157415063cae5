package store

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devrev/securegpx/internal/chain"
	"github.com/devrev/securegpx/internal/codec"
	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Second)
}

func newTestStore() *Store {
	logger := zap.NewNop()
	engine := chain.NewEngine(chain.Config{SecretKey: "test", Algorithm: chain.AlgorithmSHA256}, nil, logger)
	return NewStore(engine, codec.New(codec.Config{Indent: "  "}, logger), nil, logger)
}

// addSegments fills track with one segment per size, using consecutive
// timestamps starting at *clock.
func addSegments(s *Store, track string, clock *int, sizes ...int) {
	for i, n := range sizes {
		for j := 0; j < n; j++ {
			s.AddTrackPoint(track, "", 47+float64(*clock)/1000, 8, at(*clock), 5, nil)
			*clock++
		}
		if i+1 < len(sizes) {
			t, _ := s.Track(track)
			t.StartNewSegment()
		}
	}
}

func assertSegmentInvariant(t *testing.T, s *Store) {
	t.Helper()
	for _, track := range s.Tracks() {
		segments := track.Segments()
		for i, seg := range segments {
			if i+1 < len(segments) {
				assert.False(t, seg.IsEmpty(), "track %s segment %d is empty", track.Name(), i+1)
			}
			if i > 0 && !seg.IsEmpty() {
				assert.LessOrEqual(t, model.CompareSegments(segments[i-1], seg), 0,
					"track %s segments %d and %d out of order", track.Name(), i, i+1)
			}
			for k, p := range seg.Points() {
				assert.Equal(t, k == 0, p.IsSegmentStart())
				assert.Same(t, track, p.Parent())
			}
		}
	}
}

func TestAdd_IncreasingPointsValidate(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 20; i++ {
		if i%3 == 0 {
			s.AddWaypoint(fmt.Sprintf("w%d", i), 47, 8, at(i), 3, nil)
		} else {
			s.AddTrackPoint("walk", "", 47+float64(i)/100, 8, at(i), 3, nil)
		}
		assert.True(t, s.IsValid(), "after point %d", i)
	}
	assert.Equal(t, 20, s.Size())
	assert.True(t, s.Changed())
	assert.True(t, s.IsValidatable())
}

func TestAdd_StoresDifferOnMissingPoint(t *testing.T) {
	a, b := newTestStore(), newTestStore()
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("point %d", i)
		a.AddWaypoint(name, 47+float64(i), 8, at(i), 10, nil)
		if i != 5 {
			b.AddWaypoint(name, 47+float64(i), 8, at(i), 10, nil)
		}
	}

	require.Len(t, a.Locations(), 10)
	require.Len(t, b.Locations(), 9)
	assert.NotEqual(t, a.Locations()[9].Hash, b.Locations()[8].Hash)
	assert.True(t, a.IsValid())
	assert.True(t, b.IsValid())
}

func TestAdd_KeepsWholeSeconds(t *testing.T) {
	s := newTestStore()
	p := s.AddWaypoint("", 47, 8, t0.Add(999*time.Millisecond), 5, nil)
	q := s.AddTrackPoint("walk", "", 47, 8, t0.Add(1500*time.Millisecond), 5, nil)
	u := s.AddWaypoint("untimed", 47, 8, time.Time{}, 5, nil)

	assert.True(t, t0.Equal(p.Time))
	assert.True(t, at(1).Equal(q.Time))
	assert.False(t, u.HasTime())
}

func TestAdd_EarlierPointRechainsValidChain(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("walk", "a", 47.1, 8, at(0), 5, nil)
	s.AddTrackPoint("walk", "c", 47.3, 8, at(2), 5, nil)
	require.True(t, s.IsValid())

	s.AddWaypoint("b", 47.2, 8, at(1), 5, nil)
	names := []string{}
	for _, p := range s.Locations() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.True(t, s.IsValid())
}

// assertReloads writes s, loads it into a fresh store and checks the reloaded
// chain and merged order against the original.
func assertReloads(t *testing.T, s *Store) {
	t.Helper()
	require.True(t, s.IsValid())

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	loaded := newTestStore()
	require.NoError(t, loaded.Load(&buf))
	assert.True(t, loaded.IsValid(), "an untouched file must validate")

	want, got := s.Locations(), loaded.Locations()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name, "point %d", i)
		assert.True(t, want[i].Time.Equal(got[i].Time), "point %d", i)
		assert.Equal(t, want[i].Hash, got[i].Hash, "point %d", i)
	}
}

func TestWriteLoad_WaypointInSameSecondAsTrackPoint(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("walk", "walked", 47.1, 8, t0.Add(100*time.Millisecond), 5, nil)
	s.AddWaypoint("home", 47.2, 8, t0.Add(500*time.Millisecond), 5, nil)

	require.Len(t, s.Locations(), 2)
	assert.Equal(t, "home", s.Locations()[0].Name, "free waypoints lead on equal times")
	assertReloads(t, s)
}

func TestWriteLoad_TracksInterleavedWithinSecond(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("a", "a0", 47.1, 8, t0, 5, nil)
	s.AddTrackPoint("b", "b0", 47.2, 8, t0.Add(2100*time.Millisecond), 5, nil)
	s.AddTrackPoint("a", "a1", 47.3, 8, t0.Add(2600*time.Millisecond), 5, nil)

	names := []string{}
	for _, p := range s.Locations() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a0", "a1", "b0"}, names)
	assertReloads(t, s)
}

func TestRenameTrack_ReordersEqualTimes(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("a", "a0", 47.1, 8, at(0), 5, nil)
	s.AddTrackPoint("b", "b0", 47.2, 8, at(0), 5, nil)
	require.Equal(t, "a0", s.Locations()[0].Name)
	require.True(t, s.IsValid())

	require.NoError(t, s.RenameTrack("a", "c"))
	assert.Equal(t, "b0", s.Locations()[0].Name, "the renamed track now sorts last")
	assertReloads(t, s)
}

func TestLocations_CachedAndSorted(t *testing.T) {
	s := newTestStore()
	s.AddWaypoint("untimed", 1, 1, time.Time{}, 1, nil)
	s.AddTrackPoint("t", "", 1, 1, at(5), 1, nil)
	s.AddWaypoint("early", 1, 1, at(1), 1, nil)

	first := s.Locations()
	second := s.Locations()
	require.Len(t, first, 3)
	assert.Same(t, &first[0], &second[0], "view must be cached")

	assert.Equal(t, "early", first[0].Name)
	assert.Equal(t, at(5), first[1].Time)
	assert.Equal(t, "untimed", first[2].Name)
}

func TestAdd_ChainsFromLastLocation(t *testing.T) {
	s := newTestStore()
	a := s.AddWaypoint("", 1, 1, at(0), 1, nil)
	b := s.AddTrackPoint("t", "", 2, 2, at(1), 1, nil)

	engine := chain.NewEngine(chain.Config{SecretKey: "test"}, nil, zap.NewNop())
	want, _ := engine.Generate(b, a.Hash)
	assert.Equal(t, want, b.Hash)
}

func TestRemoveLocation_RepairsValidChain(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "walk", &clock, 5)
	require.True(t, s.IsValid())

	interior := s.Locations()[2]
	lastHash := s.Locations()[4].Hash
	require.True(t, s.RemoveLocation(interior))

	assert.Len(t, s.Locations(), 4)
	assert.True(t, s.IsValid())
	assert.NotEqual(t, lastHash, s.Locations()[3].Hash)
	assert.False(t, s.RemoveLocation(interior), "second removal is a no-op")
}

func TestRemoveLocation_KeepsBrokenChainBroken(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "walk", &clock, 5)
	s.Locations()[1].Lat += 1
	s.Validate(false)

	require.True(t, s.RemoveLocation(s.Locations()[3]))
	assert.False(t, s.IsValid())
}

func TestRemoveLocation_ByIdentity(t *testing.T) {
	s := newTestStore()
	kept := s.AddWaypoint("same", 1, 1, at(0), 1, nil)
	twin := model.NewWayPoint("same", 1, 1, at(0), 1)

	assert.False(t, s.RemoveLocation(twin))
	assert.True(t, s.RemoveLocation(kept))
	assert.Empty(t, s.Waypoints())
}

func TestRemoveLocation_DropsEmptyTrackAndSegment(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "walk", &clock, 2, 1, 2)
	track, _ := s.Track("walk")
	lonely := track.Segments()[1].First()

	require.True(t, s.RemoveLocation(lonely))
	assert.Len(t, track.Segments(), 2)
	assertSegmentInvariant(t, s)

	for _, p := range track.AllPoints() {
		require.True(t, s.RemoveLocation(p))
	}
	_, ok := s.Track("walk")
	assert.False(t, ok)
	assert.Empty(t, s.Locations())
}

func TestRemoveSegment(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "walk", &clock, 2, 3, 2)
	require.True(t, s.IsValid())
	track, _ := s.Track("walk")

	copied := track.NumberedSegments()[1].Clone()
	require.True(t, s.RemoveSegment(copied))
	assert.Equal(t, 4, track.Size())
	assert.True(t, s.IsValid())

	assert.False(t, s.RemoveSegment(model.NewTrackSegment()))
	assert.False(t, s.RemoveSegment(nil))

	for len(track.Segments()) > 0 && track.Size() > 0 {
		require.True(t, s.RemoveSegment(track.Segments()[0]))
	}
	_, ok := s.Track("walk")
	assert.False(t, ok)
}

func TestRenameTrack(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 2)
	addSegments(s, "b", &clock, 2)

	err := s.RenameTrack("missing", "c")
	assert.Equal(t, errors.ErrCodeTrackNotFound, errors.GetCode(err))
	err = s.RenameTrack("a", "b")
	assert.Equal(t, errors.ErrCodeTrackExists, errors.GetCode(err))

	require.NoError(t, s.RenameTrack("a", "c"))
	_, ok := s.Track("a")
	assert.False(t, ok)
	track, ok := s.Track("c")
	require.True(t, ok)
	name, _ := track.First().ParentName()
	assert.Equal(t, "c", name)

	names := []string{}
	for _, tr := range s.Tracks() {
		names = append(names, tr.Name())
	}
	assert.Equal(t, []string{"b", "c"}, names)
	assert.True(t, s.IsValid(), "renaming does not touch the chain")
}

func TestRemoveTrack_OrphansPoints(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3)
	addSegments(s, "b", &clock, 2)
	track, _ := s.Track("a")

	orphans, err := s.RemoveTrack("a")
	require.NoError(t, err)
	require.Len(t, orphans, 3)
	for _, p := range orphans {
		assert.Same(t, track, p.Parent())
	}
	assert.Empty(t, s.Waypoints())
	assert.Len(t, s.Locations(), 2)
	assert.True(t, s.IsValid())

	_, err = s.RemoveTrack("a")
	assert.Equal(t, errors.ErrCodeTrackNotFound, errors.GetCode(err))
}

func TestMovePointsToTrack_SplitsMidSegment(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3, 4, 2)
	require.True(t, s.IsValid())
	source, _ := s.Track("a")
	start := source.Segments()[1].At(2)

	require.True(t, s.MovePointsToTrack(start, "b"))

	assert.Equal(t, 9, s.Size())
	require.Len(t, source.Segments(), 2)
	assert.Equal(t, 3, source.Segments()[0].Len())
	assert.Equal(t, 2, source.Segments()[1].Len())

	dest, ok := s.Track("b")
	require.True(t, ok)
	require.Len(t, dest.Segments(), 3)
	assert.Same(t, start, dest.Segments()[0].First())
	assert.Equal(t, 2, dest.Segments()[0].Len())
	assert.Equal(t, 2, dest.Segments()[1].Len())
	assert.True(t, dest.Segments()[2].IsEmpty())

	assertSegmentInvariant(t, s)
	assert.True(t, s.IsValid(), "moving points keeps their hashes")
}

func TestMovePointsToTrack_FromSegmentStart(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3, 4, 2)
	source, _ := s.Track("a")
	start := source.Segments()[1].First()

	require.True(t, s.MovePointsToTrack(start, "b"))

	require.Len(t, source.Segments(), 1)
	assert.Equal(t, 3, source.Size())
	dest, _ := s.Track("b")
	assert.Equal(t, 6, dest.Size())
	assert.Len(t, dest.Segments(), 3)
	assertSegmentInvariant(t, s)
}

func TestMovePointsToTrack_WholeTrackIsRename(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3, 4, 2)
	source, _ := s.Track("a")
	var sizes []int
	for _, seg := range source.Segments() {
		sizes = append(sizes, seg.Len())
	}

	require.True(t, s.MovePointsToTrack(source.First(), "renamed"))

	_, ok := s.Track("a")
	assert.False(t, ok)
	dest, ok := s.Track("renamed")
	require.True(t, ok)
	var got []int
	for _, seg := range dest.Segments() {
		if !seg.IsEmpty() {
			got = append(got, seg.Len())
		}
	}
	assert.Equal(t, sizes, got)
	assert.Equal(t, 9, s.Size())
	assertSegmentInvariant(t, s)
}

func TestMovePointsToTrack_MergesIntoExisting(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3)
	addSegments(s, "b", &clock, 2, 2)
	addSegments(s, "a", &clock, 2)
	b, _ := s.Track("b")

	require.True(t, s.MovePointsToTrack(b.First(), "a"))

	_, ok := s.Track("b")
	assert.False(t, ok)
	a, _ := s.Track("a")
	assert.Equal(t, 9, a.Size())
	assert.Equal(t, 9, s.Size())
	assertSegmentInvariant(t, s)

	// both segments of b lie inside the time range of a's only segment
	segments := a.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, 9, segments[0].Len())
	assert.True(t, segments[1].IsEmpty())
}

func TestMovePointsToTrack_InsertsBetweenSegments(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 2)
	addSegments(s, "b", &clock, 3)
	a, _ := s.Track("a")
	a.StartNewSegment()
	addSegments(s, "a", &clock, 2)
	b, _ := s.Track("b")

	require.True(t, s.MovePointsToTrack(b.First(), "a"))

	segments := a.Segments()
	require.Len(t, segments, 4)
	assert.Equal(t, []int{2, 3, 2, 0}, []int{segments[0].Len(), segments[1].Len(), segments[2].Len(), segments[3].Len()})
	assertSegmentInvariant(t, s)
}

func TestMovePointsToTrack_NoOps(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 3)
	free := s.AddWaypoint("free", 1, 1, at(100), 1, nil)
	track, _ := s.Track("a")
	s.MarkSaved()

	assert.False(t, s.MovePointsToTrack(free, "b"))
	assert.False(t, s.MovePointsToTrack(track.First(), "a"))
	assert.False(t, s.MovePointsToTrack(nil, "b"))
	stranger := model.NewWayPoint("", 1, 1, at(0), 1)
	stranger.SetParent(model.NewTrack("a"))
	assert.False(t, s.MovePointsToTrack(stranger, "b"))

	assert.False(t, s.Changed())
	_, ok := s.Track("b")
	assert.False(t, ok)
}

func TestMovePointsToTrack_RepeatedMovesKeepInvariants(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "a", &clock, 4, 3, 5, 2)
	names := []string{"b", "a", "c", "b"}

	for i, dest := range names {
		var points []*model.WayPoint
		for _, track := range s.Tracks() {
			if track.Name() != dest {
				points = track.AllPoints()
				break
			}
		}
		require.NotEmpty(t, points)
		require.True(t, s.MovePointsToTrack(points[len(points)/2], dest), "move %d", i)
		assert.Equal(t, 14, s.Size(), "move %d", i)
		assertSegmentInvariant(t, s)
	}
	assert.Len(t, s.Locations(), 14)
}

func TestElements(t *testing.T) {
	s := newTestStore()
	clock := 1
	addSegments(s, "a", &clock, 2, 2)
	s.AddWaypoint("first", 1, 1, at(0), 1, nil)

	elements := s.Elements()
	require.Len(t, elements, 3)
	assert.Equal(t, model.ElementPoint, elements[0].Kind)
	assert.Equal(t, model.ElementSegment, elements[1].Kind)
	assert.Equal(t, 1, elements[1].Segment.Number())
	assert.Equal(t, 2, elements[2].Segment.Number())
}

func TestSortedTracks(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("late", "", 1, 1, at(10), 1, nil)
	s.AddTrackPoint("early", "", 1, 1, at(1), 1, nil)

	sorted := s.SortedTracks()
	require.Len(t, sorted, 2)
	assert.Equal(t, "early", sorted[0].Name())
	assert.Equal(t, "late", s.Tracks()[0].Name())
	assert.Len(t, s.TrackLocations("late"), 1)
	assert.Nil(t, s.TrackLocations("missing"))
}

func TestWriteLoad_RoundTrip(t *testing.T) {
	s := newTestStore()
	s.SetName("Trip")
	clock := 0
	alt := 400.0
	s.AddWaypoint("start", 47.5, 8.5, at(clock), 4, &alt)
	clock++
	addSegments(s, "walk", &clock, 3, 2)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))

	loaded := newTestStore()
	require.NoError(t, loaded.Load(&buf))
	assert.True(t, loaded.Initialized())
	assert.False(t, loaded.Changed())
	assert.True(t, s.Equal(loaded))
	assert.True(t, loaded.IsValid())
	require.NotNil(t, loaded.Waypoints()[0].Altitude)
	assert.Equal(t, alt, *loaded.Waypoints()[0].Altitude)
}

func TestWriteLoad_TamperDetection(t *testing.T) {
	s := newTestStore()
	s.AddTrackPoint("walk", "p0", 47.1, 8, at(0), 5, nil)
	s.AddTrackPoint("walk", "p1", 47.2, 8, at(1), 5, nil)
	s.AddTrackPoint("walk", "p2", 47.3, 8, at(2), 5, nil)
	require.True(t, s.IsValid())

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	text := buf.String()

	reloaded := newTestStore()
	require.NoError(t, reloaded.Load(strings.NewReader(text)))
	assert.True(t, reloaded.IsValid())

	require.Contains(t, text, `lat="47.2"`)
	tampered := newTestStore()
	require.NoError(t, tampered.Load(strings.NewReader(strings.Replace(text, `lat="47.2"`, `lat="47.3"`, 1))))
	assert.False(t, tampered.IsValid())

	renamed := newTestStore()
	require.NoError(t, renamed.Load(strings.NewReader(strings.Replace(text, "<name>p1</name>", "<name>x</name>", 1))))
	assert.True(t, renamed.IsValid())
}

func TestLoad_FailureLeavesStoreUninitialized(t *testing.T) {
	s := newTestStore()
	clock := 0
	addSegments(s, "walk", &clock, 3)

	err := s.Load(strings.NewReader("<gpx><trk>"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeParseFailed, errors.GetCode(err))
	assert.False(t, s.Initialized())
	assert.Zero(t, s.Size())
	assert.Empty(t, s.Tracks())
	assert.False(t, s.IsValid())
	assert.False(t, s.IsValidatable())
}

func TestEqual(t *testing.T) {
	a, b := newTestStore(), newTestStore()
	a.AddWaypoint("x", 1, 1, at(0), 1, nil)
	b.AddWaypoint("x", 1, 1, at(0), 1, nil)
	assert.True(t, a.Equal(b))

	b.SetName("other")
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
