package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/model"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// Config configures the codec
type Config struct {
	Creator string
	// Indent is the per-level indentation of encoded documents, empty for
	// compact output.
	Indent string
}

// Codec reads and writes GPX 1.1 documents
type Codec struct {
	creator string
	indent  string
	logger  *zap.Logger
}

// New creates a codec
func New(cfg Config, logger *zap.Logger) *Codec {
	creator := cfg.Creator
	if creator == "" {
		creator = DefaultCreator
	}
	return &Codec{
		creator: creator,
		indent:  cfg.Indent,
		logger:  logger,
	}
}

// Decode reads a GPX document. Stored hashes are taken from <cmt> as they
// are and never regenerated. Any error leaves the caller without a document.
func (c *Codec) Decode(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	if err := findRoot(dec); err != nil {
		return nil, err
	}

	doc := &Document{}
	tracks := make(map[string]*model.Track)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.ParseFailed("failed to read gpx content", err)
		}
		switch el := tok.(type) {
		case xml.EndElement:
			// end of <gpx>
			model.SortPoints(doc.Waypoints)
			c.logger.Debug("Decoded gpx document",
				zap.String("name", doc.Name),
				zap.Int("waypoints", len(doc.Waypoints)),
				zap.Int("tracks", len(doc.Tracks)))
			return doc, nil
		case xml.StartElement:
			if err := c.decodeChild(dec, el, doc, tracks); err != nil {
				return nil, err
			}
		}
	}
}

func findRoot(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return errors.ParseFailed("no gpx root element", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "gpx" {
				return errors.ParseFailed(fmt.Sprintf("unexpected root element <%s>", start.Name.Local), nil)
			}
			return nil
		}
	}
}

func (c *Codec) decodeChild(dec *xml.Decoder, el xml.StartElement, doc *Document, tracks map[string]*model.Track) error {
	switch el.Name.Local {
	case "metadata":
		var meta xmlMetadata
		if err := dec.DecodeElement(&meta, &el); err != nil {
			return errors.ParseFailed("invalid metadata", err)
		}
		doc.Name = meta.Name

	case "wpt":
		var xp xmlPoint
		if err := dec.DecodeElement(&xp, &el); err != nil {
			return errors.ParseFailed("invalid waypoint", err)
		}
		p, err := toWayPoint(xp)
		if err != nil {
			return err
		}
		doc.Waypoints = append(doc.Waypoints, p)

	case "rte":
		var rte xmlRoute
		if err := dec.DecodeElement(&rte, &el); err != nil {
			return errors.ParseFailed("invalid route", err)
		}
		points, err := toWayPoints(rte.Points)
		if err != nil {
			return err
		}
		addSegments(doc, tracks, rte.Name, [][]*model.WayPoint{points})

	case "trk":
		var trk xmlTrack
		if err := dec.DecodeElement(&trk, &el); err != nil {
			return errors.ParseFailed("invalid track", err)
		}
		segments := make([][]*model.WayPoint, 0, len(trk.Segments))
		for _, seg := range trk.Segments {
			points, err := toWayPoints(seg.Points)
			if err != nil {
				return err
			}
			segments = append(segments, points)
		}
		addSegments(doc, tracks, trk.Name, segments)

	default:
		c.logger.Debug("Skipping unknown gpx element", zap.String("element", el.Name.Local))
		if err := dec.Skip(); err != nil {
			return errors.ParseFailed("invalid element "+el.Name.Local, err)
		}
	}
	return nil
}

// addSegments appends segments to the named track, creating it on first
// use. Elements without any point do not create a track.
func addSegments(doc *Document, tracks map[string]*model.Track, name string, segments [][]*model.WayPoint) {
	size := 0
	for _, points := range segments {
		size += len(points)
	}
	if size == 0 {
		return
	}

	track, ok := tracks[name]
	if !ok {
		track = model.NewTrack(name)
		tracks[name] = track
		doc.Tracks = append(doc.Tracks, track)
	}
	for _, points := range segments {
		for _, p := range points {
			p.SetParent(track)
		}
		track.AddPoints(points)
		track.StartNewSegment()
	}
}

func toWayPoints(xps []xmlPoint) ([]*model.WayPoint, error) {
	res := make([]*model.WayPoint, 0, len(xps))
	for _, xp := range xps {
		p, err := toWayPoint(xp)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func toWayPoint(xp xmlPoint) (*model.WayPoint, error) {
	lat, err := parseNumber("lat", xp.Lat, defaultCoordinate)
	if err != nil {
		return nil, err
	}
	lng, err := parseNumber("lon", xp.Lon, defaultCoordinate)
	if err != nil {
		return nil, err
	}
	accuracy, err := parseNumber("pdop", xp.Pdop, DefaultAccuracy)
	if err != nil {
		return nil, err
	}

	p := model.NewWayPoint(xp.Name, lat, lng, parseTime(xp.Time), accuracy)
	p.Hash = strings.TrimSpace(xp.Cmt)
	if xp.Ele != nil {
		alt, err := parseNumber("ele", xp.Ele, "")
		if err != nil {
			return nil, err
		}
		p.Altitude = &alt
	}
	return p, nil
}

func parseNumber(field string, raw *string, def string) (float64, error) {
	text := def
	if raw != nil {
		text = *raw
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, errors.ParseFailed(fmt.Sprintf("malformed %s %q", field, text), err).
			WithDetail("field", field)
	}
	return v, nil
}

// parseTime returns the zero time when text matches none of the layouts
func parseTime(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
