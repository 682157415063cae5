package codec

import (
	"encoding/xml"
	"io"

	"github.com/devrev/securegpx/internal/chain"
	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/model"
)

// Encode writes doc as GPX 1.1. Tracks get one <trkseg> per non-empty
// segment; coordinates use the same number text the hash chain is built on.
func (c *Codec) Encode(w io.Writer, doc *Document) error {
	file := xmlFile{
		XMLNS:   Namespace,
		Version: Version,
		Creator: c.creator,
	}
	if doc.Name != "" {
		file.Metadata = &xmlMetadata{Name: doc.Name}
	}
	for _, p := range doc.Waypoints {
		file.Waypoints = append(file.Waypoints, fromWayPoint(p))
	}
	for _, t := range doc.Tracks {
		trk := xmlTrack{Name: t.Name()}
		for _, seg := range t.Segments() {
			if seg.IsEmpty() {
				continue
			}
			xs := xmlSegment{Points: make([]xmlPoint, 0, seg.Len())}
			for _, p := range seg.Points() {
				xs.Points = append(xs.Points, fromWayPoint(p))
			}
			trk.Segments = append(trk.Segments, xs)
		}
		file.Tracks = append(file.Tracks, trk)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.WriteFailed("failed to write xml header", err)
	}
	enc := xml.NewEncoder(w)
	if c.indent != "" {
		enc.Indent("", c.indent)
	}
	if err := enc.Encode(file); err != nil {
		return errors.WriteFailed("failed to encode gpx", err)
	}
	if err := enc.Close(); err != nil {
		return errors.WriteFailed("failed to flush gpx", err)
	}
	return nil
}

func fromWayPoint(p *model.WayPoint) xmlPoint {
	lat := chain.FormatDouble(p.Lat)
	lng := chain.FormatDouble(p.Lng)
	pdop := chain.FormatDouble(p.Accuracy)
	xp := xmlPoint{
		Lat:  &lat,
		Lon:  &lng,
		Time: p.FormattedTime(),
		Name: p.Name,
		Cmt:  p.Hash,
		Pdop: &pdop,
	}
	if p.Altitude != nil {
		ele := chain.FormatDouble(*p.Altitude)
		xp.Ele = &ele
	}
	return xp
}
