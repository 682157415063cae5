package codec

import (
	"encoding/xml"

	"github.com/devrev/securegpx/internal/model"
)

const (
	// Namespace is the GPX 1.1 schema namespace
	Namespace = "http://www.topografix.com/GPX/1/1"
	Version   = "1.1"

	// DefaultCreator is written to the creator attribute when none is configured
	DefaultCreator = "https://www.shuewe.de"

	// DefaultAccuracy is the pdop value of points that carry none
	DefaultAccuracy = "20"

	defaultCoordinate = "0"
)

// Time layouts accepted for <time>, tried in order
var timeLayouts = []string{
	model.TimeLayout,
	"2006-01-02T15:04Z",
}

// Document is the decoded content of a GPX file
type Document struct {
	Name      string
	Waypoints []*model.WayPoint
	Tracks    []*model.Track
}

// Size returns the number of points in the document
func (d *Document) Size() int {
	res := len(d.Waypoints)
	for _, t := range d.Tracks {
		res += t.Size()
	}
	return res
}

type xmlPoint struct {
	Lat  *string `xml:"lat,attr"`
	Lon  *string `xml:"lon,attr"`
	Ele  *string `xml:"ele,omitempty"`
	Time string  `xml:"time,omitempty"`
	Name string  `xml:"name,omitempty"`
	Cmt  string  `xml:"cmt,omitempty"`
	Pdop *string `xml:"pdop"`
}

type xmlMetadata struct {
	Name string `xml:"name,omitempty"`
}

type xmlRoute struct {
	Name   string     `xml:"name"`
	Points []xmlPoint `xml:"rtept"`
}

type xmlSegment struct {
	Points []xmlPoint `xml:"trkpt"`
}

type xmlTrack struct {
	Name     string       `xml:"name"`
	Segments []xmlSegment `xml:"trkseg"`
}

// xmlFile is only used for encoding; decoding walks the top level by hand
// to keep the document order of tracks and routes.
type xmlFile struct {
	XMLName   xml.Name     `xml:"gpx"`
	XMLNS     string       `xml:"xmlns,attr"`
	Version   string       `xml:"version,attr"`
	Creator   string       `xml:"creator,attr"`
	Metadata  *xmlMetadata `xml:"metadata,omitempty"`
	Waypoints []xmlPoint   `xml:"wpt"`
	Tracks    []xmlTrack   `xml:"trk"`
}
