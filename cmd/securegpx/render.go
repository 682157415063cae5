package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/devrev/securegpx/internal/model"
)

// tableRenderer prints elements as aligned rows
type tableRenderer struct {
	w *tabwriter.Writer
}

func newTableRenderer(out io.Writer) *tableRenderer {
	r := &tableRenderer{w: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)}
	fmt.Fprintln(r.w, "KIND\tTRACK\tSEGMENT\tNAME\tPOINTS\tSTART\tEND\tKM\tKM/H")
	return r
}

func (r *tableRenderer) RenderElement(e model.Element) error {
	switch e.Kind {
	case model.ElementPoint:
		p := e.Point
		_, err := fmt.Fprintf(r.w, "%s\t-\t-\t%s\t1\t%s\t-\t-\t-\n", e.Kind, p.Name, orDash(p.FormattedTime()))
		return err
	case model.ElementSegment:
		seg := e.Segment
		track := "-"
		start, end := "-", "-"
		if first := seg.First(); first != nil {
			if name, ok := first.ParentName(); ok {
				track = name
			}
			start = orDash(first.FormattedTime())
			end = orDash(seg.Last().FormattedTime())
		}
		_, err := fmt.Fprintf(r.w, "%s\t%s\t%d\t-\t%d\t%s\t%s\t%.3f\t%.1f\n",
			e.Kind, track, seg.Number(), seg.Len(), start, end, seg.DistanceKm(), seg.AvgSpeedKmH())
		return err
	}
	return fmt.Errorf("unknown element kind %d", e.Kind)
}

func (r *tableRenderer) Flush() error {
	return r.w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var _ model.Renderer = (*tableRenderer)(nil)
