// Package gantt is the rendering boundary spec.md §4.4 calls once per
// proposal to build the artifact bundle. The renderer itself (a Gantt chart
// image) is out of scope per spec.md §1's Non-goals; only the interface and
// a minimal stub producing a real PNG live here, since no charting library
// appears anywhere in the example pack.
package gantt

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/lineflow/scheduler/internal/domain"
)

// Renderer produces a PNG timeline image from a Schedule. The core never
// inspects the returned bytes; it only forwards them to the operator
// channel.
type Renderer interface {
	Render(schedule domain.Schedule) ([]byte, error)
}

// Stub draws one horizontal bar per ScheduleEntry, top to bottom in entry
// order (entries are not re-sorted), with no text layout — a placeholder satisfying the interface
// until a real charting component is wired in.
type Stub struct {
	Width, RowHeight int
}

// NewStub builds a Stub with sensible default dimensions.
func NewStub() *Stub {
	return &Stub{Width: 800, RowHeight: 24}
}

func (s *Stub) Render(schedule domain.Schedule) ([]byte, error) {
	width := s.Width
	if width <= 0 {
		width = 800
	}
	rowHeight := s.RowHeight
	if rowHeight <= 0 {
		rowHeight = 24
	}
	height := rowHeight * (len(schedule.Entries) + 1)
	if height <= 0 {
		height = rowHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	background := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, background)
		}
	}

	if len(schedule.Entries) > 0 {
		span := scheduleSpan(schedule)
		barColor := color.RGBA{R: 40, G: 110, B: 200, A: 255}
		lateColor := color.RGBA{R: 200, G: 50, B: 50, A: 255}
		for i, e := range schedule.Entries {
			y0 := i * rowHeight
			y1 := y0 + rowHeight - 4
			x0, x1 := barExtent(e, span, width)
			c := barColor
			if e.Late {
				c = lateColor
			}
			for y := y0; y < y1 && y < height; y++ {
				for x := x0; x < x1 && x < width; x++ {
					img.Set(x, y, c)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type timeSpan struct {
	startUnix, endUnix int64
}

func scheduleSpan(schedule domain.Schedule) timeSpan {
	span := timeSpan{}
	for i, e := range schedule.Entries {
		if i == 0 || e.Start.Unix() < span.startUnix {
			span.startUnix = e.Start.Unix()
		}
		if i == 0 || e.End.Unix() > span.endUnix {
			span.endUnix = e.End.Unix()
		}
	}
	if span.endUnix == span.startUnix {
		span.endUnix = span.startUnix + 1
	}
	return span
}

func barExtent(e domain.ScheduleEntry, span timeSpan, width int) (int, int) {
	total := float64(span.endUnix - span.startUnix)
	x0 := int(float64(e.Start.Unix()-span.startUnix) / total * float64(width))
	x1 := int(float64(e.End.Unix()-span.startUnix) / total * float64(width))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	return x0, x1
}

var _ Renderer = (*Stub)(nil)
