package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
)

// barColors are the classic SMPTE-like test card bars
var barColors = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
	{R: 16, G: 16, B: 16, A: 255},
}

// Pattern renders a synthetic test card with a sweeping marker.
// Every cursor renders its own frames, so capture cost grows with the number of cursors.
type Pattern struct {
	size    Size
	quality int
	base    *image.RGBA
}

// NewPattern creates a test card source
func NewPattern(res Resolution, quality int) (*Pattern, error) {
	size := res.Size()
	if size.Width == 0 || size.Height == 0 {
		return nil, fmt.Errorf("invalid resolution %q", res)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", quality)
	}

	base := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	barWidth := (size.Width + len(barColors) - 1) / len(barColors)
	for i, c := range barColors {
		rect := image.Rect(i*barWidth, 0, (i+1)*barWidth, size.Height)
		draw.Draw(base, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	return &Pattern{
		size:    size,
		quality: quality,
		base:    base,
	}, nil
}

// Open returns a new independent cursor starting at frame zero
func (p *Pattern) Open() (Cursor, error) {
	return &patternCursor{
		pattern: p,
		canvas:  image.NewRGBA(p.base.Bounds()),
	}, nil
}

type patternCursor struct {
	pattern *Pattern
	canvas  *image.RGBA
	buf     bytes.Buffer
	seq     uint64

	mu     sync.Mutex
	closed bool
}

func (c *patternCursor) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}

	p := c.pattern
	draw.Draw(c.canvas, c.canvas.Bounds(), p.base, image.Point{}, draw.Src)

	// Marker sweeps left to right, one step per frame
	markerWidth := p.size.Width / 32
	if markerWidth < 4 {
		markerWidth = 4
	}
	span := p.size.Width - markerWidth
	x := 0
	if span > 0 {
		x = int(c.seq % uint64(span))
	}
	marker := image.Rect(x, p.size.Height/3, x+markerWidth, 2*p.size.Height/3)
	draw.Draw(c.canvas, marker, image.White, image.Point{}, draw.Src)

	c.buf.Reset()
	if err := jpeg.Encode(&c.buf, c.canvas, &jpeg.Options{Quality: p.quality}); err != nil {
		return Frame{}, fmt.Errorf("failed to encode pattern frame %d: %w", c.seq, err)
	}
	c.seq++

	data := make([]byte, c.buf.Len())
	copy(data, c.buf.Bytes())
	return Frame{Data: data}, nil
}

func (c *patternCursor) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
