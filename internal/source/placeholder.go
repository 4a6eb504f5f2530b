package source

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
)

// NewPlaceholder creates the "no signal" source: a solid black frame at the
// given resolution, encoded once and repeated forever.
func NewPlaceholder(res Resolution) (*Static, error) {
	size := res.Size()
	if size.Width == 0 || size.Height == 0 {
		return nil, fmt.Errorf("invalid resolution %q", res)
	}

	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpeg.DefaultQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder frame: %w", err)
	}

	return NewStatic(buf.Bytes()), nil
}
