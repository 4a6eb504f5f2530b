package source

import (
	"fmt"
	"strings"
)

// Resolution is a named output size
type Resolution string

// Supported resolutions
const (
	Resolution1080p Resolution = "1080p"
	Resolution720p  Resolution = "720p"
	Resolution480p  Resolution = "480p"
	Resolution360p  Resolution = "360p"
	Resolution240p  Resolution = "240p"
)

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var resolutionSizes = map[Resolution]Size{
	Resolution1080p: {Width: 1920, Height: 1080},
	Resolution720p:  {Width: 1280, Height: 720},
	Resolution480p:  {Width: 854, Height: 480},
	Resolution360p:  {Width: 480, Height: 360},
	Resolution240p:  {Width: 352, Height: 240},
}

// ParseResolution validates a resolution name (case-insensitive)
func ParseResolution(name string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := resolutionSizes[r]; !ok {
		return "", fmt.Errorf("unknown resolution %q (expected one of 1080p, 720p, 480p, 360p, 240p)", name)
	}
	return r, nil
}

// Size returns the pixel dimensions of r.
// Unknown resolutions yield a zero Size.
func (r Resolution) Size() Size {
	return resolutionSizes[r]
}
