// Copyright 2018 Fabian Wenzelmann
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tilemosaic

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// AverageColor describes the average of several RGB colors. The components
// are in the range [0, 255] and are stored in the order R, G, B.
type AverageColor [3]float64

// NewAverageColor returns a new average color.
func NewAverageColor(r, g, b float64) AverageColor {
	return AverageColor{r, g, b}
}

// AverageFromColor returns the (non-premultiplied) RGB components of a
// generic color as an AverageColor. The alpha value is ignored.
func AverageFromColor(c color.Color) AverageColor {
	nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	return AverageColor{float64(nrgba.R), float64(nrgba.G), float64(nrgba.B)}
}

// SquaredDist returns the squared euclidean distance of both colors.
func (c AverageColor) SquaredDist(other AverageColor) float64 {
	var sum float64
	for i, e1 := range c {
		diff := e1 - other[i]
		sum += diff * diff
	}
	return sum
}

func (c AverageColor) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", c[0], c[1], c[2])
}

// ComputeAverageColor computes the average color of an image. Only pixels
// that are not fully transparent are considered, the color values are the
// non-premultiplied values of each pixel.
//
// It returns the average and the number of pixels that were considered. If
// this number is 0 the image has no visible pixels and the average is not
// meaningful.
func ComputeAverageColor(img image.Image) (AverageColor, int) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return AverageColor{}, 0
	}
	// sums of 8 bit values, fits easily even for huge images
	var r, g, b uint64
	opaque := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			opaque++
		}
	}
	if opaque == 0 {
		return AverageColor{}, 0
	}
	n := float64(opaque)
	return AverageColor{float64(r) / n, float64(g) / n, float64(b) / n}, opaque
}

// IsTransparent returns true if the color is fully transparent.
func IsTransparent(c color.Color) bool {
	_, _, _, a := c.RGBA()
	return a == 0
}

var (
	// DefaultBackground is the background of a canvas if nothing else is
	// specified (opaque white).
	DefaultBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// UnpackRGBA converts a 32 bit packed value of the form 0xRRGGBBAA to a
// color.
func UnpackRGBA(packed uint32) color.NRGBA {
	return color.NRGBA{
		R: uint8(packed >> 24),
		G: uint8(packed >> 16),
		B: uint8(packed >> 8),
		A: uint8(packed),
	}
}

// PackRGBA is the inverse of UnpackRGBA.
func PackRGBA(c color.NRGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// ParseBackground parses a background color. Supported are hex colors as
// used in HTML ("#ffffff" or "#fff", always opaque) and 32 bit packed RGBA
// values, either in hex with prefix "0x" ("0xffffffff") or as a decimal
// number.
func ParseBackground(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(expandShortHex(s))
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid background color %q: %w", s, err)
		}
		r, g, b := c.RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
	default:
		packed, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid background color %q: %w", s, err)
		}
		return UnpackRGBA(uint32(packed)), nil
	}
}

// FormatBackground formats a color s.t. it can be parsed again by
// ParseBackground.
func FormatBackground(c color.NRGBA) string {
	return fmt.Sprintf("0x%08x", PackRGBA(c))
}

func expandShortHex(s string) string {
	if len(s) != 4 {
		return s
	}
	var b strings.Builder
	b.WriteByte('#')
	for _, r := range s[1:] {
		b.WriteRune(r)
		b.WriteRune(r)
	}
	return b.String()
}
