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
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// PlacementPolicy describes what happens if a tile placed on a canvas
// exceeds the canvas bounds.
type PlacementPolicy int

const (
	// PlaceClip draws all pixels of the tile that are inside the canvas and
	// silently ignores the rest.
	PlaceClip PlacementPolicy = iota
	// PlaceReject doesn't draw the tile at all if it doesn't fit completely.
	PlaceReject
)

func (p PlacementPolicy) String() string {
	switch p {
	case PlaceClip:
		return "clip"
	case PlaceReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParsePlacementPolicy parses "clip" or "reject".
func ParsePlacementPolicy(s string) (PlacementPolicy, error) {
	switch strings.ToLower(s) {
	case "clip":
		return PlaceClip, nil
	case "reject":
		return PlaceReject, nil
	default:
		return PlaceClip, fmt.Errorf("unknown placement policy %q", s)
	}
}

// Canvas is the image a mosaic is drawn on.
//
// Tiles are blended onto the canvas with the "over" operator: each channel
// of a pixel becomes src * srcAlpha + dst * (1 - srcAlpha).
// Canvas is not safe for concurrent use.
type Canvas struct {
	img    *image.RGBA
	Policy PlacementPolicy
}

// NewCanvas returns a canvas of the given size with each pixel set to
// background. If background is nil DefaultBackground is used.
func NewCanvas(width, height int, background color.Color) *Canvas {
	if background == nil {
		background = DefaultBackground
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return &Canvas{img: img, Policy: PlaceClip}
}

// Bounds returns the bounds of the canvas, it always starts at (0, 0).
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Image returns the underlying image. Changes to the image are visible on
// the canvas.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Place draws tile with its top left corner at (x, y).
// It returns true if any pixel was drawn, that is false if the tile is
// completely outside of the canvas or if the policy is PlaceReject and the
// tile exceeds the canvas.
func (c *Canvas) Place(tile image.Image, x, y int) bool {
	tb := tile.Bounds()
	r := image.Rect(x, y, x+tb.Dx(), y+tb.Dy())
	if c.Policy == PlaceReject && !r.In(c.img.Bounds()) {
		return false
	}
	if r.Intersect(c.img.Bounds()).Empty() {
		return false
	}
	// draw clips r to the destination and adjusts the source point
	draw.Draw(c.img, r, tile, tb.Min, draw.Over)
	return true
}

// Merge draws layer (with the same size) over the canvas.
func (c *Canvas) Merge(layer *Canvas) {
	draw.Draw(c.img, c.img.Bounds(), layer.img, image.Point{}, draw.Over)
}

// Clone returns a deep copy of the canvas.
func (c *Canvas) Clone() *Canvas {
	img := image.NewRGBA(c.img.Bounds())
	copy(img.Pix, c.img.Pix)
	return &Canvas{img: img, Policy: c.Policy}
}

// Save writes the canvas to a file, the format is determined by the file
// extension (.png, .jpg or .jpeg). jpgQuality is only used for jpeg files.
func (c *Canvas) Save(path string, jpgQuality int) error {
	return SaveImage(path, c.img, jpgQuality)
}

// SaveImage writes img to a file, see Canvas.Save.
func SaveImage(path string, img image.Image, jpgQuality int) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("unsupported file type %q, expected .jpg or .png", ext)
	}
	outFile, outErr := os.Create(path)
	if outErr != nil {
		return outErr
	}
	var encErr error
	if ext == ".png" {
		encErr = png.Encode(outFile, img)
	} else {
		encErr = jpeg.Encode(outFile, img, &jpeg.Options{Quality: jpgQuality})
	}
	if closeErr := outFile.Close(); encErr == nil {
		encErr = closeErr
	}
	return encErr
}
