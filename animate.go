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
	"image/color/palette"
	"image/gif"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// DecodeGIFFrames decodes an animated gif and returns the frames as full
// images, that is each frame is drawn over the previous one (respecting the
// disposal method). It returns the frames and the delay of each frame (in
// 100ths of a second).
func DecodeGIFFrames(r io.Reader) ([]*image.RGBA, []int, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, nil, err
	}
	if len(g.Image) == 0 {
		return nil, nil, fmt.Errorf("gif contains no frames")
	}
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	current := image.NewRGBA(bounds)
	frames := make([]*image.RGBA, len(g.Image))
	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(current)
		}
		draw.Draw(current, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		frames[i] = cloneRGBA(current)
		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(current, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			current = previous
		}
	}
	delays := make([]int, len(frames))
	copy(delays, g.Delay)
	return frames, delays, nil
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	res := image.NewRGBA(img.Bounds())
	copy(res.Pix, img.Pix)
	return res
}

// GenerateFrames creates one mosaic per frame, each on a fresh canvas. All
// frames share the index and the cache.
func GenerateFrames(frames []image.Image, index *ColorIndex, cache *TileCache, cfg Config, opts RunOptions) ([]*Canvas, RunStats, error) {
	res := make([]*Canvas, len(frames))
	var total RunStats
	for i, frame := range frames {
		canvas, stats, err := Generate(frame, index, cache, cfg, opts)
		if err != nil {
			return nil, total, fmt.Errorf("frame %d: %w", i, err)
		}
		log.WithFields(log.Fields{
			"frame":  i,
			"placed": stats.Placed,
		}).Debug("Frame done")
		res[i] = canvas
		total.Add(stats)
	}
	return res, total, nil
}

// EncodeGIF writes the canvases as an animated gif. Each canvas is quantized
// to the Plan9 palette with Floyd-Steinberg dithering. delays may be nil or
// shorter than canvases, missing delays are set to 10 (1/10 s).
func EncodeGIF(w io.Writer, canvases []*Canvas, delays []int) error {
	g := &gif.GIF{
		Image: make([]*image.Paletted, len(canvases)),
		Delay: make([]int, len(canvases)),
	}
	for i, c := range canvases {
		bounds := c.Bounds()
		paletted := image.NewPaletted(bounds, color.Palette(palette.Plan9))
		draw.FloydSteinberg.Draw(paletted, bounds, c.Image(), bounds.Min)
		g.Image[i] = paletted
		g.Delay[i] = 10
		if i < len(delays) {
			g.Delay[i] = delays[i]
		}
	}
	return gif.EncodeAll(w, g)
}

// SaveGIF writes the canvases as an animated gif to a file, see EncodeGIF.
func SaveGIF(path string, canvases []*Canvas, delays []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	encErr := EncodeGIF(f, canvases, delays)
	if closeErr := f.Close(); encErr == nil {
		encErr = closeErr
	}
	return encErr
}
