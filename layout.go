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
	"image"
)

// GridLayout is the deterministic alternative to the stochastic sampling of
// Run: It visits every step-th pixel of the target (row by row) and computes
// the best matching tile for it. Fully transparent pixels are skipped.
// The returned placements use canvas coordinates, that is pixel positions
// multiplied by scale.
//
// The placements can be drawn with Compose or handed to a client that draws
// them itself.
func GridLayout(target image.Image, index *ColorIndex, step, scale int) []Placement {
	step = max(step, 1)
	scale = max(scale, 1)
	bounds := target.Bounds()
	res := make([]Placement, 0, (bounds.Dx()/step+1)*(bounds.Dy()/step+1))
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			record, ok := index.Match(target.At(x, y))
			if !ok {
				continue
			}
			res = append(res, Placement{
				Tile: record.ID,
				Name: record.Name,
				X:    (x - bounds.Min.X) * scale,
				Y:    (y - bounds.Min.Y) * scale,
			})
		}
	}
	return res
}

// Compose draws all placements in the given order onto the canvas. Tiles are
// fetched from the cache with the given footprint. Tiles that can't be
// loaded are logged once and skipped.
func Compose(placements []Placement, cache *TileCache, canvas *Canvas, footprint int) RunStats {
	p := newPlacer(nil, nil, cache, canvas, footprint, nil)
	for _, placement := range placements {
		p.stats.Iterations++
		p.draw(TileRecord{ID: placement.Tile, Name: placement.Name}, image.Pt(placement.X, placement.Y))
	}
	return p.stats
}
