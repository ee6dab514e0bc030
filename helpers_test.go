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
	"image/color"
	"image/draw"
	"testing"
)

var (
	red         = color.NRGBA{R: 255, A: 255}
	green       = color.NRGBA{G: 255, A: 255}
	blue        = color.NRGBA{B: 255, A: 255}
	transparent = color.NRGBA{}
)

// uniformTile returns a w x h image filled with c.
func uniformTile(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// rgbStore returns a storage with 1x1 tiles: red, green and blue.
func rgbStore() *MemTileStore {
	store := NewMemTileStore()
	store.Add("red", uniformTile(1, 1, red))
	store.Add("green", uniformTile(1, 1, green))
	store.Add("blue", uniformTile(1, 1, blue))
	return store
}

// testTarget returns the 2x2 query image
//
//	red   green
//	blue  transparent
func testTarget() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, red)
	img.Set(1, 0, green)
	img.Set(0, 1, blue)
	img.Set(1, 1, transparent)
	return img
}

func mustIndex(t testing.TB, storage TileStorage) *ColorIndex {
	t.Helper()
	index, err := BuildColorIndex(storage, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	return index
}

// rgbaAt returns the color of the canvas at (x, y).
func rgbaAt(c *Canvas, x, y int) color.RGBA {
	return c.Image().RGBAAt(x, y)
}
