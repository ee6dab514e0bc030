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
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// LoadImage opens an image file, the EXIF orientation of jpeg files is
// applied.
func LoadImage(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// GenerateFile reads the query image from inPath, generates the mosaic and
// writes it to outPath.
// If the query is a gif file each frame is processed and the output must be
// a gif file as well. Otherwise the output must be a png or jpeg file.
func GenerateFile(inPath, outPath string, index *ColorIndex, cache *TileCache,
	cfg Config, opts RunOptions) (RunStats, error) {
	inExt := strings.ToLower(filepath.Ext(inPath))
	outExt := strings.ToLower(filepath.Ext(outPath))
	start := time.Now()
	if inExt == ".gif" && outExt == ".gif" {
		f, err := os.Open(inPath)
		if err != nil {
			return RunStats{}, err
		}
		frames, delays, decodeErr := DecodeGIFFrames(f)
		f.Close()
		if decodeErr != nil {
			return RunStats{}, decodeErr
		}
		images := make([]image.Image, len(frames))
		for i, frame := range frames {
			images[i] = frame
		}
		canvases, stats, genErr := GenerateFrames(images, index, cache, cfg, opts)
		if genErr != nil {
			return stats, genErr
		}
		log.WithFields(log.Fields{
			"frames":   len(canvases),
			"duration": time.Since(start),
		}).Info("Mosaic frames generated")
		return stats, SaveGIF(outPath, canvases, delays)
	}
	if outExt == ".gif" {
		return RunStats{}, fmt.Errorf("gif output requires a gif query image, got %s", inPath)
	}
	img, err := LoadImage(inPath)
	if err != nil {
		return RunStats{}, err
	}
	canvas, stats, genErr := Generate(img, index, cache, cfg, opts)
	if genErr != nil {
		return stats, genErr
	}
	log.WithFields(log.Fields{
		"placed":   stats.Placed,
		"duration": time.Since(start),
	}).Info("Mosaic generated")
	return stats, canvas.Save(outPath, cfg.JPGQuality)
}

// Layout is the json document written by WriteLayout.
type Layout struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Placements []Placement `json:"placements"`
}

// WriteLayout computes the grid layout (see GridLayout) for the image in
// inPath and writes it as json to outPath.
func WriteLayout(inPath, outPath string, index *ColorIndex, step, scale int) (*Layout, error) {
	img, err := LoadImage(inPath)
	if err != nil {
		return nil, err
	}
	size := img.Bounds().Size().Mul(max(scale, 1))
	layout := &Layout{
		Width:      size.X,
		Height:     size.Y,
		Placements: GridLayout(img, index, step, scale),
	}
	data, jsonErr := json.MarshalIndent(layout, "", "  ")
	if jsonErr != nil {
		return nil, jsonErr
	}
	return layout, os.WriteFile(outPath, data, 0644)
}
