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
	"math/rand/v2"
	"strings"
	"time"
)

// SampleMode decides which coordinate space is sampled uniformly.
type SampleMode int

const (
	// SampleSource draws pixels of the query image uniformly, the canvas
	// position is the source position multiplied by the scale.
	SampleSource SampleMode = iota
	// SampleDestination draws canvas pixels uniformly, the source position is
	// the canvas position divided by the scale.
	SampleDestination
)

func (mode SampleMode) String() string {
	switch mode {
	case SampleSource:
		return "source"
	case SampleDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// ParseSampleMode parses "source" or "destination".
func ParseSampleMode(s string) (SampleMode, error) {
	switch strings.ToLower(s) {
	case "source", "src":
		return SampleSource, nil
	case "destination", "dst":
		return SampleDestination, nil
	default:
		return SampleSource, fmt.Errorf("%s is not a recognized sampler mode", s)
	}
}

// NewRand returns a random generator for the given seed. A seed of 0 means
// that a time based seed is used.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sampler produces pairs of query image and canvas coordinates.
// Its only state is the random generator, each call of Sample is independent.
type Sampler struct {
	Mode   SampleMode
	Source image.Point
	Canvas image.Point
	Scale  int
	rng    *rand.Rand
}

// NewSampler returns a new sampler. src is the size of the query image,
// canvas the size of the canvas. scale must be ≥ 1.
func NewSampler(mode SampleMode, src, canvas image.Point, scale int, rng *rand.Rand) (*Sampler, error) {
	switch {
	case mode != SampleSource && mode != SampleDestination:
		return nil, fmt.Errorf("invalid sample mode %d", mode)
	case scale < 1:
		return nil, fmt.Errorf("scale must be ≥ 1, got %d", scale)
	case src.X <= 0 || src.Y <= 0:
		return nil, fmt.Errorf("invalid source dimensions %v", src)
	case canvas.X <= 0 || canvas.Y <= 0:
		return nil, fmt.Errorf("invalid canvas dimensions %v", canvas)
	}
	if rng == nil {
		rng = NewRand(0)
	}
	return &Sampler{Mode: mode, Source: src, Canvas: canvas, Scale: scale, rng: rng}, nil
}

// Sample returns the next coordinates. Both points are relative to (0, 0).
func (s *Sampler) Sample() (src, dst image.Point) {
	switch s.Mode {
	case SampleDestination:
		dst = image.Pt(s.rng.IntN(s.Canvas.X), s.rng.IntN(s.Canvas.Y))
		src = image.Pt(dst.X/s.Scale, dst.Y/s.Scale)
	default:
		src = image.Pt(s.rng.IntN(s.Source.X), s.rng.IntN(s.Source.Y))
		dst = image.Pt(src.X*s.Scale, src.Y*s.Scale)
	}
	return
}
