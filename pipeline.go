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
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errEmptyTarget = errors.New("query image is empty")

// MaxCanvasPixels is the maximal number of pixels Generate allocates for
// the canvas and the worker layers together. Each pixel needs four bytes.
var MaxCanvasPixels = 1 << 28

// scaledSize returns the size of the canvas for a target of size src. It
// returns an error if the size overflows or if the canvas and one layer per
// worker (if workers > 1) would exceed MaxCanvasPixels.
func scaledSize(src image.Point, scale, workers int) (image.Point, error) {
	if src.X <= 0 || src.Y <= 0 || scale < 1 || workers < 1 {
		return image.Point{}, fmt.Errorf("invalid canvas dimensions %v with scale %d", src, scale)
	}
	buffers := 1
	if workers > 1 {
		buffers += workers
	}
	limit := MaxCanvasPixels / buffers
	if scale > limit/src.X || scale > limit/src.Y {
		return image.Point{}, fmt.Errorf("canvas for %v with scale %d is too large", src, scale)
	}
	size := src.Mul(scale)
	if size.X > limit/size.Y {
		return image.Point{}, fmt.Errorf("canvas of size %v with %d worker(s) exceeds %d pixels",
			size, workers, MaxCanvasPixels)
	}
	return size, nil
}

// Placement describes a tile placed on a canvas, (X, Y) is the position of
// the top left corner of the tile.
type Placement struct {
	Tile TileID `json:"id"`
	Name string `json:"image_id"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// RunStats summarizes what happened during mosaic generation.
type RunStats struct {
	// Iterations is the number of samples taken.
	Iterations int
	// Placed is the number of tiles drawn on the canvas.
	Placed int
	// Transparent is the number of samples that hit a fully transparent
	// pixel.
	Transparent int
	// OutOfBounds is the number of samples outside the query image.
	OutOfBounds int
	// NoMatch is the number of samples for which the index returned nothing
	// (empty index).
	NoMatch int
	// TileErrors is the number of samples where the tile could not be loaded.
	TileErrors int
	// Rejected is the number of tiles the canvas did not draw.
	Rejected int
}

// Add adds the values of other to stats.
func (stats *RunStats) Add(other RunStats) {
	stats.Iterations += other.Iterations
	stats.Placed += other.Placed
	stats.Transparent += other.Transparent
	stats.OutOfBounds += other.OutOfBounds
	stats.NoMatch += other.NoMatch
	stats.TileErrors += other.TileErrors
	stats.Rejected += other.Rejected
}

// RunOptions controls Run.
type RunOptions struct {
	// Iterations is the number of samples.
	Iterations int

	// Footprint is the bounding size tiles are resized to.
	Footprint int

	// Progress is called after each iteration, may be nil.
	Progress ProgressFunc

	// OnIteration is called after each iteration with the current canvas,
	// for example to capture frames of the generation process. May be nil.
	// It is not supported by RunParallel.
	OnIteration func(i int, canvas *Canvas)

	// OnPlace is called for each tile drawn on the canvas, may be nil.
	OnPlace func(p Placement)
}

// placer places tiles for single samples. It remembers tiles that failed to
// load s.t. each failure is only logged once.
type placer struct {
	target    image.Image
	index     *ColorIndex
	cache     *TileCache
	canvas    *Canvas
	footprint int
	onPlace   func(p Placement)
	failed    map[TileID]bool
	stats     RunStats
}

func newPlacer(target image.Image, index *ColorIndex, cache *TileCache, canvas *Canvas, footprint int, onPlace func(p Placement)) *placer {
	return &placer{
		target:    target,
		index:     index,
		cache:     cache,
		canvas:    canvas,
		footprint: footprint,
		onPlace:   onPlace,
		failed:    make(map[TileID]bool),
	}
}

// place looks up the best tile for the target pixel src (relative to the
// target bounds) and draws it at dst.
func (p *placer) place(src, dst image.Point) {
	bounds := p.target.Bounds()
	pt := src.Add(bounds.Min)
	if !pt.In(bounds) {
		p.stats.OutOfBounds++
		return
	}
	c := p.target.At(pt.X, pt.Y)
	if IsTransparent(c) {
		p.stats.Transparent++
		return
	}
	record, ok := p.index.Match(c)
	if !ok {
		p.stats.NoMatch++
		return
	}
	p.draw(record, dst)
}

func (p *placer) draw(record TileRecord, dst image.Point) {
	tile, err := p.cache.Get(record.ID, p.footprint)
	if err != nil {
		p.stats.TileErrors++
		if !p.failed[record.ID] {
			p.failed[record.ID] = true
			log.WithFields(log.Fields{
				log.ErrorKey: err,
				"tile":       record.Name,
			}).Warn("Can't load tile, skipping it")
		}
		return
	}
	if !p.canvas.Place(tile, dst.X, dst.Y) {
		p.stats.Rejected++
		return
	}
	p.stats.Placed++
	if p.onPlace != nil {
		p.onPlace(Placement{Tile: record.ID, Name: record.Name, X: dst.X, Y: dst.Y})
	}
}

// Run generates a mosaic by stochastic sampling: In each iteration the
// sampler selects a pixel of the target and a position on the canvas. The
// tile with the closest average color is placed at that position.
// Fully transparent pixels are skipped.
//
// Coverage of the canvas improves with the number of iterations, but some
// areas might never be touched while others are overwritten multiple times.
//
// Errors while loading tiles are logged and the iteration is skipped.
func Run(target image.Image, index *ColorIndex, cache *TileCache, canvas *Canvas,
	sampler *Sampler, opts RunOptions) RunStats {
	p := newPlacer(target, index, cache, canvas, opts.Footprint, opts.OnPlace)
	progress := opts.Progress
	if progress == nil {
		progress = ProgressIgnore
	}
	for i := 0; i < opts.Iterations; i++ {
		src, dst := sampler.Sample()
		p.stats.Iterations++
		p.place(src, dst)
		progress(i + 1)
		if opts.OnIteration != nil {
			opts.OnIteration(i, canvas)
		}
	}
	return p.stats
}

// RunParallel works as Run but distributes the iterations among the given
// samplers, one go routine per sampler. Each go routine draws on a private
// transparent layer, the layers are merged onto the canvas in the order of
// the samplers after all go routines are done.
//
// OnIteration is ignored, Progress and OnPlace are serialized.
func RunParallel(target image.Image, index *ColorIndex, cache *TileCache, canvas *Canvas,
	samplers []*Sampler, opts RunOptions) RunStats {
	numWorkers := len(samplers)
	if numWorkers == 0 {
		return RunStats{}
	}
	bounds := canvas.Bounds()
	layers := make([]*Canvas, numWorkers)
	stats := make([]RunStats, numWorkers)

	var m sync.Mutex
	done := 0
	var progress ProgressFunc
	if opts.Progress != nil {
		progress = func(int) {
			m.Lock()
			defer m.Unlock()
			done++
			opts.Progress(done)
		}
	}
	var onPlace func(p Placement)
	if opts.OnPlace != nil {
		onPlace = func(p Placement) {
			m.Lock()
			defer m.Unlock()
			opts.OnPlace(p)
		}
	}

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		iterations := opts.Iterations / numWorkers
		if w < opts.Iterations%numWorkers {
			iterations++
		}
		layer := NewCanvas(bounds.Dx(), bounds.Dy(), color.Transparent)
		layer.Policy = canvas.Policy
		layers[w] = layer
		g.Go(func() error {
			stats[w] = Run(target, index, cache, layer, samplers[w], RunOptions{
				Iterations: iterations,
				Footprint:  opts.Footprint,
				Progress:   progress,
				OnPlace:    onPlace,
			})
			return nil
		})
	}
	_ = g.Wait()

	var res RunStats
	for w, layer := range layers {
		canvas.Merge(layer)
		res.Add(stats[w])
	}
	return res
}

// Generate creates a canvas for the target (the size of the target
// multiplied by cfg.Scale) and runs the mosaic generation as configured.
// The callbacks of opts are used, iterations and footprint are taken from
// cfg.
func Generate(target image.Image, index *ColorIndex, cache *TileCache, cfg Config, opts RunOptions) (*Canvas, RunStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, RunStats{}, err
	}
	bounds := target.Bounds()
	if bounds.Empty() {
		return nil, RunStats{}, errEmptyTarget
	}
	if index.Len() == 0 {
		log.Warn("No tiles in the color index, the mosaic will be empty")
	}
	srcSize := bounds.Size()
	canvasSize, err := scaledSize(srcSize, cfg.Scale, cfg.Workers)
	if err != nil {
		return nil, RunStats{}, err
	}
	canvas := NewCanvas(canvasSize.X, canvasSize.Y, cfg.Background)
	canvas.Policy = cfg.Policy
	opts.Iterations = cfg.Iterations
	opts.Footprint = cfg.Footprint

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	samplers := make([]*Sampler, cfg.Workers)
	for w := range samplers {
		sampler, err := NewSampler(cfg.Mode, srcSize, canvasSize, cfg.Scale, NewRand(seed+uint64(w)))
		if err != nil {
			return nil, RunStats{}, err
		}
		samplers[w] = sampler
	}
	var stats RunStats
	if cfg.Workers == 1 {
		stats = Run(target, index, cache, canvas, samplers[0], opts)
	} else {
		stats = RunParallel(target, index, cache, canvas, samplers, opts)
	}
	return canvas, stats, nil
}
