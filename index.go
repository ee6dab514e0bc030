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
	"image/color"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TileRecord describes an indexed tile: its id in the storage, its name and
// its average color (computed over all pixels that are not fully
// transparent).
type TileRecord struct {
	ID      TileID
	Name    string
	Average AverageColor
}

// SkippedTile is a tile that was not added to the index together with the
// reason.
type SkippedTile struct {
	ID     TileID
	Name   string
	Reason string
}

// ColorIndex maps colors to the tile with the closest average color.
// It is built once and read-only afterwards, it is safe to query it
// concurrently.
type ColorIndex struct {
	records []TileRecord
	tree    *kdTree
	skipped []SkippedTile
}

// NewColorIndex creates an index from the given records. The order of
// records is the insertion order: If two records have the same distance to
// a query color the record that comes first wins.
func NewColorIndex(records []TileRecord) *ColorIndex {
	records = append([]TileRecord(nil), records...)
	colors := make([]AverageColor, len(records))
	for i, r := range records {
		colors[i] = r.Average
	}
	return &ColorIndex{
		records: records,
		tree:    newKDTree(colors),
	}
}

// Len returns the number of indexed tiles.
func (idx *ColorIndex) Len() int {
	return len(idx.records)
}

// Records returns the indexed tiles in insertion order.
func (idx *ColorIndex) Records() []TileRecord {
	return idx.records
}

// Skipped returns the tiles that were excluded while building the index.
func (idx *ColorIndex) Skipped() []SkippedTile {
	return idx.skipped
}

// Nearest returns the tile with the smallest (euclidean) distance to c.
// It returns false if the index is empty.
func (idx *ColorIndex) Nearest(c AverageColor) (TileRecord, bool) {
	pos, _ := idx.tree.nearest(c)
	if pos < 0 {
		return TileRecord{}, false
	}
	return idx.records[pos], true
}

// Match returns the tile that matches a pixel best. Fully transparent pixels
// never match anything, false is returned without querying the index.
func (idx *ColorIndex) Match(c color.Color) (TileRecord, bool) {
	if IsTransparent(c) {
		return TileRecord{}, false
	}
	return idx.Nearest(AverageFromColor(c))
}

// BuildColorIndex loads all tiles from the storage and computes their average
// colors. numRoutines tiles are processed concurrently.
//
// Tiles that can't be decoded or don't have a single pixel that is not fully
// transparent are not added to the index, a warning is logged and they're
// reported by Skipped. The remaining tiles are inserted in the order of their
// ids, thus the result does not depend on numRoutines.
func BuildColorIndex(storage TileStorage, numRoutines int, progress ProgressFunc) (*ColorIndex, error) {
	if storage == nil {
		return nil, errors.New("no tile storage given")
	}
	if numRoutines <= 0 {
		numRoutines = 1
	}
	if progress == nil {
		progress = ProgressIgnore
	}
	numTiles := int(storage.NumTiles())
	type result struct {
		average AverageColor
		opaque  int
		err     error
	}
	results := make([]result, numTiles)
	done := make(chan struct{}, BufferSize)
	var g errgroup.Group
	g.SetLimit(numRoutines)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for i := 0; i < numTiles; i++ {
			<-done
			progress(i + 1)
		}
	}()
	for i := 0; i < numTiles; i++ {
		g.Go(func() error {
			defer func() { done <- struct{}{} }()
			img, err := storage.LoadTile(TileID(i))
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].average, results[i].opaque = ComputeAverageColor(img)
			return nil
		})
	}
	// workers never return an error, decode errors are reported per tile
	_ = g.Wait()
	<-progressDone

	records := make([]TileRecord, 0, numTiles)
	var skipped []SkippedTile
	for i, res := range results {
		id := TileID(i)
		name := storage.TileName(id)
		switch {
		case res.err != nil:
			log.WithFields(log.Fields{
				log.ErrorKey: res.err,
				"tile":       name,
			}).Warn("Can't decode tile, ignoring it")
			skipped = append(skipped, SkippedTile{ID: id, Name: name, Reason: res.err.Error()})
		case res.opaque == 0:
			log.WithField("tile", name).Warn("Tile is fully transparent, ignoring it")
			skipped = append(skipped, SkippedTile{ID: id, Name: name, Reason: "fully transparent"})
		default:
			records = append(records, TileRecord{ID: id, Name: name, Average: res.average})
		}
	}
	index := NewColorIndex(records)
	index.skipped = skipped
	return index, nil
}
