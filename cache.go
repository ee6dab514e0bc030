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
	"sync"
)

// cachedTile is either a resized tile or the error that occurred while
// loading it.
type cachedTile struct {
	img image.Image
	err error
}

// TileCache is used to cache resized versions of tiles during mosaic
// generation. The same tile is usually placed very often and resizing an
// image is not very fast.
//
// A tile is loaded from the storage and resized the first time it is
// requested. The size of the first request is the size that is used for
// the rest of the lifetime of the cache: Later requests for the same tile
// return the cached image even if they ask for another size. Thus use one
// cache per footprint. Failures are cached as well, a tile that can't be
// loaded is not loaded again.
//
// Entries are never evicted. Caches are safe for concurrent use.
type TileCache struct {
	m       sync.Mutex
	storage TileStorage
	resizer ImageResizer
	content map[TileID]cachedTile
}

// NewTileCache returns an empty cache. If resizer is nil DefaultResizer is
// used.
func NewTileCache(storage TileStorage, resizer ImageResizer) *TileCache {
	if resizer == nil {
		resizer = DefaultResizer
	}
	return &TileCache{
		storage: storage,
		resizer: resizer,
		content: make(map[TileID]cachedTile),
	}
}

// Get returns the tile resized s.t. it fits in a boundingSize x boundingSize
// square (see FitSize).
// If the tile was requested before the cached result is returned, whatever
// boundingSize was used then.
func (cache *TileCache) Get(id TileID, boundingSize int) (image.Image, error) {
	cache.m.Lock()
	defer cache.m.Unlock()
	if entry, has := cache.content[id]; has {
		return entry.img, entry.err
	}
	img, err := cache.load(id, boundingSize)
	cache.content[id] = cachedTile{img: img, err: err}
	return img, err
}

func (cache *TileCache) load(id TileID, boundingSize int) (image.Image, error) {
	if boundingSize <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", boundingSize)
	}
	img, err := cache.storage.LoadTile(id)
	if err != nil {
		return nil, fmt.Errorf("can't load tile %d (%s): %w", id, cache.storage.TileName(id), err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("tile %d (%s) is empty", id, cache.storage.TileName(id))
	}
	width, height := FitSize(bounds.Dx(), bounds.Dy(), boundingSize)
	if width == bounds.Dx() && height == bounds.Dy() {
		return img, nil
	}
	return cache.resizer.Resize(uint(width), uint(height), img), nil
}

// Len returns the number of cached tiles (including failed ones).
func (cache *TileCache) Len() int {
	cache.m.Lock()
	defer cache.m.Unlock()
	return len(cache.content)
}
