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
	"os"
	"path/filepath"
	"strings"

	// register decoders for tiles and query images
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// SupportedImageFunc is a function that takes a file extension and decides if
// this file extension is supported.
//
// The extension passed to this function could be for example ".txt" or ".jpg".
type SupportedImageFunc func(ext string) bool

// JPGAndPNG is an implementation of SupportedImageFunc accepting jpg and png
// file extensions.
func JPGAndPNG(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// DefaultImageFilter accepts all formats a decoder is registered for: jpg,
// png, gif, webp and bmp.
func DefaultImageFilter(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	default:
		return false
	}
}

// TileID is used to unambiguously identify a tile in a TileStorage.
type TileID int

const (
	// NoTileID is used to signal that no tile was found.
	NoTileID TileID = -1
)

// TileStorage is used to administrate a library of tiles.
// Tiles are not stored in memory but are identified by an id and can be
// loaded into memory when required.
// All ids < NumTiles are valid.
//
// Implementations must be safe for concurrent use.
type TileStorage interface {
	// NumTiles returns the number of tiles in the storage.
	NumTiles() TileID

	// LoadTile loads the tile into memory.
	LoadTile(id TileID) (image.Image, error)

	// TileName returns a name that identifies the tile, for example the path
	// relative to the library root. Names must be unique within a storage.
	TileName(id TileID) string
}

// FSTileStore implements TileStorage. It uses images stored on the filesystem
// and opens them on demand.
// The paths are stored relative to a Root directory.
type FSTileStore struct {
	Root  string
	Paths []string
}

// NewFSTileStore returns an empty storage with the given root.
func NewFSTileStore(root string) *FSTileStore {
	return &FSTileStore{Root: root, Paths: nil}
}

// GetPath returns the absolute path of the tile.
func (db *FSTileStore) GetPath(id TileID) string {
	return filepath.Join(db.Root, db.Paths[id])
}

func (db *FSTileStore) NumTiles() TileID {
	return TileID(len(db.Paths))
}

func (db *FSTileStore) TileName(id TileID) string {
	if id < 0 || id >= db.NumTiles() {
		return ""
	}
	return db.Paths[id]
}

// LoadTile opens the image file. The EXIF orientation of jpeg files is
// applied.
func (db *FSTileStore) LoadTile(id TileID) (image.Image, error) {
	if id < 0 || id >= db.NumTiles() {
		return nil, fmt.Errorf("invalid tile id %d: not associated with an image", id)
	}
	return imaging.Open(db.GetPath(id), imaging.AutoOrientation(true))
}

// IDs returns a mapping from tile name (relative path) to id.
func (db *FSTileStore) IDs() map[string]TileID {
	res := make(map[string]TileID, len(db.Paths))
	for i, p := range db.Paths {
		res[p] = TileID(i)
	}
	return res
}

// GenFSTileStore creates a storage containing all images in root that are
// accepted by filter (DefaultImageFilter if nil). If recursive is true
// sub-directories are scanned as well.
// An error is returned if root is not a readable directory.
func GenFSTileStore(root string, recursive bool, filter SupportedImageFunc) (*FSTileStore, error) {
	root, absErr := filepath.Abs(root)
	if absErr != nil {
		return nil, absErr
	}
	info, statErr := os.Stat(root)
	if statErr != nil {
		return nil, fmt.Errorf("invalid tile directory: %w", statErr)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid tile directory: %s is not a directory", root)
	}
	if filter == nil {
		filter = DefaultImageFilter
	}
	result := NewFSTileStore(root)
	walkFunc := func(path string, d os.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		case filter(filepath.Ext(path)):
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			result.Paths = append(result.Paths, filepath.ToSlash(rel))
			return nil
		default:
			return nil
		}
	}
	if err := filepath.WalkDir(root, walkFunc); err != nil {
		return nil, err
	}
	return result, nil
}

// MemTileStore is a TileStorage with all tiles in memory.
type MemTileStore struct {
	Names []string
	Tiles []image.Image
}

// NewMemTileStore returns an empty storage.
func NewMemTileStore() *MemTileStore {
	return &MemTileStore{}
}

// Add adds a tile and returns its id.
func (s *MemTileStore) Add(name string, img image.Image) TileID {
	s.Names = append(s.Names, name)
	s.Tiles = append(s.Tiles, img)
	return TileID(len(s.Tiles) - 1)
}

func (s *MemTileStore) NumTiles() TileID {
	return TileID(len(s.Tiles))
}

func (s *MemTileStore) TileName(id TileID) string {
	if id < 0 || id >= s.NumTiles() {
		return ""
	}
	return s.Names[id]
}

func (s *MemTileStore) LoadTile(id TileID) (image.Image, error) {
	if id < 0 || id >= s.NumTiles() {
		return nil, fmt.Errorf("invalid tile id %d: not associated with an image", id)
	}
	img := s.Tiles[id]
	if img == nil {
		return nil, fmt.Errorf("no image data for tile %d", id)
	}
	return img, nil
}
