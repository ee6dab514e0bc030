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
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// IndexEntry stores the average color of a tile, identified by its name
// (the path relative to the tile directory).
type IndexEntry struct {
	Path    string       `json:"image_id"`
	Average AverageColor `json:"average_rgb"`
}

// IndexFile is used to store precomputed average colors on the filesystem,
// computing the colors of a big tile library takes some time.
//
// Files are encoded in json or gob, depending on the file extension. If the
// file name has an additional ".zst" extension (e.g. "index.json.zst") the
// content is compressed with zstd.
type IndexFile struct {
	Entries []IndexEntry
	Version string
}

// IndexFileFromIndex creates the file content for all records in index.
func IndexFileFromIndex(index *ColorIndex) *IndexFile {
	records := index.Records()
	res := &IndexFile{Entries: make([]IndexEntry, len(records))}
	for i, r := range records {
		res.Entries[i] = IndexEntry{Path: r.Name, Average: r.Average}
	}
	return res
}

// IndexFileName returns the proposed filename for an index file given the
// extension, for example "tiles-index.json.zst".
func IndexFileName(ext string) string {
	return "tiles-index." + strings.TrimPrefix(ext, ".")
}

// splitExt returns the encoding extension (.json or .gob) and whether the
// file is compressed.
func splitExt(path string) (string, bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	compressed := false
	if ext == ".zst" {
		compressed = true
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
	}
	switch ext {
	case ".json", ".gob":
		return ext, compressed, nil
	default:
		return "", false, fmt.Errorf("unknown file extension for index file: %q, should be \".json\" or \".gob\" (optionally followed by \".zst\")", ext)
	}
}

// Encode writes the file content to w, ext is either ".json" or ".gob".
func (f *IndexFile) Encode(w io.Writer, ext string) error {
	f.Version = Version
	switch ext {
	case ".json":
		return json.NewEncoder(w).Encode(f)
	case ".gob":
		return gob.NewEncoder(w).Encode(f)
	default:
		return fmt.Errorf("unknown index encoding %q", ext)
	}
}

// Decode reads the file content from r, ext is either ".json" or ".gob".
func (f *IndexFile) Decode(r io.Reader, ext string) error {
	switch ext {
	case ".json":
		return json.NewDecoder(r).Decode(f)
	case ".gob":
		return gob.NewDecoder(r).Decode(f)
	default:
		return fmt.Errorf("unknown index encoding %q", ext)
	}
}

// WriteFile writes the content to a file, the encoding depends on the file
// extension.
func (f *IndexFile) WriteFile(path string) (err error) {
	ext, compressed, extErr := splitExt(path)
	if extErr != nil {
		return extErr
	}
	out, createErr := os.Create(path)
	if createErr != nil {
		return createErr
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()
	if !compressed {
		return f.Encode(out, ext)
	}
	enc, encErr := zstd.NewWriter(out)
	if encErr != nil {
		return encErr
	}
	if err := f.Encode(enc, ext); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadFile reads the content from a file, the encoding depends on the file
// extension.
func (f *IndexFile) ReadFile(path string) error {
	ext, compressed, extErr := splitExt(path)
	if extErr != nil {
		return extErr
	}
	in, openErr := os.Open(path)
	if openErr != nil {
		return openErr
	}
	defer in.Close()
	if !compressed {
		return f.Decode(in, ext)
	}
	dec, decErr := zstd.NewReader(in)
	if decErr != nil {
		return decErr
	}
	defer dec.Close()
	return f.Decode(dec, ext)
}

// Map computes the mapping path ↦ average color.
func (f *IndexFile) Map() map[string]AverageColor {
	res := make(map[string]AverageColor, len(f.Entries))
	for _, entry := range f.Entries {
		res[entry.Path] = entry.Average
	}
	return res
}

// Index creates a color index for all tiles in storage that have an entry in
// the file. The records are inserted in the order of the tile ids.
// The names of all tiles without an entry are returned as well, they have
// either been added after the file was created or were skipped (decode error
// or fully transparent) when it was created.
func (f *IndexFile) Index(storage TileStorage) (*ColorIndex, []string) {
	averages := f.Map()
	numTiles := storage.NumTiles()
	records := make([]TileRecord, 0, numTiles)
	var missing []string
	for id := TileID(0); id < numTiles; id++ {
		name := storage.TileName(id)
		avg, has := averages[name]
		if !has {
			missing = append(missing, name)
			continue
		}
		records = append(records, TileRecord{ID: id, Name: name, Average: avg})
	}
	return NewColorIndex(records), missing
}
