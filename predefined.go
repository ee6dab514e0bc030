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

// Predefined scripts for the command executor, see Parameterized.

var (
	// RunSimple loads the tiles from a directory, computes the color index and
	// creates the mosaic. Nothing is stored on the filesystem but the mosaic.
	// Parameters: tile directory, query image and output file.
	//
	// Example: RunSimple ~/Pictures/ input.jpg output.png
	RunSimple = `storage load "$1"
index create
mosaic "$2" "$3"`

	// RunIndexed is similar to RunSimple but uses a precomputed index file,
	// if the file doesn't exist yet use RunSaveIndex first.
	// Parameters: tile directory, index file, query image and output file.
	RunIndexed = `storage load "$1"
index load "$2"
mosaic "$3" "$4"`

	// RunSaveIndex computes the color index of a tile directory and stores
	// it. Parameters: tile directory and index file.
	RunSaveIndex = `storage load "$1" true
index create
index save "$2"`
)

// PredefinedScripts maps names to the scripts above.
var PredefinedScripts = map[string]string{
	"simple":  RunSimple,
	"indexed": RunIndexed,
	"save":    RunSaveIndex,
}
