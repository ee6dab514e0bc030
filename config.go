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
	"image/color"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
)

// Config contains all parameters for mosaic generation.
type Config struct {
	// Iterations is the number of samples taken, each sample places at most
	// one tile.
	Iterations int

	// Footprint is the size of the square each tile is resized to fit in.
	Footprint int

	// Scale is the factor between query image and canvas size.
	Scale int

	// Background is the color of the canvas before anything is placed.
	Background color.NRGBA

	// Mode is the sample mode, see SampleMode.
	Mode SampleMode

	// Seed for the random generator, 0 means a time based seed.
	Seed uint64

	// Workers is the number of go routines placing tiles. With one worker the
	// result is reproducible given a seed; more workers draw on private layers
	// that are merged at the end.
	Workers int

	// Policy describes how tiles exceeding the canvas are handled.
	Policy PlacementPolicy

	// InterP is the interpolation function used when resizing tiles.
	InterP resize.InterpolationFunction

	// JPGQuality is the quality between 1 and 100 used when storing jpeg
	// images.
	JPGQuality int

	// NumRoutines is the number of go routines used to build the color index.
	NumRoutines int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	routines := runtime.NumCPU() * 2
	if routines <= 0 {
		routines = 4
	}
	return Config{
		Iterations:  100000,
		Footprint:   20,
		Scale:       23,
		Background:  DefaultBackground,
		Mode:        SampleSource,
		Seed:        0,
		Workers:     1,
		Policy:      PlaceClip,
		InterP:      DefaultInterP,
		JPGQuality:  100,
		NumRoutines: routines,
	}
}

// Validate returns an error if some value is out of range.
func (c Config) Validate() error {
	switch {
	case c.Iterations < 0:
		return fmt.Errorf("iterations must be ≥ 0, got %d", c.Iterations)
	case c.Footprint < 1:
		return fmt.Errorf("footprint must be ≥ 1, got %d", c.Footprint)
	case c.Scale < 1:
		return fmt.Errorf("scale must be ≥ 1, got %d", c.Scale)
	case c.Workers < 1:
		return fmt.Errorf("workers must be ≥ 1, got %d", c.Workers)
	case c.JPGQuality < 1 || c.JPGQuality > 100:
		return fmt.Errorf("jpeg-quality must be a value between 1 and 100, got %d", c.JPGQuality)
	case c.NumRoutines < 1:
		return fmt.Errorf("routines must be ≥ 1, got %d", c.NumRoutines)
	}
	return nil
}

// ErrUnknownVar is returned by Config.Set for unknown variable names.
var ErrUnknownVar = errors.New("unknown variable")

func parsePositive(name, value string) (int, error) {
	i, err := strconv.Atoi(value)
	if err != nil {
		return -1, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	if i < 1 {
		return -1, fmt.Errorf("%s must be ≥ 1, got %d", name, i)
	}
	return i, nil
}

// Set sets a variable given its name and a string representation of the
// value, the names are the ones returned by Vars.
func (c *Config) Set(name, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch strings.ToLower(name) {
	case "iterations":
		var i int
		i, err = strconv.Atoi(value)
		if err == nil && i < 0 {
			err = fmt.Errorf("iterations must be ≥ 0, got %d", i)
		}
		if err == nil {
			c.Iterations = i
		}
	case "footprint":
		c.Footprint, err = setPositive(c.Footprint, name, value)
	case "scale":
		c.Scale, err = setPositive(c.Scale, name, value)
	case "workers":
		c.Workers, err = setPositive(c.Workers, name, value)
	case "routines":
		c.NumRoutines, err = setPositive(c.NumRoutines, name, value)
	case "jpeg-quality":
		var q int
		q, err = strconv.Atoi(value)
		if err == nil && (q < 1 || q > 100) {
			err = fmt.Errorf("jpeg-quality must be a value between 1 and 100, got %d", q)
		}
		if err == nil {
			c.JPGQuality = q
		}
	case "background":
		var bg color.NRGBA
		if bg, err = ParseBackground(value); err == nil {
			c.Background = bg
		}
	case "mode":
		var mode SampleMode
		if mode, err = ParseSampleMode(value); err == nil {
			c.Mode = mode
		}
	case "policy":
		var policy PlacementPolicy
		if policy, err = ParsePlacementPolicy(value); err == nil {
			c.Policy = policy
		}
	case "interp":
		var interP resize.InterpolationFunction
		if interP, err = InterPFromString(value); err == nil {
			c.InterP = interP
		}
	case "seed":
		var seed uint64
		if seed, err = strconv.ParseUint(value, 10, 64); err == nil {
			c.Seed = seed
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVar, name)
	}
	return err
}

func setPositive(old int, name, value string) (int, error) {
	i, err := parsePositive(name, value)
	if err != nil {
		return old, err
	}
	return i, nil
}

// Vars returns all variables that can be set with Set and their current
// values.
func (c Config) Vars() map[string]string {
	return map[string]string{
		"iterations":   strconv.Itoa(c.Iterations),
		"footprint":    strconv.Itoa(c.Footprint),
		"scale":        strconv.Itoa(c.Scale),
		"background":   FormatBackground(c.Background),
		"mode":         c.Mode.String(),
		"seed":         strconv.FormatUint(c.Seed, 10),
		"workers":      strconv.Itoa(c.Workers),
		"policy":       c.Policy.String(),
		"interp":       InterPString(c.InterP),
		"jpeg-quality": strconv.Itoa(c.JPGQuality),
		"routines":     strconv.Itoa(c.NumRoutines),
	}
}

// VarNames returns the sorted names of all variables.
func VarNames() []string {
	vars := DefaultConfig().Vars()
	res := make([]string, 0, len(vars))
	for name := range vars {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
