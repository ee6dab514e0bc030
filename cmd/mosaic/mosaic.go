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

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/FabianWe/tilemosaic"
	"github.com/spf13/pflag"

	log "github.com/sirupsen/logrus"
)

type options struct {
	tiles      string
	recursive  bool
	index      string
	iterations int
	footprint  int
	scale      int
	background string
	mode       string
	seed       uint64
	workers    int
	interp     string
	strict     bool
	framesDir  string
	frameEvery int
	layout     string
	step       int
	script     string
	verbose    bool
}

func main() {
	var opts options
	defaults := tilemosaic.DefaultConfig()
	flags := pflag.NewFlagSet("mosaic", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mosaic [flags] <in> <out>")
		fmt.Fprintln(os.Stderr, "Without arguments an interactive session is started.")
		flags.PrintDefaults()
	}
	flags.StringVarP(&opts.tiles, "tiles", "t", "", "directory containing the tile images")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "search the tile directory recursively")
	flags.StringVarP(&opts.index, "index", "x", "", "color index file (.json or .gob, optionally .zst); created if it does not exist")
	flags.IntVarP(&opts.iterations, "iterations", "n", defaults.Iterations, "number of sampling iterations")
	flags.IntVarP(&opts.footprint, "footprint", "f", defaults.Footprint, "bounding size of placed tiles in pixels")
	flags.IntVarP(&opts.scale, "scale", "s", defaults.Scale, "ratio of output size to query size")
	flags.StringVarP(&opts.background, "background", "b", tilemosaic.FormatBackground(defaults.Background), "canvas background, #rrggbb or 0xRRGGBBAA")
	flags.StringVarP(&opts.mode, "mode", "m", defaults.Mode.String(), "sampling mode: source or destination")
	flags.Uint64Var(&opts.seed, "seed", defaults.Seed, "random seed, 0 for a time based seed")
	flags.IntVarP(&opts.workers, "workers", "w", defaults.Workers, "number of parallel renderers")
	flags.StringVar(&opts.interp, "interp", tilemosaic.InterPString(defaults.InterP), "interpolation used to resize tiles")
	flags.BoolVar(&opts.strict, "strict", false, "reject tiles that exceed the canvas instead of clipping them")
	flags.StringVar(&opts.framesDir, "frames-dir", "", "write intermediate canvases to this directory")
	flags.IntVar(&opts.frameEvery, "frame-every", 1000, "iterations between two intermediate canvases")
	flags.StringVar(&opts.layout, "layout", "", "write the grid layout of the query image as json to this file")
	flags.IntVar(&opts.step, "step", 1, "pixel step of the grid layout")
	flags.StringVar(&opts.script, "script", "", "execute a script file or a predefined script (simple, indexed, save), remaining arguments replace $1, $2, ...")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print debug output")
	flags.Parse(os.Args[1:])

	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	switch {
	case opts.script != "":
		os.Exit(runScript(opts.script, flags.Args()))
	case flags.NArg() == 0 && opts.tiles == "":
		repl()
	case flags.NArg() == 2:
		if err := runOnce(opts, flags.Arg(0), flags.Arg(1)); err != nil {
			log.WithError(err).Error("Mosaic generation failed")
			os.Exit(1)
		}
	default:
		flags.Usage()
		os.Exit(2)
	}
}

func repl() {
	state, err := tilemosaic.NewExecutorState(os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	tilemosaic.Execute(state, tilemosaic.ReplHandler{}, tilemosaic.DefaultCommands)
}

// runScript executes a predefined script (see tilemosaic.PredefinedScripts)
// or a script file.
func runScript(name string, args []string) int {
	var script io.Reader
	if predefined, ok := tilemosaic.PredefinedScripts[name]; ok {
		script = strings.NewReader(predefined)
	} else {
		f, err := os.Open(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		defer f.Close()
		script = f
	}
	in, paramErr := tilemosaic.Parameterized(script, args...)
	if paramErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", paramErr)
		return 1
	}
	state, stateErr := tilemosaic.NewExecutorState(in, os.Stdout)
	if stateErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", stateErr)
		return 1
	}
	handler := tilemosaic.NewScriptHandler(os.Stderr)
	tilemosaic.Execute(state, handler, tilemosaic.DefaultCommands)
	if handler.Failed {
		return 1
	}
	return 0
}

func buildConfig(opts options) (tilemosaic.Config, error) {
	cfg := tilemosaic.DefaultConfig()
	cfg.Iterations = opts.iterations
	cfg.Footprint = opts.footprint
	cfg.Scale = opts.scale
	cfg.Seed = opts.seed
	cfg.Workers = opts.workers
	if opts.strict {
		cfg.Policy = tilemosaic.PlaceReject
	}
	for name, value := range map[string]string{
		"background": opts.background,
		"mode":       opts.mode,
		"interp":     opts.interp,
	} {
		if err := cfg.Set(name, value); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// loadIndex reads the index file if it exists, otherwise the index is
// computed and written to the file (if a file is given).
func loadIndex(opts options, storage *tilemosaic.FSTileStore, cfg tilemosaic.Config) (*tilemosaic.ColorIndex, error) {
	if opts.index != "" {
		var f tilemosaic.IndexFile
		err := f.ReadFile(opts.index)
		switch {
		case err == nil:
			index, missing := f.Index(storage)
			if len(missing) > 0 {
				log.WithFields(log.Fields{
					"missing": len(missing),
					"index":   opts.index,
				}).Warn("Tiles without an entry in the index file are ignored")
			}
			return index, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	total := int(storage.NumTiles())
	index, err := tilemosaic.BuildColorIndex(storage, cfg.NumRoutines,
		tilemosaic.LoggerProgressFunc("Indexing", total, tilemosaic.ProgressStep(total)))
	if err != nil {
		return nil, err
	}
	if opts.index != "" {
		if err := tilemosaic.IndexFileFromIndex(index).WriteFile(opts.index); err != nil {
			return nil, err
		}
		log.WithField("index", opts.index).Info("Color index saved")
	}
	return index, nil
}

func runOnce(opts options, in, out string) error {
	if opts.tiles == "" {
		return errors.New("no tile directory given, use --tiles")
	}
	cfg, cfgErr := buildConfig(opts)
	if cfgErr != nil {
		return cfgErr
	}
	storage, storageErr := tilemosaic.GenFSTileStore(opts.tiles, opts.recursive, tilemosaic.DefaultImageFilter)
	if storageErr != nil {
		return storageErr
	}
	log.WithField("tiles", storage.NumTiles()).Info("Tile library loaded")
	index, indexErr := loadIndex(opts, storage, cfg)
	if indexErr != nil {
		return indexErr
	}
	if opts.layout != "" {
		layout, err := tilemosaic.WriteLayout(in, opts.layout, index, opts.step, cfg.Scale)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"placements": len(layout.Placements),
			"file":       opts.layout,
		}).Info("Layout written")
	}

	cache := tilemosaic.NewTileCache(storage, tilemosaic.NewNfntResizer(cfg.InterP))
	runOpts := tilemosaic.RunOptions{
		Progress: tilemosaic.LoggerProgressFunc("", cfg.Iterations, tilemosaic.ProgressStep(cfg.Iterations)),
	}
	if opts.framesDir != "" {
		onIteration, err := frameWriter(opts.framesDir, opts.frameEvery, cfg.JPGQuality)
		if err != nil {
			return err
		}
		runOpts.OnIteration = onIteration
		if cfg.Workers > 1 {
			log.Warn("Intermediate frames are not written with more than one worker")
		}
	}
	stats, err := tilemosaic.GenerateFile(in, out, index, cache, cfg, runOpts)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"iterations":  stats.Iterations,
		"placed":      stats.Placed,
		"transparent": stats.Transparent,
		"rejected":    stats.Rejected,
		"tile-errors": stats.TileErrors,
	}).Info("Done")
	return nil
}

func frameWriter(dir string, every, jpgQuality int) (func(i int, canvas *tilemosaic.Canvas), error) {
	if every <= 0 {
		return nil, fmt.Errorf("frame-every must be positive, got %d", every)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	frame := 0
	return func(i int, canvas *tilemosaic.Canvas) {
		if (i+1)%every != 0 {
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", frame))
		frame++
		if err := tilemosaic.SaveImage(path, canvas.Image(), jpgQuality); err != nil {
			log.WithError(err).WithField("file", path).Error("Can't write frame")
		}
	}, nil
}
