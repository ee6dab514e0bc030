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
	"net/http"
	"os"
	"time"

	"github.com/FabianWe/tilemosaic"
	"github.com/FabianWe/tilemosaic/web"
	"github.com/spf13/pflag"

	log "github.com/sirupsen/logrus"
)

func main() {
	tiles := pflag.StringP("tiles", "t", "", "directory containing the tile images")
	recursive := pflag.BoolP("recursive", "r", false, "search the tile directory recursively")
	indexPath := pflag.StringP("index", "x", "", "precomputed color index file")
	addr := pflag.StringP("addr", "a", ":8085", "address to listen on")
	footprint := pflag.IntP("footprint", "f", tilemosaic.DefaultConfig().Footprint, "bounding size of placed tiles")
	maxAge := pflag.Duration("max-age", 30*time.Minute, "connections not used for this long are removed")
	maxScale := pflag.Int("max-scale", 50, "maximal scale a client may set")
	maxWorkers := pflag.Int("max-workers", 8, "maximal number of workers a client may set")
	pflag.Parse()

	if *tiles == "" {
		log.Error("No tile directory given, use --tiles")
		os.Exit(2)
	}
	storage, storageErr := tilemosaic.GenFSTileStore(*tiles, *recursive, tilemosaic.DefaultImageFilter)
	if storageErr != nil {
		log.WithError(storageErr).Fatal("Can't read tile directory")
	}
	defaults := tilemosaic.DefaultConfig()
	defaults.Footprint = *footprint

	var index *tilemosaic.ColorIndex
	if *indexPath != "" {
		var f tilemosaic.IndexFile
		if err := f.ReadFile(*indexPath); err != nil {
			log.WithError(err).Fatal("Can't read color index")
		}
		var missing []string
		index, missing = f.Index(storage)
		if len(missing) > 0 {
			log.WithField("missing", len(missing)).Warn("Tiles without an entry in the index file are ignored")
		}
	} else {
		total := int(storage.NumTiles())
		var err error
		index, err = tilemosaic.BuildColorIndex(storage, defaults.NumRoutines,
			tilemosaic.LoggerProgressFunc("Indexing", total, tilemosaic.ProgressStep(total)))
		if err != nil {
			log.WithError(err).Fatal("Can't create color index")
		}
	}
	log.WithField("tiles", index.Len()).Info("Color index ready")

	connections := web.NewMemStorage()
	done := web.RunFilter(connections, *maxAge, time.Minute)
	defer close(done)

	context := web.NewContext(connections, index,
		tilemosaic.NewTileCache(storage, tilemosaic.NewNfntResizer(defaults.InterP)))
	context.Defaults = defaults
	context.MaxScale = *maxScale
	context.MaxWorkers = *maxWorkers
	web.DefaultHandlers(context, nil)
	log.WithField("addr", *addr).Info("Listening")
	log.Fatal(http.ListenAndServe(*addr, nil))
}
