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

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"

	"github.com/FabianWe/tilemosaic"
	"github.com/gorilla/schema"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyHandled is returned by handlers that already wrote an error
	// response.
	ErrAlreadyHandled = errors.New("error was already handled")
)

// Keys of the json and form values sent by clients.
const (
	VarKey        = "var"
	ValueKey      = "value"
	ConnectionKey = "connection"
	ImageKey      = "image"
)

// Context is shared by all handlers. Index and Cache are read by all
// connections, each connection has its own configuration.
type Context struct {
	Storage ConnectionStorage
	Index   *tilemosaic.ColorIndex
	Cache   *tilemosaic.TileCache
	// Defaults is the configuration of new connections.
	Defaults tilemosaic.Config
	// MaxUpload is the maximum memory in bytes used for parsing uploads.
	MaxUpload int64
	// MaxIterations limits the iterations a client may request.
	MaxIterations int
	// MaxScale limits the scale a client may set.
	MaxScale int
	// MaxWorkers limits the number of workers a client may set.
	MaxWorkers int

	decoder *schema.Decoder
}

// NewContext returns a new context. The footprint of the default
// configuration must not change after the context is created, all
// connections share the tiles in cache.
func NewContext(storage ConnectionStorage, index *tilemosaic.ColorIndex, cache *tilemosaic.TileCache) *Context {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Context{
		Storage:       storage,
		Index:         index,
		Cache:         cache,
		Defaults:      tilemosaic.DefaultConfig(),
		MaxUpload:     32 << 20,
		MaxIterations: 1000000,
		MaxScale:      50,
		MaxWorkers:    8,
		decoder:       decoder,
	}
}

// checkLimits returns an error if cfg exceeds the limits of the context.
func (context *Context) checkLimits(cfg tilemosaic.Config) error {
	switch {
	case cfg.Iterations > context.MaxIterations:
		return fmt.Errorf("at most %d iterations are allowed", context.MaxIterations)
	case cfg.Scale > context.MaxScale:
		return fmt.Errorf("scale must be at most %d", context.MaxScale)
	case cfg.Workers > context.MaxWorkers:
		return fmt.Errorf("at most %d workers are allowed", context.MaxWorkers)
	}
	return nil
}

// HandlerFunc handles a request and returns the data that is written as
// json.
type HandlerFunc func(context *Context, w http.ResponseWriter, r *http.Request) (interface{}, error)

// ToHTTPFunc writes the result of handler as json. If handler returns
// ErrAlreadyHandled the response was already written by the handler.
func ToHTTPFunc(context *Context, handler HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonData, err := handler(context, w, r)
		if err != nil {
			if err != ErrAlreadyHandled {
				log.WithError(err).Error("Error in request")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}
		jData, jErr := json.Marshal(jsonData)
		if jErr != nil {
			log.WithError(jErr).Error("Internal error: Can't marshal json")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jData)
	}
}

func badRequest(w http.ResponseWriter, err error) error {
	http.Error(w, err.Error(), http.StatusBadRequest)
	return ErrAlreadyHandled
}

// JSONMap is the decoded json body of a request.
type JSONMap map[string]interface{}

// GetString returns the string entry for key.
func (m JSONMap) GetString(key string) (string, error) {
	val, has := m[key]
	if !has {
		return "", fmt.Errorf("key not found: %s", key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("entry for %s not of type string", key)
	}
	return str, nil
}

// GetValue returns the string representation of a string, number or bool
// entry.
func (m JSONMap) GetValue(key string) (string, error) {
	val, has := m[key]
	if !has {
		return "", fmt.Errorf("key not found: %s", key)
	}
	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("entry for %s must be a string, number or bool", key)
	}
}

// GetConnection parses the connection id of the request.
func (m JSONMap) GetConnection() (ConnectionID, error) {
	str, lookupErr := m.GetString(ConnectionKey)
	if lookupErr != nil {
		return ConnectionID{}, lookupErr
	}
	return ParseConnectionID(str)
}

// ProcessRequest decodes the json body of r.
func ProcessRequest(w http.ResponseWriter, r *http.Request) (JSONMap, error) {
	if r.Body == nil {
		return nil, badRequest(w, errors.New("no request body given"))
	}
	m := make(JSONMap)
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return nil, badRequest(w, fmt.Errorf("invalid request, expected valid JSON, got: %w", err))
	}
	return m, nil
}

func lookupState(context *Context, w http.ResponseWriter, id ConnectionID) (*State, error) {
	state, connErr := context.Storage.Get(id)
	if connErr != nil {
		return nil, badRequest(w, connErr)
	}
	state.Touch()
	return state, nil
}

type StateHandlerFunc func(state *State, context *Context, w http.ResponseWriter, jsonMap JSONMap) (interface{}, error)

// StateHandlerToHTTPFunc parses the json request, looks up the connection
// state and calls handler.
func StateHandlerToHTTPFunc(context *Context, handler StateHandlerFunc) http.HandlerFunc {
	stateHandler := func(context *Context, w http.ResponseWriter, r *http.Request) (interface{}, error) {
		jsonMap, jsonErr := ProcessRequest(w, r)
		if jsonErr != nil {
			return nil, jsonErr
		}
		connectionID, connectionKeyErr := jsonMap.GetConnection()
		if connectionKeyErr != nil {
			return nil, badRequest(w, connectionKeyErr)
		}
		state, stateErr := lookupState(context, w, connectionID)
		if stateErr != nil {
			return nil, stateErr
		}
		return handler(state, context, w, jsonMap)
	}
	return ToHTTPFunc(context, stateHandler)
}

// InitHandler creates a new connection.
func InitHandler(context *Context, w http.ResponseWriter, r *http.Request) (interface{}, error) {
	id, idErr := GenConnectionID()
	if idErr != nil {
		return nil, idErr
	}
	if err := context.Storage.Set(id, NewState(context.Defaults)); err != nil {
		return nil, err
	}
	return map[string]string{ConnectionKey: id.String()}, nil
}

// GetVarHandler returns all variables of the connection.
func GetVarHandler(state *State, context *Context, w http.ResponseWriter, jsonMap JSONMap) (interface{}, error) {
	return state.Config().Vars(), nil
}

// SetVarHandler sets a single variable, footprint, interp and routines are
// fixed by the server. Values above the limits of the context are rejected.
func SetVarHandler(state *State, context *Context, w http.ResponseWriter, jsonMap JSONMap) (interface{}, error) {
	varName, varErr := jsonMap.GetString(VarKey)
	if varErr != nil {
		return nil, badRequest(w, varErr)
	}
	switch varName {
	case "footprint", "interp", "routines":
		return nil, badRequest(w, fmt.Errorf("variable %s can't be changed", varName))
	}
	value, valueErr := jsonMap.GetValue(ValueKey)
	if valueErr != nil {
		return nil, badRequest(w, valueErr)
	}
	if err := state.Update(varName, value, context.checkLimits); err != nil {
		return nil, badRequest(w, err)
	}
	return map[string]bool{"success": true}, nil
}

type mosaicRequest struct {
	Connection string `schema:"connection,required"`
	Iterations int    `schema:"iterations"`
	Seed       uint64 `schema:"seed"`
	Format     string `schema:"format"`
}

type layoutRequest struct {
	Connection string `schema:"connection,required"`
	Step       int    `schema:"step"`
}

// parseUpload parses a multipart request: the form values are decoded into
// dst and the uploaded query image is returned together with the state of
// the connection.
func parseUpload(context *Context, w http.ResponseWriter, r *http.Request, dst interface{}, connection func() string) (*State, image.Image, error) {
	if err := r.ParseMultipartForm(context.MaxUpload); err != nil {
		return nil, nil, badRequest(w, err)
	}
	if err := context.decoder.Decode(dst, r.MultipartForm.Value); err != nil {
		return nil, nil, badRequest(w, err)
	}
	id, idErr := ParseConnectionID(connection())
	if idErr != nil {
		return nil, nil, badRequest(w, idErr)
	}
	state, stateErr := lookupState(context, w, id)
	if stateErr != nil {
		return nil, nil, stateErr
	}
	f, _, fileErr := r.FormFile(ImageKey)
	if fileErr != nil {
		return nil, nil, badRequest(w, fileErr)
	}
	defer f.Close()
	img, _, decodeErr := image.Decode(f)
	if decodeErr != nil {
		return nil, nil, badRequest(w, fmt.Errorf("can't decode query image: %w", decodeErr))
	}
	return state, img, nil
}

// MosaicHandler generates a mosaic for the uploaded image and returns it
// base64 encoded.
func MosaicHandler(context *Context, w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req mosaicRequest
	state, img, err := parseUpload(context, w, r, &req, func() string { return req.Connection })
	if err != nil {
		return nil, err
	}
	cfg := state.Config()
	cfg.Footprint = context.Defaults.Footprint
	cfg.InterP = context.Defaults.InterP
	if req.Iterations > 0 {
		cfg.Iterations = req.Iterations
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if err := context.checkLimits(cfg); err != nil {
		return nil, badRequest(w, err)
	}
	canvas, stats, genErr := tilemosaic.Generate(img, context.Index, context.Cache, cfg, tilemosaic.RunOptions{})
	if genErr != nil {
		return nil, badRequest(w, genErr)
	}
	var encoded string
	var encodeErr error
	switch req.Format {
	case "", "png":
		req.Format = "png"
		encoded, encodeErr = EncodePNG(canvas.Image())
	case "jpeg", "jpg":
		req.Format = "jpeg"
		encoded, encodeErr = EncodeJPEG(canvas.Image(), cfg.JPGQuality)
	default:
		return nil, badRequest(w, fmt.Errorf("unknown image format %q", req.Format))
	}
	if encodeErr != nil {
		return nil, encodeErr
	}
	return map[string]interface{}{
		"format": req.Format,
		"image":  encoded,
		"placed": stats.Placed,
	}, nil
}

// LayoutHandler returns the grid layout of the uploaded image.
func LayoutHandler(context *Context, w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req layoutRequest
	state, img, err := parseUpload(context, w, r, &req, func() string { return req.Connection })
	if err != nil {
		return nil, err
	}
	if req.Step <= 0 {
		req.Step = 1
	}
	scale := state.Config().Scale
	if scale > context.MaxScale {
		return nil, badRequest(w, fmt.Errorf("scale must be at most %d", context.MaxScale))
	}
	size := img.Bounds().Size().Mul(scale)
	return tilemosaic.Layout{
		Width:      size.X,
		Height:     size.Y,
		Placements: tilemosaic.GridLayout(img, context.Index, req.Step, scale),
	}, nil
}

// DefaultHandlers registers all handlers on mux, if mux is nil
// http.DefaultServeMux is used.
func DefaultHandlers(context *Context, mux *http.ServeMux) {
	if mux == nil {
		mux = http.DefaultServeMux
	}
	mux.HandleFunc("/init", ToHTTPFunc(context, InitHandler))
	mux.HandleFunc("/get", StateHandlerToHTTPFunc(context, GetVarHandler))
	mux.HandleFunc("/set", StateHandlerToHTTPFunc(context, SetVarHandler))
	mux.HandleFunc("/mosaic", ToHTTPFunc(context, MosaicHandler))
	mux.HandleFunc("/layout", ToHTTPFunc(context, LayoutHandler))
}
