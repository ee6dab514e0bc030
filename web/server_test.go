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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FabianWe/tilemosaic"
)

func uniform(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testServer(t *testing.T) (*httptest.Server, *Context) {
	t.Helper()
	store := tilemosaic.NewMemTileStore()
	store.Add("red", uniform(1, 1, color.NRGBA{R: 255, A: 255}))
	store.Add("green", uniform(1, 1, color.NRGBA{G: 255, A: 255}))
	store.Add("blue", uniform(1, 1, color.NRGBA{B: 255, A: 255}))
	index, err := tilemosaic.BuildColorIndex(store, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	context := NewContext(NewMemStorage(), index, tilemosaic.NewTileCache(store, nil))
	context.Defaults.Footprint = 1
	context.Defaults.Scale = 2
	context.Defaults.Iterations = 100
	mux := http.NewServeMux()
	DefaultHandlers(context, mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, context
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	res := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return resp, res
}

func initConnection(t *testing.T, server *httptest.Server) string {
	t.Helper()
	_, res := postJSON(t, server.URL+"/init", map[string]string{})
	id, ok := res[ConnectionKey].(string)
	if !ok {
		t.Fatalf("no connection id in %v", res)
	}
	return id
}

func TestGetSetVars(t *testing.T) {
	server, _ := testServer(t)
	id := initConnection(t, server)

	_, vars := postJSON(t, server.URL+"/get", map[string]string{ConnectionKey: id})
	if vars["scale"] != "2" {
		t.Errorf("expected scale 2, got %v", vars["scale"])
	}
	resp, _ := postJSON(t, server.URL+"/set", map[string]interface{}{
		ConnectionKey: id, VarKey: "scale", ValueKey: 3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set failed with status %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, server.URL+"/set", map[string]interface{}{
		ConnectionKey: id, VarKey: "mode", ValueKey: "destination",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set failed with status %d", resp.StatusCode)
	}
	_, vars = postJSON(t, server.URL+"/get", map[string]string{ConnectionKey: id})
	if vars["scale"] != "3" || vars["mode"] != "destination" {
		t.Errorf("expected scale 3 and mode destination, got %v", vars)
	}
}

func TestSetVarErrors(t *testing.T) {
	server, _ := testServer(t)
	id := initConnection(t, server)
	tests := []map[string]interface{}{
		{ConnectionKey: id, VarKey: "footprint", ValueKey: 5},
		{ConnectionKey: id, VarKey: "scale", ValueKey: 0},
		{ConnectionKey: id, VarKey: "unknown", ValueKey: "x"},
		{ConnectionKey: id, VarKey: "scale"},
		{ConnectionKey: "not-a-uuid", VarKey: "scale", ValueKey: 3},
		{ConnectionKey: "4b1c8e3e-3c4f-4d55-9a63-0c2f0b8a6f11", VarKey: "scale", ValueKey: 3},
	}
	for i, body := range tests {
		resp, _ := postJSON(t, server.URL+"/set", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: expected status 400, got %d", i, resp.StatusCode)
		}
	}
	resp, err := http.Post(server.URL+"/get", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid json, got %d", resp.StatusCode)
	}
}

func multipartRequest(t *testing.T, url string, fields map[string]string, img image.Image) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if img != nil {
		part, err := w.CreateFormFile(ImageKey, "query.png")
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(part, img); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, w.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func queryImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestMosaicHandler(t *testing.T) {
	server, _ := testServer(t)
	id := initConnection(t, server)
	resp := multipartRequest(t, server.URL+"/mosaic", map[string]string{
		ConnectionKey: id,
		"iterations":  "50",
		"seed":        "3",
	}, queryImage())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var res struct {
		Format string `json:"format"`
		Image  string `json:"image"`
		Placed int    `json:"placed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Format != "png" || res.Placed == 0 {
		t.Errorf("unexpected response %s, %d placed", res.Format, res.Placed)
	}
	data, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("expected 4x4 mosaic, got %v", b)
	}
}

func TestMosaicHandlerErrors(t *testing.T) {
	server, context := testServer(t)
	id := initConnection(t, server)
	tests := []struct {
		fields map[string]string
		img    image.Image
	}{
		{map[string]string{}, queryImage()},
		{map[string]string{ConnectionKey: id}, nil},
		{map[string]string{ConnectionKey: id, "iterations": "many"}, queryImage()},
		{map[string]string{ConnectionKey: id, "format": "tiff"}, queryImage()},
		{map[string]string{ConnectionKey: id, "iterations": "2000000"}, queryImage()},
	}
	context.MaxIterations = 1000
	for i, tc := range tests {
		resp := multipartRequest(t, server.URL+"/mosaic", tc.fields, tc.img)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: expected status 400, got %d", i, resp.StatusCode)
		}
	}
}

func TestLayoutHandler(t *testing.T) {
	server, _ := testServer(t)
	id := initConnection(t, server)
	resp := multipartRequest(t, server.URL+"/layout", map[string]string{
		ConnectionKey: id,
		"step":        "1",
	}, queryImage())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var layout tilemosaic.Layout
	if err := json.NewDecoder(resp.Body).Decode(&layout); err != nil {
		t.Fatal(err)
	}
	if layout.Width != 4 || layout.Height != 4 {
		t.Errorf("expected 4x4 layout, got %dx%d", layout.Width, layout.Height)
	}
	if len(layout.Placements) != 3 {
		t.Fatalf("expected 3 placements, got %v", layout.Placements)
	}
	if p := layout.Placements[1]; p.Name != "green" || p.X != 2 || p.Y != 0 {
		t.Errorf("unexpected placement %v", p)
	}
}

func TestMemStorageFilter(t *testing.T) {
	storage := NewMemStorage()
	id, err := GenConnectionID()
	if err != nil {
		t.Fatal(err)
	}
	storage.Set(id, NewState(tilemosaic.DefaultConfig()))
	storage.Filter(time.Hour)
	if storage.Len() != 1 {
		t.Errorf("fresh connection removed")
	}
	if _, err := storage.Get(id); err != nil {
		t.Errorf("can't get connection: %v", err)
	}
	storage.Filter(0)
	if storage.Len() != 0 {
		t.Errorf("expired connection not removed")
	}
	if _, err := storage.Get(id); err != ErrConnNotFound {
		t.Errorf("expected ErrConnNotFound, got %v", err)
	}
}

func TestEncodeImage(t *testing.T) {
	img := queryImage()
	for name, encode := range map[string]func() (string, error){
		"png":  func() (string, error) { return EncodePNG(img) },
		"jpeg": func() (string, error) { return EncodeJPEG(img, 90) },
	} {
		s, err := encode()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			t.Errorf("%s: can't decode: %v", name, err)
		}
	}
}

func TestRequestLimits(t *testing.T) {
	server, context := testServer(t)
	id := initConnection(t, server)
	tests := []map[string]interface{}{
		{ConnectionKey: id, VarKey: "scale", ValueKey: "4611686018427387904"},
		{ConnectionKey: id, VarKey: "scale", ValueKey: context.MaxScale + 1},
		{ConnectionKey: id, VarKey: "workers", ValueKey: context.MaxWorkers + 1},
		{ConnectionKey: id, VarKey: "iterations", ValueKey: context.MaxIterations + 1},
	}
	for i, body := range tests {
		resp, _ := postJSON(t, server.URL+"/set", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: expected status 400, got %d", i, resp.StatusCode)
		}
	}
	_, vars := postJSON(t, server.URL+"/get", map[string]string{ConnectionKey: id})
	if vars["scale"] != "2" || vars["workers"] != "1" {
		t.Errorf("rejected values must not be stored, got %v", vars)
	}

	// limits lowered after the connection was configured
	context.MaxScale = 1
	for _, path := range []string{"/mosaic", "/layout"} {
		resp := multipartRequest(t, server.URL+path, map[string]string{ConnectionKey: id}, queryImage())
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status 400 for scale above limit, got %d", path, resp.StatusCode)
		}
	}
	context.MaxScale = 50
	resp, _ := postJSON(t, server.URL+"/set", map[string]interface{}{
		ConnectionKey: id, VarKey: "workers", ValueKey: 4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set failed with status %d", resp.StatusCode)
	}
	context.MaxWorkers = 2
	mosaicResp := multipartRequest(t, server.URL+"/mosaic", map[string]string{ConnectionKey: id}, queryImage())
	mosaicResp.Body.Close()
	if mosaicResp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for workers above limit, got %d", mosaicResp.StatusCode)
	}
}
