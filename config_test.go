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
	"testing"

	"github.com/nfnt/resize"
)

func TestConfigSet(t *testing.T) {
	tests := []struct {
		name, value string
		wantErr     bool
		check       func(c Config) bool
	}{
		{"iterations", "500", false, func(c Config) bool { return c.Iterations == 500 }},
		{"iterations", "0", false, func(c Config) bool { return c.Iterations == 0 }},
		{"iterations", "-1", true, nil},
		{"footprint", "12", false, func(c Config) bool { return c.Footprint == 12 }},
		{"footprint", "0", true, nil},
		{"scale", "x", true, nil},
		{"Scale", " 4 ", false, func(c Config) bool { return c.Scale == 4 }},
		{"background", "#000", false, func(c Config) bool { return c.Background == (color.NRGBA{A: 255}) }},
		{"mode", "dst", false, func(c Config) bool { return c.Mode == SampleDestination }},
		{"policy", "reject", false, func(c Config) bool { return c.Policy == PlaceReject }},
		{"interp", "bilinear", false, func(c Config) bool { return c.InterP == resize.Bilinear }},
		{"jpeg-quality", "101", true, nil},
		{"seed", "1234", false, func(c Config) bool { return c.Seed == 1234 }},
		{"workers", "3", false, func(c Config) bool { return c.Workers == 3 }},
	}
	for _, tc := range tests {
		c := DefaultConfig()
		err := c.Set(tc.name, tc.value)
		if tc.wantErr {
			if err == nil {
				t.Errorf("set %s %q: expected error", tc.name, tc.value)
			}
			if c != DefaultConfig() {
				t.Errorf("set %s %q: failed set changed config", tc.name, tc.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("set %s %q: %v", tc.name, tc.value, err)
			continue
		}
		if !tc.check(c) {
			t.Errorf("set %s %q: value not applied", tc.name, tc.value)
		}
	}
}

func TestConfigSetUnknown(t *testing.T) {
	c := DefaultConfig()
	if err := c.Set("colour", "red"); !errors.Is(err, ErrUnknownVar) {
		t.Errorf("expected ErrUnknownVar, got %v", err)
	}
}

func TestConfigVarsRoundTrip(t *testing.T) {
	c := Config{
		Iterations:  5,
		Footprint:   7,
		Scale:       3,
		Background:  color.NRGBA{R: 1, G: 2, B: 3, A: 4},
		Mode:        SampleDestination,
		Seed:        9,
		Workers:     2,
		Policy:      PlaceReject,
		InterP:      resize.Bilinear,
		JPGQuality:  80,
		NumRoutines: 3,
	}
	parsed := DefaultConfig()
	for name, value := range c.Vars() {
		if err := parsed.Set(name, value); err != nil {
			t.Fatalf("can't set %s to %s: %v", name, value, err)
		}
	}
	if parsed != c {
		t.Errorf("expected %+v, got %+v", c, parsed)
	}
	if len(VarNames()) != len(c.Vars()) {
		t.Errorf("VarNames and Vars disagree")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	broken := []func(c *Config){
		func(c *Config) { c.Iterations = -1 },
		func(c *Config) { c.Footprint = 0 },
		func(c *Config) { c.Scale = 0 },
		func(c *Config) { c.Workers = 0 },
		func(c *Config) { c.JPGQuality = 0 },
		func(c *Config) { c.NumRoutines = 0 },
	}
	for i, change := range broken {
		c := DefaultConfig()
		change(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
