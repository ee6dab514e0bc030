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
	"image/color"
	"testing"
)

func TestNearestBasic(t *testing.T) {
	index := mustIndex(t, rgbStore())
	tests := []struct {
		query    AverageColor
		expected string
	}{
		{NewAverageColor(250, 10, 10), "red"},
		{NewAverageColor(0, 200, 30), "green"},
		{NewAverageColor(20, 20, 255), "blue"},
		{NewAverageColor(255, 0, 0), "red"},
	}
	for _, tc := range tests {
		record, ok := index.Nearest(tc.query)
		if !ok {
			t.Fatalf("no match for %v", tc.query)
		}
		if record.Name != tc.expected {
			t.Errorf("Nearest(%v): expected %s, got %s", tc.query, tc.expected, record.Name)
		}
	}
}

func TestNearestTies(t *testing.T) {
	black := TileRecord{ID: 0, Name: "black", Average: NewAverageColor(0, 0, 0)}
	gray := TileRecord{ID: 1, Name: "gray", Average: NewAverageColor(10, 0, 0)}
	grayCopy := TileRecord{ID: 2, Name: "gray-copy", Average: NewAverageColor(10, 0, 0)}
	query := NewAverageColor(5, 0, 0)

	index := NewColorIndex([]TileRecord{black, gray})
	if record, _ := index.Nearest(query); record.Name != "black" {
		t.Errorf("expected first inserted record black, got %s", record.Name)
	}
	index = NewColorIndex([]TileRecord{gray, black})
	if record, _ := index.Nearest(query); record.Name != "gray" {
		t.Errorf("expected first inserted record gray, got %s", record.Name)
	}
	index = NewColorIndex([]TileRecord{black, grayCopy, gray})
	if record, _ := index.Nearest(NewAverageColor(10, 0, 0)); record.Name != "gray-copy" {
		t.Errorf("expected gray-copy for identical colors, got %s", record.Name)
	}
}

func TestNearestEmpty(t *testing.T) {
	index := NewColorIndex(nil)
	if index.Len() != 0 {
		t.Errorf("expected empty index, got %d records", index.Len())
	}
	if _, ok := index.Nearest(NewAverageColor(1, 2, 3)); ok {
		t.Error("expected no match in empty index")
	}
	if _, ok := index.Match(red); ok {
		t.Error("expected no match in empty index")
	}
}

func linearNearest(records []TileRecord, query AverageColor) TileRecord {
	best := records[0]
	bestDist := best.Average.SquaredDist(query)
	for _, r := range records[1:] {
		if d := r.Average.SquaredDist(query); d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

func TestNearestMatchesLinearScan(t *testing.T) {
	rng := NewRand(42)
	// small value range to produce many ties
	randColor := func(n int) AverageColor {
		return NewAverageColor(float64(rng.IntN(n)), float64(rng.IntN(n)), float64(rng.IntN(n)))
	}
	for _, n := range []int{1, 2, 7, 50, 300} {
		records := make([]TileRecord, n)
		for i := range records {
			records[i] = TileRecord{ID: TileID(i), Name: fmt.Sprint(i), Average: randColor(16)}
		}
		index := NewColorIndex(records)
		for q := 0; q < 500; q++ {
			query := randColor(20)
			expected := linearNearest(records, query)
			got, ok := index.Nearest(query)
			if !ok {
				t.Fatalf("no match for %v", query)
			}
			if got.ID != expected.ID {
				t.Fatalf("n = %d, query %v: expected record %d (dist %f), got %d (dist %f)",
					n, query, expected.ID, expected.Average.SquaredDist(query),
					got.ID, got.Average.SquaredDist(query))
			}
		}
	}
}

func TestNewColorIndexCopiesRecords(t *testing.T) {
	records := []TileRecord{{ID: 0, Name: "a", Average: NewAverageColor(1, 1, 1)}}
	index := NewColorIndex(records)
	records[0].Name = "changed"
	if got := index.Records()[0].Name; got != "a" {
		t.Errorf("index changed with input slice, got %s", got)
	}
}

func TestMatch(t *testing.T) {
	index := mustIndex(t, rgbStore())
	if _, ok := index.Match(color.NRGBA{R: 255, A: 0}); ok {
		t.Error("fully transparent pixel must not match")
	}
	record, ok := index.Match(color.NRGBA{R: 250, G: 5, B: 5, A: 128})
	if !ok || record.Name != "red" {
		t.Errorf("expected red for semi transparent pixel, got %v (%v)", record, ok)
	}
	// premultiplied colors are converted to straight values
	record, ok = index.Match(color.RGBA{B: 100, A: 100})
	if !ok || record.Name != "blue" {
		t.Errorf("expected blue for premultiplied pixel, got %v (%v)", record, ok)
	}
}

func TestBuildColorIndexSkipsTiles(t *testing.T) {
	store := NewMemTileStore()
	store.Add("red", uniformTile(2, 2, red))
	store.Add("broken", nil)
	store.Add("invisible", uniformTile(2, 2, transparent))
	store.Add("blue", uniformTile(3, 1, blue))

	calls, last := 0, 0
	index, err := BuildColorIndex(store, 3, func(num int) {
		calls++
		last = num
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 4 || last != 4 {
		t.Errorf("expected 4 progress calls ending with 4, got %d calls, last %d", calls, last)
	}
	records := index.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != 0 || records[1].ID != 3 {
		t.Errorf("expected records 0 and 3 in order, got %d and %d", records[0].ID, records[1].ID)
	}
	if records[1].Average != NewAverageColor(0, 0, 255) {
		t.Errorf("wrong average for blue tile: %v", records[1].Average)
	}
	skipped := index.Skipped()
	if len(skipped) != 2 || skipped[0].Name != "broken" || skipped[1].Name != "invisible" {
		t.Errorf("expected broken and invisible to be skipped, got %v", skipped)
	}
}

func TestBuildColorIndexDeterministic(t *testing.T) {
	store := NewMemTileStore()
	rng := NewRand(7)
	for i := 0; i < 40; i++ {
		c := color.NRGBA{R: uint8(rng.IntN(4)), G: uint8(rng.IntN(4)), B: 0, A: 255}
		store.Add(fmt.Sprint(i), uniformTile(1, 1, c))
	}
	single, err := BuildColorIndex(store, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := BuildColorIndex(store, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		query := NewAverageColor(float64(rng.IntN(5)), float64(rng.IntN(5)), 0)
		a, _ := single.Nearest(query)
		b, _ := parallel.Nearest(query)
		if a.ID != b.ID {
			t.Fatalf("query %v: %d with one routine, %d with eight", query, a.ID, b.ID)
		}
	}
}

func TestBuildColorIndexNilStorage(t *testing.T) {
	if _, err := BuildColorIndex(nil, 1, nil); err == nil {
		t.Error("expected error for nil storage")
	}
}
