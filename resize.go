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
	"math"
	"strings"

	"github.com/nfnt/resize"
)

// ImageResizer resizes an image to the given width and height.
type ImageResizer interface {
	Resize(width, height uint, img image.Image) image.Image
}

// NfntResizer uses the nfnt/resize package to resize an image.
type NfntResizer struct {
	// InterP is the interpolation function to use.
	InterP resize.InterpolationFunction
}

// NewNfntResizer returns a new resizer given the interpolation function.
func NewNfntResizer(interP resize.InterpolationFunction) NfntResizer {
	return NfntResizer{interP}
}

var (
	// DefaultInterP is the interpolation used for tiles by default.
	DefaultInterP = resize.Lanczos3

	// DefaultResizer is the resizer that is used by default.
	DefaultResizer = NewNfntResizer(DefaultInterP)
)

// Resize calls nfnt/resize methods.
func (resizer NfntResizer) Resize(width, height uint, img image.Image) image.Image {
	return resize.Resize(width, height, img, resizer.InterP)
}

// GetInterP returns an interpolation function given a desired quality.
// The higher the quality the better the interpolation should be, but execution
// time is higher. Currently supported are values between 0 and 5, each
// selecting a different interpolation function. Values greater than 5 are
// treated as 5.
func GetInterP(quality uint) resize.InterpolationFunction {
	switch quality {
	case 0:
		return resize.NearestNeighbor
	case 1:
		return resize.Bilinear
	case 2:
		return resize.Bicubic
	case 3:
		return resize.MitchellNetravali
	case 4:
		return resize.Lanczos2
	default:
		return resize.Lanczos3
	}
}

// InterPFromString parses the name of an interpolation function, the names
// are the names of the constants in nfnt/resize (case insensitive).
func InterPFromString(s string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(s) {
	case "nearestneighbor", "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "mitchellnetravali", "mitchell":
		return resize.MitchellNetravali, nil
	case "lanczos2":
		return resize.Lanczos2, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return resize.Lanczos3, fmt.Errorf("unknown interpolation function %q", s)
	}
}

// InterPString is the inverse of InterPFromString.
func InterPString(interP resize.InterpolationFunction) string {
	switch interP {
	case resize.NearestNeighbor:
		return "NearestNeighbor"
	case resize.Bilinear:
		return "Bilinear"
	case resize.Bicubic:
		return "Bicubic"
	case resize.MitchellNetravali:
		return "MitchellNetravali"
	case resize.Lanczos2:
		return "Lanczos2"
	case resize.Lanczos3:
		return "Lanczos3"
	default:
		return "Unknown"
	}
}

// FitSize computes the size of an image with the given width and height
// scaled s.t. it fits in a square with side length bound and the ratio is
// retained. The longer side is exactly bound, the shorter one is rounded to
// the nearest integer (but at least 1).
//
// Width and height must be > 0.
func FitSize(width, height, bound int) (int, int) {
	if width >= height {
		h := int(math.Round(float64(height) * float64(bound) / float64(width)))
		return bound, max(h, 1)
	}
	w := int(math.Round(float64(width) * float64(bound) / float64(height)))
	return max(w, 1), bound
}
