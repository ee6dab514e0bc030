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
	"math"
	"sort"
)

// kdPoint is an entry in the k-d tree: a color together with the position
// of the record in the slice the tree was built from. The position is used
// to break ties, the record inserted first wins.
type kdPoint struct {
	color AverageColor
	pos   int
}

type kdNode struct {
	point       kdPoint
	axis        int
	left, right *kdNode
}

// kdTree is a static three dimensional k-d tree. It is built once and never
// modified afterwards, thus it is safe to query it concurrently.
type kdTree struct {
	root *kdNode
	size int
}

func newKDTree(colors []AverageColor) *kdTree {
	points := make([]kdPoint, len(colors))
	for i, c := range colors {
		points[i] = kdPoint{color: c, pos: i}
	}
	return &kdTree{root: buildKDNode(points, 0), size: len(points)}
}

func buildKDNode(points []kdPoint, depth int) *kdNode {
	if len(points) == 0 {
		return nil
	}
	axis := depth % len(AverageColor{})
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.color[axis] != b.color[axis] {
			return a.color[axis] < b.color[axis]
		}
		return a.pos < b.pos
	})
	median := len(points) / 2
	return &kdNode{
		point: points[median],
		axis:  axis,
		left:  buildKDNode(points[:median], depth+1),
		right: buildKDNode(points[median+1:], depth+1),
	}
}

// nearest returns the position of the point closest to query (squared
// euclidean distance) and that distance. If two points have the same distance
// the one with the smaller position is returned.
// If the tree is empty the position is -1.
func (t *kdTree) nearest(query AverageColor) (int, float64) {
	best := kdPoint{pos: -1}
	bestDist := math.Inf(1)
	var search func(node *kdNode)
	search = func(node *kdNode) {
		if node == nil {
			return
		}
		d := node.point.color.SquaredDist(query)
		if d < bestDist || (d == bestDist && node.point.pos < best.pos) {
			best, bestDist = node.point, d
		}
		diff := query[node.axis] - node.point.color[node.axis]
		near, far := node.left, node.right
		if diff > 0 {
			near, far = far, near
		}
		search(near)
		// points with equal distance on the other side may still win the tie
		if diff*diff <= bestDist {
			search(far)
		}
	}
	search(t.root)
	return best.pos, bestDist
}
