/*
Copyright © 2026 the cloudscene authors.
This file is part of cloudscene.

cloudscene is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

cloudscene is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with cloudscene.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloudscene

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is the result of a nearest-neighbor query.
type Neighbor struct {
	// Index is the position of the point in the sequence the index
	// was built from.
	Index int

	// Distance is the Euclidean distance from the query to the point.
	Distance float64
}

// SpatialIndex finds the nearest geographic point to a location.
type SpatialIndex interface {
	// Len returns the number of indexed points.
	Len() int

	// Nearest returns the indexed point closest to p. Ties are
	// broken by the smallest index.
	Nearest(p geom.Point) (Neighbor, error)
}

// SpectralIndex finds the spectra closest to a query spectrum.
type SpectralIndex interface {
	// Len returns the number of indexed spectra.
	Len() int

	// Dims returns the spectrum length.
	Dims() int

	// Nearest returns the indexed spectrum closest to s.
	Nearest(s Spectrum) (Neighbor, error)

	// KNearest returns the k indexed spectra closest to s, in
	// ascending order of distance. Ties are broken by ascending index.
	KNearest(s Spectrum, k int) ([]Neighbor, error)
}

// GeoIndex is a SpatialIndex over longitude and latitude. Distances are
// planar Euclidean distances in degrees.
type GeoIndex struct {
	t *pointTree
}

// NewGeoIndex creates an index of the given points. Points must have finite
// coordinates.
func NewGeoIndex(points []geom.Point) (*GeoIndex, error) {
	coords := make([][]float64, len(points))
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("cloudscene: point %d has non-finite coordinate (%g, %g)", i, p.X, p.Y)
		}
		coords[i] = []float64{p.X, p.Y}
	}
	return &GeoIndex{t: newPointTree(coords, 2)}, nil
}

// Len implements SpatialIndex.
func (g *GeoIndex) Len() int { return g.t.len }

// Nearest implements SpatialIndex.
func (g *GeoIndex) Nearest(p geom.Point) (Neighbor, error) {
	n, err := g.t.search([]float64{p.X, p.Y}, 1)
	if err != nil {
		return Neighbor{}, err
	}
	return n[0], nil
}

// SpectralTree is a SpectralIndex over fixed-length spectra.
type SpectralTree struct {
	t *pointTree
}

// NewSpectralTree creates an index of the given spectra, which must all have
// length dims. Nil spectra are not indexed, but the indices reported by
// queries always refer to positions in spectra.
func NewSpectralTree(spectra []Spectrum, dims int) (*SpectralTree, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: spectral index needs at least one band, got %d", ErrDimension, dims)
	}
	coords := make([][]float64, len(spectra))
	for i, s := range spectra {
		if s == nil {
			continue
		}
		if len(s) != dims {
			return nil, fmt.Errorf("%w: spectrum %d has %d bands but index has %d", ErrDimension, i, len(s), dims)
		}
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("cloudscene: spectrum %d has non-finite value %g", i, v)
			}
		}
		coords[i] = s
	}
	return &SpectralTree{t: newPointTree(coords, dims)}, nil
}

// Len implements SpectralIndex.
func (s *SpectralTree) Len() int { return s.t.len }

// Dims implements SpectralIndex.
func (s *SpectralTree) Dims() int { return s.t.dims }

// Nearest implements SpectralIndex.
func (s *SpectralTree) Nearest(q Spectrum) (Neighbor, error) {
	n, err := s.KNearest(q, 1)
	if err != nil {
		return Neighbor{}, err
	}
	return n[0], nil
}

// KNearest implements SpectralIndex.
func (s *SpectralTree) KNearest(q Spectrum, k int) ([]Neighbor, error) {
	if len(q) != s.t.dims {
		return nil, fmt.Errorf("%w: query has %d bands but index has %d", ErrDimension, len(q), s.t.dims)
	}
	return s.t.search(q, k)
}

// pointTree wraps a k-d tree whose points remember their original position.
type pointTree struct {
	tree *kdtree.Tree
	dims int
	len  int
}

// newPointTree indexes every non-nil entry of coords.
func newPointTree(coords [][]float64, dims int) *pointTree {
	pts := make(rankedPoints, 0, len(coords))
	for i, c := range coords {
		if c != nil {
			pts = append(pts, &rankedPoint{coords: c, index: i})
		}
	}
	t := &pointTree{dims: dims, len: len(pts)}
	if len(pts) > 0 {
		// kdtree.New reorders pts in place.
		t.tree = kdtree.New(pts, false)
	}
	return t
}

// search returns the k nearest points to q ordered by distance and then index.
func (t *pointTree) search(q []float64, k int) ([]Neighbor, error) {
	if t.len == 0 {
		return nil, ErrEmptyIndex
	}
	if k < 1 {
		return nil, fmt.Errorf("cloudscene: number of neighbors must be positive, got %d", k)
	}
	if k > t.len {
		return nil, fmt.Errorf("%w: requested %d of %d", ErrTooFewPoints, k, t.len)
	}
	keep := newRankKeeper(k)
	t.tree.NearestSet(keep, &rankedPoint{coords: q, index: -1})

	o := make([]Neighbor, 0, k)
	for _, c := range keep.heap {
		if c.Comparable == nil {
			continue
		}
		o = append(o, Neighbor{Index: c.Comparable.(*rankedPoint).index, Distance: c.Dist})
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].Distance != o[j].Distance {
			return o[i].Distance < o[j].Distance
		}
		return o[i].Index < o[j].Index
	})
	for i := range o {
		o[i].Distance = math.Sqrt(o[i].Distance)
	}
	return o, nil
}

// rankedPoint is a kdtree.Comparable that carries its original position.
type rankedPoint struct {
	coords []float64
	index  int
}

// Compare implements kdtree.Comparable.
func (p *rankedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(*rankedPoint).coords[d]
}

// Dims implements kdtree.Comparable.
func (p *rankedPoint) Dims() int { return len(p.coords) }

// Distance implements kdtree.Comparable. It returns the squared
// Euclidean distance.
func (p *rankedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(*rankedPoint)
	var sum float64
	for i, v := range p.coords {
		d := v - q.coords[i]
		sum += d * d
	}
	return sum
}

type rankedPoints []*rankedPoint

func (p rankedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p rankedPoints) Len() int                       { return len(p) }
func (p rankedPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p rankedPoints) Pivot(d kdtree.Dim) int {
	return rankedPlane{points: p, dim: d}.Pivot()
}

// rankedPlane is a kdtree.SortSlicer that orders points along one dimension.
type rankedPlane struct {
	points rankedPoints
	dim    kdtree.Dim
}

func (p rankedPlane) Len() int { return len(p.points) }
func (p rankedPlane) Less(i, j int) bool {
	return p.points[i].coords[p.dim] < p.points[j].coords[p.dim]
}
func (p rankedPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p rankedPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p rankedPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// rankKeeper is a kdtree.Keeper that retains the n best points, where
// a point is better than another if it is closer to the query or, at equal
// distance, has a smaller index. kdtree.NearestSet prunes branches only
// when they are strictly farther than the current worst kept point, so
// every point tied with the worst point is offered to Keep.
type rankKeeper struct {
	heap []kdtree.ComparableDist
}

func newRankKeeper(n int) *rankKeeper {
	k := &rankKeeper{heap: make([]kdtree.ComparableDist, 1, n)}
	k.heap[0].Dist = math.Inf(1)
	return k
}

// worse reports whether a ranks after b. The nil sentinel ranks last.
func worse(a, b kdtree.ComparableDist) bool {
	if a.Comparable == nil {
		return b.Comparable != nil
	}
	if b.Comparable == nil {
		return false
	}
	if a.Dist != b.Dist {
		return a.Dist > b.Dist
	}
	return a.Comparable.(*rankedPoint).index > b.Comparable.(*rankedPoint).index
}

// Keep implements kdtree.Keeper.
func (k *rankKeeper) Keep(c kdtree.ComparableDist) {
	if !worse(k.heap[0], c) {
		return
	}
	if len(k.heap) == cap(k.heap) {
		k.heap[0] = c
		heap.Fix(k, 0)
	} else {
		heap.Push(k, c)
	}
}

// Max implements kdtree.Keeper.
func (k *rankKeeper) Max() kdtree.ComparableDist { return k.heap[0] }

func (k *rankKeeper) Len() int           { return len(k.heap) }
func (k *rankKeeper) Less(i, j int) bool { return worse(k.heap[i], k.heap[j]) }
func (k *rankKeeper) Swap(i, j int)      { k.heap[i], k.heap[j] = k.heap[j], k.heap[i] }
func (k *rankKeeper) Push(x interface{}) { k.heap = append(k.heap, x.(kdtree.ComparableDist)) }
func (k *rankKeeper) Pop() (x interface{}) {
	x, k.heap = k.heap[len(k.heap)-1], k.heap[:len(k.heap)-1]
	return x
}
