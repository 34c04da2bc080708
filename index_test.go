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
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// bruteForce returns all non-nil points sorted by distance to q and then
// by index.
func bruteForce(points []Spectrum, q Spectrum) []Neighbor {
	var o []Neighbor
	for i, p := range points {
		if p == nil {
			continue
		}
		o = append(o, Neighbor{Index: i, Distance: floats.Distance(p, q, 2)})
	}
	sort.SliceStable(o, func(i, j int) bool { return o[i].Distance < o[j].Distance })
	return o
}

func randomSpectra(r *rand.Rand, n, dims int) []Spectrum {
	o := make([]Spectrum, n)
	for i := range o {
		o[i] = make(Spectrum, dims)
		for d := range o[i] {
			o[i][d] = r.Float64()
		}
	}
	return o
}

func TestSpectralTreeKNearest(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	points := randomSpectra(r, 500, 7)
	tree, err := NewSpectralTree(points, 7)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 500 || tree.Dims() != 7 {
		t.Fatalf("len %d dims %d", tree.Len(), tree.Dims())
	}
	for _, q := range randomSpectra(r, 20, 7) {
		want := bruteForce(points, q)[:25]
		have, err := tree.KNearest(q, 25)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != len(want) {
			t.Fatalf("have %d neighbors, want %d", len(have), len(want))
		}
		for i := range want {
			if have[i].Index != want[i].Index || math.Abs(have[i].Distance-want[i].Distance) > 1e-12 {
				t.Errorf("neighbor %d: have %+v, want %+v", i, have[i], want[i])
			}
		}
		nearest, err := tree.Nearest(q)
		if err != nil {
			t.Fatal(err)
		}
		if nearest.Index != want[0].Index {
			t.Errorf("nearest: have %d, want %d", nearest.Index, want[0].Index)
		}
	}
}

func TestSpectralTreePopulation(t *testing.T) {
	points := randomSpectra(rand.New(rand.NewSource(2)), 10, 3)
	tree, err := NewSpectralTree(points, 3)
	if err != nil {
		t.Fatal(err)
	}
	q := Spectrum{0.5, 0.5, 0.5}
	all, err := tree.KNearest(q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Fatalf("have %d neighbors, want 10", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Distance < all[i-1].Distance {
			t.Errorf("neighbors not sorted: %v", all)
		}
	}
	if _, err := tree.KNearest(q, 11); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("k > population: have error %v", err)
	}
	if _, err := tree.KNearest(q, 0); err == nil {
		t.Error("k = 0 should be an error")
	}
}

func TestSpectralTreeTies(t *testing.T) {
	points := []Spectrum{{1, 1}, {0, 0}, {1, 1}, {1, 1}, {2, 2}}
	tree, err := NewSpectralTree(points, 2)
	if err != nil {
		t.Fatal(err)
	}
	have, err := tree.KNearest(Spectrum{1, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Neighbor{{Index: 0}, {Index: 2}, {Index: 3}}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	// Points 1 and 4 are equidistant from the query.
	have, err = tree.KNearest(Spectrum{1, 1}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if have[3].Index != 1 {
		t.Errorf("tie broken to index %d, want 1", have[3].Index)
	}
}

func TestSpectralTreeNil(t *testing.T) {
	points := []Spectrum{nil, {3, 3}, nil, {1, 1}}
	tree, err := NewSpectralTree(points, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 2 {
		t.Fatalf("len %d, want 2", tree.Len())
	}
	have, err := tree.KNearest(Spectrum{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if have[0].Index != 3 || have[1].Index != 1 {
		t.Errorf("have %v", have)
	}
	if !scalar.EqualWithinAbs(have[0].Distance, math.Sqrt2, 1e-12) {
		t.Errorf("distance %g, want √2", have[0].Distance)
	}
}

func TestSpectralTreeErrors(t *testing.T) {
	if _, err := NewSpectralTree([]Spectrum{{1, 2}, {1, 2, 3}}, 2); !errors.Is(err, ErrDimension) {
		t.Errorf("mixed dimensions: have error %v", err)
	}
	if _, err := NewSpectralTree([]Spectrum{{1, math.NaN()}}, 2); err == nil {
		t.Error("NaN value should be an error")
	}
	tree, err := NewSpectralTree([]Spectrum{{1, 2}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Nearest(Spectrum{1, 2, 3}); !errors.Is(err, ErrDimension) {
		t.Errorf("query dimension: have error %v", err)
	}
	empty, err := NewSpectralTree(nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Nearest(Spectrum{1, 2}); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("empty index: have error %v", err)
	}
}

func TestGeoIndex(t *testing.T) {
	points := []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 0, Y: 0}}
	idx, err := NewGeoIndex(points)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		q    geom.Point
		want Neighbor
	}{
		{q: geom.Point{X: 1, Y: 1}, want: Neighbor{Index: 0, Distance: math.Sqrt2}},
		{q: geom.Point{X: 9, Y: 0}, want: Neighbor{Index: 1, Distance: 1}},
		{q: geom.Point{X: 10, Y: 12}, want: Neighbor{Index: 3, Distance: 2}},
		{q: geom.Point{X: 5, Y: 5}, want: Neighbor{Index: 0, Distance: math.Sqrt(50)}},
	}
	for _, test := range tests {
		have, err := idx.Nearest(test.q)
		if err != nil {
			t.Fatal(err)
		}
		if have.Index != test.want.Index || !scalar.EqualWithinAbs(have.Distance, test.want.Distance, 1e-12) {
			t.Errorf("query %v: have %+v, want %+v", test.q, have, test.want)
		}
	}

	if _, err := NewGeoIndex([]geom.Point{{X: math.NaN(), Y: 0}}); err == nil {
		t.Error("NaN coordinate should be an error")
	}
	empty, err := NewGeoIndex(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Nearest(geom.Point{}); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("empty index: have error %v", err)
	}
}

func TestGeoIndexBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	points := make([]geom.Point, 2000)
	for i := range points {
		points[i] = geom.Point{X: r.Float64()*360 - 180, Y: r.Float64()*180 - 90}
	}
	idx, err := NewGeoIndex(points)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 50; n++ {
		q := geom.Point{X: r.Float64()*360 - 180, Y: r.Float64()*180 - 90}
		want, wantD := -1, math.Inf(1)
		for i, p := range points {
			if d := math.Hypot(p.X-q.X, p.Y-q.Y); d < wantD {
				want, wantD = i, d
			}
		}
		have, err := idx.Nearest(q)
		if err != nil {
			t.Fatal(err)
		}
		if have.Index != want {
			t.Errorf("query %v: have %d, want %d", q, have.Index, want)
		}
	}
}
