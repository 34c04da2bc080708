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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

// roundTrip writes a product with write and reopens it.
func roundTrip(t *testing.T, name string, write func(*os.File) error) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := write(w); err != nil {
		t.Fatal(err)
	}
	w.Close()
	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestImagerGridRoundTrip(t *testing.T) {
	g := testImager(3, 4, 2)
	g.Surface.Elements[g.Surface.Index1d(2, 3)] = 0
	r := roundTrip(t, "imager.nc", g.Write)
	g2, err := LoadImagerGrid(r)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g, g2) {
		t.Errorf("have %+v, want %+v", g2, g)
	}
}

func TestPropertyPointSetRoundTrip(t *testing.T) {
	p := testProperties([]geom.Point{{X: 1, Y: 2}, {X: -3, Y: 4.5}, {X: 0, Y: 0}}, 4)
	r := roundTrip(t, "props.nc", p.Write)
	p2, err := LoadPropertyPointSet(r)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p, p2) {
		t.Errorf("have %+v, want %+v", p2, p)
	}
}

func TestAuxiliaryPointSetRoundTrip(t *testing.T) {
	a := testAux(5, 3)
	r := roundTrip(t, "aux.nc", a.Write)
	a2, err := LoadAuxiliaryPointSet(r)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, a2) {
		t.Errorf("have %+v, want %+v", a2, a)
	}
}

func TestLoadWrongProduct(t *testing.T) {
	a := testAux(2, 2)
	r := roundTrip(t, "aux.nc", a.Write)
	if _, err := LoadImagerGrid(r); err == nil {
		t.Error("loading an auxiliary file as an imager grid should fail")
	}
}

func TestWriteEmptyPointSet(t *testing.T) {
	w, err := os.Create(filepath.Join(t.TempDir(), "empty.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := testProperties(nil, 2).Write(w); err == nil {
		t.Error("writing an empty point set should fail")
	}
}
