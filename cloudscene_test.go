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
	"io/ioutil"
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// testLogger returns a logger that discards its output.
func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

// testImager returns a grid where pixel (i, j) is located at
// longitude j and latitude i and band b has radiance
// exp(0.1*(i*cols+j) + 0.01*b).
func testImager(rows, cols, bands int) *ImagerGrid {
	g := &ImagerGrid{
		Radiance: sparse.ZerosDense(bands, rows, cols),
		Lon:      sparse.ZerosDense(rows, cols),
		Lat:      sparse.ZerosDense(rows, cols),
		Mu0:      sparse.ZerosDense(rows, cols),
		Phi0:     sparse.ZerosDense(rows, cols),
		Surface:  sparse.ZerosDenseInt(rows, cols),
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g.Lon.Set(float64(j), i, j)
			g.Lat.Set(float64(i), i, j)
			g.Mu0.Set(0.5, i, j)
			g.Phi0.Set(10, i, j)
			g.Surface.Set(1, i, j)
			for b := 0; b < bands; b++ {
				g.Radiance.Set(math.Exp(0.1*float64(i*cols+j)+0.01*float64(b)), b, i, j)
			}
		}
	}
	return g
}

// cloudValue is the value of cloud variable v at point i and level k in
// point sets created by testProperties.
func cloudValue(v, i, k int) float64 { return float64(v*10000 + i*100 + k) }

// auxValue is the value of auxiliary variable v at point i and level k in
// point sets created by testAux.
func auxValue(v, i, k int) float64 { return -float64(v*10000 + i*100 + k) }

func testProperties(locs []geom.Point, levels int) *PropertyPointSet {
	p := &PropertyPointSet{}
	for _, l := range locs {
		p.Lon = append(p.Lon, l.X)
		p.Lat = append(p.Lat, l.Y)
	}
	for v := range CloudVariables {
		d := sparse.ZerosDense(len(locs), levels)
		for i := range locs {
			for k := 0; k < levels; k++ {
				d.Set(cloudValue(v, i, k), i, k)
			}
		}
		p.Profiles = append(p.Profiles, d)
	}
	return p
}

func testAux(n, levels int) *AuxiliaryPointSet {
	a := &AuxiliaryPointSet{
		Lon:                   make([]float64, n),
		Lat:                   make([]float64, n),
		SurfacePressure:       make([]float64, n),
		TotalColumnOzone:      make([]float64, n),
		TotalColumnWaterVapor: make([]float64, n),
		DayNightFlag:          make([]int, n),
		LandWaterFlag:         make([]int, n),
	}
	for i := 0; i < n; i++ {
		a.Lon[i] = float64(i)
		a.SurfacePressure[i] = 1000 + float64(i)
		a.TotalColumnOzone[i] = 300 + float64(i)
		a.TotalColumnWaterVapor[i] = 20 + float64(i)
		a.DayNightFlag[i] = i % 2
		a.LandWaterFlag[i] = 1
	}
	for v := range AuxVariables {
		d := sparse.ZerosDense(n, levels)
		for i := 0; i < n; i++ {
			for k := 0; k < levels; k++ {
				d.Set(auxValue(v, i, k), i, k)
			}
		}
		a.Profiles = append(a.Profiles, d)
	}
	return a
}

func testConfig(bands int) Config {
	cfg := DefaultConfig()
	cfg.Bands = bands
	cfg.DiffIdx = 0
	return cfg
}

func TestOutputVariables(t *testing.T) {
	want := []string{
		"cloud_effective_radius1", "cloud_effective_radius2",
		"cloud_water_content1", "cloud_water_content2",
		"cloud_phase1", "cloud_phase2", "radar_lidar_flag", "height",
		"ozoneMassMixingRatio", "pressure", "specificHumidity", "temperature", "height_aux",
	}
	if !reflect.DeepEqual(OutputVariables, want) {
		t.Errorf("have %v, want %v", OutputVariables, want)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	for name, mod := range map[string]func(*Config){
		"k":      func(c *Config) { c.KCandidates = 0 },
		"maxidx": func(c *Config) { c.MaxIdxDistance = -1 },
		"mu0":    func(c *Config) { c.DeltaMu0 = 0 },
		"phi0":   func(c *Config) { c.DeltaPhi0 = math.NaN() },
		"bands":  func(c *Config) { c.Bands = -7 },
		"procs":  func(c *Config) { c.NumProcs = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mod(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLogSpectrum(t *testing.T) {
	s := logSpectrum([]float64{1, math.E})
	if !floats.EqualApprox(s, []float64{0, 1}, 1e-12) {
		t.Errorf("have %v, want [0 1]", s)
	}
	for _, r := range [][]float64{{1, 0}, {-1, 1}, {math.NaN(), 1}, {math.Inf(1), 1}} {
		if s := logSpectrum(r); s != nil {
			t.Errorf("radiance %v: have %v, want nil", r, s)
		}
	}
}

func TestImagerGridCheck(t *testing.T) {
	g := testImager(3, 4, 2)
	if err := g.Check(); err != nil {
		t.Fatal(err)
	}
	if rows, cols := g.Shape(); rows != 3 || cols != 4 {
		t.Errorf("shape (%d, %d)", rows, cols)
	}
	b := g.Bounds()
	if b.Min != (geom.Point{X: 0, Y: 0}) || b.Max != (geom.Point{X: 3, Y: 2}) {
		t.Errorf("bounds %+v", b)
	}

	g.Mu0 = sparse.ZerosDense(3, 5)
	if err := g.Check(); err == nil {
		t.Error("expected an error for mismatched mu0 shape")
	}
	g = testImager(3, 4, 2)
	g.Radiance = sparse.ZerosDense(2, 4, 3)
	if err := g.Check(); err == nil {
		t.Error("expected an error for mismatched radiance shape")
	}
}

func TestPointSetCheck(t *testing.T) {
	p := testProperties([]geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, 3)
	if err := p.Check(); err != nil {
		t.Fatal(err)
	}
	p.Profiles[2] = sparse.ZerosDense(2, 4)
	if err := p.Check(); err == nil {
		t.Error("expected an error for mismatched level count")
	}

	a := testAux(3, 2)
	if err := a.Check(); err != nil {
		t.Fatal(err)
	}
	a.DayNightFlag = a.DayNightFlag[:2]
	if err := a.Check(); err == nil {
		t.Error("expected an error for short flag array")
	}
}
