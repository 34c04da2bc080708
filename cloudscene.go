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

// Package cloudscene fuses a multispectral imager swath with coarser
// active-sensor cloud profiles and atmospheric auxiliary profiles.
// For every imager pixel, it selects the spectrally and geometrically most
// similar cloud-profile point (the "donor") and copies the donor's vertical
// profiles onto the imager grid.
package cloudscene

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.3.0"

// DataVersion is the version of the netCDF product layout that this
// version of the software reads and writes.
const DataVersion = "1.0.0"

// NoDonor is the donor index reported for output pixels that have no donor.
const NoDonor uint64 = math.MaxUint64

// CloudVariables are the per-level variables carried by a PropertyPointSet,
// in the order they appear in the fused output.
var CloudVariables = []string{
	"cloud_effective_radius1",
	"cloud_effective_radius2",
	"cloud_water_content1",
	"cloud_water_content2",
	"cloud_phase1",
	"cloud_phase2",
	"radar_lidar_flag",
	"height",
}

// AuxVariables are the per-level variables carried by an
// AuxiliaryPointSet, in the order they appear in the fused output.
var AuxVariables = []string{
	"ozoneMassMixingRatio",
	"pressure",
	"specificHumidity",
	"temperature",
	"height",
}

// OutputVariables are the names of the L fused variables, cloud variables
// first. The auxiliary height is renamed to keep names unique.
var OutputVariables = func() []string {
	o := append([]string{}, CloudVariables...)
	for _, v := range AuxVariables {
		if v == "height" {
			v = "height_aux"
		}
		o = append(o, v)
	}
	return o
}()

// Errors returned by index construction, queries, and fusion.
var (
	// ErrEmptyIndex is returned when querying an index with no points.
	ErrEmptyIndex = errors.New("cloudscene: index has no points")

	// ErrDimension is returned when a query or point has the wrong
	// number of dimensions.
	ErrDimension = errors.New("cloudscene: dimension mismatch")

	// ErrTooFewPoints is returned when more neighbors are requested
	// than are present in an index.
	ErrTooFewPoints = errors.New("cloudscene: more neighbors requested than indexed points")

	// ErrOutOfGrid is returned for pixel coordinates outside the imager grid.
	ErrOutOfGrid = errors.New("cloudscene: pixel outside of imager grid")

	// ErrAuxIndex is returned when a donor has no corresponding auxiliary
	// point after applying the configured index offset.
	ErrAuxIndex = errors.New("cloudscene: auxiliary index out of range")
)

// Config holds the donor selection thresholds and run settings.
type Config struct {
	// KCandidates is the number of spectral nearest neighbors examined
	// for each pixel.
	KCandidates int

	// MaxIdxDistance is the maximum along-track (row) distance in pixels
	// between a target pixel and a candidate's home pixel.
	MaxIdxDistance int

	// DeltaMu0 and DeltaPhi0 are the exclusive upper bounds on the
	// difference in solar geometry between a target pixel and a
	// candidate's home pixel.
	DeltaMu0, DeltaPhi0 float64

	// DiffIdx is the offset added to a cloud-property point index to find
	// the corresponding auxiliary point.
	DiffIdx int

	// Bands is the required number of imager spectral bands. Zero
	// disables the check.
	Bands int

	// NumProcs is the number of goroutines used for fusion. Zero means
	// runtime.GOMAXPROCS(0).
	NumProcs int
}

// DefaultConfig returns the settings used for operational runs.
func DefaultConfig() Config {
	return Config{
		KCandidates:    100,
		MaxIdxDistance: 400,
		DeltaMu0:       30,
		DeltaPhi0:      30,
		DiffIdx:        100,
		Bands:          7,
	}
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	switch {
	case c.KCandidates < 1:
		return fmt.Errorf("cloudscene: KCandidates must be at least 1 but is %d", c.KCandidates)
	case c.MaxIdxDistance < 0:
		return fmt.Errorf("cloudscene: MaxIdxDistance must not be negative but is %d", c.MaxIdxDistance)
	case !(c.DeltaMu0 > 0):
		return fmt.Errorf("cloudscene: DeltaMu0 must be positive but is %g", c.DeltaMu0)
	case !(c.DeltaPhi0 > 0):
		return fmt.Errorf("cloudscene: DeltaPhi0 must be positive but is %g", c.DeltaPhi0)
	case c.Bands < 0:
		return fmt.Errorf("cloudscene: Bands must not be negative but is %d", c.Bands)
	case c.NumProcs < 0:
		return fmt.Errorf("cloudscene: NumProcs must not be negative but is %d", c.NumProcs)
	}
	return nil
}

func (c Config) procs() int {
	if c.NumProcs == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.NumProcs
}

// Spectrum is a vector of natural-log radiances, one per spectral band.
type Spectrum []float64

// logSpectrum returns the natural log of each radiance, or nil if any
// radiance is not a positive finite number.
func logSpectrum(radiance []float64) Spectrum {
	s := make(Spectrum, len(radiance))
	for i, r := range radiance {
		if !(r > 0) || math.IsInf(r, 1) {
			return nil
		}
		s[i] = math.Log(r)
	}
	return s
}

// ImagerGrid holds a swath of imager pixels. Rows are along-track and
// columns are across-track.
type ImagerGrid struct {
	// Radiance holds linear radiances with shape [bands, rows, cols].
	Radiance *sparse.DenseArray

	// Lon and Lat hold pixel-center coordinates with shape [rows, cols].
	Lon, Lat *sparse.DenseArray

	// Mu0 and Phi0 hold the solar geometry with shape [rows, cols].
	Mu0, Phi0 *sparse.DenseArray

	// Surface holds the integer surface classification with shape
	// [rows, cols].
	Surface *sparse.DenseArrayInt
}

// Shape returns the number of rows and columns in the grid.
func (g *ImagerGrid) Shape() (rows, cols int) {
	if g.Lon == nil || len(g.Lon.Shape) != 2 {
		return 0, 0
	}
	return g.Lon.Shape[0], g.Lon.Shape[1]
}

// Bands returns the number of spectral bands.
func (g *ImagerGrid) Bands() int {
	if g.Radiance == nil || len(g.Radiance.Shape) != 3 {
		return 0
	}
	return g.Radiance.Shape[0]
}

// Check returns an error if the per-pixel arrays do not share one shape.
func (g *ImagerGrid) Check() error {
	if g.Lon == nil || g.Lat == nil || g.Mu0 == nil || g.Phi0 == nil || g.Radiance == nil || g.Surface == nil {
		return errors.New("cloudscene: imager grid is missing one or more arrays")
	}
	rows, cols := g.Shape()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("cloudscene: imager grid is empty (shape %v)", g.Lon.Shape)
	}
	if len(g.Radiance.Shape) != 3 || g.Radiance.Shape[0] == 0 {
		return fmt.Errorf("cloudscene: imager radiance shape %v is not [bands rows cols]", g.Radiance.Shape)
	}
	for name, s := range map[string][]int{
		"latitude":         g.Lat.Shape,
		"mu0":              g.Mu0.Shape,
		"phi0":             g.Phi0.Shape,
		"surface type":     g.Surface.Shape,
		"radiance (bands)": g.Radiance.Shape[1:],
	} {
		if len(s) != 2 || s[0] != rows || s[1] != cols {
			return fmt.Errorf("cloudscene: imager %s shape %v does not match longitude shape [%d %d]",
				name, s, rows, cols)
		}
	}
	return nil
}

func (g *ImagerGrid) contains(row, col int) bool {
	rows, cols := g.Shape()
	return row >= 0 && row < rows && col >= 0 && col < cols
}

// Location returns the coordinate of the pixel at (row, col).
func (g *ImagerGrid) Location(row, col int) geom.Point {
	return geom.Point{X: g.Lon.Get(row, col), Y: g.Lat.Get(row, col)}
}

// Radiances returns the linear radiance of every band at (row, col).
func (g *ImagerGrid) Radiances(row, col int) []float64 {
	o := make([]float64, g.Bands())
	for b := range o {
		o[b] = g.Radiance.Get(b, row, col)
	}
	return o
}

// LogSpectrum returns the log-radiance spectrum of the pixel at (row, col),
// or nil if any band radiance is non-positive or not finite.
func (g *ImagerGrid) LogSpectrum(row, col int) Spectrum {
	return logSpectrum(g.Radiances(row, col))
}

// Bounds returns the geographic extent of the grid.
func (g *ImagerGrid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	rows, cols := g.Shape()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			b.Extend(geom.NewBoundsPoint(g.Location(i, j)))
		}
	}
	return b
}

// PropertyPointSet holds cloud-property profiles at irregularly spaced
// points.
type PropertyPointSet struct {
	Lon, Lat []float64

	// Profiles holds one [points, levels] array for each of CloudVariables.
	Profiles []*sparse.DenseArray

	// Spectra holds the log-radiance of each point's nearest imager pixel.
	// It is filled in by Align; entries are nil for points whose
	// nearest pixel has no valid spectrum.
	Spectra []Spectrum
}

// Len returns the number of points.
func (p *PropertyPointSet) Len() int { return len(p.Lon) }

// Levels returns the number of vertical levels.
func (p *PropertyPointSet) Levels() int { return levels(p.Profiles) }

// Location returns the coordinate of point i.
func (p *PropertyPointSet) Location(i int) geom.Point {
	return geom.Point{X: p.Lon[i], Y: p.Lat[i]}
}

// Check returns an error if the point arrays are inconsistent.
func (p *PropertyPointSet) Check() error {
	if len(p.Lat) != len(p.Lon) {
		return fmt.Errorf("cloudscene: cloud properties have %d longitudes but %d latitudes", len(p.Lon), len(p.Lat))
	}
	return checkProfiles("cloud properties", CloudVariables, p.Profiles, p.Len())
}

// AuxiliaryPointSet holds atmospheric profiles and surface fields at
// irregularly spaced points. Point i+DiffIdx corresponds to cloud-property
// point i.
type AuxiliaryPointSet struct {
	Lon, Lat []float64

	// Profiles holds one [points, levels] array for each of AuxVariables.
	// Levels are stored in the opposite vertical order to the cloud
	// property profiles.
	Profiles []*sparse.DenseArray

	SurfacePressure       []float64
	TotalColumnOzone      []float64
	TotalColumnWaterVapor []float64
	DayNightFlag          []int
	LandWaterFlag         []int
}

// Len returns the number of points.
func (a *AuxiliaryPointSet) Len() int { return len(a.Lon) }

// Levels returns the number of vertical levels.
func (a *AuxiliaryPointSet) Levels() int { return levels(a.Profiles) }

// Check returns an error if the point arrays are inconsistent.
func (a *AuxiliaryPointSet) Check() error {
	n := a.Len()
	for name, l := range map[string]int{
		"latitude":              len(a.Lat),
		"surfacePressure":       len(a.SurfacePressure),
		"totalColumnOzone":      len(a.TotalColumnOzone),
		"totalColumnWaterVapor": len(a.TotalColumnWaterVapor),
		"day_night_flag":        len(a.DayNightFlag),
		"land_water_flag":       len(a.LandWaterFlag),
	} {
		if l != n {
			return fmt.Errorf("cloudscene: auxiliary %s has %d points but longitude has %d", name, l, n)
		}
	}
	return checkProfiles("auxiliary data", AuxVariables, a.Profiles, n)
}

func levels(profiles []*sparse.DenseArray) int {
	if len(profiles) == 0 || profiles[0] == nil || len(profiles[0].Shape) != 2 {
		return 0
	}
	return profiles[0].Shape[1]
}

func checkProfiles(set string, names []string, profiles []*sparse.DenseArray, n int) error {
	if len(profiles) != len(names) {
		return fmt.Errorf("cloudscene: %s have %d profile variables but need %d", set, len(profiles), len(names))
	}
	k := levels(profiles)
	for i, p := range profiles {
		if p == nil || len(p.Shape) != 2 || p.Shape[0] != n || p.Shape[1] != k {
			var shape []int
			if p != nil {
				shape = p.Shape
			}
			return fmt.Errorf("cloudscene: %s variable %s has shape %v but needs [%d %d]",
				set, names[i], shape, n, k)
		}
	}
	return nil
}
