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
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Product variable names that are not profile variables.
const (
	varRadiance    = "pixel_values"
	varLon         = "longitude"
	varLat         = "latitude"
	varMu0         = "solar_elevation_angle"
	varPhi0        = "solar_azimuth_angle"
	varSurface     = "land_flag"
	varSurfaceP    = "surfacePressure"
	varColumnO3    = "totalColumnOzone"
	varColumnWV    = "totalColumnWaterVapor"
	varDayNight    = "day_night_flag"
	varLandWater   = "land_water_flag"
	dimBand        = "band"
	dimAlongTrack  = "along_track"
	dimAcrossTrack = "across_track"
	dimPoint       = "point"
	dimLevel       = "level"
)

// ncVariable is a variable to be written to a netCDF file. data must be
// []float64 or []int32.
type ncVariable struct {
	name, description string
	dims              []string
	data              interface{}
}

// writeNetCDF writes the given dimensions, global attributes and variables
// to w.
func writeNetCDF(w *os.File, dims []string, lengths []int, attrs map[string]interface{}, vars []ncVariable) error {
	for i, l := range lengths {
		// A zero length would make the dimension unlimited.
		if l == 0 {
			return fmt.Errorf("cloudscene: netCDF dimension %s has zero length", dims[i])
		}
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "data_version", DataVersion)

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.AddAttribute("", n, attrs[n])
	}

	for _, v := range vars {
		switch v.data.(type) {
		case []float64:
			h.AddVariable(v.name, v.dims, []float64{0})
		case []int32:
			h.AddVariable(v.name, v.dims, []int32{0})
		default:
			return fmt.Errorf("cloudscene: unsupported type %T for netCDF variable %s", v.data, v.name)
		}
		if v.description != "" {
			h.AddAttribute(v.name, "description", v.description)
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("cloudscene: creating netCDF file: %w", err)
	}
	for _, v := range vars {
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		n := 1
		for _, l := range end {
			n *= l
		}
		if l := reflect.ValueOf(v.data).Len(); l != n {
			return fmt.Errorf("cloudscene: netCDF variable %s has dims %v but array length is %d", v.name, end, l)
		}
		if _, err := f.Writer(v.name, start, end).Write(v.data); err != nil {
			return fmt.Errorf("cloudscene: writing variable %s to netCDF file: %w", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func int32s(v []int) []int32 {
	o := make([]int32, len(v))
	for i, x := range v {
		o[i] = int32(x)
	}
	return o
}

// ncReader reads variables from a product file.
type ncReader struct {
	f       *cdf.File
	product string
}

func openProduct(rw cdf.ReaderWriterAt, product string) (*ncReader, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("cloudscene: opening %s file: %w", product, err)
	}
	version, _ := f.Header.GetAttribute("", "data_version").(string)
	if version != DataVersion {
		return nil, fmt.Errorf("cloudscene: %s file data version '%s' is incompatible with the required version %s",
			product, version, DataVersion)
	}
	return &ncReader{f: f, product: product}, nil
}

// shape returns the dimension lengths of variable name.
func (r *ncReader) shape(name string) ([]int, error) {
	dims := r.f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("cloudscene: variable %s not in %s file", name, r.product)
	}
	return dims, nil
}

// read returns the values of variable name converted to float64. If shape
// is given, the variable dimensions must match it.
func (r *ncReader) read(name string, shape ...int) (*sparse.DenseArray, error) {
	dims, err := r.shape(name)
	if err != nil {
		return nil, err
	}
	if shape != nil && !reflect.DeepEqual(dims, shape) {
		return nil, fmt.Errorf("cloudscene: %s variable %s has shape %v but needs %v", r.product, name, dims, shape)
	}
	rr := r.f.Reader(name, nil, nil)
	buf := rr.Zero(-1)
	if _, err = rr.Read(buf); err != nil {
		return nil, fmt.Errorf("cloudscene: reading %s variable %s: %w", r.product, name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int8:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("cloudscene: %s variable %s has unsupported type %T", r.product, name, buf)
	}
	return data, nil
}

func (r *ncReader) ints(name string, shape ...int) ([]int, error) {
	d, err := r.read(name, shape...)
	if err != nil {
		return nil, err
	}
	o := make([]int, len(d.Elements))
	for i, v := range d.Elements {
		o[i] = int(v)
	}
	return o, nil
}

func (r *ncReader) profiles(names []string, n, k int) ([]*sparse.DenseArray, error) {
	o := make([]*sparse.DenseArray, len(names))
	for i, name := range names {
		var err error
		if o[i], err = r.read(name, n, k); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// LoadImagerGrid reads an imager grid from a netCDF file.
func LoadImagerGrid(rw cdf.ReaderWriterAt) (*ImagerGrid, error) {
	r, err := openProduct(rw, "imager")
	if err != nil {
		return nil, err
	}
	g := new(ImagerGrid)
	if g.Lon, err = r.read(varLon); err != nil {
		return nil, err
	}
	if len(g.Lon.Shape) != 2 {
		return nil, fmt.Errorf("cloudscene: imager longitude has shape %v but needs 2 dimensions", g.Lon.Shape)
	}
	rows, cols := g.Lon.Shape[0], g.Lon.Shape[1]
	for _, v := range []struct {
		name string
		dst  **sparse.DenseArray
	}{{varLat, &g.Lat}, {varMu0, &g.Mu0}, {varPhi0, &g.Phi0}} {
		if *v.dst, err = r.read(v.name, rows, cols); err != nil {
			return nil, err
		}
	}
	bandShape, err := r.shape(varRadiance)
	if err != nil {
		return nil, err
	}
	if g.Radiance, err = r.read(varRadiance, bandShape[0], rows, cols); err != nil {
		return nil, err
	}
	surface, err := r.ints(varSurface, rows, cols)
	if err != nil {
		return nil, err
	}
	g.Surface = sparse.ZerosDenseInt(rows, cols)
	copy(g.Surface.Elements, surface)
	return g, g.Check()
}

// Write writes g to netCDF file w.
func (g *ImagerGrid) Write(w *os.File) error {
	if err := g.Check(); err != nil {
		return err
	}
	rows, cols := g.Shape()
	pix := []string{dimAlongTrack, dimAcrossTrack}
	return writeNetCDF(w,
		[]string{dimBand, dimAlongTrack, dimAcrossTrack},
		[]int{g.Bands(), rows, cols},
		map[string]interface{}{"comment": "cloudscene imager grid"},
		[]ncVariable{
			{name: varRadiance, dims: []string{dimBand, dimAlongTrack, dimAcrossTrack}, data: g.Radiance.Elements,
				description: "Band radiance"},
			{name: varLon, dims: pix, data: g.Lon.Elements, description: "Pixel longitude"},
			{name: varLat, dims: pix, data: g.Lat.Elements, description: "Pixel latitude"},
			{name: varMu0, dims: pix, data: g.Mu0.Elements, description: "Solar zenith cosine"},
			{name: varPhi0, dims: pix, data: g.Phi0.Elements, description: "Solar azimuth angle"},
			{name: varSurface, dims: pix, data: int32s(g.Surface.Elements), description: "Surface classification"},
		})
}

// LoadPropertyPointSet reads cloud-property profiles from a netCDF file.
func LoadPropertyPointSet(rw cdf.ReaderWriterAt) (*PropertyPointSet, error) {
	r, err := openProduct(rw, "cloud property")
	if err != nil {
		return nil, err
	}
	lon, err := r.read(varLon)
	if err != nil {
		return nil, err
	}
	n := len(lon.Elements)
	lat, err := r.read(varLat, n)
	if err != nil {
		return nil, err
	}
	ps, err := r.shape(CloudVariables[0])
	if err != nil {
		return nil, err
	}
	if len(ps) != 2 {
		return nil, fmt.Errorf("cloudscene: cloud property variable %s has shape %v but needs 2 dimensions", CloudVariables[0], ps)
	}
	p := &PropertyPointSet{Lon: lon.Elements, Lat: lat.Elements}
	if p.Profiles, err = r.profiles(CloudVariables, n, ps[1]); err != nil {
		return nil, err
	}
	return p, p.Check()
}

// Write writes p to netCDF file w. Derived spectra are not written.
func (p *PropertyPointSet) Write(w *os.File) error {
	if err := p.Check(); err != nil {
		return err
	}
	vars := []ncVariable{
		{name: varLon, dims: []string{dimPoint}, data: p.Lon},
		{name: varLat, dims: []string{dimPoint}, data: p.Lat},
	}
	for i, name := range CloudVariables {
		vars = append(vars, ncVariable{name: name, dims: []string{dimPoint, dimLevel}, data: p.Profiles[i].Elements})
	}
	return writeNetCDF(w, []string{dimPoint, dimLevel}, []int{p.Len(), p.Levels()},
		map[string]interface{}{"comment": "cloudscene cloud property profiles"}, vars)
}

// LoadAuxiliaryPointSet reads atmospheric profiles and surface fields from a
// netCDF file.
func LoadAuxiliaryPointSet(rw cdf.ReaderWriterAt) (*AuxiliaryPointSet, error) {
	r, err := openProduct(rw, "auxiliary")
	if err != nil {
		return nil, err
	}
	lon, err := r.read(varLon)
	if err != nil {
		return nil, err
	}
	n := len(lon.Elements)
	a := &AuxiliaryPointSet{Lon: lon.Elements}
	for _, v := range []struct {
		name string
		dst  *[]float64
	}{
		{varLat, &a.Lat},
		{varSurfaceP, &a.SurfacePressure},
		{varColumnO3, &a.TotalColumnOzone},
		{varColumnWV, &a.TotalColumnWaterVapor},
	} {
		d, err := r.read(v.name, n)
		if err != nil {
			return nil, err
		}
		*v.dst = d.Elements
	}
	if a.DayNightFlag, err = r.ints(varDayNight, n); err != nil {
		return nil, err
	}
	if a.LandWaterFlag, err = r.ints(varLandWater, n); err != nil {
		return nil, err
	}
	ps, err := r.shape(AuxVariables[0])
	if err != nil {
		return nil, err
	}
	if len(ps) != 2 {
		return nil, fmt.Errorf("cloudscene: auxiliary variable %s has shape %v but needs 2 dimensions", AuxVariables[0], ps)
	}
	if a.Profiles, err = r.profiles(AuxVariables, n, ps[1]); err != nil {
		return nil, err
	}
	return a, a.Check()
}

// Write writes a to netCDF file w.
func (a *AuxiliaryPointSet) Write(w *os.File) error {
	if err := a.Check(); err != nil {
		return err
	}
	pt := []string{dimPoint}
	vars := []ncVariable{
		{name: varLon, dims: pt, data: a.Lon},
		{name: varLat, dims: pt, data: a.Lat},
		{name: varSurfaceP, dims: pt, data: a.SurfacePressure},
		{name: varColumnO3, dims: pt, data: a.TotalColumnOzone},
		{name: varColumnWV, dims: pt, data: a.TotalColumnWaterVapor},
		{name: varDayNight, dims: pt, data: int32s(a.DayNightFlag)},
		{name: varLandWater, dims: pt, data: int32s(a.LandWaterFlag)},
	}
	for i, name := range AuxVariables {
		vars = append(vars, ncVariable{name: name, dims: []string{dimPoint, dimLevel}, data: a.Profiles[i].Elements})
	}
	return writeNetCDF(w, []string{dimPoint, dimLevel}, []int{a.Len(), a.Levels()},
		map[string]interface{}{"comment": "cloudscene auxiliary profiles"}, vars)
}
