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
	"math"
	"os"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/spatialmodel/cloudscene/internal/hash"
)

// Outputter writes fused results to a netCDF file.
//
// derived maps the names of additional output variables to expressions
// of the variables in OutputVariables, for example
// "total_water_content": "cloud_water_content1 + cloud_water_content2".
// Derived variables are evaluated separately for each pixel and level and
// are NaN for pixels without a donor.
type Outputter struct {
	fileName     string
	derivedNames []string
	derived      map[string]*govaluate.EvaluableExpression
	functions    map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions. Default functions include:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'log(x)' which applies the natural logarithm.
//
// 'abs(x)' which returns the absolute value.
func NewOutputter(fileName string, derived map[string]string, functions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultFuncs := map[string]govaluate.ExpressionFunction{
		"exp": oneArgFunc("exp", math.Exp),
		"log": oneArgFunc("log", math.Log),
		"abs": oneArgFunc("abs", math.Abs),
	}
	for key, val := range functions {
		defaultFuncs[key] = val
	}
	o := &Outputter{
		fileName:  fileName,
		derived:   make(map[string]*govaluate.EvaluableExpression),
		functions: defaultFuncs,
	}

	known := make(map[string]bool)
	for _, v := range OutputVariables {
		known[v] = true
	}
	for name, expr := range derived {
		if known[name] {
			return nil, fmt.Errorf("cloudscene: derived variable '%s' has the same name as an output variable", name)
		}
		expr = strings.Replace(expr, "\r\n", " ", -1)
		expr = strings.Replace(expr, "\n", " ", -1)
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.functions)
		if err != nil {
			return nil, fmt.Errorf("cloudscene: derived variable '%s': %w", name, err)
		}
		for _, v := range e.Vars() {
			if !known[v] {
				return nil, fmt.Errorf("cloudscene: derived variable '%s' uses undefined variable '%s'", name, v)
			}
		}
		o.derived[name] = e
		o.derivedNames = append(o.derivedNames, name)
	}
	sort.Strings(o.derivedNames)
	return o, nil
}

func oneArgFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("cloudscene: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		v, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("cloudscene: argument to function '%s' is %T, not a number", name, arg[0])
		}
		return f(v), nil
	}
}

// FileName returns the path of the output file.
func (o *Outputter) FileName() string { return o.fileName }

// Output writes m to the output file, together with the geolocation of each
// output pixel and the surface fields of each donor's auxiliary point.
// cfg must be the configuration m was created with.
func (o *Outputter) Output(m *MappedOutput, imager *ImagerGrid, aux *AuxiliaryPointSet, cfg Config) error {
	n := m.Hout * m.Wout
	lat, lon := make([]float64, n), make([]float64, n)
	dist := make([]float64, n)
	indices, fallback := make([]int32, n), make([]int32, n)
	surfP, colO3, colWV := make([]float64, n), make([]float64, n), make([]float64, n)
	dayNight, landWater := make([]int32, n), make([]int32, n)
	for i := 0; i < m.Hout; i++ {
		for j := 0; j < m.Wout; j++ {
			p := i*m.Wout + j
			loc := imager.Location(i+m.Window.IMin, j+m.Window.JMin)
			lon[p], lat[p] = loc.X, loc.Y
			d, ok := m.Donor(i, j)
			if !ok {
				indices[p], fallback[p] = -1, -1
				dist[p] = math.NaN()
				surfP[p], colO3[p], colWV[p] = math.NaN(), math.NaN(), math.NaN()
				dayNight[p], landWater[p] = -1, -1
				continue
			}
			if d.Index > math.MaxInt32 {
				return fmt.Errorf("cloudscene: output pixel (%d, %d) donor %d does not fit in the 32-bit mapped_indices variable", i, j, d.Index)
			}
			indices[p] = int32(d.Index)
			dist[p] = d.Distance
			if d.Fallback {
				fallback[p] = 1
			}
			a := d.Index + cfg.DiffIdx
			if a < 0 || a >= aux.Len() {
				return fmt.Errorf("%w: output pixel (%d, %d) donor %d", ErrAuxIndex, i, j, d.Index)
			}
			surfP[p] = aux.SurfacePressure[a]
			colO3[p] = aux.TotalColumnOzone[a]
			colWV[p] = aux.TotalColumnWaterVapor[a]
			dayNight[p] = int32(aux.DayNightFlag[a])
			landWater[p] = int32(aux.LandWaterFlag[a])
		}
	}

	pix := []string{dimAlongTrack, dimAcrossTrack}
	vars := []ncVariable{
		{name: "mapped_indices", dims: pix, data: indices, description: "Donor cloud property point index (-1: no donor)"},
		{name: "match_distance", dims: pix, data: dist, description: "Spectral distance to donor"},
		{name: "fallback", dims: pix, data: fallback, description: "Geometric fallback donor (1), spectral donor (0), no donor (-1)"},
		{name: varLat, dims: pix, data: lat},
		{name: varLon, dims: pix, data: lon},
		{name: varSurfaceP, dims: pix, data: surfP},
		{name: varColumnO3, dims: pix, data: colO3},
		{name: varColumnWV, dims: pix, data: colWV},
		{name: varDayNight, dims: pix, data: dayNight},
		{name: varLandWater, dims: pix, data: landWater},
	}
	lev := []string{dimAlongTrack, dimAcrossTrack, dimLevel}
	for l, name := range OutputVariables {
		vars = append(vars, ncVariable{name: name, dims: lev, data: m.Variable(l)})
	}
	for _, name := range o.derivedNames {
		data, err := o.evaluate(m, o.derived[name])
		if err != nil {
			return fmt.Errorf("cloudscene: calculating derived variable '%s': %w", name, err)
		}
		vars = append(vars, ncVariable{name: name, dims: lev, data: data, description: o.derived[name].String()})
	}

	f, err := os.Create(o.fileName)
	if err != nil {
		return fmt.Errorf("cloudscene: creating output file: %w", err)
	}
	bounds := imager.Bounds()
	attrs := map[string]interface{}{
		"comment":       "cloudscene fused cloud scene",
		"window":        []int32{int32(m.Window.IMin), int32(m.Window.IMax), int32(m.Window.JMin), int32(m.Window.JMax)},
		"k_candidates":  []int32{int32(cfg.KCandidates)},
		"max_idx_dist":  []int32{int32(cfg.MaxIdxDistance)},
		"delta_mu0":     []float64{cfg.DeltaMu0},
		"delta_phi0":    []float64{cfg.DeltaPhi0},
		"diff_idx":      []int32{int32(cfg.DiffIdx)},
		"config_hash":   hash.Hash(cfg),
		"imager_bounds": []float64{bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y},
		"software":      "cloudscene v" + Version,
	}
	if err := writeNetCDF(f, []string{dimAlongTrack, dimAcrossTrack, dimLevel}, []int{m.Hout, m.Wout, m.K}, attrs, vars); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cloudscene: closing output file: %w", err)
	}
	return o.writeFootprint(m, imager)
}

// Variable returns the values of output variable l with shape
// [Hout, Wout, K] in row-major order.
func (m *MappedOutput) Variable(l int) []float64 {
	o := make([]float64, m.Hout*m.Wout*m.K)
	for i := range o {
		o[i] = m.Values.Elements[i*m.L+l]
	}
	return o
}

// evaluate calculates expression e at every pixel and level of m.
func (o *Outputter) evaluate(m *MappedOutput, e *govaluate.EvaluableExpression) ([]float64, error) {
	out := make([]float64, m.Hout*m.Wout*m.K)
	params := make(map[string]interface{}, m.L)
	for i := range out {
		if m.Indices[i/m.K] == NoDonor {
			out[i] = math.NaN()
			continue
		}
		for l, name := range OutputVariables {
			params[name] = m.Values.Elements[i*m.L+l]
		}
		v, err := e.Evaluate(params)
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expression result is %T, not a number", v)
		}
		out[i] = f
	}
	return out, nil
}

// FootprintFileName returns the path of the GeoJSON footprint written
// alongside the output file.
func (o *Outputter) FootprintFileName() string {
	return strings.TrimSuffix(o.fileName, ".nc") + ".footprint.geojson"
}

// writeFootprint writes the outline of the output window as a GeoJSON
// polygon.
func (o *Outputter) writeFootprint(m *MappedOutput, imager *ImagerGrid) error {
	w := m.Window
	poly := geom.Polygon{{
		imager.Location(w.IMin, w.JMin),
		imager.Location(w.IMin, w.JMax),
		imager.Location(w.IMax, w.JMax),
		imager.Location(w.IMax, w.JMin),
		imager.Location(w.IMin, w.JMin),
	}}
	b, err := geojson.Encode(poly)
	if err != nil {
		return fmt.Errorf("cloudscene: encoding footprint: %w", err)
	}
	if err := os.WriteFile(o.FootprintFileName(), b, 0644); err != nil {
		return fmt.Errorf("cloudscene: writing footprint: %w", err)
	}
	return nil
}
