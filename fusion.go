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
	"context"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Window is an inclusive range of imager rows and columns.
type Window struct {
	IMin, IMax, JMin, JMax int
}

// FullWindow returns the window covering all of g.
func FullWindow(g *ImagerGrid) Window {
	rows, cols := g.Shape()
	return Window{IMax: rows - 1, JMax: cols - 1}
}

// Check returns an error if w is empty or extends outside of a grid
// with the given shape.
func (w Window) Check(rows, cols int) error {
	if w.IMin < 0 || w.IMin > w.IMax || w.IMax >= rows {
		return fmt.Errorf("cloudscene: invalid row range [%d, %d] for grid with %d rows", w.IMin, w.IMax, rows)
	}
	if w.JMin < 0 || w.JMin > w.JMax || w.JMax >= cols {
		return fmt.Errorf("cloudscene: invalid column range [%d, %d] for grid with %d columns", w.JMin, w.JMax, cols)
	}
	return nil
}

// Shape returns the number of rows and columns in w.
func (w Window) Shape() (rows, cols int) {
	return w.IMax - w.IMin + 1, w.JMax - w.JMin + 1
}

// MappedOutput holds the result of fusing a window of the imager grid.
type MappedOutput struct {
	Window Window

	// Hout and Wout are the numbers of output rows and columns, K is the
	// number of levels and L is the number of variables.
	Hout, Wout, K, L int

	// Indices holds the donor index of each output pixel in row-major
	// order, or NoDonor.
	Indices []uint64

	// Distances holds the spectral match distance of each output pixel,
	// or NaN if there is no donor.
	Distances []float64

	// Fallback marks output pixels whose donor is a geometric fallback.
	Fallback []bool

	// Values has shape [Hout, Wout, K, L] and holds NaN for pixels
	// without a donor. Variables are ordered as in OutputVariables.
	Values *sparse.DenseArray
}

func newMappedOutput(w Window, k, l int) *MappedOutput {
	hout, wout := w.Shape()
	m := &MappedOutput{
		Window:    w,
		Hout:      hout,
		Wout:      wout,
		K:         k,
		L:         l,
		Indices:   make([]uint64, hout*wout),
		Distances: make([]float64, hout*wout),
		Fallback:  make([]bool, hout*wout),
		Values:    sparse.ZerosDense(hout, wout, k, l),
	}
	for i := range m.Values.Elements {
		m.Values.Elements[i] = math.NaN()
	}
	return m
}

// FlatIndex returns the position of output pixel (i, j), level k and
// variable l in Values.Elements.
func (m *MappedOutput) FlatIndex(i, j, k, l int) int {
	return (((i*m.Wout+j)*m.K+k)*m.L + l)
}

// Donor returns the donor of output pixel (i, j). ok is false if the pixel
// has no donor.
func (m *MappedOutput) Donor(i, j int) (d Donor, ok bool) {
	p := i*m.Wout + j
	if m.Indices[p] == NoDonor {
		return Donor{}, false
	}
	return Donor{Index: int(m.Indices[p]), Distance: m.Distances[p], Fallback: m.Fallback[p]}, true
}

// CloudConstructor maps cloud and auxiliary profiles onto the imager grid.
type CloudConstructor struct {
	cfg      Config
	aux      *AuxiliaryPointSet
	align    *Alignment
	selector *DonorSelector
	log      logrus.FieldLogger
}

// NewCloudConstructor validates the inputs and builds the indexes needed
// for fusion. If log is nil, the standard logrus logger is used.
func NewCloudConstructor(cfg Config, imager *ImagerGrid, props *PropertyPointSet, aux *AuxiliaryPointSet, log logrus.FieldLogger) (*CloudConstructor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := aux.Check(); err != nil {
		return nil, err
	}
	if err := props.Check(); err != nil {
		return nil, err
	}
	if aux.Levels() != props.Levels() {
		return nil, fmt.Errorf("cloudscene: auxiliary data have %d levels but cloud properties have %d",
			aux.Levels(), props.Levels())
	}
	a, err := Align(cfg, imager, props, log)
	if err != nil {
		return nil, err
	}
	s, err := NewDonorSelector(a, cfg)
	if err != nil {
		return nil, err
	}
	return &CloudConstructor{cfg: cfg, aux: aux, align: a, selector: s, log: log}, nil
}

// Alignment returns the indexes used by c.
func (c *CloudConstructor) Alignment() *Alignment { return c.align }

// Selector returns the DonorSelector used by c.
func (c *CloudConstructor) Selector() *DonorSelector { return c.selector }

// Construct selects a donor for every pixel in window w and copies the
// donor's cloud and auxiliary profiles into the output. Blocks of rows
// are processed concurrently. An error is returned if a donor has no
// auxiliary point after applying DiffIdx.
func (c *CloudConstructor) Construct(ctx context.Context, w Window) (*MappedOutput, error) {
	rows, cols := c.align.Imager.Shape()
	if err := w.Check(rows, cols); err != nil {
		return nil, err
	}
	m := newMappedOutput(w, c.align.Properties.Levels(), len(OutputVariables))

	nprocs := c.cfg.procs()
	if nprocs > m.Hout {
		nprocs = m.Hout
	}
	block := (m.Hout + nprocs - 1) / nprocs
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < m.Hout; start += block {
		start := start
		end := start + block
		if end > m.Hout {
			end = m.Hout
		}
		g.Go(func() error { return c.constructRows(ctx, m, start, end) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := Summarize(m)
	c.log.WithFields(logrus.Fields{
		"pixels":    m.Hout * m.Wout,
		"spectral":  stats.Spectral,
		"fallbacks": stats.Fallback,
		"no_donor":  stats.NoDonor,
	}).Info("constructed fused cloud scene")
	return m, nil
}

// constructRows fills output rows [start, end) of m.
func (c *CloudConstructor) constructRows(ctx context.Context, m *MappedOutput, start, end int) error {
	props := c.align.Properties
	nCloud := len(props.Profiles)
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := 0; j < m.Wout; j++ {
			row, col := i+m.Window.IMin, j+m.Window.JMin
			d, ok, err := c.selector.FindBestDonor(row, col)
			if err != nil {
				return err
			}
			p := i*m.Wout + j
			if !ok {
				m.Indices[p] = NoDonor
				m.Distances[p] = math.NaN()
				continue
			}
			auxIdx := d.Index + c.cfg.DiffIdx
			if auxIdx < 0 || auxIdx >= c.aux.Len() {
				return fmt.Errorf("%w: pixel (%d, %d) has donor %d, which with offset %d gives auxiliary index %d of %d",
					ErrAuxIndex, row, col, d.Index, c.cfg.DiffIdx, auxIdx, c.aux.Len())
			}
			m.Indices[p] = uint64(d.Index)
			m.Distances[p] = d.Distance
			m.Fallback[p] = d.Fallback

			for k := 0; k < m.K; k++ {
				base := m.FlatIndex(i, j, k, 0)
				for v, prof := range props.Profiles {
					m.Values.Elements[base+v] = prof.Get(d.Index, k)
				}
				// The auxiliary profiles run in the opposite vertical
				// direction, so level k reads auxiliary level K-1-k.
				kAux := m.K - 1 - k
				for v, prof := range c.aux.Profiles {
					m.Values.Elements[base+nCloud+v] = prof.Get(auxIdx, kAux)
				}
			}
		}
	}
	return nil
}
