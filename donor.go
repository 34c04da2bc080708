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
)

// Donor is a cloud-property point selected for an imager pixel.
type Donor struct {
	// Index is the position of the donor in the PropertyPointSet.
	Index int

	// Distance is the spectral distance between the pixel and the donor.
	// It is 0 for geometric fallbacks.
	Distance float64

	// Fallback is true if no spectral candidate passed the acceptance
	// gates and the geometrically nearest point was chosen instead.
	Fallback bool
}

// DonorSelector chooses donors for imager pixels. It is safe for
// concurrent use.
type DonorSelector struct {
	a   *Alignment
	cfg Config
}

// NewDonorSelector returns a DonorSelector using the indexes in a and the
// thresholds in cfg.
func NewDonorSelector(a *Alignment, cfg Config) (*DonorSelector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DonorSelector{a: a, cfg: cfg}, nil
}

// FindBestDonor returns the donor for the imager pixel at (row, col).
//
// The KCandidates spectrally nearest property points are examined in order
// of increasing spectral distance. The first candidate is accepted whose
// home pixel is within MaxIdxDistance rows of the target, has solar
// geometry within DeltaMu0 and DeltaPhi0 of the target, and has the same
// surface type. If no candidate is accepted, or the target pixel has no
// valid spectrum, the property point nearest to the pixel's location is
// returned with Fallback set.
//
// ok is false only if there are no property points.
func (s *DonorSelector) FindBestDonor(row, col int) (donor Donor, ok bool, err error) {
	g := s.a.Imager
	if !g.contains(row, col) {
		rows, cols := g.Shape()
		return Donor{}, false, fmt.Errorf("%w: (%d, %d) with grid shape (%d, %d)", ErrOutOfGrid, row, col, rows, cols)
	}
	if s.a.Properties.Len() == 0 {
		return Donor{}, false, nil
	}

	if spec := g.LogSpectrum(row, col); spec != nil && s.a.SpectralIndex.Len() > 0 {
		k := s.cfg.KCandidates
		if n := s.a.SpectralIndex.Len(); k > n {
			k = n
		}
		candidates, err := s.a.SpectralIndex.KNearest(spec, k)
		if err != nil {
			return Donor{}, false, fmt.Errorf("cloudscene: spectral search for pixel (%d, %d): %w", row, col, err)
		}
		for _, c := range candidates {
			if s.accept(row, col, s.a.Home[c.Index]) {
				return Donor{Index: c.Index, Distance: c.Distance}, true, nil
			}
		}
	}

	nearest, err := s.a.PropertyIndex.Nearest(g.Location(row, col))
	if err != nil {
		return Donor{}, false, fmt.Errorf("cloudscene: geometric search for pixel (%d, %d): %w", row, col, err)
	}
	return Donor{Index: nearest.Index, Fallback: true}, true, nil
}

// accept reports whether a candidate whose home pixel is h passes the
// acceptance gates for the target pixel (row, col).
func (s *DonorSelector) accept(row, col int, h Pixel) bool {
	if abs(h.Row-row) > s.cfg.MaxIdxDistance {
		return false
	}
	g := s.a.Imager
	if !(math.Abs(g.Mu0.Get(row, col)-g.Mu0.Get(h.Row, h.Col)) < s.cfg.DeltaMu0) {
		return false
	}
	if !(math.Abs(g.Phi0.Get(row, col)-g.Phi0.Get(h.Row, h.Col)) < s.cfg.DeltaPhi0) {
		return false
	}
	return g.Surface.Get(row, col) == g.Surface.Get(h.Row, h.Col)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
