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

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
)

// Pixel is a (row, column) position in an ImagerGrid.
type Pixel struct {
	Row, Col int
}

// Alignment holds the indexes that relate a PropertyPointSet to an
// ImagerGrid. It is read-only after it is created.
type Alignment struct {
	Imager *ImagerGrid

	// Properties is a copy of the input point set with Spectra filled in.
	Properties *PropertyPointSet

	// ImagerIndex indexes the imager pixel coordinates in row-major order.
	ImagerIndex SpatialIndex

	// SpectralIndex indexes Properties.Spectra.
	SpectralIndex SpectralIndex

	// PropertyIndex indexes the property point coordinates.
	PropertyIndex SpatialIndex

	// Home is the nearest imager pixel of each property point.
	Home []Pixel

	// Rejected is the number of property points left out of
	// SpectralIndex because their home pixel has no valid spectrum.
	Rejected int
}

// Align builds the spatial and spectral indexes needed for donor selection.
// Each property point is assigned the log-radiance spectrum of its nearest
// imager pixel. props is not modified.
func Align(cfg Config, imager *ImagerGrid, props *PropertyPointSet, log logrus.FieldLogger) (*Alignment, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := imager.Check(); err != nil {
		return nil, err
	}
	if err := props.Check(); err != nil {
		return nil, err
	}
	bands := imager.Bands()
	if cfg.Bands != 0 && bands != cfg.Bands {
		return nil, fmt.Errorf("%w: imager has %d bands but %d are configured", ErrDimension, bands, cfg.Bands)
	}

	rows, cols := imager.Shape()
	pixels := make([]geom.Point, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			pixels = append(pixels, imager.Location(i, j))
		}
	}
	imagerIndex, err := NewGeoIndex(pixels)
	if err != nil {
		return nil, fmt.Errorf("cloudscene: indexing imager pixels: %w", err)
	}

	a := &Alignment{
		Imager:      imager,
		ImagerIndex: imagerIndex,
		Home:        make([]Pixel, props.Len()),
	}
	enriched := *props
	enriched.Spectra = make([]Spectrum, props.Len())
	locations := make([]geom.Point, props.Len())
	for i := range locations {
		locations[i] = props.Location(i)
		n, err := imagerIndex.Nearest(locations[i])
		if err != nil {
			return nil, fmt.Errorf("cloudscene: locating property point %d: %w", i, err)
		}
		home := Pixel{Row: n.Index / cols, Col: n.Index % cols}
		a.Home[i] = home
		enriched.Spectra[i] = imager.LogSpectrum(home.Row, home.Col)
		if enriched.Spectra[i] == nil {
			a.Rejected++
		}
	}
	a.Properties = &enriched

	if a.SpectralIndex, err = NewSpectralTree(enriched.Spectra, bands); err != nil {
		return nil, err
	}
	if a.PropertyIndex, err = NewGeoIndex(locations); err != nil {
		return nil, fmt.Errorf("cloudscene: indexing property points: %w", err)
	}

	fields := logrus.Fields{
		"pixels":   rows * cols,
		"points":   props.Len(),
		"rejected": a.Rejected,
	}
	if a.Rejected > 0 {
		log.WithFields(fields).Warn("property points with non-positive radiance excluded from spectral matching")
	}
	log.WithFields(fields).Info("aligned cloud properties to imager grid")
	return a, nil
}
