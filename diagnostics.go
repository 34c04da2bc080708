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
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// MatchStats summarizes the donors in a MappedOutput.
type MatchStats struct {
	// Spectral, Fallback and NoDonor count the output pixels matched
	// spectrally, matched by geometric fallback, and left without a donor.
	Spectral, Fallback, NoDonor int

	// MeanDistance and MedianDistance describe the spectral match
	// distances. They are NaN if there are no spectral matches.
	MeanDistance, MedianDistance float64
}

func (s MatchStats) String() string {
	return fmt.Sprintf("spectral matches: %d, geometric fallbacks: %d, no donor: %d, "+
		"mean distance: %.4g, median distance: %.4g",
		s.Spectral, s.Fallback, s.NoDonor, s.MeanDistance, s.MedianDistance)
}

// spectralDistances returns the sorted match distances of spectrally
// matched pixels.
func spectralDistances(m *MappedOutput) []float64 {
	var d []float64
	for i, idx := range m.Indices {
		if idx != NoDonor && !m.Fallback[i] {
			d = append(d, m.Distances[i])
		}
	}
	sort.Float64s(d)
	return d
}

// Summarize returns match statistics for m.
func Summarize(m *MappedOutput) MatchStats {
	var s MatchStats
	for i, idx := range m.Indices {
		switch {
		case idx == NoDonor:
			s.NoDonor++
		case m.Fallback[i]:
			s.Fallback++
		default:
			s.Spectral++
		}
	}
	d := spectralDistances(m)
	if len(d) == 0 {
		s.MeanDistance, s.MedianDistance = math.NaN(), math.NaN()
		return s
	}
	s.MeanDistance = stat.Mean(d, nil)
	s.MedianDistance = stat.Quantile(0.5, stat.Empirical, d, nil)
	return s
}

// PlotMatchDistances saves a histogram of the spectral match distances in m
// to filename. The image format is chosen from the file extension.
func PlotMatchDistances(m *MappedOutput, filename string) error {
	d := spectralDistances(m)
	if len(d) == 0 {
		return fmt.Errorf("cloudscene: no spectral matches to plot")
	}
	p := plot.New()
	p.Title.Text = "Spectral match distance"
	p.X.Label.Text = "Distance (log radiance)"
	p.Y.Label.Text = "Pixels"

	bins := 50
	if len(d) < bins {
		bins = len(d)
	}
	h, err := plotter.NewHist(plotter.Values(d), bins)
	if err != nil {
		return fmt.Errorf("cloudscene: plotting match distances: %w", err)
	}
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return fmt.Errorf("cloudscene: saving match distance plot: %w", err)
	}
	return nil
}
