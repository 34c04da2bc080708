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
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testMapped() *MappedOutput {
	m := newMappedOutput(Window{IMax: 1, JMax: 2}, 1, len(OutputVariables))
	copy(m.Indices, []uint64{0, 1, NoDonor, 2, 3, 4})
	copy(m.Distances, []float64{0.5, 0, math.NaN(), 1.5, 3, 0})
	copy(m.Fallback, []bool{false, true, false, false, false, true})
	return m
}

func TestSummarize(t *testing.T) {
	s := Summarize(testMapped())
	want := MatchStats{Spectral: 3, Fallback: 2, NoDonor: 1, MeanDistance: 5.0 / 3, MedianDistance: 1.5}
	if s.Spectral != want.Spectral || s.Fallback != want.Fallback || s.NoDonor != want.NoDonor {
		t.Errorf("have %+v, want %+v", s, want)
	}
	if math.Abs(s.MeanDistance-want.MeanDistance) > 1e-12 || s.MedianDistance != want.MedianDistance {
		t.Errorf("have %+v, want %+v", s, want)
	}
	if !strings.Contains(s.String(), "spectral matches: 3") {
		t.Errorf("string %q", s.String())
	}

	empty := newMappedOutput(Window{}, 1, 1)
	empty.Indices[0] = NoDonor
	if s := Summarize(empty); !math.IsNaN(s.MeanDistance) || !math.IsNaN(s.MedianDistance) || s.NoDonor != 1 {
		t.Errorf("empty: have %+v", s)
	}
}

func TestPlotMatchDistances(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "distances.png")
	if err := PlotMatchDistances(testMapped(), f); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(f); err != nil || info.Size() == 0 {
		t.Errorf("plot not written: %v", err)
	}

	empty := newMappedOutput(Window{}, 1, 1)
	empty.Indices[0] = NoDonor
	if err := PlotMatchDistances(empty, filepath.Join(dir, "empty.png")); err == nil {
		t.Error("expected an error with no spectral matches")
	}
}
