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

package cloudsceneutil

import (
	"context"
	"os"
	"reflect"
	"testing"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/cloudscene"
)

func TestCheckLogFile(t *testing.T) {
	os.Setenv("CLOUDSCENE_TEST_DIR", "/tmp/scenes")
	defer os.Unsetenv("CLOUDSCENE_TEST_DIR")
	for _, test := range []struct {
		log, output, want string
	}{
		{log: "", output: "/tmp/out.nc", want: "/tmp/out.log"},
		{log: "", output: "gs://bucket/out.nc", want: "gs://bucket/out.log"},
		{log: "${CLOUDSCENE_TEST_DIR}/run.log", output: "/tmp/out.nc", want: "/tmp/scenes/run.log"},
	} {
		if have := checkLogFile(test.log, test.output); have != test.want {
			t.Errorf("checkLogFile(%q, %q): have %q, want %q", test.log, test.output, have, test.want)
		}
	}
}

func TestCheckOutputFile(t *testing.T) {
	ctx := context.Background()
	if _, err := checkOutputFile(ctx, ""); err == nil {
		t.Error("empty: expected an error")
	}
	if _, err := checkOutputFile(ctx, "/does/not/exist/out.nc"); err == nil {
		t.Error("missing directory: expected an error")
	}
	if _, err := checkOutputFile(ctx, "file://doesnotexist/out.nc"); err == nil {
		t.Error("missing bucket: expected an error")
	}
	dir := os.TempDir()
	os.Setenv("CLOUDSCENE_TEST_DIR", dir)
	defer os.Unsetenv("CLOUDSCENE_TEST_DIR")
	f, err := checkOutputFile(ctx, "${CLOUDSCENE_TEST_DIR}/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	if want := dir + "/out.nc"; f != want {
		t.Errorf("have %q, want %q", f, want)
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"a": "b + c", "d": "e"}
	for name, val := range map[string]interface{}{
		"json":      `{"a": "b + c", "d": "e"}`,
		"map":       map[string]string{"a": "b + c", "d": "e"},
		"interface": map[string]interface{}{"a": "b + c", "d": "e"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := viper.New()
			cfg.Set("vars", val)
			have, err := GetStringMapString("vars", cfg)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(have, want) {
				t.Errorf("have %v, want %v", have, want)
			}
		})
	}
	t.Run("empty", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("vars", "")
		have, err := GetStringMapString("vars", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != 0 {
			t.Errorf("have %v, want empty map", have)
		}
		if have, err = GetStringMapString("unset", cfg); err != nil || len(have) != 0 {
			t.Errorf("unset: have %v, %v", have, err)
		}
	})
	t.Run("bad json", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("vars", `{"a": `)
		if _, err := GetStringMapString("vars", cfg); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("bad type", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("vars", 3)
		if _, err := GetStringMapString("vars", cfg); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestCheckDerivedVars(t *testing.T) {
	os.Setenv("CLOUDSCENE_TEST_VAR", "cloud_water_content1")
	defer os.Unsetenv("CLOUDSCENE_TEST_VAR")
	have, err := checkDerivedVars(map[string]string{
		" total ": "${CLOUDSCENE_TEST_VAR} +\r\ncloud_water_content2",
		"double":  "2 *\ncloud_water_content1",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"total":  "cloud_water_content1 + cloud_water_content2",
		"double": "2 * cloud_water_content1",
	}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	if _, err := checkDerivedVars(map[string]string{" ": "1"}); err == nil {
		t.Error("empty name: expected an error")
	}
}

func TestWindowSpecResolve(t *testing.T) {
	for _, test := range []struct {
		name string
		spec WindowSpec
		want cloudscene.Window
		err  bool
	}{
		{name: "full", spec: WindowSpec{0, -1, 0, -1}, want: cloudscene.Window{IMin: 0, IMax: 9, JMin: 0, JMax: 4}},
		{name: "partial", spec: WindowSpec{2, 3, 1, -1}, want: cloudscene.Window{IMin: 2, IMax: 3, JMin: 1, JMax: 4}},
		{name: "too large", spec: WindowSpec{0, 10, 0, -1}, err: true},
		{name: "inverted", spec: WindowSpec{5, 4, 0, -1}, err: true},
		{name: "negative", spec: WindowSpec{-2, -1, 0, -1}, err: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			w, err := test.spec.Resolve(10, 5)
			if test.err {
				if err == nil {
					t.Errorf("expected an error, got window %+v", w)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if w != test.want {
				t.Errorf("have %+v, want %+v", w, test.want)
			}
		})
	}
}

func TestFusionConfig(t *testing.T) {
	cfg := viper.New()
	def := cloudscene.DefaultConfig()
	cfg.Set("KCandidates", def.KCandidates)
	cfg.Set("MaxIdxDistance", def.MaxIdxDistance)
	cfg.Set("DeltaMu0", def.DeltaMu0)
	cfg.Set("DeltaPhi0", def.DeltaPhi0)
	cfg.Set("DiffIdx", def.DiffIdx)
	cfg.Set("Bands", def.Bands)
	cfg.Set("NumProcs", def.NumProcs)
	have, err := fusionConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if have != def {
		t.Errorf("have %+v, want %+v", have, def)
	}

	cfg.Set("KCandidates", 0)
	if _, err := fusionConfig(cfg); err == nil {
		t.Error("KCandidates=0: expected an error")
	}
}
