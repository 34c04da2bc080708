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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/cloudscene"
	"github.com/spf13/cast"
)

// InputFiles holds the locations of the three input products.
type InputFiles struct {
	Imager, CloudProperties, Auxiliary string
}

// inputFiles returns the input product locations in cfg with environment
// variables expanded.
func inputFiles(cfg *viper.Viper) InputFiles {
	return InputFiles{
		Imager:          expandPath(cfg.GetString("Imager")),
		CloudProperties: expandPath(cfg.GetString("CloudProperties")),
		Auxiliary:       expandPath(cfg.GetString("Auxiliary")),
	}
}

func expandPath(p string) string { return os.ExpandEnv(p) }

// fusionConfig unmarshals the donor selection settings in cfg.
func fusionConfig(cfg *viper.Viper) (cloudscene.Config, error) {
	c := cloudscene.Config{
		KCandidates:    cfg.GetInt("KCandidates"),
		MaxIdxDistance: cfg.GetInt("MaxIdxDistance"),
		DeltaMu0:       cfg.GetFloat64("DeltaMu0"),
		DeltaPhi0:      cfg.GetFloat64("DeltaPhi0"),
		DiffIdx:        cfg.GetInt("DiffIdx"),
		Bands:          cfg.GetInt("Bands"),
		NumProcs:       cfg.GetInt("NumProcs"),
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("parsing fusion configuration: %v", err)
	}
	return c, nil
}

// WindowSpec is a window as configured, where a maximum of -1 represents
// the last row or column of the grid.
type WindowSpec struct {
	IMin, IMax, JMin, JMax int
}

func windowSpec(cfg *viper.Viper) WindowSpec {
	return WindowSpec{
		IMin: cfg.GetInt("IMin"),
		IMax: cfg.GetInt("IMax"),
		JMin: cfg.GetInt("JMin"),
		JMax: cfg.GetInt("JMax"),
	}
}

// Resolve returns the window for a grid with the given shape.
func (s WindowSpec) Resolve(rows, cols int) (cloudscene.Window, error) {
	w := cloudscene.Window{IMin: s.IMin, IMax: s.IMax, JMin: s.JMin, JMax: s.JMax}
	if w.IMax == -1 {
		w.IMax = rows - 1
	}
	if w.JMax == -1 {
		w.JMax = cols - 1
	}
	if err := w.Check(rows, cols); err != nil {
		return w, fmt.Errorf("parsing window configuration (IMin, IMax, JMin, JMax): %v", err)
	}
	return w, nil
}

// checkDerivedVars removes end lines and expands environment
// variables in the derived output variables.
func checkDerivedVars(vars map[string]string) (map[string]string, error) {
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		k = strings.TrimSpace(os.ExpandEnv(k))
		if k == "" {
			return nil, fmt.Errorf("cloudscene: DerivedVariables contains an empty variable name")
		}
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[k] = os.ExpandEnv(v)
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(ctx context.Context, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		url, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		if _, err = OpenBucket(ctx, url.Scheme+"://"+url.Host); err != nil {
			return f, fmt.Errorf("cloudscene: error when checking OutputFile location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("cloudscene: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("cloudscene: parsing config variable %s: %v", varName, err)
		}
		return o, nil
	case nil:
		return make(map[string]string), nil
	default:
		return nil, fmt.Errorf("cloudscene: invalid type for config variable %s: %#v", varName, i)
	}
}

// writeConfig writes the values of all options except config to w as TOML.
func writeConfig(w io.Writer, cfg *viper.Viper) error {
	o := make(map[string]interface{})
	for _, option := range options {
		if option.name == "config" {
			continue
		}
		switch option.defaultVal.(type) {
		case string:
			o[option.name] = cfg.GetString(option.name)
		case int:
			o[option.name] = cfg.GetInt(option.name)
		case float64:
			o[option.name] = cfg.GetFloat64(option.name)
		case map[string]string:
			m, err := GetStringMapString(option.name, cfg)
			if err != nil {
				return err
			}
			o[option.name] = m
		}
	}
	if err := toml.NewEncoder(w).Encode(o); err != nil {
		return fmt.Errorf("cloudscene: writing configuration: %v", err)
	}
	return nil
}
