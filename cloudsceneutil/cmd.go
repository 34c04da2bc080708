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

// Package cloudsceneutil holds the command-line interface and configuration
// handling for cloudscene.
package cloudsceneutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/cloudscene"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	def := cloudscene.DefaultConfig()

	// Options are the configuration options available to cloudscene.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Imager",
			usage: `
              Imager is the path to the imager grid netCDF file holding band
              radiances, pixel coordinates, solar geometry and surface type.
              It can be a local path, an http(s) URL, or a blob storage
              location (gs://, s3://, file://) and can include environment
              variables.`,
			shorthand:  "i",
			defaultVal: "${CLOUDSCENE_DATA}/imager.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "CloudProperties",
			usage: `
              CloudProperties is the path to the netCDF file holding the
              cloud-property profiles along the active-sensor track. The
              same location types as Imager are accepted.`,
			shorthand:  "p",
			defaultVal: "${CLOUDSCENE_DATA}/cloud_properties.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "Auxiliary",
			usage: `
              Auxiliary is the path to the netCDF file holding the atmospheric
              profiles and surface fields along the active-sensor track. The
              same location types as Imager are accepted.`,
			shorthand:  "a",
			defaultVal: "${CLOUDSCENE_DATA}/auxiliary.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output netCDF file. It can
              include environment variables and can be a blob storage
              location.`,
			shorthand:  "o",
			defaultVal: "cloudscene_output.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved in
              the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "KCandidates",
			usage: `
              KCandidates is the number of spectrally nearest cloud-property
              points examined for each imager pixel.`,
			shorthand:  "k",
			defaultVal: def.KCandidates,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "MaxIdxDistance",
			usage: `
              MaxIdxDistance is the maximum number of along-track rows between
              an imager pixel and the home pixel of a donor candidate.`,
			defaultVal: def.MaxIdxDistance,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "DeltaMu0",
			usage: `
              DeltaMu0 is the exclusive upper bound on the difference in solar
              zenith cosine between an imager pixel and a donor's home pixel.`,
			defaultVal: def.DeltaMu0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "DeltaPhi0",
			usage: `
              DeltaPhi0 is the exclusive upper bound on the difference in solar
              azimuth angle between an imager pixel and a donor's home pixel.`,
			defaultVal: def.DeltaPhi0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "DiffIdx",
			usage: `
              DiffIdx is the offset added to a cloud-property point index to
              find the matching auxiliary point.`,
			defaultVal: def.DiffIdx,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "Bands",
			usage: `
              Bands is the required number of imager spectral bands. Set it
              to 0 to accept any number of bands.`,
			defaultVal: def.Bands,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "NumProcs",
			usage: `
              NumProcs is the number of processors to use for fusion. If it
              is 0, all available processors are used.`,
			shorthand:  "n",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "IMin",
			usage: `
              IMin is the first imager row (inclusive) to fuse.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "IMax",
			usage: `
              IMax is the last imager row (inclusive) to fuse. The default
              is -1 which represents the last row.`,
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "JMin",
			usage: `
              JMin is the first imager column (inclusive) to fuse.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "JMax",
			usage: `
              JMax is the last imager column (inclusive) to fuse. The default
              is -1 which represents the last column.`,
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "DerivedVariables",
			usage: `
              DerivedVariables specifies additional output variables as
              expressions of the fused profile variables. It can include
              environment variables.`,
			defaultVal: map[string]string{
				"total_water_content": "cloud_water_content1 + cloud_water_content2",
			},
			flagsets: []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Quicklook",
			usage: `
              Quicklook is the path where a histogram of spectral match
              distances should be saved. The image format is chosen from the
              file extension. If it is blank, no histogram is saved by the
              run command.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), quicklookCmd.Flags()},
		},
	}

	Cfg = viper.New()

	Cfg.SetEnvPrefix("CLOUDSCENE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := strings.TrimSpace(b.String())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(quicklookCmd)
	Root.AddCommand(configCmd)

	configCmd.Flags().AddFlagSet(runCmd.Flags())
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("cloudscene: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "cloudscene",
	Short: "Construct 3D cloud scenes from satellite imagery.",
	Long: `cloudscene maps vertical cloud-property profiles measured along a narrow
active-sensor track onto the full swath of a passive multispectral imager.
Each imager pixel receives the profiles of the along-track point whose
spectrum best matches its own, subject to geometric and surface-type
constraints.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'CLOUDSCENE_var' where 'var' is the
name of the variable to be set. Input and output paths are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of cloudscene.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cloudscene v%s (data version %s)\n", cloudscene.Version, cloudscene.DataVersion)
	},
	DisableAutoGenTag: true,
}

// configCmd is a command that prints the effective configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints the configuration that the run command would use, after
combining defaults, the configuration file, environment variables and
command-line arguments, in TOML format. The output can be saved and passed
back in with the --config flag.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), Cfg)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that fuses a scene and writes the result.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Construct a fused cloud scene.",
	Long: `run reads the imager grid, cloud-property profiles and auxiliary profiles,
selects a donor profile for every imager pixel in the configured window, and
writes the fused scene to OutputFile together with a GeoJSON footprint of the
window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.TODO()
		cfg, err := fusionConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(ctx, Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		derivedVars, err := GetStringMapString("DerivedVariables", Cfg)
		if err != nil {
			return err
		}
		derived, err := checkDerivedVars(derivedVars)
		if err != nil {
			return err
		}
		return Run(ctx, cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			inputFiles(Cfg),
			cfg, windowSpec(Cfg), derived,
			expandPath(Cfg.GetString("Quicklook")),
		)
	},
	DisableAutoGenTag: true,
}

// quicklookCmd is a command that summarizes donor selection without
// writing an output file.
var quicklookCmd = &cobra.Command{
	Use:   "quicklook",
	Short: "Summarize donor selection for a scene.",
	Long: `quicklook selects donors for the configured window, prints match
statistics, and, if Quicklook is set, saves a histogram of the spectral match
distances. No output file is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := fusionConfig(Cfg)
		if err != nil {
			return err
		}
		return Quicklook(context.TODO(), cmd, inputFiles(Cfg), cfg, windowSpec(Cfg),
			expandPath(Cfg.GetString("Quicklook")))
	},
	DisableAutoGenTag: true,
}
