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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/cloudscene"
	"github.com/spf13/cobra"
)

// newLogger returns a logger writing timestamped text to w.
func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.Out = w
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	}
	return log
}

// Run constructs a fused cloud scene and writes it to outputFile.
//
// CobraCommand is the cobra.Command instance where Run is called from.
// Log messages are written to its output and to logFile.
//
// in holds the locations of the input products, which are downloaded
// first if they are URLs or blob storage locations. ws selects the
// imager window to fuse.
//
// derived specifies additional output variables as expressions of the
// fused variables. If quicklook is not empty, a histogram of spectral match
// distances is saved there.
//
// logFile, outputFile and quicklook may be blob storage locations, in which
// case the files are uploaded once the run has finished.
func Run(ctx context.Context, CobraCommand *cobra.Command, logFile, outputFile string, in InputFiles,
	cfg cloudscene.Config, ws WindowSpec, derived map[string]string, quicklook string) error {

	startTime := time.Now()

	var upload uploader

	logfile, err := os.Create(upload.maybeUpload(logFile))
	if err != nil {
		return fmt.Errorf("cloudscene: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := newLogger(io.MultiWriter(CobraCommand.OutOrStdout(), logfile))

	o, err := cloudscene.NewOutputter(upload.maybeUpload(outputFile), derived, nil)
	if err != nil {
		return err
	}
	// Stage the footprint written next to the output file.
	upload.maybeUpload(strings.TrimSuffix(outputFile, ".nc") + ".footprint.geojson")
	if quicklook != "" {
		quicklook = upload.maybeUpload(quicklook)
	}
	if upload.err != nil {
		return upload.err
	}

	imager, props, aux, err := loadInputs(ctx, in, log)
	if err != nil {
		return err
	}
	m, err := construct(ctx, cfg, ws, imager, props, aux, log)
	if err != nil {
		return err
	}

	log.WithField("file", outputFile).Info("writing output")
	if err = o.Output(m, imager, aux, cfg); err != nil {
		return err
	}
	if quicklook != "" {
		if err = cloudscene.PlotMatchDistances(m, quicklook); err != nil {
			return err
		}
	}
	log.Infof("elapsed time: %v", time.Since(startTime))
	return upload.uploadOutput(ctx)
}

// Quicklook selects donors for the configured window and prints match
// statistics to the output of CobraCommand. If plotFile is not empty, a
// histogram of spectral match distances is saved there.
func Quicklook(ctx context.Context, CobraCommand *cobra.Command, in InputFiles,
	cfg cloudscene.Config, ws WindowSpec, plotFile string) error {

	log := newLogger(CobraCommand.OutOrStdout())

	var upload uploader
	if plotFile != "" {
		plotFile = upload.maybeUpload(plotFile)
		if upload.err != nil {
			return upload.err
		}
	}

	imager, props, aux, err := loadInputs(ctx, in, log)
	if err != nil {
		return err
	}
	m, err := construct(ctx, cfg, ws, imager, props, aux, log)
	if err != nil {
		return err
	}
	CobraCommand.Println(cloudscene.Summarize(m))
	if plotFile != "" {
		if err = cloudscene.PlotMatchDistances(m, plotFile); err != nil {
			return err
		}
	}
	return upload.uploadOutput(ctx)
}

func construct(ctx context.Context, cfg cloudscene.Config, ws WindowSpec, imager *cloudscene.ImagerGrid,
	props *cloudscene.PropertyPointSet, aux *cloudscene.AuxiliaryPointSet, log logrus.FieldLogger) (*cloudscene.MappedOutput, error) {
	w, err := ws.Resolve(imager.Shape())
	if err != nil {
		return nil, err
	}
	c, err := cloudscene.NewCloudConstructor(cfg, imager, props, aux, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rows":    fmt.Sprintf("%d-%d", w.IMin, w.IMax),
		"columns": fmt.Sprintf("%d-%d", w.JMin, w.JMax),
	}).Info("constructing cloud scene")
	return c.Construct(ctx, w)
}

// loadInputs reads the three input products, downloading them first if
// necessary.
func loadInputs(ctx context.Context, in InputFiles, log logrus.FieldLogger) (*cloudscene.ImagerGrid, *cloudscene.PropertyPointSet, *cloudscene.AuxiliaryPointSet, error) {
	var imager *cloudscene.ImagerGrid
	var props *cloudscene.PropertyPointSet
	var aux *cloudscene.AuxiliaryPointSet
	err := loadProduct(ctx, "Imager", in.Imager, log, func(f cdf.ReaderWriterAt) (err error) {
		imager, err = cloudscene.LoadImagerGrid(f)
		return
	})
	if err != nil {
		return nil, nil, nil, err
	}
	err = loadProduct(ctx, "CloudProperties", in.CloudProperties, log, func(f cdf.ReaderWriterAt) (err error) {
		props, err = cloudscene.LoadPropertyPointSet(f)
		return
	})
	if err != nil {
		return nil, nil, nil, err
	}
	err = loadProduct(ctx, "Auxiliary", in.Auxiliary, log, func(f cdf.ReaderWriterAt) (err error) {
		aux, err = cloudscene.LoadAuxiliaryPointSet(f)
		return
	})
	if err != nil {
		return nil, nil, nil, err
	}
	rows, cols := imager.Shape()
	b := imager.Bounds()
	log.WithFields(logrus.Fields{
		"extent":           fmt.Sprintf("%g,%g,%g,%g", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y),
		"rows":             rows,
		"columns":          cols,
		"bands":            imager.Bands(),
		"cloud_points":     props.Len(),
		"auxiliary_points": aux.Len(),
		"levels":           props.Levels(),
	}).Info("loaded input data")
	return imager, props, aux, nil
}

func loadProduct(ctx context.Context, option, location string, log logrus.FieldLogger, load func(cdf.ReaderWriterAt) error) error {
	if location == "" {
		return fmt.Errorf("cloudscene: the %s configuration variable is not set", option)
	}
	p, err := maybeDownload(ctx, location, log)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("cloudscene: opening %s file: %v", option, err)
	}
	defer f.Close()
	if err := load(f); err != nil {
		return fmt.Errorf("%v (reading %s)", err, p)
	}
	return nil
}
