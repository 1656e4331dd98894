// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/524D/specfit/internal/jdx"
	"github.com/524D/specfit/internal/library"
	"github.com/524D/specfit/internal/metrics"
	"github.com/524D/specfit/internal/source"

	"github.com/spf13/cobra"
)

// Program name and version
const progName = "specfit"

var progVersion = `Unknown`

// Format of the fit report, if it ever changes we should still be able
// to parse reports from old versions
const outputFormatVersion = "1.0"

const defaultLibrary = "specfit.db"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	verbosity   int    // Verbosity of progress messages (infoDefault...)
	debug       bool   // Enable debug info (environment variable SPECFIT_DEBUG=1)
	encoding    string // Character set of JDX input
	length      int    // Number of m/z values per spectrum
	metricsFile string // Prometheus textfile written after the run

	configFile  string   // YAML job file
	refs        []string // Reference spectrum URIs
	refNames    []string // Reference spectra taken from the library
	library     string   // Library DSN
	withErrors  bool     // Compute standard errors
	variance    string   // Residual variance estimator
	weightsFile string   // File with one weight per m/z value
	workers     int      // Number of concurrent fits
	reportFile  string   // Filename where the JSON fit report will be written
	inverse     bool     // matrix: print (XᵀX)⁻¹ instead of XᵀX
	outFile     string   // library export: JDX output file
}

func (par *params) jdxOptions() jdx.Options {
	return jdx.Options{Length: par.length, Encoding: par.encoding}
}

// fitReport is the JSON output of a fit run
type fitReport struct {
	// Version of the report format, used when loading reports
	// written by a different version of the software
	SpecfitVersion string
	Length         int
	Variance       string
	Weighted       bool `json:",omitempty"`
	References     []referenceInfo
	Fits           []specFit
}

type referenceInfo struct {
	Name        string
	Source      string `json:",omitempty"`
	ProtonCount int
}

// specFit holds the coefficients of one observed spectrum, in the
// order of fitReport.References
type specFit struct {
	Observed     string
	Coefficients []float64
	StdErrors    []float64 `json:",omitempty"`
}

func writeReport(report fitReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	if err := e.Encode(report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readReport(path string) (fitReport, error) {
	var report fitReport
	f, err := os.Open(path)
	if err != nil {
		return report, err
	}
	defer f.Close()

	d := json.NewDecoder(f)
	err = d.Decode(&report)
	return report, err
}

// run holds the state shared by the steps of one command
type run struct {
	par     *params
	ctx     context.Context
	out     io.Writer // results
	info    io.Writer // progress and debug output
	metrics *metrics.Collector
	t       time.Time
}

func newRun(cmd *cobra.Command, par *params) *run {
	return &run{
		par:     par,
		ctx:     cmd.Context(),
		out:     cmd.OutOrStdout(),
		info:    cmd.ErrOrStderr(),
		metrics: metrics.New(),
	}
}

// start prints a progress message and starts timing in verbose mode
func (r *run) start(msg string) {
	if r.par.verbosity == infoVerbose {
		fmt.Fprint(r.info, msg)
		r.t = time.Now()
	}
}

func (r *run) done() {
	if r.par.verbosity == infoVerbose {
		fmt.Fprintf(r.info, "%s\n", time.Since(r.t))
	}
}

func (r *run) warnf(format string, v ...any) {
	if r.par.verbosity != infoSilent {
		log.Printf("WARNING: "+format, v...)
	}
}

// finish writes the metrics textfile if one was requested
func (r *run) finish() error {
	if r.par.metricsFile == "" {
		return nil
	}
	if err := r.metrics.WriteTextfile(r.par.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (r *run) loadSpectrum(uri string, opts jdx.Options) (jdx.Spectrum, error) {
	s, err := source.LoadSpectrum(r.ctx, uri, opts)
	r.metrics.SpectrumParsed(err)
	if err != nil {
		return s, err
	}
	if s.ProtonCount() == 0 && s.Name() != "" {
		r.warnf("no known element in formula %s of %s", s.Name(), uri)
	}
	return s, nil
}

func openLibrary(dsn string) (*library.SQLStore, error) {
	if dsn == "" {
		dsn = defaultLibrary
	}
	store, err := library.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", dsn, err)
	}
	return store, nil
}

func newRootCmd() *cobra.Command {
	par := &params{}
	var verbose, quiet bool
	root := &cobra.Command{
		Use:   progName,
		Short: "Decompose mass spectra into reference spectra",
		Long: `specfit reads NIST JCAMP-DX mass spectra and determines how much of each
reference spectrum is present in an observed spectrum, by a linear least
squares fit over the integer m/z values 1..length.

Spectra can be given as local files, file:// URLs or s3://bucket/key objects.
Reference spectra can also be kept in a SQLite or Postgres library.`,
		Version:       progVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				par.verbosity = infoVerbose
			}
			if quiet {
				par.verbosity = infoSilent
			}
			// Check if debug output should be enabled
			if os.Getenv("SPECFIT_DEBUG") == `1` {
				par.debug = true
			}
		},
	}
	if progVersion == `Unknown` {
		root.Version = `Unknown
Please build this program with -ldflags "-X main.progVersion=..." so that the version is shown here.`
	}
	root.SetVersionTemplate(progName + " version {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, `Print more verbose progress information`)
	pf.BoolVarP(&quiet, "quiet", "q", false, `Don't print any output except for results and errors`)
	pf.BoolVar(&par.debug, "debug", false, `Print debug output (same as SPECFIT_DEBUG=1)`)
	pf.StringVar(&par.encoding, "encoding", "utf-8", "character `set` of the JDX input")
	pf.IntVarP(&par.length, "length", "l", jdx.DefaultLength, "number of m/z `values` per spectrum")
	pf.StringVar(&par.metricsFile, "metrics-file", "", "write Prometheus metrics to `file` after the run")

	root.AddCommand(newShowCmd(par))
	root.AddCommand(newFitCmd(par))
	root.AddCommand(newMatrixCmd(par))
	root.AddCommand(newLibraryCmd(par))
	root.AddCommand(newReportCmd(par))
	return root
}

func newShowCmd(par *params) *cobra.Command {
	return &cobra.Command{
		Use:   "show spectrum",
		Short: "Print formula, composition and peaks of a spectrum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRun(cmd, par)
			opts := par.jdxOptions()
			opts.AllowNoFormula = true
			s, err := r.loadSpectrum(args[0], opts)
			if err != nil {
				return err
			}
			printSpectrum(r.out, s)
			return r.finish()
		},
	}
}

func printSpectrum(w io.Writer, s jdx.Spectrum) {
	fmt.Fprintf(w, "Name:        %s\n", s.Name())
	fmt.Fprintf(w, "Source:      %s\n", s.SourceFile())
	fmt.Fprintf(w, "Composition: %s\n", s.Composition())
	fmt.Fprintf(w, "Protons:     %d\n", s.ProtonCount())
	fmt.Fprintf(w, "m/z  intensity\n")
	for _, p := range s.NonZero() {
		fmt.Fprintf(w, "%-4d %f\n", p.MZ, p.Intensity)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
