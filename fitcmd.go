// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/524D/specfit/internal/config"
	"github.com/524D/specfit/internal/fit"
	"github.com/524D/specfit/internal/jdx"

	"github.com/spf13/cobra"
)

func addReferenceFlags(cmd *cobra.Command, par *params) {
	f := cmd.Flags()
	f.StringArrayVarP(&par.refs, "ref", "r", nil, "reference spectrum `uri` (repeatable)")
	f.StringArrayVar(&par.refNames, "ref-name", nil, "reference spectrum `formula` from the library (repeatable)")
	f.StringVar(&par.library, "library", defaultLibrary, "reference library `dsn`: SQLite file or postgres:// URL")
}

func newFitCmd(par *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit [flags] observed...",
		Short: "Fit observed spectra as a linear combination of reference spectra",
		Long: `Fit each observed spectrum y as y = X c, where the columns of X are the
reference spectra. The coefficients c are printed per observed spectrum in the
order in which the references were given.

Examples:
  specfit fit -r n2.jdx -r o2.jdx -r ar.jdx air.jdx
  specfit fit --library refs.db --ref-name N2 --ref-name O2 --errors air.jdx
  specfit fit --config job.yaml -o air.fit.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := mergeJob(cmd, par, args)
			if err != nil {
				return err
			}
			r := newRun(cmd, par)
			err = runFit(r, job)
			if ferr := r.finish(); err == nil {
				err = ferr
			}
			return err
		},
	}
	addReferenceFlags(cmd, par)
	f := cmd.Flags()
	f.StringVarP(&par.configFile, "config", "c", "", "YAML job `file`; command line flags override its values")
	f.BoolVarP(&par.withErrors, "errors", "e", false, `Compute standard errors of the coefficients`)
	f.StringVar(&par.variance, "variance", fit.Population.String(),
		"residual variance `estimator`: population (divide by length) or unbiased (divide by length-references)")
	f.StringVar(&par.weightsFile, "weights", "", "`file` with one weight per m/z value (weighted least squares)")
	f.IntVarP(&par.workers, "workers", "j", runtime.NumCPU(), "number of spectra fitted concurrently")
	f.StringVarP(&par.reportFile, "output", "o", "", "`filename` for the JSON fit report")
	return cmd
}

// mergeJob combines the job file (if any) with the command line.
// Flags that were set explicitly take precedence.
func mergeJob(cmd *cobra.Command, par *params, args []string) (config.Job, error) {
	var job config.Job
	if par.configFile != "" {
		j, err := config.Load(par.configFile)
		if err != nil {
			return job, fmt.Errorf("config: %w", err)
		}
		job = j
	}
	changed := cmd.Flags().Changed
	if changed("ref") {
		job.References = par.refs
	}
	if changed("ref-name") {
		job.ReferenceNames = par.refNames
	}
	if len(args) > 0 {
		job.Observed = args
	}
	if changed("library") || job.Library == "" {
		job.Library = par.library
	}
	if changed("length") || job.Length == 0 {
		job.Length = par.length
	}
	if changed("encoding") || job.Encoding == "" {
		job.Encoding = par.encoding
	}
	if changed("errors") {
		job.Errors = par.withErrors
	}
	if changed("variance") || job.Variance == "" {
		job.Variance = par.variance
	}
	if changed("weights") {
		job.Weights = nil
		job.WeightsFile = par.weightsFile
	}
	if changed("workers") || job.Workers == 0 {
		job.Workers = par.workers
	}
	if changed("output") || job.Report == "" {
		job.Report = par.reportFile
	}
	if changed("metrics-file") || job.Metrics == "" {
		job.Metrics = par.metricsFile
	}
	par.metricsFile = job.Metrics
	if err := job.Validate(); err != nil {
		return job, err
	}
	if len(job.Observed) == 0 {
		return job, errors.New("no observed spectra given")
	}
	return job, nil
}

// buildEngine loads the references of job into a new fit engine.
// References given as URIs come first, then those from the library.
func (r *run) buildEngine(job config.Job, opts jdx.Options, variance fit.Variance) (*fit.Engine, error) {
	engine := fit.New(opts.Length, fit.WithVariance(variance))
	add := func(s jdx.Spectrum) error {
		if r.par.verbosity == infoVerbose {
			fmt.Fprintf(r.info, "Adding %s to collection\n", s.Name())
		}
		if err := engine.AddSpectrum(s); err != nil {
			return fmt.Errorf("reference %s: %w", s.SourceFile(), err)
		}
		return nil
	}
	for _, uri := range job.References {
		s, err := r.loadSpectrum(uri, opts)
		if err != nil {
			return nil, err
		}
		if err := add(s); err != nil {
			return nil, err
		}
	}
	if len(job.ReferenceNames) > 0 {
		store, err := openLibrary(job.Library)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		for _, name := range job.ReferenceNames {
			s, err := store.Get(r.ctx, name)
			if err != nil {
				return nil, err
			}
			if err := add(s); err != nil {
				return nil, err
			}
		}
	}
	r.metrics.SetReferences(engine.Len())
	return engine, nil
}

func runFit(r *run, job config.Job) error {
	variance, err := fit.ParseVariance(job.Variance)
	if err != nil {
		return err
	}
	opts := jdx.Options{Length: job.Length, Encoding: job.Encoding}

	r.start("Reading reference spectra: ")
	engine, err := r.buildEngine(job, opts, variance)
	if err != nil {
		return err
	}
	r.done()
	if r.par.debug {
		debugLogEngine(r.info, engine)
	}

	r.start("Reading observed spectra: ")
	// measured spectra carry no molecular formula
	obsOpts := opts
	obsOpts.AllowNoFormula = true
	observed := make([][]float64, len(job.Observed))
	for i, uri := range job.Observed {
		s, err := r.loadSpectrum(uri, obsOpts)
		if err != nil {
			return err
		}
		observed[i] = s.Intensities()
	}
	r.done()

	weights := job.Weights
	if job.WeightsFile != "" {
		weights, err = config.ReadWeightsFile(job.WeightsFile)
		if err != nil {
			return err
		}
	}

	r.start("Fitting: ")
	results, err := r.fitAll(engine, job, observed, weights)
	if err != nil {
		return err
	}
	r.done()

	names := engine.ReferenceNames()
	for i, res := range results {
		printFit(r.out, job.Observed[i], names, res)
		if r.par.debug {
			debugLogFit(r.info, engine, job.Observed[i], observed[i], res)
		}
	}

	if job.Report != "" {
		r.start("Writing fit report: ")
		if err := writeReport(makeReport(engine, job, results, weights != nil), job.Report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		r.done()
	}
	return nil
}

func (r *run) fitAll(engine *fit.Engine, job config.Job, observed [][]float64, weights []float64) ([]fit.Result, error) {
	if weights != nil {
		results := make([]fit.Result, len(observed))
		for i, y := range observed {
			t := time.Now()
			res, err := engine.EvaluateWeighted(y, weights, job.Errors)
			r.metrics.FitDone(time.Since(t), err)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", job.Observed[i], err)
			}
			results[i] = res
		}
		return results, nil
	}
	return engine.EvaluateBatch(r.ctx, observed, job.Errors, job.Workers, fit.WithObserver(r.metrics.FitDone))
}

func printFit(w io.Writer, observed string, names []string, res fit.Result) {
	fmt.Fprintf(w, "%s\n", observed)
	for i, name := range names {
		if res.StdErrors != nil {
			fmt.Fprintf(w, "  %-12s %12.6f ± %.6f\n", name, res.Coefficients[i], res.StdErrors[i])
		} else {
			fmt.Fprintf(w, "  %-12s %12.6f\n", name, res.Coefficients[i])
		}
	}
}

func makeReport(engine *fit.Engine, job config.Job, results []fit.Result, weighted bool) fitReport {
	report := fitReport{
		SpecfitVersion: outputFormatVersion,
		Length:         engine.Length(),
		Variance:       engine.VarianceEstimator().String(),
		Weighted:       weighted,
	}
	for _, s := range engine.References() {
		report.References = append(report.References, referenceInfo{
			Name:        s.Name(),
			Source:      s.SourceFile(),
			ProtonCount: s.ProtonCount(),
		})
	}
	for i, res := range results {
		report.Fits = append(report.Fits, specFit{
			Observed:     job.Observed[i],
			Coefficients: res.Coefficients,
			StdErrors:    res.StdErrors,
		})
	}
	return report
}

func newMatrixCmd(par *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print XᵀX of the reference spectra",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRun(cmd, par)
			job := config.Job{References: par.refs, ReferenceNames: par.refNames, Library: par.library}
			engine, err := r.buildEngine(job, par.jdxOptions(), fit.Population)
			if err != nil {
				return err
			}
			if par.inverse {
				inv, err := engine.GramInverse()
				if err != nil {
					return err
				}
				printMatrix(r.out, "(XtX)^-1", engine.ReferenceNames(), inv)
			} else {
				g := engine.Gram()
				if g == nil {
					return fit.ErrNoReferences
				}
				printMatrix(r.out, "XtX", engine.ReferenceNames(), g)
			}
			return r.finish()
		},
	}
	addReferenceFlags(cmd, par)
	cmd.Flags().BoolVar(&par.inverse, "inverse", false, `Print the inverse of XᵀX`)
	return cmd
}

func newReportCmd(par *params) *cobra.Command {
	return &cobra.Command{
		Use:   "report file.json",
		Short: "Print a fit report written by fit -o",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport(args[0])
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			if report.SpecfitVersion != outputFormatVersion {
				newRun(cmd, par).warnf("report format %s, expected %s", report.SpecfitVersion, outputFormatVersion)
			}
			var names []string
			for _, ref := range report.References {
				names = append(names, ref.Name)
			}
			for _, f := range report.Fits {
				if len(f.Coefficients) != len(names) || (f.StdErrors != nil && len(f.StdErrors) != len(names)) {
					return fmt.Errorf("report %s: %d coefficients for %d references",
						args[0], len(f.Coefficients), len(names))
				}
				printFit(cmd.OutOrStdout(), f.Observed, names, fit.Result{Coefficients: f.Coefficients, StdErrors: f.StdErrors})
			}
			return nil
		},
	}
}
