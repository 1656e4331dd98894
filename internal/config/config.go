// Package config reads specfit job files. A job file lists the
// references and observed spectra of a fit together with its options,
// so that a repeated analysis does not need a long command line.
//
//	references: [n2.jdx, o2.jdx, s3://spectra/nist/ar.jdx]
//	reference_names: [C_O2]   # taken from the library
//	library: refs.db
//	observed: [air.jdx]
//	length: 50
//	errors: true
//	variance: population
//	weights_file: weights.txt
//	workers: 4
//	report: air.fit.json
//	metrics: specfit.prom
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/524D/specfit/internal/fit"
	"gopkg.in/yaml.v3"
)

// Job describes one fit run
type Job struct {
	References     []string  `yaml:"references,omitempty"`
	ReferenceNames []string  `yaml:"reference_names,omitempty"`
	Library        string    `yaml:"library,omitempty"`
	Observed       []string  `yaml:"observed,omitempty"`
	Length         int       `yaml:"length,omitempty"`
	Encoding       string    `yaml:"encoding,omitempty"`
	Errors         bool      `yaml:"errors,omitempty"`
	Variance       string    `yaml:"variance,omitempty"`
	Weights        []float64 `yaml:"weights,omitempty"`
	WeightsFile    string    `yaml:"weights_file,omitempty"`
	Workers        int       `yaml:"workers,omitempty"`
	Report         string    `yaml:"report,omitempty"`
	Metrics        string    `yaml:"metrics,omitempty"`
}

// Load reads the job file at path. Relative local paths in the file
// are taken relative to the directory of the job file.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, err
	}
	defer f.Close()
	job, err := Parse(f)
	if err != nil {
		return Job{}, fmt.Errorf("%s: %w", path, err)
	}
	job.resolve(filepath.Dir(path))
	return job, nil
}

// Parse decodes a job from r. Unknown keys are an error.
func Parse(r io.Reader) (Job, error) {
	var job Job
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil && !errors.Is(err, io.EOF) {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate checks the option values of the job
func (j Job) Validate() error {
	if j.Length < 0 {
		return fmt.Errorf("length must be positive, got %d", j.Length)
	}
	if j.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", j.Workers)
	}
	if _, err := fit.ParseVariance(j.Variance); err != nil {
		return err
	}
	if len(j.Weights) > 0 && j.WeightsFile != "" {
		return errors.New("weights and weights_file are mutually exclusive")
	}
	if len(j.ReferenceNames) > 0 && j.Library == "" {
		return errors.New("reference_names requires a library")
	}
	return nil
}

func (j *Job) resolve(dir string) {
	for i, p := range j.References {
		j.References[i] = resolvePath(dir, p)
	}
	for i, p := range j.Observed {
		j.Observed[i] = resolvePath(dir, p)
	}
	j.WeightsFile = resolvePath(dir, j.WeightsFile)
	j.Report = resolvePath(dir, j.Report)
	j.Metrics = resolvePath(dir, j.Metrics)
	if !strings.Contains(j.Library, "://") {
		j.Library = resolvePath(dir, j.Library)
	}
}

// resolvePath makes a relative local path relative to dir. URIs,
// absolute paths and empty strings are returned unchanged.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(dir, p)
}

// ReadWeights reads whitespace separated weights, one per m/z value
func ReadWeights(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var w []float64
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %d: %w", len(w)+1, err)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("weight %d: %w: %g", len(w)+1, fit.ErrInvalidWeight, v)
		}
		w = append(w, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

// ReadWeightsFile reads weights from path
func ReadWeightsFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w, err := ReadWeights(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}
