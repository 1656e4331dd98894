package jdx

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Tags that we need from the JCAMP-DX file
const (
	molFormTag   = `##MOLFORM=`
	peakTableTag = `TABLE=(XY..XY)` // second word of "##PEAK TABLE=(XY..XY)"
	endTag       = `##END=`
)

// Options control how a spectrum file is read.
// The zero value reads DefaultLength bins from UTF-8 input.
type Options struct {
	Length   int    // number of m/z bins
	Encoding string // charset label, e.g. "latin1" for older NIST downloads

	// AllowNoFormula accepts files without ##MOLFORM=, as written for
	// measured spectra. The spectrum then has an empty name.
	AllowNoFormula bool
}

func (o Options) length() int {
	if o.Length <= 0 {
		return DefaultLength
	}
	return o.Length
}

// ReadFile reads a spectrum from a file
func ReadFile(path string, opts Options) (Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return Spectrum{}, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	defer f.Close()
	return ReadFrom(f, path, opts)
}

// Read reads a spectrum from an io.Reader. The source file of the
// resulting spectrum is empty.
func Read(reader io.Reader, opts Options) (Spectrum, error) {
	return ReadFrom(reader, ``, opts)
}

// ReadFrom reads a spectrum from an io.Reader, and records source as
// the origin of the spectrum
func ReadFrom(reader io.Reader, source string, opts Options) (Spectrum, error) {
	label := opts.Encoding
	if label == `` {
		label = `utf-8`
	}
	r, err := charset.NewReaderLabel(label, reader)
	if err != nil {
		return Spectrum{}, fmt.Errorf("encoding %q: %w", label, err)
	}

	s := Spectrum{
		sourceFile:  source,
		intensities: make([]float64, opts.length()),
	}

	// The file is processed as a stream of whitespace separated words,
	// line breaks have no meaning
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var formula []string
	haveFormula := false
	havePeaks := false
	for sc.Scan() {
		word := sc.Text()
		if strings.Contains(word, molFormTag) {
			// The formula may be split over several words ("C O2"),
			// it ends at the next tag
			formula = formula[:0]
			if f := strings.ReplaceAll(word, molFormTag, ``); f != `` {
				formula = append(formula, f)
			}
			for sc.Scan() {
				w := sc.Text()
				if strings.Contains(w, `#`) {
					break
				}
				formula = append(formula, w)
			}
			haveFormula = true
			continue
		}
		if word == peakTableTag {
			if err := readPeakTable(sc, s.intensities); err != nil {
				return Spectrum{}, err
			}
			havePeaks = true
		}
	}
	if err := sc.Err(); err != nil {
		return Spectrum{}, fmt.Errorf("reading spectrum %s: %w", source, err)
	}
	if (!haveFormula || len(formula) == 0) && !opts.AllowNoFormula {
		return Spectrum{}, fmt.Errorf("%w: no molecular formula (%s) in %s",
			ErrMalformedFile, molFormTag, source)
	}
	if !havePeaks {
		return Spectrum{}, fmt.Errorf("%w: no peak table in %s", ErrMalformedFile, source)
	}

	s.name = strings.Join(formula, `_`)
	s.composition, s.protonCount = Analyze(s.name)
	return s, nil
}

// readPeakTable reads "mz,intensity" pairs until the ##END= tag.
// Peaks outside the m/z range of intens are skipped.
func readPeakTable(sc *bufio.Scanner, intens []float64) error {
	for sc.Scan() {
		word := sc.Text()
		if word == endTag {
			return nil
		}
		mz, v, err := parsePeak(word)
		if err != nil {
			return err
		}
		if mz >= 1 && mz <= len(intens) {
			intens[mz-1] = v / fullScale
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: peak table not terminated by %s", ErrMalformedFile, endTag)
}

func isPeakSeparator(r rune) bool {
	return r == ',' || r == '[' || r == ']' || r == '(' || r == ')'
}

// parsePeak parses a single "mz,intensity" word
func parsePeak(word string) (int, float64, error) {
	parts := strings.FieldsFunc(word, isPeakSeparator)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not an mz,intensity pair", ErrMalformedPeak, word)
	}
	mz, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid m/z in %q", ErrMalformedPeak, word)
	}
	v, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, 0, fmt.Errorf("%w: invalid intensity in %q", ErrMalformedPeak, word)
	}
	return mz, v, nil
}
