// Package jdx reads and writes mass spectra in the JCAMP-DX flavour served
// by the NIST webbook, and derives the elemental composition of the
// molecule from its ##MOLFORM tag.
package jdx

import (
	"errors"
	"fmt"
)

// DefaultLength is the number of m/z bins in a spectrum (m/z 1..50)
const DefaultLength = 50

// Raw intensities in the peak table are relative to this value
const fullScale = 9999.0

// Errors returned while reading spectra
var (
	ErrFileOpen      = errors.New("cannot open spectrum file")
	ErrMalformedFile = errors.New("malformed spectrum file")
	ErrMalformedPeak = errors.New("malformed peak")
	ErrOutOfRange    = errors.New("m/z out of range")
)

// Spectrum is a single parsed mass spectrum.
// All accessors return copies, a Spectrum can be passed by value safely.
type Spectrum struct {
	name        string
	sourceFile  string
	composition Composition
	protonCount int
	intensities []float64
}

// Peak is a non-zero entry of a spectrum
type Peak struct {
	MZ        int
	Intensity float64
}

// NewEmpty returns a spectrum without name or source, with all
// intensities set to 0
func NewEmpty(length int) Spectrum {
	if length < 0 {
		length = 0
	}
	return Spectrum{intensities: make([]float64, length)}
}

// NewSpectrum builds a spectrum from a formula name and an intensity
// vector. The composition is derived from the name.
func NewSpectrum(name, sourceFile string, intensities []float64) Spectrum {
	s := Spectrum{
		name:        name,
		sourceFile:  sourceFile,
		intensities: append([]float64(nil), intensities...),
	}
	s.composition, s.protonCount = Analyze(name)
	return s
}

// Name returns the molecular formula, with the formula parts joined by '_'
func (s Spectrum) Name() string { return s.name }

// SourceFile returns the file (or URI) the spectrum was read from
func (s Spectrum) SourceFile() string { return s.sourceFile }

// Composition returns the number of atoms per element
func (s Spectrum) Composition() Composition { return s.composition }

// ProtonCount returns the total number of protons in the molecule
func (s Spectrum) ProtonCount() int { return s.protonCount }

// Len returns the number of m/z bins
func (s Spectrum) Len() int { return len(s.intensities) }

// Intensities returns a copy of the relative intensities,
// index i holds m/z i+1
func (s Spectrum) Intensities() []float64 {
	return append([]float64(nil), s.intensities...)
}

// MZ returns the m/z axis that belongs to Intensities
func (s Spectrum) MZ() []float64 {
	mz := make([]float64, len(s.intensities))
	for i := range mz {
		mz[i] = float64(i + 1)
	}
	return mz
}

// IntensityAt returns the relative intensity at a given m/z
func (s Spectrum) IntensityAt(mz int) (float64, error) {
	if mz < 1 || mz > len(s.intensities) {
		return 0, fmt.Errorf("%w: %d not in [1,%d]", ErrOutOfRange, mz, len(s.intensities))
	}
	return s.intensities[mz-1], nil
}

// NonZero returns the m/z values with non-zero intensity, in m/z order
func (s Spectrum) NonZero() []Peak {
	var peaks []Peak
	for i, v := range s.intensities {
		if v != 0 {
			peaks = append(peaks, Peak{MZ: i + 1, Intensity: v})
		}
	}
	return peaks
}

// Reload re-reads the spectrum from another file. On error the
// spectrum is left untouched.
func (s *Spectrum) Reload(path string, opts Options) error {
	n, err := ReadFile(path, opts)
	if err != nil {
		return err
	}
	*s = n
	return nil
}
