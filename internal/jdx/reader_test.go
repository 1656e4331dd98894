package jdx

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileCO2(t *testing.T) {
	s, err := ReadFile(filepath.Join("testdata", "co2.jdx"), Options{})
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	if s.Name() != "C_O2" {
		t.Errorf("Expected name C_O2, got %q", s.Name())
	}
	if s.SourceFile() != filepath.Join("testdata", "co2.jdx") {
		t.Errorf("Unexpected source file %q", s.SourceFile())
	}
	if s.ProtonCount() != 22 {
		t.Errorf("Expected proton count 22, got %d", s.ProtonCount())
	}
	comp := s.Composition()
	if comp.Count(Carbon) != 1 || comp.Count(Oxygen) != 2 || comp.Count(Hydrogen) != 0 {
		t.Errorf("Unexpected composition %v", comp)
	}
	if s.Len() != DefaultLength {
		t.Errorf("Expected length %d, got %d", DefaultLength, s.Len())
	}
	v, err := s.IntensityAt(44)
	if err != nil {
		t.Fatalf("IntensityAt: error return %v", err)
	}
	if v != 1.0 {
		t.Errorf("Expected intensity 1.0 at m/z 44, got %f", v)
	}
	v, _ = s.IntensityAt(16)
	if math.Abs(v-961.0/9999.0) > 1e-12 {
		t.Errorf("Expected intensity %f at m/z 16, got %f", 961.0/9999.0, v)
	}
	if n := len(s.NonZero()); n != 8 {
		t.Errorf("Expected 8 non-zero peaks, got %d", n)
	}
}

func TestReadPeakNormalization(t *testing.T) {
	in := "##MOLFORM=H2 O\n##PEAK TABLE=(XY..XY)\n1,9999 2,0 3,[4999.5]\n##END=\n"
	s, err := Read(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	in0 := s.Intensities()
	if in0[0] != 1.0 {
		t.Errorf("Expected intensities[0] == 1.0, got %f", in0[0])
	}
	if in0[1] != 0.0 {
		t.Errorf("Expected intensities[1] == 0.0, got %f", in0[1])
	}
	if math.Abs(in0[2]-0.5) > 1e-12 {
		t.Errorf("Expected intensities[2] == 0.5, got %f", in0[2])
	}
	if s.Name() != "H2_O" || s.ProtonCount() != 10 {
		t.Errorf("Expected H2_O with 10 protons, got %s with %d", s.Name(), s.ProtonCount())
	}
}

func TestReadFormulaSplitOverWords(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		formula string
	}{
		{"single word", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\n28,9999\n##END=", "N2"},
		{"split", "##MOLFORM=C H4 O\n##MW=32\n##PEAK TABLE=(XY..XY)\n31,9999\n##END=", "C_H4_O"},
		{"space after tag", "##MOLFORM= C O2\n##PEAK TABLE=(XY..XY)\n44,9999\n##END=", "C_O2"},
		{"last one wins", "##MOLFORM=N2\n##MW=28\n##MOLFORM=Ar\n##PEAK TABLE=(XY..XY)\n40,9999\n##END=", "Ar"},
		// the tag that ends a formula is consumed, so an adjacent ##MOLFORM= is not seen
		{"adjacent tags", "##MOLFORM=N2\n##MOLFORM=Ar\n##PEAK TABLE=(XY..XY)\n40,9999\n##END=", "N2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Read(strings.NewReader(tt.in), Options{})
			if err != nil {
				t.Fatalf("Read: error return %v", err)
			}
			if s.Name() != tt.formula {
				t.Errorf("Expected formula %q, got %q", tt.formula, s.Name())
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"no formula", "##TITLE=x\n##PEAK TABLE=(XY..XY)\n1,10\n##END=", ErrMalformedFile},
		{"no peak table", "##MOLFORM=N2\n##MW=28\n", ErrMalformedFile},
		{"unterminated table", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\n1,10 2,20", ErrMalformedFile},
		{"missing intensity", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\n1,10 2\n##END=", ErrMalformedPeak},
		{"trailing comma", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\n1,\n##END=", ErrMalformedPeak},
		{"non numeric", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\na,10\n##END=", ErrMalformedPeak},
		{"negative", "##MOLFORM=N2\n##PEAK TABLE=(XY..XY)\n1,-10\n##END=", ErrMalformedPeak},
		{"empty", "", ErrMalformedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected error %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReadAllowNoFormula(t *testing.T) {
	in := "##TITLE=measured\n##PEAK TABLE=(XY..XY)\n28,9999 32,4999.5\n##END="
	s, err := Read(strings.NewReader(in), Options{AllowNoFormula: true})
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if s.Name() != "" || s.ProtonCount() != 0 {
		t.Errorf("Expected unnamed spectrum without protons, got %q with %d", s.Name(), s.ProtonCount())
	}
	if v, _ := s.IntensityAt(28); v != 1 {
		t.Errorf("Expected intensity 1 at m/z 28, got %f", v)
	}

	// the formula may be absent, the peak table may not
	_, err = Read(strings.NewReader("##TITLE=measured\n"), Options{AllowNoFormula: true})
	if !errors.Is(err, ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile, got %v", err)
	}
	// a formula is still used when present
	s, err = ReadFile(filepath.Join("testdata", "co2.jdx"), Options{AllowNoFormula: true})
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	if s.Name() != "C_O2" {
		t.Errorf("Expected C_O2, got %s", s.Name())
	}
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join("testdata", "does-not-exist.jdx"), Options{})
	if !errors.Is(err, ErrFileOpen) {
		t.Errorf("Expected ErrFileOpen, got %v", err)
	}
	_, err = ReadFile(filepath.Join("testdata", "badpeak.jdx"), Options{})
	if !errors.Is(err, ErrMalformedPeak) {
		t.Errorf("Expected ErrMalformedPeak, got %v", err)
	}
	_, err = ReadFile(filepath.Join("testdata", "noformula.jdx"), Options{})
	if !errors.Is(err, ErrMalformedFile) {
		t.Errorf("Expected ErrMalformedFile, got %v", err)
	}
}

func TestReadOutOfRangePeaksIgnored(t *testing.T) {
	s, err := ReadFile(filepath.Join("testdata", "n2.jdx"), Options{})
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	// m/z 56 is beyond the default range and must be dropped
	if n := len(s.NonZero()); n != 3 {
		t.Errorf("Expected 3 peaks in range, got %d", n)
	}
	s, err = ReadFile(filepath.Join("testdata", "n2.jdx"), Options{Length: 60})
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	v, _ := s.IntensityAt(56)
	if math.Abs(v-12.0/9999.0) > 1e-12 {
		t.Errorf("Expected m/z 56 to be read with length 60, got %f", v)
	}
}

func TestReadLatin1(t *testing.T) {
	// 0xB0 is a degree sign in latin1, invalid as UTF-8
	in := "##TITLE=Argon 20\xb0C\n##MOLFORM=Ar\n##PEAK TABLE=(XY..XY)\n40,9999\n##END=\n"
	s, err := Read(strings.NewReader(in), Options{Encoding: "latin1"})
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if s.Name() != "Ar" {
		t.Errorf("Expected Ar, got %q", s.Name())
	}
	_, err = Read(strings.NewReader(in), Options{Encoding: "no-such-charset"})
	if err == nil {
		t.Errorf("Expected error for unknown encoding")
	}
}

func TestIntensityAtBounds(t *testing.T) {
	s := NewEmpty(DefaultLength)
	for _, mz := range []int{0, 51, -1} {
		if _, err := s.IntensityAt(mz); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("IntensityAt(%d): expected ErrOutOfRange, got %v", mz, err)
		}
	}
	for _, mz := range []int{1, 50} {
		if v, err := s.IntensityAt(mz); err != nil || v != 0 {
			t.Errorf("IntensityAt(%d): expected 0, nil, got %f, %v", mz, v, err)
		}
	}
}

func TestSpectrumValueSemantics(t *testing.T) {
	in := []float64{0.5, 0.25}
	s := NewSpectrum("N2", "", in)
	in[0] = 42
	got := s.Intensities()
	if got[0] != 0.5 {
		t.Errorf("Spectrum shares its input slice")
	}
	got[1] = 42
	if v, _ := s.IntensityAt(2); v != 0.25 {
		t.Errorf("Intensities returns the internal slice")
	}
	mz := s.MZ()
	if len(mz) != 2 || mz[0] != 1 || mz[1] != 2 {
		t.Errorf("Unexpected m/z axis %v", mz)
	}
}

func TestReload(t *testing.T) {
	s, err := ReadFile(filepath.Join("testdata", "co2.jdx"), Options{})
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	err = s.Reload(filepath.Join("testdata", "ar.jdx"), Options{})
	if err != nil {
		t.Fatalf("Reload: error return %v", err)
	}
	if s.Name() != "Ar" || s.ProtonCount() != 18 {
		t.Errorf("Expected Ar with 18 protons after reload, got %s %d", s.Name(), s.ProtonCount())
	}
	err = s.Reload(filepath.Join("testdata", "badpeak.jdx"), Options{})
	if err == nil {
		t.Fatalf("Expected error reloading bad file")
	}
	if s.Name() != "Ar" || s.SourceFile() != filepath.Join("testdata", "ar.jdx") {
		t.Errorf("Failed reload changed the spectrum to %s (%s)", s.Name(), s.SourceFile())
	}
}
