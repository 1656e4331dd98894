package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	c := New()
	c.SpectrumParsed(nil)
	c.SpectrumParsed(nil)
	c.SpectrumParsed(errors.New("bad peak"))
	c.FitDone(2*time.Millisecond, nil)
	c.FitDone(0, errors.New("singular"))
	c.SetReferences(3)

	if got := testutil.ToFloat64(c.parsed.WithLabelValues(ResultOK)); got != 2 {
		t.Errorf("Expected 2 parsed spectra, got %v", got)
	}
	if got := testutil.ToFloat64(c.parsed.WithLabelValues(ResultError)); got != 1 {
		t.Errorf("Expected 1 parse error, got %v", got)
	}
	if got := testutil.ToFloat64(c.fits.WithLabelValues(ResultError)); got != 1 {
		t.Errorf("Expected 1 failed fit, got %v", got)
	}
	if got := testutil.ToFloat64(c.references); got != 3 {
		t.Errorf("Expected 3 references, got %v", got)
	}
	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Errorf("Expected 1 histogram, got %d", n)
	}

	want := `
# HELP specfit_fits_total Number of least squares fits, by result.
# TYPE specfit_fits_total counter
specfit_fits_total{result="error"} 1
specfit_fits_total{result="ok"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(want), "specfit_fits_total"); err != nil {
		t.Errorf("Unexpected metrics: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.SetReferences(2)
	path := filepath.Join(t.TempDir(), "specfit.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: error return %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	if !strings.Contains(string(b), "specfit_reference_spectra 2") {
		t.Errorf("Textfile misses the reference gauge:\n%s", b)
	}
}
