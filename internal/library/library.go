// Package library stores reference spectra in a SQL database so that
// fits can name their references instead of listing JDX files.
// SQLite (pure Go) and Postgres (pgx) are supported.
package library

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/524D/specfit/internal/jdx"
)

// ErrNotFound is returned when a spectrum is not in the library
var ErrNotFound = errors.New("spectrum not in library")

// Store is a collection of reference spectra keyed by formula
type Store interface {
	// Put inserts s, replacing any spectrum with the same name.
	Put(ctx context.Context, s jdx.Spectrum) error
	Get(ctx context.Context, name string) (jdx.Spectrum, error)
	// List returns all entries ordered by name.
	List(ctx context.Context) ([]Entry, error)
	// Delete removes a spectrum and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// Entry summarizes a library spectrum without its intensities
type Entry struct {
	Name        string
	Source      string
	ProtonCount int
	Composition jdx.Composition
	Length      int
}

// Open opens the library at dsn. postgres:// and postgresql:// URLs
// select Postgres, anything else is a SQLite file path with an optional
// sqlite:// prefix. The schema is created if needed.
func Open(dsn string) (*SQLStore, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return openPostgres(dsn)
	default:
		return openSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// encodeIntensities encodes intensities as a little-endian float64 blob
func encodeIntensities(intens []float64) []byte {
	buf := make([]byte, len(intens)*8)
	for i, v := range intens {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeIntensities(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("intensity blob of %d bytes is not a float64 array", len(buf))
	}
	intens := make([]float64, len(buf)/8)
	for i := range intens {
		intens[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return intens, nil
}
