package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/524D/specfit/internal/jdx"
)

// Compile-time contract assertion
var _ Store = (*SQLStore)(nil)

type dialect struct {
	name     string
	blobType string
	rebind   func(string) string
}

// SQLStore is a Store on a database/sql connection
type SQLStore struct {
	db *sql.DB
	d  dialect

	putQuery    string
	getQuery    string
	listQuery   string
	deleteQuery string
}

// elementColumns returns one count column per element, e.g. count_ar
func elementColumns() []string {
	var cols []string
	for _, e := range jdx.Elements() {
		cols = append(cols, "count_"+strings.ToLower(e.Symbol()))
	}
	return cols
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, d: d}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.buildQueries()
	return s, nil
}

func (s *SQLStore) createTables(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS spectra (\n")
	b.WriteString("\tname TEXT PRIMARY KEY,\n")
	b.WriteString("\tsource TEXT NOT NULL,\n")
	b.WriteString("\tproton_count INTEGER NOT NULL,\n")
	for _, c := range elementColumns() {
		b.WriteString("\t" + c + " INTEGER NOT NULL,\n")
	}
	b.WriteString("\tnpoints INTEGER NOT NULL,\n")
	b.WriteString("\tintensities " + s.d.blobType + " NOT NULL\n)")
	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create %s spectra table: %w", s.d.name, err)
	}
	return nil
}

func (s *SQLStore) buildQueries() {
	cols := append([]string{"name", "source", "proton_count"}, elementColumns()...)
	cols = append(cols, "npoints", "intensities")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	var set []string
	for _, c := range cols[1:] {
		set = append(set, c+" = excluded."+c)
	}
	s.putQuery = s.d.rebind("INSERT INTO spectra (" + strings.Join(cols, ", ") + ") VALUES (" + marks +
		") ON CONFLICT (name) DO UPDATE SET " + strings.Join(set, ", "))
	s.getQuery = s.d.rebind("SELECT name, source, intensities FROM spectra WHERE name = ?")
	entryCols := append([]string{"name", "source", "proton_count"}, elementColumns()...)
	entryCols = append(entryCols, "npoints")
	s.listQuery = "SELECT " + strings.Join(entryCols, ", ") + " FROM spectra ORDER BY name"
	s.deleteQuery = s.d.rebind("DELETE FROM spectra WHERE name = ?")
}

// Put implements Store
func (s *SQLStore) Put(ctx context.Context, sp jdx.Spectrum) error {
	if sp.Name() == "" {
		return errors.New("spectrum without formula cannot be stored")
	}
	comp := sp.Composition()
	args := []any{sp.Name(), sp.SourceFile(), sp.ProtonCount()}
	for _, e := range jdx.Elements() {
		args = append(args, comp.Count(e))
	}
	args = append(args, sp.Len(), encodeIntensities(sp.Intensities()))
	if _, err := s.db.ExecContext(ctx, s.putQuery, args...); err != nil {
		return fmt.Errorf("store %s: %w", sp.Name(), err)
	}
	return nil
}

// Get implements Store
func (s *SQLStore) Get(ctx context.Context, name string) (jdx.Spectrum, error) {
	var source string
	var blob []byte
	err := s.db.QueryRowContext(ctx, s.getQuery, name).Scan(&name, &source, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return jdx.Spectrum{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return jdx.Spectrum{}, fmt.Errorf("load %s: %w", name, err)
	}
	intens, err := decodeIntensities(blob)
	if err != nil {
		return jdx.Spectrum{}, fmt.Errorf("load %s: %w", name, err)
	}
	return jdx.NewSpectrum(name, source, intens), nil
}

// List implements Store
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.listQuery)
	if err != nil {
		return nil, fmt.Errorf("list spectra: %w", err)
	}
	defer func() { _ = rows.Close() }()

	elements := jdx.Elements()
	var entries []Entry
	for rows.Next() {
		var en Entry
		dest := []any{&en.Name, &en.Source, &en.ProtonCount}
		for _, e := range elements {
			dest = append(dest, &en.Composition[e])
		}
		dest = append(dest, &en.Length)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list spectra: %w", err)
	}
	return entries, nil
}

// Delete implements Store
func (s *SQLStore) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.deleteQuery, name)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	return n > 0, nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Dialect returns "sqlite" or "postgres"
func (s *SQLStore) Dialect() string {
	return s.d.name
}
