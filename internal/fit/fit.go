// Package fit decomposes an observed mass spectrum into a linear
// combination of reference spectra by ordinary (or weighted) least
// squares.
package fit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/524D/specfit/internal/jdx"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrDimensionMismatch is returned when a spectrum, observation or
	// weight vector does not have the engine's length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrSingularMatrix is returned when the reference spectra are
	// linearly dependent, or when there are more references than m/z values.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrNoReferences is returned when a fit is requested before any
	// reference spectrum was added.
	ErrNoReferences = errors.New("no reference spectra")
	// ErrNoDegreesOfFreedom is returned for the unbiased variance when
	// the number of references equals the number of m/z values.
	ErrNoDegreesOfFreedom = errors.New("no degrees of freedom left")
	// ErrInvalidWeight is returned for negative or non-finite weights.
	ErrInvalidWeight = errors.New("invalid weight")
)

// Variance selects the residual variance estimator used for the
// standard errors of the coefficients.
type Variance int

const (
	// Population divides the sum of squared residuals by L.
	Population Variance = iota
	// Unbiased divides the sum of squared residuals by L-n.
	Unbiased
)

func (v Variance) String() string {
	switch v {
	case Population:
		return "population"
	case Unbiased:
		return "unbiased"
	}
	return fmt.Sprintf("Variance(%d)", int(v))
}

// ParseVariance converts "population" or "unbiased" to a Variance.
// The empty string selects Population.
func ParseVariance(s string) (Variance, error) {
	switch strings.ToLower(s) {
	case "", "population":
		return Population, nil
	case "unbiased":
		return Unbiased, nil
	}
	return Population, fmt.Errorf("unknown variance estimator %q", s)
}

// Option configures an Engine
type Option func(*Engine)

// WithVariance sets the residual variance estimator.
func WithVariance(v Variance) Option {
	return func(e *Engine) {
		e.variance = v
	}
}

// Result holds the outcome of one fit. StdErrors is nil unless
// standard errors were requested.
type Result struct {
	Coefficients []float64
	StdErrors    []float64
}

// Engine holds an ordered collection of reference spectra and the
// matrices derived from them. The derived matrices are computed on
// first use and discarded whenever a reference is added.
//
// An Engine is not safe for concurrent mutation. After Prepare has
// returned successfully, Evaluate may be called from several goroutines
// as long as no reference is added.
type Engine struct {
	length   int
	variance Variance
	refs     []jdx.Spectrum
	x        *mat.Dense // length x n, column j is reference j

	xt      lazy[*mat.Dense]
	gram    lazy[*mat.Dense]
	gramInv lazy[*mat.Dense]
}

// New creates an empty engine for spectra of the given length.
// A length < 1 selects jdx.DefaultLength.
func New(length int, opts ...Option) *Engine {
	if length < 1 {
		length = jdx.DefaultLength
	}
	e := &Engine{length: length}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Length returns the number of m/z values of the spectra in the engine
func (e *Engine) Length() int {
	return e.length
}

// Len returns the number of reference spectra
func (e *Engine) Len() int {
	return len(e.refs)
}

// VarianceEstimator returns the configured residual variance estimator
func (e *Engine) VarianceEstimator() Variance {
	return e.variance
}

// AddSpectrum appends s as the next column of the design matrix.
func (e *Engine) AddSpectrum(s jdx.Spectrum) error {
	if s.Len() != e.length {
		return fmt.Errorf("%w: spectrum %q has %d m/z values, expected %d",
			ErrDimensionMismatch, s.Name(), s.Len(), e.length)
	}
	n := len(e.refs)
	x := mat.NewDense(e.length, n+1, nil)
	if e.x != nil {
		x.Slice(0, e.length, 0, n).(*mat.Dense).Copy(e.x)
	}
	x.SetCol(n, s.Intensities())
	e.x = x
	e.refs = append(e.refs, s)
	e.invalidate()
	return nil
}

func (e *Engine) invalidate() {
	e.xt.invalidate()
	e.gram.invalidate()
	e.gramInv.invalidate()
}

// ReferenceNames returns the formulas of the references in column order
func (e *Engine) ReferenceNames() []string {
	names := make([]string, len(e.refs))
	for i, s := range e.refs {
		names[i] = s.Name()
	}
	return names
}

// References returns the reference spectra in column order
func (e *Engine) References() []jdx.Spectrum {
	return append([]jdx.Spectrum(nil), e.refs...)
}

// DesignMatrix returns a copy of X (length x n), or nil when the engine
// is empty.
func (e *Engine) DesignMatrix() *mat.Dense {
	if e.x == nil {
		return nil
	}
	return mat.DenseCopyOf(e.x)
}

// Transpose returns a copy of Xᵀ, or nil when the engine is empty.
func (e *Engine) Transpose() *mat.Dense {
	xt, err := e.transpose()
	if err != nil {
		return nil
	}
	return mat.DenseCopyOf(xt)
}

// Gram returns a copy of XᵀX, or nil when the engine is empty.
func (e *Engine) Gram() *mat.Dense {
	g, err := e.gramMatrix()
	if err != nil {
		return nil
	}
	return mat.DenseCopyOf(g)
}

// GramInverse returns a copy of (XᵀX)⁻¹.
func (e *Engine) GramInverse() (*mat.Dense, error) {
	inv, err := e.inverse()
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(inv), nil
}

// Prepare computes all derived matrices so that later calls to
// Evaluate only read shared state.
func (e *Engine) Prepare() error {
	_, err := e.inverse()
	return err
}

func (e *Engine) transpose() (*mat.Dense, error) {
	return e.xt.get(func() (*mat.Dense, error) {
		if e.x == nil {
			return nil, ErrNoReferences
		}
		return mat.DenseCopyOf(e.x.T()), nil
	})
}

func (e *Engine) gramMatrix() (*mat.Dense, error) {
	return e.gram.get(func() (*mat.Dense, error) {
		xt, err := e.transpose()
		if err != nil {
			return nil, err
		}
		var g mat.Dense
		g.Mul(xt, e.x)
		return &g, nil
	})
}

func (e *Engine) inverse() (*mat.Dense, error) {
	return e.gramInv.get(func() (*mat.Dense, error) {
		g, err := e.gramMatrix()
		if err != nil {
			return nil, err
		}
		return e.invert(g)
	})
}

func (e *Engine) invert(g *mat.Dense) (*mat.Dense, error) {
	if n := len(e.refs); n > e.length {
		return nil, fmt.Errorf("%w: %d reference spectra for %d m/z values",
			ErrSingularMatrix, n, e.length)
	}
	var inv mat.Dense
	if err := inv.Inverse(g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}
	return &inv, nil
}

func (e *Engine) checkObserved(observed []float64) error {
	if len(observed) != e.length {
		return fmt.Errorf("%w: observed spectrum has %d m/z values, expected %d",
			ErrDimensionMismatch, len(observed), e.length)
	}
	return nil
}

// Evaluate computes the least squares coefficients c = (XᵀX)⁻¹Xᵀy for
// the observed spectrum y. With withError set, the standard error of
// each coefficient is also returned.
func (e *Engine) Evaluate(observed []float64, withError bool) (Result, error) {
	if err := e.checkObserved(observed); err != nil {
		return Result{}, err
	}
	inv, err := e.inverse()
	if err != nil {
		return Result{}, err
	}
	xt, _ := e.transpose()
	return e.solve(xt, inv, observed, nil, withError)
}

// EvaluateWeighted is Evaluate with a weight per m/z value:
// c = (XᵀWX)⁻¹XᵀWy. The weighted matrices are not cached.
func (e *Engine) EvaluateWeighted(observed, weights []float64, withError bool) (Result, error) {
	if err := e.checkObserved(observed); err != nil {
		return Result{}, err
	}
	if len(weights) != e.length {
		return Result{}, fmt.Errorf("%w: %d weights, expected %d",
			ErrDimensionMismatch, len(weights), e.length)
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return Result{}, fmt.Errorf("%w: weight %g at m/z %d", ErrInvalidWeight, w, i+1)
		}
	}
	xt, err := e.transpose()
	if err != nil {
		return Result{}, err
	}
	var xtw mat.Dense
	xtw.Apply(func(_, j int, v float64) float64 {
		return v * weights[j]
	}, xt)
	var g mat.Dense
	g.Mul(&xtw, e.x)
	inv, err := e.invert(&g)
	if err != nil {
		return Result{}, err
	}
	return e.solve(&xtw, inv, observed, weights, withError)
}

// solve computes c = inv·left·y and, if requested, the standard errors.
// left is Xᵀ or XᵀW.
func (e *Engine) solve(left, inv *mat.Dense, observed, weights []float64, withError bool) (Result, error) {
	y := mat.NewVecDense(e.length, append([]float64(nil), observed...))
	var ly, c mat.VecDense
	ly.MulVec(left, y)
	c.MulVec(inv, &ly)

	res := Result{Coefficients: mat.Col(nil, 0, &c)}
	if !withError {
		return res, nil
	}
	sigma2, err := e.residualVariance(y, &c, weights)
	if err != nil {
		return Result{}, err
	}
	n := len(e.refs)
	res.StdErrors = make([]float64, n)
	for i := 0; i < n; i++ {
		v := inv.At(i, i) * sigma2
		if v < 0 {
			v = 0
		}
		res.StdErrors[i] = math.Sqrt(v)
	}
	return res, nil
}

// residualVariance returns the (weighted) variance of y - Xc
func (e *Engine) residualVariance(y, c *mat.VecDense, weights []float64) (float64, error) {
	var yhat, r mat.VecDense
	yhat.MulVec(e.x, c)
	r.SubVec(y, &yhat)
	res := mat.Col(nil, 0, &r)

	switch e.variance {
	case Unbiased:
		dof := e.length - len(e.refs)
		if dof < 1 {
			return 0, fmt.Errorf("%w: %d reference spectra for %d m/z values",
				ErrNoDegreesOfFreedom, len(e.refs), e.length)
		}
		var ss, sw float64
		for i, v := range res {
			w := 1.0
			if weights != nil {
				w = weights[i]
			}
			ss += w * v * v
			sw += w
		}
		if weights != nil {
			// rescale so that uniform weights give the unweighted result
			if sw == 0 {
				return 0, nil
			}
			ss *= float64(e.length) / sw
		}
		return ss / float64(dof), nil
	default:
		v := stat.PopVariance(res, weights)
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		return v, nil
	}
}
