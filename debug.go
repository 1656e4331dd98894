// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"

	"github.com/524D/specfit/internal/fit"

	"gonum.org/v1/gonum/mat"
)

// printMatrix prints a square matrix over the references with a
// header row of reference names
func printMatrix(w io.Writer, title string, names []string, m mat.Matrix) {
	fmt.Fprintf(w, "%s\n%-12s", title, "")
	for _, n := range names {
		fmt.Fprintf(w, " %14s", n)
	}
	fmt.Fprintf(w, "\n")
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		fmt.Fprintf(w, "%-12s", names[i])
		for j := 0; j < c; j++ {
			fmt.Fprintf(w, " %14.6g", m.At(i, j))
		}
		fmt.Fprintf(w, "\n")
	}
}

func debugLogEngine(w io.Writer, engine *fit.Engine) {
	g := engine.Gram()
	if g == nil {
		return
	}
	printMatrix(w, "XtX", engine.ReferenceNames(), g)
	if inv, err := engine.GramInverse(); err == nil {
		printMatrix(w, "(XtX)^-1", engine.ReferenceNames(), inv)
	} else {
		fmt.Fprintf(w, "(XtX)^-1: %v\n", err)
	}
}

// debugLogFit prints observed, fitted and residual intensity for every
// m/z where the observed or fitted value is not zero
func debugLogFit(w io.Writer, engine *fit.Engine, name string, observed []float64, res fit.Result) {
	x := engine.DesignMatrix()
	if x == nil {
		return
	}
	var yhat mat.VecDense
	yhat.MulVec(x, mat.NewVecDense(len(res.Coefficients), append([]float64(nil), res.Coefficients...)))

	fmt.Fprintf(w, "Fit of %s\n", name)
	var ss float64
	for i, y := range observed {
		f := yhat.AtVec(i)
		if y == 0 && f == 0 {
			continue
		}
		ss += (y - f) * (y - f)
		fmt.Fprintf(w, "mz:%d obs:%f fit:%f res:%g\n", i+1, y, f, y-f)
	}
	fmt.Fprintf(w, "Sum of squared residuals: %g\n", ss)
}
