package glm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"logitdash/domain/core"
	"logitdash/domain/model"
)

const (
	// muEpsilon keeps fitted probabilities away from 0 and 1 so that the
	// working weights and the log-likelihood stay finite.
	muEpsilon = 1e-10

	// maxCondition above which X'WX is treated as singular
	maxCondition = 1e13
)

// irlsResult holds the converged estimates of one IRLS run
type irlsResult struct {
	beta       []float64
	cov        *mat.SymDense
	mu         []float64
	deviance   float64
	iterations int
}

// irls fits a binomial GLM with logit link by iteratively reweighted least
// squares. Column 0 of x must be the intercept. The other columns are
// centered and scaled before solving, so the rank check does not depend on
// their units; estimates and covariance are returned on the original scale.
// Convergence is declared when the relative change in deviance drops below
// tol.
func irls(x [][]float64, y []float64, maxIter int, tol float64) (*irlsResult, error) {
	n, p := len(x), len(x[0])
	X, center, scale := standardize(x)

	beta := mat.NewVecDense(p, nil)
	eta := make([]float64, n)
	mu := make([]float64, n)
	updateMu(X, beta, eta, mu)
	dev := binomialDeviance(y, mu)

	converged := false
	iter := 0
	for iter < maxIter {
		iter++

		var chol mat.Cholesky
		rhs, err := weightedSystem(X, y, eta, mu, &chol)
		if err != nil {
			return nil, err
		}
		next := mat.NewVecDense(p, nil)
		if err := chol.SolveVecTo(next, rhs); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
		}
		beta = next

		updateMu(X, beta, eta, mu)
		newDev := binomialDeviance(y, mu)
		if math.IsNaN(newDev) || math.IsInf(newDev, 0) {
			return nil, fmt.Errorf("%w: deviance at iteration %d", core.ErrNonFinite, iter)
		}
		for j := 0; j < p; j++ {
			if v := beta.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: coefficient %d at iteration %d", core.ErrNonFinite, j, iter)
			}
		}

		if math.Abs(newDev-dev)/(math.Abs(newDev)+0.1) < tol {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}
	if !converged {
		return nil, fmt.Errorf("%w after %d iterations", core.ErrNotConverged, maxIter)
	}

	// covariance at the final estimates
	var chol mat.Cholesky
	if _, err := weightedSystem(X, y, eta, mu, &chol); err != nil {
		return nil, err
	}
	cov := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	out := &irlsResult{
		mu:         make([]float64, n),
		deviance:   dev,
		iterations: iter,
	}
	out.beta, out.cov = unstandardize(beta, cov, center, scale)
	copy(out.mu, mu)
	return out, nil
}

// standardize copies x into a matrix whose non-intercept columns have mean
// 0 and unit standard deviation. Constant columns are left as they are.
func standardize(x [][]float64) (*mat.Dense, []float64, []float64) {
	n, p := len(x), len(x[0])
	X := mat.NewDense(n, p, nil)
	for i, row := range x {
		X.SetRow(i, row)
	}

	center := make([]float64, p)
	scale := make([]float64, p)
	scale[0] = 1
	col := make([]float64, n)
	for j := 1; j < p; j++ {
		mat.Col(col, j, X)
		mean, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
			scale[j] = 1
			continue
		}
		center[j], scale[j] = mean, sd
		for i := 0; i < n; i++ {
			X.Set(i, j, (col[i]-mean)/sd)
		}
	}
	return X, center, scale
}

// unstandardize maps estimates on the standardized columns back to the
// original ones: beta = T beta', cov = T cov' T'.
func unstandardize(beta *mat.VecDense, cov *mat.SymDense, center, scale []float64) ([]float64, *mat.SymDense) {
	p := beta.Len()
	T := mat.NewDense(p, p, nil)
	T.Set(0, 0, 1)
	for j := 1; j < p; j++ {
		T.Set(j, j, 1/scale[j])
		T.Set(0, j, -center[j]/scale[j])
	}

	var b mat.VecDense
	b.MulVec(T, beta)
	out := make([]float64, p)
	for j := range out {
		out[j] = b.AtVec(j)
	}

	var tc, full mat.Dense
	tc.Mul(T, cov)
	full.Mul(&tc, T.T())
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, (full.At(i, j)+full.At(j, i))/2)
		}
	}
	return out, sym
}

// weightedSystem factorizes X'WX into chol and returns X'Wz for the
// working response z = eta + (y-mu)/w.
func weightedSystem(X *mat.Dense, y, eta, mu []float64, chol *mat.Cholesky) (*mat.VecDense, error) {
	n, p := X.Dims()
	xw := mat.NewDense(n, p, nil)
	zw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		w := mu[i] * (1 - mu[i])
		sw := math.Sqrt(w)
		for j := 0; j < p; j++ {
			xw.Set(i, j, sw*X.At(i, j))
		}
		z := eta[i] + (y[i]-mu[i])/w
		zw.SetVec(i, sw*z)
	}

	var xtwx mat.SymDense
	xtwx.SymOuterK(1, xw.T())
	if ok := chol.Factorize(&xtwx); !ok {
		return nil, core.ErrSingularDesign
	}
	if c := chol.Cond(); c > maxCondition || math.IsNaN(c) {
		return nil, fmt.Errorf("%w: condition number %.3g", core.ErrSingularDesign, c)
	}

	rhs := mat.NewVecDense(p, nil)
	rhs.MulVec(xw.T(), zw)
	return rhs, nil
}

func updateMu(X *mat.Dense, beta *mat.VecDense, eta, mu []float64) {
	n, _ := X.Dims()
	var e mat.VecDense
	e.MulVec(X, beta)
	for i := 0; i < n; i++ {
		eta[i] = e.AtVec(i)
		mu[i] = clamp(model.Logistic(eta[i]))
	}
}

func clamp(mu float64) float64 {
	return math.Min(math.Max(mu, muEpsilon), 1-muEpsilon)
}

// binomialLogLik is the Bernoulli log-likelihood of y under mu
func binomialLogLik(y, mu []float64) float64 {
	ll := 0.0
	for i := range y {
		m := clamp(mu[i])
		ll += y[i]*math.Log(m) + (1-y[i])*math.Log(1-m)
	}
	return ll
}

func binomialDeviance(y, mu []float64) float64 {
	return -2 * binomialLogLik(y, mu)
}
