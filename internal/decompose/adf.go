package decompose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"FinForecast/internal/calculator"
	"FinForecast/internal/model"
)

// MacKinnon (2010) response surface coefficients for the constant-only case.
var adfCritical = map[string][4]float64{
	"1%":  {-3.43035, -6.5393, -16.786, -79.433},
	"5%":  {-2.86154, -2.8903, -4.234, -40.04},
	"10%": {-2.56677, -1.5384, -2.809, 0},
}

// ADF runs an augmented Dickey-Fuller test with a constant term. The number of
// lagged differences is chosen by AIC up to maxLag; a negative maxLag selects
// the Schwert default 12*(n/100)^(1/4).
func ADF(values []float64, maxLag int) (model.StationarityTest, error) {
	n := len(values)
	if maxLag < 0 {
		maxLag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	if limit := n/2 - 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 || n < 10 {
		return model.StationarityTest{}, fmt.Errorf("adf: %w: %d values", calculator.ErrInsufficientData, n)
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = values[i] - values[i-1]
	}

	best, bestAIC := 0, math.Inf(1)
	for k := 0; k <= maxLag; k++ {
		fit, err := adfRegression(values, diff, k, maxLag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			best, bestAIC = k, fit.aic
		}
	}

	fit, err := adfRegression(values, diff, best, best)
	if err != nil {
		return model.StationarityTest{}, fmt.Errorf("adf: %w", err)
	}

	res := model.StationarityTest{
		Statistic:      fit.tstat,
		Lags:           best,
		Observations:   fit.nobs,
		CriticalValues: make(map[string]float64, len(adfCritical)),
	}
	t := float64(fit.nobs)
	for level, b := range adfCritical {
		res.CriticalValues[level] = b[0] + b[1]/t + b[2]/(t*t) + b[3]/(t*t*t)
	}
	res.Stationary = res.Statistic < res.CriticalValues["5%"]
	return res, nil
}

type olsFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression regresses diff[t] on 1, y[t], diff[t-1..t-k] using rows
// t >= start so that competing lag orders share a sample.
func adfRegression(y, diff []float64, k, start int) (olsFit, error) {
	rows := len(diff) - start
	cols := k + 2
	if rows <= cols {
		return olsFit{}, calculator.ErrInsufficientData
	}
	X := mat.NewDense(rows, cols, nil)
	Y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r
		X.Set(r, 0, 1)
		X.Set(r, 1, y[t])
		for j := 1; j <= k; j++ {
			X.Set(r, 1+j, diff[t-j])
		}
		Y.SetVec(r, diff[t])
	}

	beta, ssr, inv, err := ols(X, Y)
	if err != nil {
		return olsFit{}, err
	}
	sigma2 := ssr / float64(rows-cols)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	nobs := float64(rows)
	return olsFit{
		tstat: beta.AtVec(1) / se,
		aic:   nobs*math.Log(ssr/nobs) + 2*float64(cols),
		nobs:  rows,
	}, nil
}

// ols returns the least-squares coefficients, residual sum of squares and
// (X'X)^-1.
func ols(X *mat.Dense, Y *mat.VecDense) (*mat.VecDense, float64, *mat.Dense, error) {
	_, cols := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, 0, nil, fmt.Errorf("singular design matrix: %w", err)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), Y)
	beta := mat.NewVecDense(cols, nil)
	beta.MulVec(&inv, &xty)

	var fitted, resid mat.VecDense
	fitted.MulVec(X, beta)
	resid.SubVec(Y, &fitted)
	ssr := mat.Dot(&resid, &resid)
	return beta, ssr, &inv, nil
}
