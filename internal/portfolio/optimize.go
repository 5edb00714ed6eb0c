package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"FinForecast/internal/model"
)

// Options configures Optimize.
type Options struct {
	Objective model.Objective
	RiskFree  float64 // annual fraction
	Leverage  float64 // weights sum to this bound
	MaxWeight float64 // per-ticker cap; 0 means no cap
}

// Optimize returns long-only weights summing to opts.Leverage. Weights are a
// softmax of free parameters scaled by the leverage bound, so the sum and sign
// constraints hold by construction; the per-ticker cap is a penalty that is
// enforced exactly after the solve.
func Optimize(tickers []string, mu map[string]float64, cov *mat.SymDense, opts Options) (model.PortfolioWeights, error) {
	n := len(tickers)
	if n == 0 {
		return model.PortfolioWeights{}, fmt.Errorf("optimize: no tickers")
	}
	if cov.SymmetricDim() != n {
		return model.PortfolioWeights{}, fmt.Errorf("optimize: covariance is %dx%d for %d tickers", cov.SymmetricDim(), cov.SymmetricDim(), n)
	}
	lev := opts.Leverage
	if lev <= 0 {
		lev = 1
	}
	maxW := opts.MaxWeight
	if maxW <= 0 || maxW > lev {
		maxW = lev
	}
	if maxW*float64(n) < lev-1e-9 {
		return model.PortfolioWeights{}, fmt.Errorf("optimize: cap %.3f x %d tickers < leverage %.3f: %w", maxW, n, lev, ErrInfeasible)
	}
	if err := checkPSD(cov); err != nil {
		return model.PortfolioWeights{}, err
	}

	muVec := make([]float64, n)
	for i, t := range tickers {
		v, ok := mu[t]
		if !ok || math.IsNaN(v) {
			return model.PortfolioWeights{}, fmt.Errorf("optimize: no expected return for %s", t)
		}
		muVec[i] = v
	}

	var w []float64
	switch opts.Objective {
	case model.EqualWeight:
		w = make([]float64, n)
		for i := range w {
			w[i] = lev / float64(n)
		}
	case model.MinVariance, model.MaxSharpe, "":
		obj := opts.Objective
		if obj == "" {
			obj = model.MaxSharpe
		}
		w = solve(n, func(w []float64) float64 {
			ret, vol := stats(w, muVec, cov)
			penalty := 0.0
			for _, x := range w {
				if over := x - maxW; over > 0 {
					penalty += over * over
				}
			}
			penalty *= 1e4
			if obj == model.MinVariance {
				return vol*vol + penalty
			}
			if vol < 1e-12 {
				return math.MaxFloat64 / 2
			}
			return -(ret-opts.RiskFree)/vol + penalty
		}, lev)
		w = capWeights(w, maxW, lev)
	default:
		return model.PortfolioWeights{}, fmt.Errorf("optimize: unknown objective %q", opts.Objective)
	}

	ret, vol := stats(w, muVec, cov)
	out := model.PortfolioWeights{
		Objective:       opts.Objective,
		Tickers:         append([]string(nil), tickers...),
		Weights:         make(map[string]float64, n),
		Leverage:        lev,
		ExpectedReturn:  ret,
		Volatility:      vol,
		ExpectedReturns: make(map[string]float64, n),
	}
	if vol > 0 {
		out.Sharpe = (ret - opts.RiskFree) / vol
	}
	for i, t := range tickers {
		out.Weights[t] = w[i]
		out.ExpectedReturns[t] = muVec[i]
	}
	log.Debug().
		Str("objective", string(opts.Objective)).
		Float64("return", ret).
		Float64("volatility", vol).
		Msg("portfolio optimized")
	return out, nil
}

func solve(n int, objective func([]float64) float64, lev float64) []float64 {
	weights := func(x []float64) []float64 { return softmax(x, lev) }
	problem := optimize.Problem{Func: func(x []float64) float64 { return objective(weights(x)) }}
	settings := &optimize.Settings{
		MajorIterations: 2000 * n,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-12, Iterations: 500},
	}
	result, err := optimize.Minimize(problem, make([]float64, n), settings, &optimize.NelderMead{})
	if result == nil {
		log.Warn().Err(err).Msg("optimizer failed, using equal weights")
		return weights(make([]float64, n))
	}
	return weights(result.X)
}

func softmax(x []float64, scale float64) []float64 {
	maxX := math.Inf(-1)
	for _, v := range x {
		maxX = math.Max(maxX, v)
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - maxX)
		sum += out[i]
	}
	for i := range out {
		out[i] = out[i] / sum * scale
	}
	return out
}

// capWeights clips weights above maxW and spreads the excess over uncapped
// weights in proportion to their size, preserving the total.
func capWeights(w []float64, maxW, total float64) []float64 {
	out := append([]float64(nil), w...)
	capped := make([]bool, len(out))
	for iter := 0; iter < len(out); iter++ {
		excess := 0.0
		for i, v := range out {
			if v > maxW {
				excess += v - maxW
				out[i] = maxW
				capped[i] = true
			}
		}
		if excess <= 1e-15 {
			break
		}
		free := 0.0
		nFree := 0
		for i, v := range out {
			if !capped[i] {
				free += v
				nFree++
			}
		}
		if nFree == 0 {
			break
		}
		for i := range out {
			if capped[i] {
				continue
			}
			if free > 0 {
				out[i] += excess * out[i] / free
			} else {
				out[i] += excess / float64(nFree)
			}
		}
	}
	// Renormalize against float drift.
	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if sum > 0 {
		for i := range out {
			out[i] *= total / sum
		}
	}
	return out
}

func stats(w, mu []float64, cov *mat.SymDense) (ret, vol float64) {
	wv := mat.NewVecDense(len(w), w)
	ret = mat.Dot(wv, mat.NewVecDense(len(mu), mu))
	variance := mat.Inner(wv, cov, wv)
	if variance < 0 {
		variance = 0
	}
	return ret, math.Sqrt(variance)
}

func checkPSD(cov *mat.SymDense) error {
	n := cov.SymmetricDim()
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(cov)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+1e-10)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(jittered); !ok {
		return ErrNotPositiveDefinite
	}
	return nil
}
