// Package forecast fits ARIMA-family models by conditional sum of squares and
// produces point forecasts with confidence intervals.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInsufficientData = errors.New("not enough observations for model order")
	ErrNotFitted        = errors.New("model not fitted")
)

// Order is the non-seasonal (p,d,q) order.
type Order struct {
	P, D, Q int
}

// SeasonalOrder is the seasonal (P,D,Q) order at period S. The zero value
// means no seasonal component.
type SeasonalOrder struct {
	P, D, Q, S int
}

// Enabled reports whether the seasonal part contributes any term.
func (s SeasonalOrder) Enabled() bool {
	return s.S >= 2 && (s.P > 0 || s.D > 0 || s.Q > 0)
}

// Model is an ARIMA(p,d,q) or SARIMA(p,d,q)(P,D,Q)s model.
type Model struct {
	Order    Order
	Seasonal SeasonalOrder

	AR, MA   []float64
	SAR, SMA []float64
	Mean     float64

	Sigma2 float64
	LogLik float64
	AIC    float64
	AICc   float64
	BIC    float64
	NObs   int

	values    []float64
	residuals []float64 // aligned to values, zero where undefined
	fitted    bool
}

// New returns an unfitted model.
func New(order Order, seasonal SeasonalOrder) *Model {
	if !seasonal.Enabled() {
		seasonal = SeasonalOrder{}
	}
	return &Model{Order: order, Seasonal: seasonal}
}

func (m *Model) String() string {
	o := m.Order
	if m.Seasonal.Enabled() {
		s := m.Seasonal
		return fmt.Sprintf("SARIMA(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, s.P, s.D, s.Q, s.S)
	}
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

func (m *Model) numParams() int {
	return m.Order.P + m.Order.Q + m.Seasonal.P + m.Seasonal.Q
}

// lagOffset is the number of leading observations consumed by differencing.
func (m *Model) lagOffset() int {
	return m.Order.D + m.Seasonal.D*m.Seasonal.S
}

// Fit estimates coefficients by minimising the conditional sum of squares
// with Nelder-Mead. Coefficients are reparameterised through partial
// autocorrelations so the AR parts stay stationary and the MA parts invertible.
func (m *Model) Fit(values []float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("fit: values contain NaN or Inf")
		}
	}
	w := values
	for i := 0; i < m.Seasonal.D; i++ {
		w = difference(w, m.Seasonal.S)
	}
	for i := 0; i < m.Order.D; i++ {
		w = difference(w, 1)
	}

	k := m.numParams()
	maxAR := m.Order.P + m.Seasonal.P*m.Seasonal.S
	maxMA := m.Order.Q + m.Seasonal.Q*m.Seasonal.S
	if len(w)-maxAR < k+maxMA+10 {
		return fmt.Errorf("%s on %d values: %w", m, len(values), ErrInsufficientData)
	}

	m.Mean = 0
	if m.lagOffset() == 0 {
		for _, v := range w {
			m.Mean += v
		}
		m.Mean /= float64(len(w))
	}
	z := make([]float64, len(w))
	for i, v := range w {
		z[i] = v - m.Mean
	}

	params := make([]float64, k)
	if k > 0 {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				a, b := m.expand(x)
				sse, _ := css(z, a, b)
				return sse / float64(len(z))
			},
		}
		settings := &optimize.Settings{
			MajorIterations: 500 * k,
			Converger:       &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-10, Iterations: 200},
		}
		result, err := optimize.Minimize(problem, params, settings, &optimize.NelderMead{})
		if result == nil {
			return fmt.Errorf("fit %s: %w", m, err)
		}
		if err != nil {
			log.Debug().Err(err).Str("model", m.String()).Msg("optimizer stopped early")
		}
		params = result.X
	}

	m.unpack(params)
	a, b := m.expand(params)
	sse, resid := css(z, a, b)
	n := len(z) - len(a)
	m.NObs = n
	m.Sigma2 = sse / float64(n)
	m.LogLik = -0.5 * float64(n) * (math.Log(2*math.Pi*m.Sigma2) + 1)

	nParams := float64(k + 1)
	if m.lagOffset() == 0 {
		nParams++
	}
	m.AIC = -2*m.LogLik + 2*nParams
	m.AICc = m.AIC + 2*nParams*(nParams+1)/math.Max(float64(n)-nParams-1, 1)
	m.BIC = -2*m.LogLik + nParams*math.Log(float64(n))

	m.values = append([]float64(nil), values...)
	m.residuals = make([]float64, len(values))
	copy(m.residuals[m.lagOffset():], resid)
	m.fitted = true
	return nil
}

// Residuals returns the in-sample one-step errors aligned to the fitted values.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

// Forecast returns h point forecasts with lower and upper bounds at the given
// two-sided confidence level.
func (m *Model) Forecast(h int, confidence float64) (point, lower, upper []float64, err error) {
	if !m.fitted {
		return nil, nil, nil, ErrNotFitted
	}
	if h <= 0 {
		return nil, nil, nil, fmt.Errorf("horizon must be positive, got %d", h)
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, nil, nil, fmt.Errorf("confidence must be in (0, 1), got %v", confidence)
	}

	params := m.pack()
	a, b := m.expand(params)
	// Fold the differencing operators into the AR polynomial so recursion
	// runs on the original scale.
	arPoly := lagPoly(a, -1)
	for i := 0; i < m.Order.D; i++ {
		arPoly = polyMul(arPoly, []float64{1, -1})
	}
	for i := 0; i < m.Seasonal.D; i++ {
		sd := make([]float64, m.Seasonal.S+1)
		sd[0], sd[m.Seasonal.S] = 1, -1
		arPoly = polyMul(arPoly, sd)
	}
	phi := make([]float64, len(arPoly)-1)
	for i := range phi {
		phi[i] = -arPoly[i+1]
	}

	n := len(m.values)
	z := make([]float64, n+h)
	e := make([]float64, n+h)
	for i, v := range m.values {
		z[i] = v - m.Mean
	}
	copy(e, m.residuals)
	for t := n; t < n+h; t++ {
		var pred float64
		for k, c := range phi {
			if t-k-1 >= 0 {
				pred += c * z[t-k-1]
			}
		}
		for k, c := range b {
			if t-k-1 >= 0 {
				pred += c * e[t-k-1]
			}
		}
		z[t] = pred
	}

	psi := psiWeights(phi, b, h)
	zq := distuv.UnitNormal.Quantile(0.5 + confidence/2)
	point = make([]float64, h)
	lower = make([]float64, h)
	upper = make([]float64, h)
	var cum float64
	for i := 0; i < h; i++ {
		cum += psi[i] * psi[i]
		half := zq * math.Sqrt(m.Sigma2*cum)
		point[i] = z[n+i] + m.Mean
		lower[i] = point[i] - half
		upper[i] = point[i] + half
	}
	return point, lower, upper, nil
}

// pack returns the fitted coefficients in unconstrained form.
func (m *Model) pack() []float64 {
	out := make([]float64, 0, m.numParams())
	out = append(out, fromCoeffs(m.AR)...)
	out = append(out, fromCoeffs(negate(m.MA))...)
	out = append(out, fromCoeffs(m.SAR)...)
	out = append(out, fromCoeffs(negate(m.SMA))...)
	return out
}

func (m *Model) unpack(x []float64) {
	o, s := m.Order, m.Seasonal
	m.AR = toCoeffs(x[:o.P])
	x = x[o.P:]
	m.MA = negate(toCoeffs(x[:o.Q]))
	x = x[o.Q:]
	m.SAR = toCoeffs(x[:s.P])
	x = x[s.P:]
	m.SMA = negate(toCoeffs(x[:s.Q]))
}

// expand maps unconstrained parameters to the multiplied-out AR and MA lag
// coefficients: z[t] = sum a[k] z[t-k-1] + e[t] + sum b[k] e[t-k-1].
func (m *Model) expand(x []float64) (a, b []float64) {
	o, s := m.Order, m.Seasonal
	ar := toCoeffs(x[:o.P])
	x = x[o.P:]
	ma := negate(toCoeffs(x[:o.Q]))
	x = x[o.Q:]
	sar := toCoeffs(x[:s.P])
	x = x[s.P:]
	sma := negate(toCoeffs(x[:s.Q]))

	arPoly := polyMul(lagPoly(ar, -1), seasonalPoly(sar, s.S, -1))
	maPoly := polyMul(lagPoly(ma, 1), seasonalPoly(sma, s.S, 1))
	a = make([]float64, len(arPoly)-1)
	for i := range a {
		a[i] = -arPoly[i+1]
	}
	return a, maPoly[1:]
}

// css returns the conditional sum of squares and the residuals aligned to z,
// zero before the first fully conditioned observation.
func css(z, a, b []float64) (float64, []float64) {
	resid := make([]float64, len(z))
	var sse float64
	for t := len(a); t < len(z); t++ {
		pred := 0.0
		for k, c := range a {
			pred += c * z[t-k-1]
		}
		for k, c := range b {
			if t-k-1 >= 0 {
				pred += c * resid[t-k-1]
			}
		}
		e := z[t] - pred
		resid[t] = e
		sse += e * e
	}
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return math.MaxFloat64, resid
	}
	return sse, resid
}

// toCoeffs maps unconstrained values to stationary AR coefficients via
// tanh partial autocorrelations and the Durbin-Levinson recursion.
func toCoeffs(u []float64) []float64 {
	phi := make([]float64, 0, len(u))
	for k, v := range u {
		r := math.Tanh(v)
		next := make([]float64, k+1)
		for j := 0; j < k; j++ {
			next[j] = phi[j] - r*phi[k-1-j]
		}
		next[k] = r
		phi = next
	}
	return phi
}

// fromCoeffs inverts toCoeffs.
func fromCoeffs(phi []float64) []float64 {
	p := len(phi)
	u := make([]float64, p)
	cur := append([]float64(nil), phi...)
	for k := p - 1; k >= 0; k-- {
		r := math.Max(math.Min(cur[k], 1-1e-12), -1+1e-12)
		u[k] = math.Atanh(r)
		prev := make([]float64, k)
		for j := 0; j < k; j++ {
			prev[j] = (cur[j] + r*cur[k-1-j]) / (1 - r*r)
		}
		cur = prev
	}
	return u
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// lagPoly returns 1 + sign*c1*B + sign*c2*B^2 ...
func lagPoly(c []float64, sign float64) []float64 {
	out := make([]float64, len(c)+1)
	out[0] = 1
	for i, v := range c {
		out[i+1] = sign * v
	}
	return out
}

func seasonalPoly(c []float64, s int, sign float64) []float64 {
	if len(c) == 0 {
		return []float64{1}
	}
	out := make([]float64, len(c)*s+1)
	out[0] = 1
	for i, v := range c {
		out[(i+1)*s] = sign * v
	}
	return out
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// psiWeights returns the first h coefficients of the MA(infinity)
// representation, psi[0] = 1.
func psiWeights(phi, theta []float64, h int) []float64 {
	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		if j <= len(theta) {
			v = theta[j-1]
		}
		for k := 1; k <= len(phi) && k <= j; k++ {
			v += phi[k-1] * psi[j-k]
		}
		psi[j] = v
	}
	return psi
}

func difference(values []float64, lag int) []float64 {
	if len(values) <= lag {
		return nil
	}
	out := make([]float64, len(values)-lag)
	for i := lag; i < len(values); i++ {
		out[i-lag] = values[i] - values[i-lag]
	}
	return out
}
