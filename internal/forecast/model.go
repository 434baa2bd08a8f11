package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// varianceFloor keeps penalties finite on noise-free input (scaled units)
	varianceFloor = 1e-4
	// jitter keeps X'X+Λ positive definite
	jitter = 1e-9
)

var errSingular = errors.New("normal equations are not positive definite")

// model is a fitted additive trend + seasonality regression in scaled units
type model struct {
	d       *design
	beta    []float64
	yScale  float64
	sigma   float64 // residual std (scaled)
	slopeSE float64 // std error of the base slope (scaled)
	rate    float64 // changepoints per unit scaled time
	deltaB  float64 // mean |delta|, Laplace scale of future rate changes
	z       float64 // normal quantile for the interval width
}

// penalties builds the ridge diagonal for noise variance sigma2
func penalties(d *design, sigma2, cpScale, seasonScale float64) []float64 {
	lam := make([]float64, d.width())
	for i := range lam {
		lam[i] = jitter
	}
	for j := colDeltas; j < d.trendEnd(); j++ {
		lam[j] += sigma2 / (cpScale * cpScale)
	}
	for j := d.trendEnd(); j < len(lam); j++ {
		lam[j] += sigma2 / (seasonScale * seasonScale)
	}
	return lam
}

// solve minimizes ||y - Xb||² + Σ λ_i b_i² and returns b with (X'X+Λ)^-1
func solve(x *mat.Dense, y *mat.VecDense, lam []float64) ([]float64, *mat.SymDense, error) {
	_, p := x.Dims()

	var a mat.SymDense
	a.SymOuterK(1, x.T())
	for i := 0; i < p; i++ {
		a.SetSym(i, i, a.At(i, i)+lam[i])
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&a); !ok {
		return nil, nil, errSingular
	}

	var b mat.VecDense
	if err := chol.SolveVecTo(&b, &xty); err != nil && !isConditionWarning(err) {
		return nil, nil, fmt.Errorf("solve: %w", err)
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil && !isConditionWarning(err) {
		return nil, nil, fmt.Errorf("inverse: %w", err)
	}

	beta := make([]float64, p)
	for i := range beta {
		beta[i] = b.AtVec(i)
	}
	return beta, &inv, nil
}

// isConditionWarning: gonum still returns a usable result for ill-conditioned input
func isConditionWarning(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}

// residualVariance is SSE over the effective degrees of freedom
func residualVariance(x *mat.Dense, y *mat.VecDense, beta []float64) float64 {
	n, p := x.Dims()
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		resid[i] = y.AtVec(i) - floats.Dot(x.RawRowView(i), beta)
	}

	dof := n - p
	if dof < n/4 {
		dof = n / 4
	}
	if dof < 1 {
		dof = 1
	}
	return floats.Dot(resid, resid) / float64(dof)
}

// fit runs the two-pass penalized fit
//
// pass 1 uses the variance floor to estimate the noise level,
// pass 2 sets the penalties from that estimate.
func fit(d *design, x *mat.Dense, y *mat.VecDense, yScale float64, cfg Config) (*model, error) {
	lam := penalties(d, varianceFloor, cfg.ChangepointPriorScale, cfg.SeasonalityPriorScale)
	beta, _, err := solve(x, y, lam)
	if err != nil {
		return nil, err
	}
	sigma2 := residualVariance(x, y, beta)

	lam = penalties(d, math.Max(sigma2, varianceFloor), cfg.ChangepointPriorScale, cfg.SeasonalityPriorScale)
	beta, inv, err := solve(x, y, lam)
	if err != nil {
		return nil, err
	}
	sigma2 = residualVariance(x, y, beta)

	m := &model{
		d:      d,
		beta:   beta,
		yScale: yScale,
		sigma:  math.Sqrt(sigma2),
		z:      distuv.UnitNormal.Quantile(0.5 + cfg.IntervalWidth/2),
	}
	m.slopeSE = math.Sqrt(math.Max(sigma2*inv.At(colSlope, colSlope), 0))

	if s := len(d.changepoints); s > 0 {
		deltas := beta[colDeltas:d.trendEnd()]
		abs := make([]float64, len(deltas))
		for i, v := range deltas {
			abs[i] = math.Abs(v)
		}
		m.deltaB = stat.Mean(abs, nil)
		m.rate = changepointRate(s, cfg.ChangepointRange)
	}

	for _, v := range beta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite coefficient")
		}
	}
	return m, nil
}

// changepointRate is the density of n changepoints spread over the first
// share of scaled time; future rate changes are assumed to arrive as often.
func changepointRate(n int, share float64) float64 {
	if n <= 0 || share <= 0 {
		return 0
	}
	return float64(n) / share
}

// components of one prediction, in price units
type prediction struct {
	trend, weekly, yearly float64
	yhat                  float64
	half                  float64 // interval half-width
}

func (m *model) predict(day float64, row []float64) prediction {
	m.d.row(day, row)

	var p prediction
	p.trend = floats.Dot(row[:m.d.trendEnd()], m.beta[:m.d.trendEnd()]) * m.yScale
	for i, se := range m.d.seasons {
		lo, hi := m.d.seasonRange(i)
		v := floats.Dot(row[lo:hi], m.beta[lo:hi]) * m.yScale
		switch se.name {
		case "weekly":
			p.weekly = v
		case "yearly":
			p.yearly = v
		}
	}
	p.yhat = p.trend + p.weekly + p.yearly
	p.half = m.halfWidth(m.d.scaled(day)-1) * m.yScale
	return p
}

// halfWidth for a point dt scaled-time units past the last observation.
//
//	var = σ² + (σ_k·dt)² + r·2b²·dt³/3
//
// the last term is the variance of future rate changes arriving at rate r
// with Laplace(0, b) magnitudes. Non-decreasing in dt.
func (m *model) halfWidth(dt float64) float64 {
	v := m.sigma * m.sigma
	if dt > 0 {
		v += m.slopeSE * m.slopeSE * dt * dt
		v += m.rate * 2 * m.deltaB * m.deltaB * dt * dt * dt / 3
	}
	return m.z * math.Sqrt(v)
}
