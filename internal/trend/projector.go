// Package trend fits a sliding-window linear trend to a room's queue
// position history and projects the date the position reaches zero.
package trend

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const defaultSlopeEpsilon = 1e-8

// Point is one dated queue-position sample. Histories handed to the
// projector are ordered by non-decreasing date, one point per day at most.
type Point struct {
	Date     time.Time
	Position int
}

// Projection is the fitted line plus the derived arrival estimate.
// ETA is nil when the trend is flat or rising; the drift fields are nil
// whenever either side of their comparison is undefined.
type Projection struct {
	// Points is the window size the fit was computed from; zero means no
	// observation qualified and the whole projection is undefined.
	Points    int
	Slope     float64
	Intercept float64
	ETA       *time.Time
	// ETADrift1d/1w are the signed day counts the ETA moved versus the
	// projection one day / one week earlier; positive means it slipped later.
	ETADrift1d *int
	ETADrift1w *int
}

// Defined reports whether the projection carries a fit at all.
func (p Projection) Defined() bool {
	return p.Points > 0
}

// Projector computes projections. It is pure and safe for concurrent use.
type Projector struct {
	// Cutover is the day the upstream numbering scheme was renumbered once.
	// Windows spanning it are de-biased before fitting.
	Cutover time.Time
	// SlopeEpsilon is the |slope| below which no ETA is derived.
	SlopeEpsilon float64
}

// Project fits the window up to asOf and derives the ETA, then refits with
// the window's right edge pulled back by one day and by seven days to
// measure how the ETA has been drifting.
func (p Projector) Project(history []Point, asOf time.Time) Projection {
	m, c, eta, n := p.regress(history, asOf, 0)
	if n == 0 {
		return Projection{}
	}
	_, _, eta1d, _ := p.regress(history, asOf, 1)
	_, _, eta1w, _ := p.regress(history, asOf, 7)

	return Projection{
		Points:     n,
		Slope:      m,
		Intercept:  c,
		ETA:        eta,
		ETADrift1d: driftDays(eta, eta1d),
		ETADrift1w: driftDays(eta, eta1w),
	}
}

// regress fits the points dated at or before asOf-backDays. n is the window
// size; zero means no fit was possible. eta is nil for flat or rising trends.
func (p Projector) regress(history []Point, asOf time.Time, backDays int) (m, c float64, eta *time.Time, n int) {
	at := asOf.AddDate(0, 0, -backDays)
	n = sort.Search(len(history), func(i int) bool { return history[i].Date.After(at) })
	if n == 0 {
		return 0, 0, nil, 0
	}
	window := history[:n]

	positions := make([]float64, n)
	for i, pt := range window {
		positions[i] = float64(pt.Position)
	}

	// One-time renumbering correction: subtract the jump at the first point
	// on or after the cutover, fit, then add it back into the intercept so
	// the line lives in the current numbering frame.
	step := 0.0
	if !p.Cutover.IsZero() {
		idx := sort.Search(n, func(i int) bool { return !window[i].Date.Before(p.Cutover) })
		if idx > 0 && idx < n-1 {
			step = positions[idx] - positions[idx-1]
			for i := idx; i < n; i++ {
				positions[i] -= step
			}
		}
	}

	if n >= 2 {
		base := window[0].Date
		days := make([]float64, n)
		for i, pt := range window {
			days[i] = float64(daysBetween(base, pt.Date))
		}
		c, m = stat.LinearRegression(days, positions, nil, false)
	} else {
		m, c = 0, positions[0]
	}
	c += step

	eps := p.SlopeEpsilon
	if eps <= 0 {
		eps = defaultSlopeEpsilon
	}
	if m < -eps {
		d := window[0].Date.AddDate(0, 0, int(math.Round(-c/m)))
		eta = &d
	}
	return m, c, eta, n
}

// daysBetween counts whole days from base to d. Both are UTC midnights.
func daysBetween(base, d time.Time) int {
	return int(d.Sub(base).Hours() / 24)
}

func driftDays(eta, earlier *time.Time) *int {
	if eta == nil || earlier == nil {
		return nil
	}
	days := int(math.Round(eta.Sub(*earlier).Hours() / 24))
	return &days
}
