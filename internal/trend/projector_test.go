package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(base time.Time, n int) time.Time {
	return base.AddDate(0, 0, n)
}

// linearHistory builds a daily series starting at start with the given
// position and per-day slope.
func linearHistory(start time.Time, startPos, slope, days int) []Point {
	pts := make([]Point, days)
	for i := 0; i < days; i++ {
		pts[i] = Point{Date: day(start, i), Position: startPos + i*slope}
	}
	return pts
}

func TestProjectEmptyHistory(t *testing.T) {
	p := Projector{}
	proj := p.Project(nil, time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC))

	assert.False(t, proj.Defined())
	assert.Nil(t, proj.ETA)
	assert.Nil(t, proj.ETADrift1d)
	assert.Nil(t, proj.ETADrift1w)
}

func TestProjectSinglePoint(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	p := Projector{}

	proj := p.Project([]Point{{Date: d0, Position: 100}}, d0)

	require.True(t, proj.Defined())
	assert.Equal(t, 1, proj.Points)
	assert.Zero(t, proj.Slope)
	assert.Equal(t, 100.0, proj.Intercept)
	assert.Nil(t, proj.ETA, "a flat fit has no arrival date")
	assert.Nil(t, proj.ETADrift1d)
	assert.Nil(t, proj.ETADrift1w)
}

func TestProjectTwoPoints(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := []Point{
		{Date: d0, Position: 100},
		{Date: day(d0, 10), Position: 50},
	}
	p := Projector{}

	proj := p.Project(history, day(d0, 10))

	require.True(t, proj.Defined())
	assert.Equal(t, 2, proj.Points)
	assert.InDelta(t, -5.0, proj.Slope, 1e-9)
	assert.InDelta(t, 100.0, proj.Intercept, 1e-9)
	require.NotNil(t, proj.ETA)
	assert.Equal(t, day(d0, 20), *proj.ETA)
	// the pulled-back windows hold a single point each, so there is nothing
	// to measure drift against
	assert.Nil(t, proj.ETADrift1d)
	assert.Nil(t, proj.ETADrift1w)
}

func TestProjectDenseLinearDriftIsZero(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := linearHistory(d0, 100, -5, 21) // reaches 0 on day 20
	p := Projector{}

	proj := p.Project(history, day(d0, 20))

	require.True(t, proj.Defined())
	assert.Equal(t, 21, proj.Points)
	assert.InDelta(t, -5.0, proj.Slope, 1e-9)
	require.NotNil(t, proj.ETA)
	assert.Equal(t, day(d0, 20), *proj.ETA)
	require.NotNil(t, proj.ETADrift1d)
	assert.Equal(t, 0, *proj.ETADrift1d)
	require.NotNil(t, proj.ETADrift1w)
	assert.Equal(t, 0, *proj.ETADrift1w)
}

func TestProjectRisingTrendHasNoETA(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := linearHistory(d0, 10, 3, 8)
	p := Projector{}

	proj := p.Project(history, day(d0, 7))

	require.True(t, proj.Defined())
	assert.Greater(t, proj.Slope, 0.0)
	assert.Nil(t, proj.ETA)
	assert.Nil(t, proj.ETADrift1d)
	assert.Nil(t, proj.ETADrift1w)
}

func TestProjectWindowExcludesFuturePoints(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := linearHistory(d0, 100, -5, 21)
	p := Projector{}

	// as of day 10 only the first 11 points qualify
	proj := p.Project(history, day(d0, 10))

	assert.Equal(t, 11, proj.Points)
	require.NotNil(t, proj.ETA)
	assert.Equal(t, day(d0, 20), *proj.ETA)
}

func TestProjectStepCorrection(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	// Queue renumbered between day 3 and day 4: every position from day 4
	// on is 30 lower than the old numbering would have been.
	history := []Point{
		{Date: day(d0, 0), Position: 100},
		{Date: day(d0, 1), Position: 95},
		{Date: day(d0, 2), Position: 95},
		{Date: day(d0, 3), Position: 90},
		{Date: day(d0, 4), Position: 60},
		{Date: day(d0, 5), Position: 55},
		{Date: day(d0, 6), Position: 50},
		{Date: day(d0, 7), Position: 45},
	}
	p := Projector{Cutover: day(d0, 4)}

	proj := p.Project(history, day(d0, 7))

	require.True(t, proj.Defined())
	assert.Equal(t, 8, proj.Points)
	// De-biased series is 100,95,95,90,90,85,80,75; its OLS slope is -10/3
	// and intercept 100.4167, re-biased by -30 into the current frame.
	assert.InDelta(t, -10.0/3.0, proj.Slope, 1e-9)
	assert.InDelta(t, 100.0+5.0/12.0-30.0, proj.Intercept, 1e-9)
	require.NotNil(t, proj.ETA)
	assert.Equal(t, day(d0, 21), *proj.ETA)
	require.NotNil(t, proj.ETADrift1d)
	assert.Equal(t, -2, *proj.ETADrift1d)
	// seven days back only one point remains, no fit to compare with
	assert.Nil(t, proj.ETADrift1w)
}

func TestProjectStepAtWindowEdgeIsNotCorrected(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := []Point{
		{Date: day(d0, 0), Position: 100},
		{Date: day(d0, 1), Position: 95},
		{Date: day(d0, 2), Position: 60},
	}

	// Cutover on the last point of the window: there is no point after it
	// to anchor a fit in the new frame, so the jump stays in the data.
	withCutover := Projector{Cutover: day(d0, 2)}.Project(history, day(d0, 2))
	plain := Projector{}.Project(history, day(d0, 2))

	assert.Equal(t, plain.Slope, withCutover.Slope)
	assert.Equal(t, plain.Intercept, withCutover.Intercept)
}

func TestProjectFlatSeriesWithinEpsilon(t *testing.T) {
	d0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	history := []Point{
		{Date: day(d0, 0), Position: 80},
		{Date: day(d0, 1), Position: 80},
		{Date: day(d0, 2), Position: 80},
	}
	p := Projector{SlopeEpsilon: 1e-8}

	proj := p.Project(history, day(d0, 2))

	require.True(t, proj.Defined())
	assert.InDelta(t, 0.0, proj.Slope, 1e-12)
	assert.Nil(t, proj.ETA)
}
