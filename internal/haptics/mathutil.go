package haptics

import (
	"math"
	"time"
)

const (
	minDt = 0.0001
	maxDt = 0.050

	// restEpsilon is the magnitude below which filter state snaps to zero so
	// a silent input reaches an exact rest state instead of decaying forever.
	restEpsilon = 1e-6
)

// clampDt bounds a tick length; NaN and non-positive values become minDt.
func clampDt(dt float64) float64 {
	if !(dt > minDt) {
		return minDt
	}
	if dt > maxDt {
		return maxDt
	}
	return dt
}

// DtClamped reports whether clampDt would change dt.
func DtClamped(dt float64) bool {
	return clampDt(dt) != dt
}

// alpha is the one-pole coefficient for time constant tau at step dt.
func alpha(dt, tau float64) float64 {
	if tau <= 0 {
		return 1
	}
	return clamp(dt/(tau+dt), 0, 1)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// clamp maps NaN to minVal so no NaN ever reaches filter state.
func clamp(v, minVal, maxVal float64) float64 {
	if !(v >= minVal) {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func snap(v float64) float64 {
	if math.Abs(v) < restEpsilon {
		return 0
	}
	return v
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
