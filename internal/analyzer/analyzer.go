package analyzer

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/guidoenr/hapticbridge/internal/haptics"
	"github.com/guidoenr/hapticbridge/internal/params"
)

// Analyzer turns windows of game audio into haptic feature frames.
type Analyzer struct {
	sampleRate float64

	env envelopes

	buffer   []complex128
	window   []float64
	mags     []float64
	prevMags []float64
	scratch  []float64
}

// Config controls Analyzer behavior.
type Config struct {
	SampleRate float64
}

// New creates an Analyzer, defaulting to 44.1 kHz.
func New(cfg Config) *Analyzer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	return &Analyzer{sampleRate: cfg.SampleRate}
}

// Reset drops all envelope and spectral history.
func (a *Analyzer) Reset() {
	a.env = envelopes{}
	for i := range a.prevMags {
		a.prevMags[i] = 0
	}
}

// Analyze returns the feature frame for the provided mono samples. deltaTime
// is the time since the previous call and drives the envelope followers.
func (a *Analyzer) Analyze(samples []float32, deltaTime float64, tune params.AudioParams) haptics.FeatureFrame {
	if len(samples) == 0 {
		return haptics.FeatureFrame{}
	}
	dt := clamp(deltaTime, 0.0001, 0.1)

	size := nextPow2(min(len(samples), 2048))
	if size < 256 {
		size = 256
	}
	a.ensureWorkspace(size)

	buffer := a.buffer[:size]
	window := a.window[:size]
	// Most recent samples sit at the end of the window.
	offset := max(0, len(samples)-size)
	sampleCount := len(samples) - offset
	for i := 0; i < size; i++ {
		if i < sampleCount {
			buffer[i] = complex(float64(samples[offset+i])*window[i], 0)
			continue
		}
		buffer[i] = 0
	}

	fftRes := fft.FFT(buffer)

	half := size / 2
	norm := float64(half)
	for i := 0; i < half; i++ {
		a.mags[i] = cmag(fftRes[i]) / norm
	}

	resolution := a.sampleRate / float64(size)
	var raw rawBands
	raw.road = a.bandMean(resolution, 150, 800)
	raw.engine = a.bandMean(resolution, 50, 200)
	raw.tactile = a.bandMean(resolution, 80, 230)
	raw.tactileHz = a.peakHz(resolution, 80, 230)
	raw.flux = a.positiveFlux(resolution, 80, 250)
	raw.flatness = a.flatness(resolution, 200, 900)
	raw.skid = a.bandMean(resolution, 1200, 4000) * (1 - a.flatness(resolution, 1200, 4000))

	copy(a.prevMags, a.mags)
	return a.env.step(raw, dt, tune)
}

func (a *Analyzer) bins(resolution, minHz, maxHz float64) (int, int) {
	lo := int(math.Ceil(minHz / resolution))
	hi := int(math.Floor(maxHz/resolution)) + 1
	if hi > len(a.mags) {
		hi = len(a.mags)
	}
	if lo < 1 {
		lo = 1
	}
	return lo, hi
}

func (a *Analyzer) bandMean(resolution, minHz, maxHz float64) float64 {
	lo, hi := a.bins(resolution, minHz, maxHz)
	if lo >= hi {
		return 0
	}
	return stat.Mean(a.mags[lo:hi], nil)
}

// peakHz is the centre frequency of the loudest bin in range, or 0 when the
// range is silent.
func (a *Analyzer) peakHz(resolution, minHz, maxHz float64) float64 {
	lo, hi := a.bins(resolution, minHz, maxHz)
	if lo >= hi {
		return 0
	}
	band := a.mags[lo:hi]
	if floats.Max(band) < silenceFloor {
		return 0
	}
	return float64(lo+floats.MaxIdx(band)) * resolution
}

func (a *Analyzer) positiveFlux(resolution, minHz, maxHz float64) float64 {
	lo, hi := a.bins(resolution, minHz, maxHz)
	if lo >= hi {
		return 0
	}
	sum := 0.0
	for i := lo; i < hi; i++ {
		if d := a.mags[i] - a.prevMags[i]; d > 0 {
			sum += d
		}
	}
	return sum / float64(hi-lo)
}

// flatness is the geometric over arithmetic mean of the band magnitudes:
// near 0 for tonal content, near 1 for noise. An empty band reads as 1.
func (a *Analyzer) flatness(resolution, minHz, maxHz float64) float64 {
	lo, hi := a.bins(resolution, minHz, maxHz)
	if lo >= hi {
		return 1
	}
	band := a.scratch[:hi-lo]
	copy(band, a.mags[lo:hi])
	mean := stat.Mean(band, nil)
	if mean < silenceFloor {
		return 1
	}
	floats.AddConst(1e-12, band)
	return clamp(stat.GeometricMean(band, nil)/mean, 0, 1)
}

func hann(i, size float64) float64 {
	return 0.5 * (1.0 - math.Cos(2.0*math.Pi*i/size))
}

func (a *Analyzer) ensureWorkspace(size int) {
	if len(a.buffer) != size {
		a.buffer = make([]complex128, size)
	}
	if len(a.window) != size {
		a.window = make([]float64, size)
		sizeF := float64(size)
		for i := range a.window {
			a.window[i] = hann(float64(i), sizeF)
		}
	}
	if len(a.mags) != size/2 {
		a.mags = make([]float64, size/2)
		a.prevMags = make([]float64, size/2)
		a.scratch = make([]float64, size/2)
	}
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clamp(v, minVal, maxVal float64) float64 {
	if !(v >= minVal) {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
