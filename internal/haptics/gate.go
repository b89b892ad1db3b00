package haptics

import (
	"math"
	"math/rand"
	"time"

	"github.com/guidoenr/hapticbridge/internal/params"
)

// PulseSchedule is one band's periodic window. The band is "on" while the
// tick clock is inside [Start, Start+Width).
type PulseSchedule struct {
	Start time.Duration
	Width time.Duration
}

func (s PulseSchedule) active(now time.Duration) bool {
	return now >= s.Start && now < s.Start+s.Width
}

// GateState is the burst gate plus its two pulse trains. A closed gate may
// not reopen on energy before RearmAt.
type GateState struct {
	Open     bool
	OpenedAt time.Duration
	RearmAt  time.Duration
	Lo       PulseSchedule
	Hi       PulseSchedule
}

// GateInput is what the gate sees each tick, all in [0,1].
type GateInput struct {
	CandL  float64
	CandR  float64
	Impact float64
	Engine float64
	Road   float64
}

// GateResult is the gate decision for one tick.
type GateResult struct {
	Open    bool
	Opened  bool
	LoOn    bool
	HiOn    bool
	LoHz    float64
	HiHz    float64
	RumbleL float64
	RumbleR float64
}

// Gate suppresses the continuous audio hum and turns sustained energy into
// discrete taps on two independent pulse trains.
type Gate struct {
	state GateState
	rng   *rand.Rand
}

// NewGate returns a closed gate whose jitter is drawn from seed.
func NewGate(seed int64) *Gate {
	return &Gate{rng: rand.New(rand.NewSource(seed))}
}

// State returns a copy of the gate state.
func (g *Gate) State() GateState {
	return g.state
}

// Close forces the gate shut, e.g. while real feedback owns the output. It
// does not start the rearm delay, so audio can take over as soon as the
// feedback goes stale.
func (g *Gate) Close() {
	g.state.Open = false
}

// Evaluate advances the gate to now and returns the gated rumble.
func (g *Gate) Evaluate(now time.Duration, in GateInput, p *params.GateParams) GateResult {
	st := &g.state
	candL := clamp01(in.CandL)
	candR := clamp01(in.CandR)
	impact := clamp01(in.Impact)
	energy := math.Max(candL, candR)
	loEnergy := clamp01(in.Engine)
	hiEnergy := clamp01(in.Road)

	var res GateResult
	if !st.Open {
		if now >= st.RearmAt && (energy >= p.OnThreshold || impact >= p.ImpactOn) {
			st.Open = true
			st.OpenedAt = now
			st.Lo = g.seed(now, loEnergy, p.LowBaseHz, p.LowSpanHz, p)
			st.Hi = g.seed(now, hiEnergy, p.HighBaseHz, p.HighSpanHz, p)
			res.Opened = true
		}
	} else if elapsed := now - st.OpenedAt; elapsed >= p.MinOpen() {
		held := elapsed > p.MaxBurst()
		if energy <= p.OffThreshold && (impact < p.ImpactOff || held) {
			st.Open = false
			st.RearmAt = now + p.Rearm()
		}
	}
	if !st.Open {
		return res
	}

	res.Open = true
	res.LoHz = pulseHz(loEnergy, p.LowBaseHz, p.LowSpanHz)
	res.HiHz = pulseHz(hiEnergy, p.HighBaseHz, p.HighSpanHz)
	res.LoOn = g.advance(&st.Lo, now, loEnergy, res.LoHz, p)
	res.HiOn = g.advance(&st.Hi, now, hiEnergy, res.HiHz, p)
	if res.LoOn {
		res.RumbleL = candL
	}
	if res.HiOn {
		res.RumbleR = candR
	}
	return res
}

func (g *Gate) seed(now time.Duration, energy, baseHz, spanHz float64, p *params.GateParams) PulseSchedule {
	period := periodOf(pulseHz(energy, baseHz, spanHz))
	return PulseSchedule{
		Start: now,
		Width: windowWidth(energy, period, p),
	}
}

// advance moves s past any finished window and reports whether now is inside
// the current one.
func (g *Gate) advance(s *PulseSchedule, now time.Duration, energy, hz float64, p *params.GateParams) bool {
	if now >= s.Start+s.Width {
		period := periodOf(hz)
		jitter := p.JitterFraction * (2*g.rng.Float64() - 1)
		s.Start += time.Duration(float64(period) * (1 + jitter))
		s.Width = windowWidth(energy, period, p)
		if s.Start+s.Width <= now {
			s.Start = now
		}
	}
	return s.active(now)
}

// pulseHz maps band energy to a pulse rate: base + span·energy^0.85.
func pulseHz(energy, baseHz, spanHz float64) float64 {
	return baseHz + spanHz*math.Pow(clamp01(energy), 0.85)
}

func periodOf(hz float64) time.Duration {
	return secondsToDuration(1 / math.Max(0.5, hz))
}

// windowWidth scales the on-window with energy and keeps it shorter than
// the period so consecutive taps stay distinct.
func windowWidth(energy float64, period time.Duration, p *params.GateParams) time.Duration {
	ms := p.WindowMinMs + (p.WindowMaxMs-p.WindowMinMs)*clamp01(energy)
	w := time.Duration(ms * float64(time.Millisecond))
	if limit := period * 9 / 10; w > limit {
		w = limit
	}
	return w
}
