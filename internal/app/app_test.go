package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guidoenr/hapticbridge/internal/haptics"
)

type recorder struct {
	frames []haptics.OutputFrame
}

func (r *recorder) Deliver(f haptics.OutputFrame) {
	r.frames = append(r.frames, f)
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	cfg.DisableAudio = true
	cfg.Seed = 1
	cfg.Log = log.New(io.Discard, "", 0)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRejectsUnknownTickSource(t *testing.T) {
	_, err := New(Config{DisableAudio: true, TickSource: "vsync", Log: log.New(io.Discard, "", 0)})
	if err == nil {
		t.Fatalf("expected error for unknown tick source")
	}
}

func TestStepUsesFreshFeedbackThenFallsBack(t *testing.T) {
	rec := &recorder{}
	a := newTestApp(t, Config{Sinks: []haptics.Sink{rec}})
	t0 := time.Unix(100, 0)
	clock := t0
	a.now = func() time.Time { return clock }
	a.last = t0

	a.InjectFFB(0.6, 0.8)
	for i := 1; i <= 30; i++ {
		clock = t0.Add(time.Duration(i) * 8 * time.Millisecond)
		a.step(clock)
	}
	if len(rec.frames) != 30 {
		t.Fatalf("sink saw %d frames want 30", len(rec.frames))
	}
	last := rec.frames[len(rec.frames)-1]
	if last.Source != haptics.SourceReal || last.RumbleR <= 0 {
		t.Fatalf("expected real feedback, got %+v", last)
	}

	clock = t0.Add(500 * time.Millisecond)
	f := a.step(clock)
	if f.Source == haptics.SourceReal {
		t.Fatalf("stale feedback still treated as real")
	}

	st := a.Status()
	if st.Ticks != 31 || st.Source != f.Source {
		t.Fatalf("status out of date: %+v", st)
	}
	if st.FFBAgeMs != 500 {
		t.Fatalf("ffb age=%f want 500", st.FFBAgeMs)
	}
}

func TestStatusBeforeFeedback(t *testing.T) {
	a := newTestApp(t, Config{})
	a.step(a.last.Add(8 * time.Millisecond))
	if st := a.Status(); st.FFBAgeMs != -1 || !st.AudioFallback {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSubmitControlsWakesTelemetryTick(t *testing.T) {
	a := newTestApp(t, Config{TickSource: TickTelemetry})
	a.SubmitControls(haptics.ControlsFromAxes(0.9, 0, 0.5, false))
	a.SubmitControls(haptics.ControlsFromAxes(0.8, 0, 0.5, false))
	if len(a.wake) != 1 {
		t.Fatalf("wake queue=%d want 1", len(a.wake))
	}
	c, _, ok := a.controls.Load()
	if !ok || c.Brake != 0.8 || !c.BrakePressed {
		t.Fatalf("latest controls not kept: %+v", c)
	}

	timer := newTestApp(t, Config{})
	timer.SubmitControls(haptics.Controls{})
	if len(timer.wake) != 0 {
		t.Fatalf("timer mode should not wake on telemetry")
	}
}

func TestFFBTestInjectsThenReleases(t *testing.T) {
	a := newTestApp(t, Config{})
	a.testFor = 60 * time.Millisecond
	a.testEvery = 10 * time.Millisecond
	a.StartFFBTest()

	deadline := time.Now().Add(2 * time.Second)
	sawTest := false
	for time.Now().Before(deadline) {
		v, _, ok := a.ffb.Load()
		if ok && v.L == ffbTestL && v.R == ffbTestR {
			sawTest = true
		}
		if sawTest && ok && v == (haptics.FFBSample{}) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("ffb test never completed (saw test pattern: %v)", sawTest)
}

func TestToggleAudioFallback(t *testing.T) {
	a := newTestApp(t, Config{})
	a.toggleAudioFallback()
	if a.Params().Load().Mixer.AudioFallback {
		t.Fatalf("fallback should be off after toggle")
	}
	a.toggleAudioFallback()
	if !a.Params().Load().Mixer.AudioFallback {
		t.Fatalf("fallback should be back on")
	}
}

type countingSink struct{ n atomic.Int64 }

func (c *countingSink) Deliver(haptics.OutputFrame) { c.n.Add(1) }

func TestRunTicksUntilCancelled(t *testing.T) {
	sink := &countingSink{}
	a := newTestApp(t, Config{TickHz: 500, AnalysisHz: 500, Sinks: []haptics.Sink{sink}})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run returned %v", err)
	}
	if sink.n.Load() == 0 {
		t.Fatalf("no frames delivered")
	}
	if _, _, ok := a.features.Load(); !ok {
		t.Fatalf("analysis loop never published features")
	}
}

func TestFakeGeneratorStaysInRange(t *testing.T) {
	g := newFakeGenerator(3)
	for i := 0; i < 5000; i++ {
		f := g.Next(0.005)
		if f != f.Clamped() {
			t.Fatalf("frame %d out of range: %+v", i, f)
		}
	}
}

func TestProfilerWritesTickRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	p := newProfiler(path, nil)
	if p == nil {
		t.Fatalf("profiler not created")
	}
	p.beginTick()
	p.mark(stageInputs)
	p.mark(stageMix)
	p.mark(stageDeliver)
	p.endTick(tickSample{Tick: 1, Source: haptics.SourceAudio, GateOpen: true, Dt: 0.008})
	p.beginTick()
	p.endTick(tickSample{Tick: 2, Source: haptics.SourceReal, Dt: 0.5})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || strings.Join(rows[0], ",") != strings.Join(profileHeader, ",") {
		t.Fatalf("unexpected csv: %v", rows)
	}
	first, second := rows[1], rows[2]
	if first[1] != "1" || first[2] != "audio" || first[3] != "true" || first[4] != "8.000" || first[5] != "false" {
		t.Fatalf("first row=%v", first)
	}
	if second[2] != "real" || second[3] != "false" || second[5] != "true" {
		t.Fatalf("long tick should be flagged as clamped: %v", second)
	}
	if p.rows != 2 || p.clampHits != 1 || p.realTicks != 1 || p.audioTicks != 1 {
		t.Fatalf("summary counters rows=%d clamp=%d real=%d audio=%d", p.rows, p.clampHits, p.realTicks, p.audioTicks)
	}

	var nilProf *profiler
	nilProf.beginTick()
	nilProf.mark(stageMix)
	nilProf.endTick(tickSample{})
	if err := nilProf.Close(); err != nil {
		t.Fatalf("nil profiler close: %v", err)
	}
}

func TestStepFeedsProfiler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	a := newTestApp(t, Config{ProfilePath: path})
	for i := 1; i <= 3; i++ {
		a.step(a.last.Add(8 * time.Millisecond))
	}
	if err := a.prof.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 4 {
		t.Fatalf("want header plus 3 rows, got:\n%s", data)
	}
}

func TestStatusBar(t *testing.T) {
	if got := statusBar("abc", 5); got != "abc  " {
		t.Fatalf("statusBar pad=%q", got)
	}
	if got := statusBar("abcdef", 3); got != "abc" {
		t.Fatalf("statusBar trim=%q", got)
	}
	if got := statusBar("abc", 0); got != "abc" {
		t.Fatalf("statusBar zero width=%q", got)
	}
}
