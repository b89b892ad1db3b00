package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"

	"github.com/guidoenr/hapticbridge/internal/analyzer"
	"github.com/guidoenr/hapticbridge/internal/audio"
	"github.com/guidoenr/hapticbridge/internal/haptics"
	"github.com/guidoenr/hapticbridge/internal/params"
)

// TickSource selects what drives the control tick.
type TickSource string

const (
	// TickTimer ticks at a fixed TickHz.
	TickTimer TickSource = "timer"
	// TickTelemetry ticks on every telemetry arrival, with a TickHz idle
	// tick so output still settles when telemetry stops.
	TickTelemetry TickSource = "telemetry"
)

// Config configures the application runtime.
type Config struct {
	DeviceName    string
	BufferSize    int
	TickHz        float64
	AnalysisHz    float64
	TickSource    TickSource
	DisableAudio  bool
	ShowStatusBar bool
	Interactive   bool
	ProfilePath   string
	Seed          int64
	Store         *params.Store
	Sinks         []haptics.Sink
	Log           *log.Logger
}

type inputEvent int

const (
	inputEventQuit inputEvent = iota
	inputEventFFBTest
	inputEventToggleFallback
)

const (
	ffbTestL        = 0.6
	ffbTestR        = 0.8
	ffbLogInterval  = 500 * time.Millisecond
	statusBarPeriod = 250 * time.Millisecond
)

// Status is a snapshot of the engine for the control surface.
type Status struct {
	Frame         haptics.OutputFrame  `json:"frame"`
	Source        haptics.Source       `json:"source"`
	Features      haptics.FeatureFrame `json:"features"`
	TickHz        float64              `json:"tickHz"`
	FFBAgeMs      float64              `json:"ffbAgeMs"`
	GateOpen      bool                 `json:"gateOpen"`
	AudioFallback bool                 `json:"audioFallback"`
	Device        string               `json:"device,omitempty"`
	Ticks         uint64               `json:"ticks"`
}

// App ties together audio capture, analysis and the haptic mixer.
type App struct {
	cfg   Config
	log   *log.Logger
	store *params.Store

	capture     *audio.Capture
	analyzer    *analyzer.Analyzer
	fake        *fakeGenerator
	deviceLabel string

	features haptics.Mailbox[haptics.FeatureFrame]
	ffb      haptics.Mailbox[haptics.FFBSample]
	controls haptics.Mailbox[haptics.Controls]
	wake     chan struct{}

	// Tick goroutine only.
	mixer     *haptics.Mixer
	last      time.Time
	lastBar   time.Time
	tickCount uint64
	tickRate  float64

	sinksMu sync.RWMutex
	sinks   []haptics.Sink

	statusMu sync.RWMutex
	status   Status

	ffbMu       sync.Mutex
	lastFFBLog  time.Time
	testCancel  context.CancelFunc
	testFor     time.Duration
	testEvery   time.Duration
	baseCtx     context.Context
	inputEvents chan inputEvent
	prof        *profiler
	now         func() time.Time
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 120
	}
	if cfg.AnalysisHz <= 0 {
		cfg.AnalysisHz = 200
	}
	if cfg.TickSource == "" {
		cfg.TickSource = TickTimer
	}
	if cfg.TickSource != TickTimer && cfg.TickSource != TickTelemetry {
		return nil, fmt.Errorf("unknown tick source %q", cfg.TickSource)
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Store == nil {
		cfg.Store = params.NewStore(params.Defaults())
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	app := &App{
		cfg:       cfg,
		log:       cfg.Log,
		store:     cfg.Store,
		mixer:     haptics.NewMixer(cfg.Seed),
		wake:      make(chan struct{}, 1),
		sinks:     append([]haptics.Sink(nil), cfg.Sinks...),
		testFor:   2 * time.Second,
		testEvery: 120 * time.Millisecond,
		baseCtx:   context.Background(),
		now:       time.Now,
	}

	if cfg.DisableAudio {
		app.fake = newFakeGenerator(cfg.Seed)
		app.log.Println("audio disabled, using synthetic features")
	} else {
		capture, err := audio.NewCapture(audio.Config{
			DeviceName: cfg.DeviceName,
			BufferSize: cfg.BufferSize,
			Channels:   2,
			Log:        cfg.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("audio capture: %w", err)
		}
		app.capture = capture
		app.analyzer = analyzer.New(analyzer.Config{SampleRate: capture.SampleRate()})
		if info := capture.Device(); info != nil {
			app.deviceLabel = info.Name
		}
	}

	app.prof = newProfiler(cfg.ProfilePath, cfg.Log)
	app.last = app.now()
	app.status.FFBAgeMs = -1
	return app, nil
}

// AddSink registers another consumer of output frames. Sinks are called on
// the tick goroutine and must not block.
func (a *App) AddSink(s haptics.Sink) {
	a.sinksMu.Lock()
	a.sinks = append(a.sinks, s)
	a.sinksMu.Unlock()
}

// Params returns the live tunables store.
func (a *App) Params() *params.Store {
	return a.store
}

// Run drives analysis and the control tick until ctx is cancelled or the
// user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.ffbMu.Lock()
	a.baseCtx = ctx
	a.ffbMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runAnalysis(ctx)
	}()
	defer wg.Wait()

	if a.cfg.Interactive {
		a.startInputListener(ctx)
	}

	period := time.Duration(float64(time.Second) / a.cfg.TickHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	a.log.Printf("engine running: tick=%s @ %.0f Hz, analysis @ %.0f Hz", a.cfg.TickSource, a.cfg.TickHz, a.cfg.AnalysisHz)
	for {
		select {
		case <-ctx.Done():
			a.clearStatusBar()
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			switch evt {
			case inputEventQuit:
				a.clearStatusBar()
				return nil
			case inputEventFFBTest:
				a.StartFFBTest()
			case inputEventToggleFallback:
				a.toggleAudioFallback()
			}
		case <-a.wake:
			a.step(a.now())
		case <-ticker.C:
			now := a.now()
			if a.cfg.TickSource == TickTelemetry && now.Sub(a.last) < 2*period {
				continue
			}
			a.step(now)
		}
	}
}

// Close releases held resources.
func (a *App) Close() error {
	a.ffbMu.Lock()
	if a.testCancel != nil {
		a.testCancel()
	}
	a.ffbMu.Unlock()
	if err := a.prof.Close(); err != nil {
		a.log.Printf("profiler close: %v", err)
	}
	if a.capture != nil {
		return a.capture.Close()
	}
	return nil
}

func (a *App) runAnalysis(ctx context.Context) {
	period := time.Duration(float64(time.Second) / a.cfg.AnalysisHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var samples []float32
	last := a.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := a.now()
			delta := now.Sub(last).Seconds()
			last = now
			if delta <= 0 {
				delta = period.Seconds()
			}
			a.features.Publish(a.analyze(&samples, delta), now)
		}
	}
}

func (a *App) analyze(samples *[]float32, delta float64) haptics.FeatureFrame {
	if a.capture != nil && a.analyzer != nil {
		*samples = a.capture.SamplesInto(*samples)
		return a.analyzer.Analyze(*samples, delta, a.store.Load().Audio)
	}
	if a.fake != nil {
		return a.fake.Next(delta)
	}
	return haptics.FeatureFrame{}
}

// step runs one control tick at now.
func (a *App) step(now time.Time) haptics.OutputFrame {
	a.prof.beginTick()

	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TickHz
	}
	a.last = now

	p := a.store.Load()
	ffb, fresh := a.ffb.Fresh(now, p.Mixer.FFBFreshness())
	features, _, _ := a.features.Load()
	controls, _, _ := a.controls.Load()
	a.prof.mark(stageInputs)

	frame := a.mixer.Tick(haptics.TickInput{
		Dt:       delta,
		Features: features,
		FFB:      ffb,
		FFBFresh: fresh,
		Controls: controls,
	}, p)
	a.prof.mark(stageMix)

	a.sinksMu.RLock()
	for _, s := range a.sinks {
		s.Deliver(frame)
	}
	a.sinksMu.RUnlock()
	a.prof.mark(stageDeliver)

	a.tickCount++
	inst := 1 / delta
	if a.tickRate == 0 {
		a.tickRate = inst
	} else {
		a.tickRate += 0.05 * (inst - a.tickRate)
	}

	ffbAge := -1.0
	if _, at, ok := a.ffb.Load(); ok {
		ffbAge = float64(now.Sub(at)) / float64(time.Millisecond)
	}

	a.statusMu.Lock()
	a.status = Status{
		Frame:         frame,
		Source:        frame.Source,
		Features:      features,
		TickHz:        a.tickRate,
		FFBAgeMs:      ffbAge,
		GateOpen:      a.mixer.GateOpen(),
		AudioFallback: p.Mixer.AudioFallback,
		Device:        a.deviceLabel,
		Ticks:         a.tickCount,
	}
	a.statusMu.Unlock()

	if a.cfg.ShowStatusBar && now.Sub(a.lastBar) >= statusBarPeriod {
		a.lastBar = now
		a.printStatusBar(frame)
	}
	a.prof.endTick(tickSample{Tick: a.tickCount, Source: frame.Source, GateOpen: a.mixer.GateOpen(), Dt: delta})
	return frame
}

// Status returns the most recent tick snapshot.
func (a *App) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// InjectFFB records a real force-feedback sample, stamped on arrival.
func (a *App) InjectFFB(l, r float64) {
	now := a.now()
	a.ffb.Publish(haptics.FFBSample{L: l, R: r}, now)

	a.ffbMu.Lock()
	logIt := now.Sub(a.lastFFBLog) >= ffbLogInterval
	if logIt {
		a.lastFFBLog = now
	}
	a.ffbMu.Unlock()
	if logIt {
		a.log.Printf("ffb L=%.2f R=%.2f", l, r)
	}
}

// SubmitControls records the latest driver controls. In telemetry mode it
// also triggers a tick.
func (a *App) SubmitControls(c haptics.Controls) {
	a.controls.Publish(c, a.now())
	if a.cfg.TickSource != TickTelemetry {
		return
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// StartFFBTest injects a fixed feedback pattern for a short while, as if it
// came from the game, then releases it. A running test is restarted.
func (a *App) StartFFBTest() {
	a.ffbMu.Lock()
	if a.testCancel != nil {
		a.testCancel()
	}
	ctx, cancel := context.WithTimeout(a.baseCtx, a.testFor)
	a.testCancel = cancel
	every := a.testEvery
	a.ffbMu.Unlock()

	a.log.Printf("ffb test: L=%.1f R=%.1f for %s", ffbTestL, ffbTestR, a.testFor)
	go func() {
		defer cancel()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		a.InjectFFB(ffbTestL, ffbTestR)
		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					a.InjectFFB(0, 0)
				}
				return
			case <-ticker.C:
				a.InjectFFB(ffbTestL, ffbTestR)
			}
		}
	}()
}

func (a *App) toggleAudioFallback() {
	p, err := a.store.Update(func(p *params.Parameters) {
		p.Mixer.AudioFallback = !p.Mixer.AudioFallback
	})
	if err != nil {
		a.log.Printf("toggle audio fallback: %v", err)
		return
	}
	a.log.Printf("audio fallback -> %v", p.Mixer.AudioFallback)
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				events <- inputEventQuit
				return
			case char == 'q' || char == 'Q':
				events <- inputEventQuit
				return
			case char == 'f' || char == 'F':
				select {
				case events <- inputEventFFBTest:
				default:
				}
			case char == 'a' || char == 'A':
				select {
				case events <- inputEventToggleFallback:
				default:
				}
			}
		}
	}()
}

func (a *App) printStatusBar(f haptics.OutputFrame) {
	text := fmt.Sprintf("src=%-5s L=%.2f R=%.2f imp=%.2f trig=%.2f/%.2f aud=%.2f@%3.0fHz | %.0f Hz",
		f.Source, f.RumbleL, f.RumbleR, f.Impact, f.TrigL, f.TrigR, f.AudInt, f.AudHz, a.tickRate)
	if a.deviceLabel != "" {
		text = fmt.Sprintf("%s | in=%s", text, a.deviceLabel)
	}
	fmt.Print("\r" + statusBar(text, terminalWidth()))
}

func (a *App) clearStatusBar() {
	if a.cfg.ShowStatusBar {
		fmt.Print("\r" + strings.Repeat(" ", terminalWidth()) + "\r")
	}
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if fd < 0 {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 0
	}
	return w - 1
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	return text + strings.Repeat(" ", padding)
}
