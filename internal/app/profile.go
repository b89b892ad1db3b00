package app

import (
	"encoding/csv"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/guidoenr/hapticbridge/internal/haptics"
)

// tickStage names the timed parts of one control tick.
type tickStage int

const (
	stageInputs tickStage = iota
	stageMix
	stageDeliver
	stageCount
)

var profileHeader = []string{
	"timestamp", "tick", "source", "gate_open", "dt_ms", "dt_clamped",
	"inputs_ms", "mix_ms", "deliver_ms", "total_ms",
}

// tickSample is what the tick loop reports once a tick is done.
type tickSample struct {
	Tick     uint64
	Source   haptics.Source
	GateOpen bool
	Dt       float64
}

// profiler writes one CSV row per control tick: which source drove the
// output, whether the audio gate was open, the raw tick length and how long
// each stage took. A nil profiler is a no-op.
type profiler struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	logger *log.Logger

	start  time.Time
	last   time.Time
	stages [stageCount]time.Duration

	rows       int
	clampHits  int
	realTicks  int
	audioTicks int
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{file: f, w: csv.NewWriter(f), logger: logger}
	_ = p.w.Write(profileHeader)
	if logger != nil {
		logger.Printf("profiling ticks to %s", path)
	}
	return p
}

func (p *profiler) beginTick() {
	if p == nil {
		return
	}
	now := time.Now()
	p.start = now
	p.last = now
	p.stages = [stageCount]time.Duration{}
}

func (p *profiler) mark(s tickStage) {
	if p == nil {
		return
	}
	now := time.Now()
	p.stages[s] += now.Sub(p.last)
	p.last = now
}

func (p *profiler) endTick(s tickSample) {
	if p == nil {
		return
	}
	total := time.Since(p.start)
	clamped := haptics.DtClamped(s.Dt)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	p.rows++
	if clamped {
		p.clampHits++
	}
	switch s.Source {
	case haptics.SourceReal:
		p.realTicks++
	case haptics.SourceAudio:
		p.audioTicks++
	}
	_ = p.w.Write([]string{
		time.Now().Format(time.RFC3339Nano),
		strconv.FormatUint(s.Tick, 10),
		string(s.Source),
		strconv.FormatBool(s.GateOpen),
		msString(time.Duration(s.Dt * float64(time.Second))),
		strconv.FormatBool(clamped),
		msString(p.stages[stageInputs]),
		msString(p.stages[stageMix]),
		msString(p.stages[stageDeliver]),
		msString(total),
	})
}

// Close flushes the CSV and logs a one-line summary of the run.
func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	p.w.Flush()
	err := p.w.Error()
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	p.file = nil
	if p.logger != nil {
		p.logger.Printf("profiled %d ticks: real=%d audio=%d dt clamped=%d",
			p.rows, p.realTicks, p.audioTicks, p.clampHits)
	}
	return err
}

func msString(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}
