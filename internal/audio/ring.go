package audio

import "sync"

// ring is a mono sample window fed by the stream callback and read by the
// analysis loop.
type ring struct {
	mu     sync.RWMutex
	buffer []float32
	index  int
	mono   []float32
}

func newRing(size int) *ring {
	return &ring{buffer: make([]float32, size)}
}

// write downmixes interleaved frames to mono and appends them.
func (r *ring) write(in []float32, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if channels <= 1 {
		r.mixIntoBuffer(in)
		return
	}

	frames := len(in) / channels
	if cap(r.mono) < frames {
		r.mono = make([]float32, frames)
	}
	mono := r.mono[:frames]
	for i := range mono {
		sum := float32(0)
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += in[base+ch]
		}
		mono[i] = sum / float32(channels)
	}
	r.mixIntoBuffer(mono)
}

func (r *ring) mixIntoBuffer(in []float32) {
	if len(in) == 0 {
		return
	}

	if len(in) >= len(r.buffer) {
		copy(r.buffer, in[len(in)-len(r.buffer):])
		r.index = 0
		return
	}

	if r.index+len(in) <= len(r.buffer) {
		copy(r.buffer[r.index:], in)
		r.index += len(in)
		if r.index == len(r.buffer) {
			r.index = 0
		}
		return
	}

	remaining := len(r.buffer) - r.index
	copy(r.buffer[r.index:], in[:remaining])
	copy(r.buffer, in[remaining:])
	r.index = len(in) - remaining
}

// snapshotInto copies the window oldest-first into dst, growing it only when
// it is too small.
func (r *ring) snapshotInto(dst []float32) []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.buffer)
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	copy(dst, r.buffer[r.index:])
	copy(dst[n-r.index:], r.buffer[:r.index])
	return dst
}
