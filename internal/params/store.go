package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

var (
	// ErrNilUpdate is returned when Update is called without a mutator.
	ErrNilUpdate = errors.New("params: nil update func")
	// ErrInvalidPatch wraps decode failures in Patch, including unknown keys.
	ErrInvalidPatch = errors.New("params: invalid patch")
)

// Store publishes Parameters snapshots. Readers get a pointer to an
// immutable copy; writers build a new copy and swap it in, so a control tick
// never observes a half-applied update.
type Store struct {
	cur atomic.Pointer[Parameters]
}

// NewStore returns a Store seeded with the sanitised initial parameters.
func NewStore(initial Parameters) *Store {
	s := &Store{}
	p := initial.Sanitize()
	s.cur.Store(&p)
	return s
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *Parameters {
	return s.cur.Load()
}

// Replace swaps in a whole new parameter set.
func (s *Store) Replace(p Parameters) Parameters {
	p = p.Sanitize()
	s.cur.Store(&p)
	return p
}

// Update applies fn to a copy of the current snapshot and publishes the
// sanitised result. Concurrent updates are retried so none is lost.
func (s *Store) Update(fn func(*Parameters)) (Parameters, error) {
	if fn == nil {
		return Parameters{}, ErrNilUpdate
	}
	for {
		old := s.cur.Load()
		next := *old
		fn(&next)
		next = next.Sanitize()
		if s.cur.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}

// Patch merges a partial JSON document onto the current snapshot. Keys that
// are absent keep their value; unknown keys reject the whole patch.
func (s *Store) Patch(data []byte) (Parameters, error) {
	check := *s.Load()
	if err := decodeStrict(data, &check); err != nil {
		return Parameters{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return s.Update(func(p *Parameters) {
		_ = decodeStrict(data, p)
	})
}

func decodeStrict(data []byte, p *Parameters) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(p)
}

// Save writes the current parameters as indented JSON, replacing path
// atomically via a temp file.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s.Load(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace params: %w", err)
	}
	return nil
}

// Load reads parameters from path. Fields missing from the file keep their
// defaults.
func Load(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, err
	}
	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return p.Sanitize(), nil
}

// DefaultPath returns the config location next to the binary, falling back
// to the user's home directory.
func DefaultPath() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "hapticbridge-config.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hapticbridge-config.json")
}
