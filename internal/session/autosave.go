package session

import (
	"sync"
	"time"
)

// DefaultAutoSaveInterval is the quiet period between the last edit and the
// draft write.
const DefaultAutoSaveInterval = 30 * time.Second

// AutoSaveConfig controls debounced draft persistence.
type AutoSaveConfig struct {
	Enabled  bool
	Interval time.Duration
}

type autoSaveState int

const (
	autoSaveIdle autoSaveState = iota
	autoSaveScheduled
	autoSaveSaving
)

// autoSaveScheduler debounces draft writes: every edit restarts the wait, so
// a burst of edits collapses into a single write of the latest data. State is
// per controller instance, never process-wide.
type autoSaveScheduler struct {
	save  func()
	dirty func() bool

	mu       sync.Mutex
	state    autoSaveState
	enabled  bool
	interval time.Duration
	timer    *time.Timer
}

func newAutoSaveScheduler(cfg AutoSaveConfig, save func(), dirty func() bool) *autoSaveScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	return &autoSaveScheduler{
		save:     save,
		dirty:    dirty,
		enabled:  cfg.Enabled,
		interval: interval,
	}
}

// noteEdit schedules a save, or restarts the wait when one is already
// scheduled. Edits during an in-flight save are picked up by the completion
// recheck instead of racing it.
func (s *autoSaveScheduler) noteEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.state == autoSaveSaving {
		return
	}
	if s.state == autoSaveScheduled {
		s.timer.Reset(s.interval)
		return
	}
	s.state = autoSaveScheduled
	s.timer = time.AfterFunc(s.interval, s.fire)
}

func (s *autoSaveScheduler) fire() {
	s.mu.Lock()
	if !s.enabled || s.state != autoSaveScheduled {
		s.mu.Unlock()
		return
	}
	if !s.dirty() {
		s.state = autoSaveIdle
		s.mu.Unlock()
		return
	}
	s.state = autoSaveSaving
	s.mu.Unlock()

	s.save()

	s.mu.Lock()
	s.state = autoSaveIdle
	reschedule := s.enabled && s.dirty()
	s.mu.Unlock()
	if reschedule {
		s.noteEdit()
	}
}

func (s *autoSaveScheduler) setEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if !enabled {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.state == autoSaveScheduled {
			s.state = autoSaveIdle
		}
	}
}
