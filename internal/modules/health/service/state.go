package service

import (
	"sync"
	"sync/atomic"
	"time"

	"trade_guard/internal/models"
)

// State is what the probes report. The trailing machine pushes its
// snapshot here after every iteration.
type State struct {
	ready     atomic.Bool
	startedAt time.Time
	now       func() time.Time

	mu        sync.RWMutex
	trail     *models.TrailState
	lastTrail time.Time
}

func NewState() *State {
	return &State{startedAt: time.Now(), now: time.Now}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

// Ready is false before startup completes and while a trail is halted.
func (s *State) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	t, _ := s.Trail()
	return t == nil || !t.Halted
}

func (s *State) ReportTrail(st models.TrailState) {
	s.mu.Lock()
	s.trail = &st
	s.lastTrail = s.now()
	s.mu.Unlock()
}

// Trail returns the last reported snapshot and when it arrived.
func (s *State) Trail() (*models.TrailState, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trail == nil {
		return nil, time.Time{}
	}
	cp := *s.trail
	return &cp, s.lastTrail
}

func (s *State) Uptime() time.Duration { return s.now().Sub(s.startedAt) }
