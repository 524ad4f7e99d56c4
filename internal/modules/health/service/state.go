package service

import (
	"sort"
	"sync/atomic"
	"time"

	"turtle_bot/internal/models"
)

// Ledger и Pipeline: то, что health спрашивает у движка.
type Ledger interface {
	Positions() []models.Position
	Halted(instrumentID string) bool
}

type Pipeline interface {
	LastEvent() time.Time
	Dropped() int64
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected atomic.Bool

	ledger   Ledger
	pipeline Pipeline
}

func NewState(ledger Ledger, pipeline Pipeline) *State {
	return &State{startedAt: time.Now(), ledger: ledger, pipeline: pipeline}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) LastTick() time.Time {
	if s.pipeline == nil {
		return time.Time{}
	}
	return s.pipeline.LastEvent()
}

func (s *State) Dropped() int64 {
	if s.pipeline == nil {
		return 0
	}
	return s.pipeline.Dropped()
}

// Halted: остановленные инструменты среди известных леджеру, по алфавиту.
func (s *State) Halted() []string {
	if s.ledger == nil {
		return nil
	}
	var out []string
	for _, p := range s.ledger.Positions() {
		if s.ledger.Halted(p.InstrumentID) {
			out = append(out, p.InstrumentID)
		}
	}
	sort.Strings(out)
	return out
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
