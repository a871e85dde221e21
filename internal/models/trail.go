package models

import "time"

type TrailPhase string

const (
	PhaseUnarmed TrailPhase = "UNARMED"
	PhaseArmed   TrailPhase = "ARMED"
	PhaseClosed  TrailPhase = "CLOSED"
)

// TrailState is owned by exactly one trailing machine for the life of a position.
type TrailState struct {
	Symbol           string
	Side             Side
	Entry            float64
	InitialStop      float64
	CurrentStop      float64
	Contracts        float64
	ContractSize     float64
	ActivationR      float64
	TrailATRMultiple float64

	Phase     TrailPhase
	StopOrder OrderRef

	HighWater   float64
	LowWater    float64
	LastPrice   float64
	LastR       float64
	LastMovedAt time.Time
	OpenedAt    time.Time
	Moves       int
	Halted      bool
}

func (s TrailState) Armed() bool { return s.Phase == PhaseArmed }

// RiskDistance is 1R measured from the initial stop.
func (s TrailState) RiskDistance() float64 {
	d := s.Entry - s.InitialStop
	if d < 0 {
		return -d
	}
	return d
}

// RMultiple converts a price into profit measured in R, sign-adjusted for side.
func (s TrailState) RMultiple(price float64) float64 {
	r := s.RiskDistance()
	if r <= 0 {
		return 0
	}
	return s.Side.Sign() * (price - s.Entry) / r
}

// Improves reports whether candidate is strictly more favorable than the current stop.
func (s TrailState) Improves(candidate float64) bool {
	if s.Side == Short {
		return candidate < s.CurrentStop
	}
	return candidate > s.CurrentStop
}
