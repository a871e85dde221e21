package models

type TakeProfitLevel struct {
	RMultiple    float64
	Price        float64
	SizeFraction float64
	GrossPnL     float64
	Fees         float64
	NetPnL       float64
}

type PositionPlan struct {
	Symbol         string
	Side           Side
	Entry          float64
	Stop           float64
	TakeProfits    []TakeProfitLevel
	Contracts      float64
	Leverage       int
	ContractSize   float64
	Notional       float64
	MarginRequired float64
	RiskAmount     float64 // budgeted risk
	ActualRisk     float64 // loss at the stop for the floored size
	RoundTripFees  float64
	Warnings       []string
}

// StopDistance is the absolute entry-to-stop distance (1R in price).
func (p PositionPlan) StopDistance() float64 {
	d := p.Entry - p.Stop
	if d < 0 {
		return -d
	}
	return d
}
