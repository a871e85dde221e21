package service

// envelope is the common OKX v5 response shape.
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// ack is the per-item result of trade endpoints.
type ack struct {
	OrdID  string `json:"ordId"`
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

type Instrument struct {
	InstID    string `json:"instId"`
	TickSz    string `json:"tickSz"`
	LotSz     string `json:"lotSz"`
	MinSz     string `json:"minSz"`
	CtVal     string `json:"ctVal"`
	CtMult    string `json:"ctMult"`
	CtType    string `json:"ctType"` // linear | inverse
	CtValCcy  string `json:"ctValCcy"`
	SettleCcy string `json:"settleCcy"`
	Lever     string `json:"lever"`
	State     string `json:"state"`
	MaxMktSz  string `json:"maxMktSz"`
}

type okxTicker struct {
	InstType string `json:"instType"`
	InstID   string `json:"instId"`
	Last     string `json:"last"`
	High24h  string `json:"high24h"`
	Low24h   string `json:"low24h"`
	VolCcy24 string `json:"volCcy24h"`
	Ts       string `json:"ts"`
}

type okxPosition struct {
	InstID  string `json:"instId"`
	PosSide string `json:"posSide"` // long | short | net
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	MarkPx  string `json:"markPx"`
	Upl     string `json:"upl"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}

type okxBalance struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy      string `json:"ccy"`
		Eq       string `json:"eq"`
		AvailBal string `json:"availBal"`
		AvailEq  string `json:"availEq"`
	} `json:"details"`
}

type okxAlgoOrder struct {
	AlgoID      string `json:"algoId"`
	InstID      string `json:"instId"`
	Side        string `json:"side"`
	PosSide     string `json:"posSide"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	SlTriggerPx string `json:"slTriggerPx"`
	TpTriggerPx string `json:"tpTriggerPx"`
	ReduceOnly  string `json:"reduceOnly"`
	State       string `json:"state"`
}

type okxOrder struct {
	OrdID      string `json:"ordId"`
	InstID     string `json:"instId"`
	Side       string `json:"side"`
	PosSide    string `json:"posSide"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px"`
	ReduceOnly string `json:"reduceOnly"`
	State      string `json:"state"`
}
