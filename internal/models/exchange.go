package models

type Position struct {
	Symbol        string
	Side          Side
	Contracts     float64
	Entry         float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      int
}

// MarketMeta is the exchange contract specification for one symbol.
type MarketMeta struct {
	Symbol        string
	ContractSize  float64 // underlying units per contract
	MaxLeverage   int
	TickSize      float64
	LotSize       float64
	MinSize       float64
	MaxMarketSize float64
	SettleCcy     string
}

type OrderType string

const (
	OrderMarket     OrderType = "market"
	OrderLimit      OrderType = "limit"
	OrderStop       OrderType = "stop"
	OrderTakeProfit OrderType = "take_profit" // trigger-only TP, read back from the exchange
)

// OrderRequest describes an order in position terms: Side is the side of the
// position the order opens or protects.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Amount     float64
	Price      float64
	StopPrice  float64
	ReduceOnly bool
	Leverage   int
}

// OrderRef identifies an order on the exchange. Algo marks conditional
// orders, which live in a separate book on some venues.
type OrderRef struct {
	ID   string
	Algo bool
}

func (r OrderRef) Empty() bool { return r.ID == "" }

type Order struct {
	Ref        OrderRef
	Symbol     string
	Side       Side
	Type       OrderType
	Amount     float64
	Price      float64
	StopPrice  float64
	ReduceOnly bool
}
