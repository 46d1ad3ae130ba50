package structs

import "time"

type Phase string

const (
	PhaseFlat         Phase = "FLAT"
	PhaseEntryPending Phase = "ENTRY_PENDING"
	PhaseInPosition   Phase = "IN_POSITION"
	PhaseExitPending  Phase = "EXIT_PENDING"
)

// EngineStatus is a point in time view of one strategy engine.
type EngineStatus struct {
	Name       string    `json:"name"`
	Setting    string    `json:"setting"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	Phase      Phase     `json:"phase"`
	CloseOnly  bool      `json:"closeOnly"`
	Stopped    bool      `json:"stopped"`
	StopReason string    `json:"stopReason,omitempty"`
	Position   string    `json:"position"`
	EntryPrice string    `json:"entryPrice"`
	BuyOrder   string    `json:"buyOrder,omitempty"`
	SellOrder  string    `json:"sellOrder,omitempty"`
	StopLoss   string    `json:"stopLoss,omitempty"`
	Wallet     string    `json:"internalWallet"`
	Floor      string    `json:"internalWalletFloor"`
	TradeID    int64     `json:"tradeId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
