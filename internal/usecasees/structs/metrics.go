package structs

type MetricConst string

const (
	MetricOrderPlaced         MetricConst = "flushbot_orders_placed_total"
	MetricOrderFilled         MetricConst = "flushbot_orders_filled_total"
	MetricStopLossFilled      MetricConst = "flushbot_stop_loss_filled_total"
	MetricRiskBreach          MetricConst = "flushbot_risk_breaches_total"
	MetricExchangeRetry       MetricConst = "flushbot_exchange_retries_total"
	MetricInternalWallet      MetricConst = "flushbot_internal_wallet"
	MetricInternalWalletFloor MetricConst = "flushbot_internal_wallet_floor"
	MetricEngineStopped       MetricConst = "flushbot_engine_stopped"
)

func (m MetricConst) ToString() string {
	return string(m)
}
