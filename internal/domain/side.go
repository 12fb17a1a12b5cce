package domain

// Side is the direction of a trade from the wallet's point of view.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide maps the lower-case tx_type values used by the event views.
func ParseSide(v string) (Side, bool) {
	switch v {
	case "buy", "BUY":
		return SideBuy, true
	case "sell", "SELL":
		return SideSell, true
	default:
		return "", false
	}
}

// Market identifies the DEX program a trade was executed through.
type Market string

const (
	MarketPumpFun Market = "PumpFun"
	MarketRaydium Market = "Raydium"
	MarketUnknown Market = "Unknown"
)

// String returns the string representation of Market.
func (m Market) String() string {
	return string(m)
}
