package domain

import "time"

// TradeEvent is a normalized on-chain trade consumed by every detector.
// Values are immutable once created; detectors copy, never mutate.
type TradeEvent struct {
	Timestamp   time.Time // UTC
	Wallet      string    // trader address (token account owner)
	Mint        string    // token mint address
	Amount      uint64    // raw token units
	Side        Side
	Market      Market
	TxSignature string // empty for batch rows without provenance
	Slot        int64
}

// Time implements window.Timestamped.
func (e TradeEvent) Time() time.Time {
	return e.Timestamp
}

// IsBuy reports whether the event is a buy.
func (e TradeEvent) IsBuy() bool {
	return e.Side == SideBuy
}

// IsSell reports whether the event is a sell.
func (e TradeEvent) IsSell() bool {
	return e.Side == SideSell
}
