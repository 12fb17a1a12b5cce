package detector

import (
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/window"
)

// FastSellConfig configures the streaming fast-sell detector.
type FastSellConfig struct {
	Window time.Duration // max buy-to-sell holding time
	// Retention bounds each wallet's history. Zero keeps the full history.
	Retention time.Duration
}

// DefaultFastSellConfig returns the production thresholds.
func DefaultFastSellConfig() FastSellConfig {
	return FastSellConfig{Window: 30 * time.Second}
}

// Validate checks thresholds.
func (c FastSellConfig) Validate() error {
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.Retention < 0 || (c.Retention > 0 && c.Retention < c.Window) {
		return ErrInvalidWindow
	}
	return nil
}

// FastSell is a sell that closed a recent buy on the same mint.
type FastSell struct {
	Wallet string
	Mint   string
	Buy    time.Time
	Sell   time.Time
}

// Hold returns the holding time.
func (f FastSell) Hold() time.Duration {
	return f.Sell.Sub(f.Buy)
}

// FastSellDetector keeps per-wallet trade history and reports sells that
// follow a buy on the same mint within the window. Not safe for concurrent
// use.
type FastSellDetector struct {
	cfg     FastSellConfig
	history *window.Keyed[string, domain.TradeEvent]
}

// NewFastSellDetector creates a detector.
func NewFastSellDetector(cfg FastSellConfig) (*FastSellDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FastSellDetector{
		cfg:     cfg,
		history: window.NewKeyed[string, domain.TradeEvent](cfg.Retention),
	}, nil
}

// Observe records e and, for a sell, returns the first earlier buy in the
// wallet's history on the same mint with 0 < dt <= Window.
func (d *FastSellDetector) Observe(e domain.TradeEvent) (FastSell, bool) {
	var (
		match FastSell
		found bool
	)

	if e.IsSell() {
		if h := d.history.Get(e.Wallet); h != nil {
			for past := range h.All() {
				if !past.IsBuy() || past.Mint != e.Mint {
					continue
				}
				dt := e.Timestamp.Sub(past.Timestamp)
				if dt > 0 && dt <= d.cfg.Window {
					match = FastSell{Wallet: e.Wallet, Mint: e.Mint, Buy: past.Timestamp, Sell: e.Timestamp}
					found = true
					break
				}
			}
		}
	}

	d.history.PushAndPrune(e.Wallet, e, e.Timestamp)
	return match, found
}

// Prune drops history older than Retention across all wallets, including
// wallets that have gone quiet, and returns the number of events removed.
// A zero Retention keeps everything.
func (d *FastSellDetector) Prune(now time.Time) int {
	if d.cfg.Retention <= 0 {
		return 0
	}
	return d.history.Prune(now)
}

// Wallets returns the number of wallets with history.
func (d *FastSellDetector) Wallets() int {
	return d.history.Len()
}

// HistoryLen returns the number of events held for wallet.
func (d *FastSellDetector) HistoryLen(wallet string) int {
	if h := d.history.Get(wallet); h != nil {
		return h.Len()
	}
	return 0
}
