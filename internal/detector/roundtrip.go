package detector

import (
	"slices"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/window"
)

// RoundTripConfig configures the kill-follow detector.
type RoundTripConfig struct {
	MaxHold   time.Duration
	MinTokens int // distinct mints before a wallet is reported
}

// DefaultRoundTripConfig returns the production thresholds.
func DefaultRoundTripConfig() RoundTripConfig {
	return RoundTripConfig{
		MaxHold:   30 * time.Second,
		MinTokens: 2,
	}
}

// Validate checks thresholds.
func (c RoundTripConfig) Validate() error {
	if c.MaxHold <= 0 {
		return ErrInvalidWindow
	}
	if c.MinTokens < 1 {
		return ErrInvalidSightings
	}
	return nil
}

// RoundTrip is one buy matched with the first qualifying sell.
type RoundTrip struct {
	Mint string
	Buy  time.Time
	Sell time.Time
}

// Hold returns the holding time.
func (r RoundTrip) Hold() time.Duration {
	return r.Sell.Sub(r.Buy)
}

// RoundTripReport lists a wallet's round trips.
type RoundTripReport struct {
	Wallet string
	Mints  []string // distinct, sorted
	Trips  []RoundTrip
}

// FastestHold returns the shortest hold across trips.
func (r RoundTripReport) FastestHold() time.Duration {
	var best time.Duration
	for i, t := range r.Trips {
		if i == 0 || t.Hold() < best {
			best = t.Hold()
		}
	}
	return best
}

// RoundTripDetector finds buy-then-sell pairs inside a holding ceiling.
type RoundTripDetector struct {
	cfg RoundTripConfig
}

// NewRoundTripDetector creates a detector.
func NewRoundTripDetector(cfg RoundTripConfig) (*RoundTripDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RoundTripDetector{cfg: cfg}, nil
}

// Match returns the round trips in one wallet's events on one mint. Each buy
// pairs with the first sell where 0 < dt <= MaxHold, and only that one.
func (d *RoundTripDetector) Match(events []domain.TradeEvent) []RoundTrip {
	if !window.IsSorted(events) {
		events = slices.Clone(events)
		window.SortByTime(events)
	}

	var trips []RoundTrip
	for i, buy := range events {
		if !buy.IsBuy() {
			continue
		}
		for _, sell := range events[i+1:] {
			if !sell.IsSell() {
				continue
			}
			dt := sell.Timestamp.Sub(buy.Timestamp)
			if dt <= 0 {
				continue
			}
			if dt > d.cfg.MaxHold {
				break
			}
			trips = append(trips, RoundTrip{Mint: buy.Mint, Buy: buy.Timestamp, Sell: sell.Timestamp})
			break
		}
	}
	return trips
}

// DetectWallet analyses one wallet's events across mints. It reports the
// wallet only if round trips span at least MinTokens distinct mints.
func (d *RoundTripDetector) DetectWallet(wallet string, events []domain.TradeEvent) (RoundTripReport, bool) {
	byMint := window.GroupBy(events, func(e domain.TradeEvent) string { return e.Mint })

	mints := make([]string, 0, len(byMint))
	for m := range byMint {
		mints = append(mints, m)
	}
	slices.Sort(mints)

	report := RoundTripReport{Wallet: wallet}
	for _, m := range mints {
		trips := d.Match(byMint[m])
		if len(trips) == 0 {
			continue
		}
		report.Mints = append(report.Mints, m)
		report.Trips = append(report.Trips, trips...)
	}

	return report, len(report.Mints) >= d.cfg.MinTokens
}

// Detect partitions events by wallet and returns reports sorted by wallet.
func (d *RoundTripDetector) Detect(events []domain.TradeEvent) []RoundTripReport {
	byWallet := window.GroupBy(events, func(e domain.TradeEvent) string { return e.Wallet })

	wallets := make([]string, 0, len(byWallet))
	for w := range byWallet {
		wallets = append(wallets, w)
	}
	slices.Sort(wallets)

	var out []RoundTripReport
	for _, w := range wallets {
		if r, ok := d.DetectWallet(w, byWallet[w]); ok {
			out = append(out, r)
		}
	}
	return out
}
