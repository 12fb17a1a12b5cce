package ingestion

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	"solana-leader-lab/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents orders events by (timestamp, slot, tx_signature, wallet, mint).
// Replays use it so identical histories produce identical alerts.
func SortEvents(events []domain.TradeEvent) {
	slices.SortStableFunc(events, CompareEvents)
}

// ValidateOrdering checks that events are strictly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []domain.TradeEvent) error {
	for i := 1; i < len(events); i++ {
		if CompareEvents(events[i-1], events[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// CompareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (timestamp ASC, slot ASC, tx_signature ASC, wallet ASC, mint ASC)
func CompareEvents(a, b domain.TradeEvent) int {
	return cmp.Or(
		a.Timestamp.Compare(b.Timestamp),
		cmp.Compare(a.Slot, b.Slot),
		strings.Compare(a.TxSignature, b.TxSignature),
		strings.Compare(a.Wallet, b.Wallet),
		strings.Compare(a.Mint, b.Mint),
	)
}
