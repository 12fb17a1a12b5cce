// Package verification checks that the batch group replay reproduces the
// alerts the streaming co-occurrence engine raises over the same trades.
package verification

import (
	"math"
	"slices"

	"solana-leader-lab/internal/domain"
)

// FloatTolerance is the tolerance for confidence comparisons.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between streamed and replayed values.
type FieldDivergence struct {
	Index    int    // alert position; -1 for count mismatches
	Field    string // field name
	Expected any    // streamed value
	Actual   any    // replayed value
}

// CompareAlerts compares two alert sequences position by position. IDs and
// strategy names are ignored; everything an operator would read is not.
func CompareAlerts(streamed, replayed []*domain.Alert) []FieldDivergence {
	var divergences []FieldDivergence

	if len(streamed) != len(replayed) {
		divergences = append(divergences, FieldDivergence{
			Index:    -1,
			Field:    "Count",
			Expected: len(streamed),
			Actual:   len(replayed),
		})
	}

	n := min(len(streamed), len(replayed))
	for i := 0; i < n; i++ {
		divergences = append(divergences, compareAlert(i, streamed[i], replayed[i])...)
	}
	return divergences
}

func compareAlert(i int, s, r *domain.Alert) []FieldDivergence {
	var d []FieldDivergence
	add := func(field string, expected, actual any) {
		d = append(d, FieldDivergence{Index: i, Field: field, Expected: expected, Actual: actual})
	}

	if s.Wallet != r.Wallet {
		add("Wallet", s.Wallet, r.Wallet)
	}
	if s.Votes != r.Votes {
		add("Votes", s.Votes, r.Votes)
	}
	if s.TotalVotes != r.TotalVotes {
		add("TotalVotes", s.TotalVotes, r.TotalVotes)
	}
	if math.Abs(s.Confidence-r.Confidence) > FloatTolerance {
		add("Confidence", s.Confidence, r.Confidence)
	}
	if !s.Timestamp.Equal(r.Timestamp) {
		add("Timestamp", s.Timestamp, r.Timestamp)
	}
	if !slices.Equal(s.Evidence.Members, r.Evidence.Members) {
		add("Members", s.Evidence.Members, r.Evidence.Members)
	}
	if !slices.Equal(s.Evidence.Mints, r.Evidence.Mints) {
		add("Mints", s.Evidence.Mints, r.Evidence.Mints)
	}
	return d
}
