// Package attribution turns detector matches into leader verdicts.
package attribution

import (
	"slices"
)

// Candidate is the winner of a vote tally.
type Candidate struct {
	Address    string
	Votes      int
	TotalVotes int
}

// Majority reports whether the candidate holds a strict majority.
// Exactly half is not enough.
func (c Candidate) Majority() bool {
	return c.TotalVotes > 0 && c.Votes*2 > c.TotalVotes
}

// Ratio returns votes / totalVotes, or 0 for an empty tally.
func (c Candidate) Ratio() float64 {
	if c.TotalVotes == 0 {
		return 0
	}
	return float64(c.Votes) / float64(c.TotalVotes)
}

// Tally counts votes and returns the max-count address.
// Ties go to the lexicographically smallest address.
func Tally(votes []string) (Candidate, bool) {
	if len(votes) == 0 {
		return Candidate{}, false
	}

	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v]++
	}

	addrs := make([]string, 0, len(counts))
	for a := range counts {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)

	best := addrs[0]
	for _, a := range addrs[1:] {
		if counts[a] > counts[best] {
			best = a
		}
	}

	return Candidate{
		Address:    best,
		Votes:      counts[best],
		TotalVotes: len(votes),
	}, true
}
