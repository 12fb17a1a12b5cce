// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"solana-leader-lab/internal/domain"
)

// ComputeAlertID computes a deterministic alert_id using SHA256.
// Formula: SHA256(strategy|wallet|votes|total_votes|sorted_mints|sorted_members)
// Returns hex-encoded hash (64 characters).
//
// The run time is not part of the hash: a later batch run that derives the
// same finding maps to the already stored alert.
func ComputeAlertID(
	strategy string,
	wallet string,
	votes int,
	totalVotes int,
	mints []string,
	members []string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s|%s",
		strategy,
		wallet,
		votes,
		totalVotes,
		sortedJoin(mints),
		sortedJoin(members),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func sortedJoin(s []string) string {
	sorted := slices.Clone(s)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// AssignAlertID replaces a's random ID with its content-derived ID.
func AssignAlertID(a *domain.Alert) {
	a.ID = ComputeAlertID(a.Strategy, a.Wallet, a.Votes, a.TotalVotes, a.Evidence.Mints, a.Evidence.Members)
}
