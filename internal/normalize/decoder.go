// Package normalize turns raw Solana transactions into TradeEvents.
package normalize

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/solana"
)

// Policy selects which balance changes become events.
type Policy int

const (
	// QuoteLegBuys emits only buys: a positive non-WSOL delta whose owner
	// also spent WSOL or USDC in the same transaction.
	QuoteLegBuys Policy = iota
	// AllDeltas emits every non-WSOL delta, positive as buy and negative
	// as sell.
	AllDeltas
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case QuoteLegBuys:
		return "quote_leg_buys"
	case AllDeltas:
		return "all_deltas"
	default:
		return "unknown"
	}
}

// Decoder extracts trade events from token balance changes.
type Decoder struct {
	policy        Policy
	dropOffCurve  bool
	validateAddrs bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithDropOffCurveOwners skips owners that are not ed25519 points (program
// derived addresses such as pool authorities).
func WithDropOffCurveOwners(drop bool) Option {
	return func(d *Decoder) {
		d.dropOffCurve = drop
	}
}

// WithAddressValidation rejects transactions with owners or mints that are
// not 32-byte base58 keys.
func WithAddressValidation(validate bool) Option {
	return func(d *Decoder) {
		d.validateAddrs = validate
	}
}

// NewDecoder creates a decoder.
func NewDecoder(policy Policy, opts ...Option) *Decoder {
	d := &Decoder{policy: policy, validateAddrs: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the decoder policy.
func (d *Decoder) Policy() Policy {
	return d.policy
}

type balanceKey struct {
	owner string
	mint  string
}

type delta struct {
	pre  uint64
	post uint64
}

// Decode returns the trade events in tx, ordered by owner then mint.
// Events are stamped with the block time, or received when the block time
// is unknown. A transaction with no qualifying changes yields no events and
// no error.
func (d *Decoder) Decode(tx *solana.Transaction, received time.Time) ([]domain.TradeEvent, error) {
	if tx == nil {
		return nil, malformed("", ReasonNilTransaction, nil)
	}
	if tx.Meta == nil {
		return nil, malformed(tx.Signature, ReasonMissingMeta, nil)
	}
	if tx.Message == nil {
		return nil, malformed(tx.Signature, ReasonMissingMessage, nil)
	}
	if tx.Failed() {
		return nil, &DecodeError{Signature: tx.Signature, Reason: ReasonFailed, Err: ErrFailedTransaction}
	}

	changes, err := d.balanceChanges(tx)
	if err != nil {
		return nil, err
	}

	ts := received.UTC()
	if tx.BlockTime > 0 {
		ts = time.Unix(tx.BlockTime, 0).UTC()
	}
	market := DetectMarket(tx)

	keys := make([]balanceKey, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b balanceKey) int {
		return cmp.Or(strings.Compare(a.owner, b.owner), strings.Compare(a.mint, b.mint))
	})

	var events []domain.TradeEvent
	for _, k := range keys {
		if k.mint == solana.WSOLMint {
			continue
		}
		ch := changes[k]

		var (
			side   domain.Side
			amount uint64
		)
		switch {
		case ch.post > ch.pre:
			side, amount = domain.SideBuy, ch.post-ch.pre
		case ch.pre > ch.post:
			side, amount = domain.SideSell, ch.pre-ch.post
		default:
			continue
		}

		if d.policy == QuoteLegBuys {
			if side != domain.SideBuy || !spentQuote(changes, k.owner) {
				continue
			}
		}
		if d.dropOffCurve && !IsOnCurve(k.owner) {
			continue
		}

		events = append(events, domain.TradeEvent{
			Timestamp:   ts,
			Wallet:      k.owner,
			Mint:        k.mint,
			Amount:      amount,
			Side:        side,
			Market:      market,
			TxSignature: tx.Signature,
			Slot:        tx.Slot,
		})
	}
	return events, nil
}

func (d *Decoder) balanceChanges(tx *solana.Transaction) (map[balanceKey]delta, error) {
	changes := make(map[balanceKey]delta)

	for _, b := range tx.Meta.PreTokenBalances {
		k, amt, skip, err := d.parseBalance(tx.Signature, b)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		ch := changes[k]
		ch.pre += amt
		changes[k] = ch
	}
	for _, b := range tx.Meta.PostTokenBalances {
		k, amt, skip, err := d.parseBalance(tx.Signature, b)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		ch := changes[k]
		ch.post += amt
		changes[k] = ch
	}
	return changes, nil
}

// parseBalance returns skip for entries without an owner, which older
// transactions omit.
func (d *Decoder) parseBalance(sig string, b solana.TokenBalance) (balanceKey, uint64, bool, error) {
	if b.Owner == "" || b.Mint == "" {
		return balanceKey{}, 0, true, nil
	}
	if d.validateAddrs {
		if !IsAddress(b.Owner) {
			return balanceKey{}, 0, false, malformed(sig, ReasonBadAddress, fmt.Errorf("owner %q", b.Owner))
		}
		if !IsAddress(b.Mint) {
			return balanceKey{}, 0, false, malformed(sig, ReasonBadAddress, fmt.Errorf("mint %q", b.Mint))
		}
	}
	amt, err := strconv.ParseUint(b.Amount, 10, 64)
	if err != nil {
		return balanceKey{}, 0, false, malformed(sig, ReasonBadAmount, err)
	}
	return balanceKey{owner: b.Owner, mint: b.Mint}, amt, false, nil
}

func spentQuote(changes map[balanceKey]delta, owner string) bool {
	for _, quote := range []string{solana.WSOLMint, solana.USDCMint} {
		if ch, ok := changes[balanceKey{owner: owner, mint: quote}]; ok && ch.post < ch.pre {
			return true
		}
	}
	return false
}

// DetectMarket identifies the DEX from the first top-level instruction that
// invokes a known program.
func DetectMarket(tx *solana.Transaction) domain.Market {
	if tx == nil || tx.Message == nil {
		return domain.MarketUnknown
	}
	keys := tx.AccountKeys()
	for _, ix := range tx.Message.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) {
			continue
		}
		switch keys[ix.ProgramIDIndex] {
		case solana.PumpFunProgramID:
			return domain.MarketPumpFun
		case solana.RaydiumAMMProgramID:
			return domain.MarketRaydium
		}
	}
	return domain.MarketUnknown
}

// IsAddress reports whether s is a base58 encoded 32-byte public key.
func IsAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// IsOnCurve reports whether the address is a valid ed25519 point. Program
// derived addresses are off the curve.
func IsOnCurve(addr string) bool {
	b, err := base58.Decode(addr)
	if err != nil || len(b) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}
