package solana

import "context"

// Program IDs of the DEX programs the watcher subscribes to.
const (
	PumpFunProgramID    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	RaydiumAMMProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
)

// Well-known quote mints.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Commitment levels accepted by the RPC node.
const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient defines the JSON-RPC calls the ingestion path needs.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	// Returns nil, nil when the node does not have it yet.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a Solana transaction with the fields needed to
// derive token balance changes.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix seconds, 0 when unknown
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	// LoadedWritable and LoadedReadonly are address-lookup-table keys
	// appended after the static account keys in v0 transactions.
	LoadedWritable []string
	LoadedReadonly []string
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw integer amount as a decimal string
	Decimals     int
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []Instruction
}

// Instruction is a compiled top-level instruction.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
}

// Failed reports whether the transaction errored on chain.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}

// AccountKeys returns static keys followed by loaded writable and readonly
// keys, the order instruction indexes refer to.
func (tx *Transaction) AccountKeys() []string {
	if tx.Message == nil {
		return nil
	}
	keys := tx.Message.AccountKeys
	if tx.Meta == nil || len(tx.Meta.LoadedWritable)+len(tx.Meta.LoadedReadonly) == 0 {
		return keys
	}
	all := make([]string, 0, len(keys)+len(tx.Meta.LoadedWritable)+len(tx.Meta.LoadedReadonly))
	all = append(all, keys...)
	all = append(all, tx.Meta.LoadedWritable...)
	all = append(all, tx.Meta.LoadedReadonly...)
	return all
}
