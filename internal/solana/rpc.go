// Package solana provides a minimal Solana JSON-RPC client covering the
// calls the vote tracker needs: wallet history, transaction lookup and
// token balances.
package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface.
type RPCClient interface {
	// GetTransaction retrieves a parsed transaction by signature.
	// Returns nil if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTokenAccountsByOwner retrieves all SPL token balances held by an owner.
	GetTokenAccountsByOwner(ctx context.Context, owner string) ([]TokenBalance, error)
}

// Transaction represents a parsed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Failed    bool  // true when meta.err is set
	Memo      string
	Transfers []TokenTransfer
}

// TokenTransfer is one SPL token movement inside a transaction
// (transfer or transferChecked instruction).
type TokenTransfer struct {
	Source      string // source token account
	Destination string // destination token account
	Authority   string // owner wallet authorizing the transfer
	Mint        string // empty for plain transfer instructions
	Amount      uint64 // base units
	Decimals    int    // 0 when the instruction carries no decimals
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// TokenBalance is one SPL token holding of a wallet.
type TokenBalance struct {
	Address  string // token account holding the balance
	Mint     string
	Amount   uint64 // base units
	Decimals int
	UIAmount float64
}
