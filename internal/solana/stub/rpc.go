package stub

import (
	"context"
	"errors"

	"solana-vote-tracker/internal/solana"
)

// ErrUnavailable simulates a failing RPC endpoint.
var ErrUnavailable = errors.New("rpc unavailable")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Balances     map[string][]solana.TokenBalance

	// Fail makes every call return ErrUnavailable while set.
	Fail bool
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Balances:     make(map[string][]solana.TokenBalance),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetTransaction retrieves a transaction by signature from the stub store.
// Returns nil when unknown, matching the HTTP client's not-found behavior.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if c.Fail {
		return nil, ErrUnavailable
	}
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if c.Fail {
		return nil, ErrUnavailable
	}

	sigs := c.Signatures[address]

	if opts != nil && opts.Before != "" {
		for i, s := range sigs {
			if s.Signature == opts.Before {
				sigs = sigs[i+1:]
				break
			}
		}
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	return sigs, nil
}

// GetTokenAccountsByOwner retrieves token balances from the stub store.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner string) ([]solana.TokenBalance, error) {
	if c.Fail {
		return nil, ErrUnavailable
	}
	return c.Balances[owner], nil
}
