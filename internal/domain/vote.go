package domain

import "math"

// VoteRecord represents a single on-chain token transfer interpreted as a
// community vote. Corresponds to votes table in PostgreSQL.
//
// The transaction signature is the sole identity: a record is written once
// on first successful parse and is never updated or deleted (audit trail).
type VoteRecord struct {
	ID           int64  // BIGSERIAL primary key
	Signature    string // Solana transaction signature, globally unique
	SubmissionID string // resolved from memo; empty if unresolved
	Sender       string // sender wallet address (base58)
	Mint         string // SPL token mint of the transfer
	RawAmount    uint64 // amount in base units
	Decimals     int    // mint decimals for RawAmount
	Memo         string // raw memo content as delivered
	ConfirmedAt  int64  // on-chain confirmation time, unix ms
	CreatedAt    int64  // record creation timestamp (ms)
}

// Resolved reports whether the memo resolved to a submission.
func (v *VoteRecord) Resolved() bool {
	return v.SubmissionID != ""
}

// UIAmount converts RawAmount to whole-token units using Decimals.
func (v *VoteRecord) UIAmount() float64 {
	return float64(v.RawAmount) / math.Pow10(v.Decimals)
}
