package domain

// TokenHolding is one entry of the collection wallet's per-token breakdown.
type TokenHolding struct {
	Mint     string
	Symbol   string
	Amount   float64 // whole-token units
	Decimals int
	Value    float64 // Amount converted to the common value unit
}

// Contribution is one recent inbound transfer to the collection wallet.
// The pool feed is memo-agnostic: unresolved and dust transfers count.
type Contribution struct {
	Signature string
	Sender    string
	Amount    float64 // whole-token units
	Mint      string
	Timestamp int64 // unix ms
}

// PrizePoolSnapshot is the derived read-model of the collection wallet.
// Built entirely from wallet polling, independent of ledger state.
type PrizePoolSnapshot struct {
	TotalValue    float64
	Holdings      []TokenHolding
	Recent        []Contribution // newest first, bounded length
	Target        float64
	Progress      float64 // TotalValue / Target, 0 when no target
	Stale         bool    // true when the last poll failed
	LastUpdatedMs int64   // time of the last successful poll
}
